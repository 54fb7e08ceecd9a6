package storage

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStorage keeps uploads in memory and stamps each one a minute
// after the previous upload.
type recordingStorage struct {
	uploads  map[string][]byte
	modified map[string]time.Time
	clock    time.Time
	err      error
}

func (r *recordingStorage) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []ObjectInfo
	for key, data := range r.uploads {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(data)), LastModified: r.modified[key]})
		}
	}
	return out, nil
}

func (r *recordingStorage) DownloadObject(ctx context.Context, key, destPath string) error {
	data, ok := r.uploads[key]
	if !ok {
		return errors.New("no such key")
	}
	return os.WriteFile(destPath, data, 0o600)
}

func (r *recordingStorage) UploadObject(ctx context.Context, key string, data []byte) error {
	if r.err != nil {
		return r.err
	}
	if r.uploads == nil {
		r.uploads = map[string][]byte{}
		r.modified = map[string]time.Time{}
		r.clock = time.Date(2026, 3, 31, 6, 0, 0, 0, time.UTC)
	}
	r.clock = r.clock.Add(time.Minute)
	r.uploads[key] = data
	r.modified[key] = r.clock
	return nil
}

func TestReportKey(t *testing.T) {
	asOf := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "reports/closed_loop/2026-03-31/run-1.json", ReportKey("reports", asOf, "run-1"))
	assert.Equal(t, "reports/closed_loop/2026-03-31/run-1.json", ReportKey("/reports/", asOf, "run-1"))
	assert.Equal(t, "closed_loop/2026-03-31/run-1.json", ReportKey("", asOf, "run-1"))
	assert.Equal(t, "reports/closed_loop/2026-03-31/", ReportPrefix("reports", asOf))
}

func TestLatestReport(t *testing.T) {
	asOf := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	store := &recordingStorage{}
	ctx := context.Background()

	_, found, err := LatestReport(ctx, store, "reports", asOf)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = ArchiveReport(ctx, store, "reports", asOf, "zz-first", []byte(`{"run_id":"zz-first"}`))
	require.NoError(t, err)
	_, err = ArchiveReport(ctx, store, "reports", asOf, "aa-second", []byte(`{"run_id":"aa-second"}`))
	require.NoError(t, err)
	_, err = ArchiveReport(ctx, store, "reports", asOf.AddDate(0, 0, 1), "next-day", []byte(`{"run_id":"next-day"}`))
	require.NoError(t, err)

	payload, found, err := LatestReport(ctx, store, "reports", asOf)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"run_id":"aa-second"}`, string(payload))

	store.err = errors.New("bucket gone")
	_, _, err = LatestReport(ctx, store, "reports", asOf)
	assert.ErrorContains(t, err, "bucket gone")
}

func TestArchiveReport(t *testing.T) {
	asOf := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	store := &recordingStorage{}

	key, err := ArchiveReport(context.Background(), store, "reports", asOf, "run-1", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), store.uploads[key])

	store.err = errors.New("bucket gone")
	_, err = ArchiveReport(context.Background(), store, "reports", asOf, "run-2", []byte(`{}`))
	assert.ErrorContains(t, err, "bucket gone")
}

func TestNewMinioClientValidation(t *testing.T) {
	_, err := NewMinioClient(MinioConfig{})
	assert.Error(t, err)

	_, err = NewMinioClient(MinioConfig{Endpoint: "localhost:9000", Bucket: "b"})
	assert.Error(t, err)

	client, err := NewMinioClient(MinioConfig{Endpoint: "http://localhost:9000/", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", client.bucket)
}
