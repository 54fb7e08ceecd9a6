package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage captures the minimal S3-compatible operations the report archive needs.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, destPath string) error
	UploadObject(ctx context.Context, key string, data []byte) error
}

// ReportPrefix is the folder holding every archived report of one as_of day.
func ReportPrefix(prefix string, asOf time.Time) string {
	return path.Join(strings.Trim(prefix, "/"), "closed_loop", asOf.Format("2006-01-02")) + "/"
}

// ReportKey returns <prefix>/closed_loop/<as_of>/<run_id>.json.
func ReportKey(prefix string, asOf time.Time, runID string) string {
	return path.Join(ReportPrefix(prefix, asOf), runID+".json")
}

// ArchiveReport uploads an already encoded closed-loop report and returns its key.
func ArchiveReport(ctx context.Context, store ObjectStorage, prefix string, asOf time.Time, runID string, payload []byte) (string, error) {
	key := ReportKey(prefix, asOf, runID)
	if err := store.UploadObject(ctx, key, payload); err != nil {
		return "", fmt.Errorf("archive report %s: %w", key, err)
	}
	return key, nil
}

// LatestReport downloads the most recently written report archived for asOf.
// It reports false when the day has no archived report.
func LatestReport(ctx context.Context, store ObjectStorage, prefix string, asOf time.Time) ([]byte, bool, error) {
	objects, err := store.ListObjects(ctx, ReportPrefix(prefix, asOf))
	if err != nil {
		return nil, false, fmt.Errorf("list archived reports: %w", err)
	}

	var latest *ObjectInfo
	for i := range objects {
		obj := &objects[i]
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		if latest == nil || obj.LastModified.After(latest.LastModified) ||
			(obj.LastModified.Equal(latest.LastModified) && obj.Key > latest.Key) {
			latest = obj
		}
	}
	if latest == nil {
		return nil, false, nil
	}

	dir, err := os.MkdirTemp("", "closed-loop-report-")
	if err != nil {
		return nil, false, fmt.Errorf("create download dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dest := filepath.Join(dir, path.Base(latest.Key))
	if err := store.DownloadObject(ctx, latest.Key, dest); err != nil {
		return nil, false, fmt.Errorf("download archived report %s: %w", latest.Key, err)
	}
	payload, err := os.ReadFile(dest)
	if err != nil {
		return nil, false, fmt.Errorf("read archived report %s: %w", latest.Key, err)
	}
	return payload, true, nil
}
