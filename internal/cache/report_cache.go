package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/config"
	"github.com/redis/go-redis/v9"
)

const reportKeyPrefix = "closed_loop:report:"

// ReportCache keeps the latest encoded closed-loop report per as_of day.
// Payloads are stored as produced so readers can serve them without decoding.
type ReportCache interface {
	GetReport(ctx context.Context, asOf time.Time) ([]byte, bool, error)
	SetReport(ctx context.Context, asOf time.Time, payload []byte) error
	InvalidateAll(ctx context.Context) error
}

type redisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopReportCache struct{}

// NewReportCache connects to Redis when caching is enabled, otherwise it
// returns a cache that stores nothing.
func NewReportCache(cfg config.CacheConfig) (ReportCache, error) {
	if !cfg.Enabled {
		return &noopReportCache{}, nil
	}

	client, ttl, err := dialReportRedis(cfg)
	if err != nil {
		return nil, err
	}
	return &redisReportCache{client: client, ttl: ttl}, nil
}

// NewRedisReportCache wraps an existing client. ttl <= 0 uses the default.
func NewRedisReportCache(client *redis.Client, ttl time.Duration) ReportCache {
	if ttl <= 0 {
		ttl = defaultReportTTL
	}
	return &redisReportCache{client: client, ttl: ttl}
}

func NewNoopReportCache() ReportCache {
	return &noopReportCache{}
}

// ReportKey is the Redis key for the report of a given day.
func ReportKey(asOf time.Time) string {
	return reportKeyPrefix + asOf.Format("2006-01-02")
}

func (c *redisReportCache) GetReport(ctx context.Context, asOf time.Time) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, ReportKey(asOf)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return payload, true, nil
}

func (c *redisReportCache) SetReport(ctx context.Context, asOf time.Time, payload []byte) error {
	if err := c.client.Set(ctx, ReportKey(asOf), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisReportCache) InvalidateAll(ctx context.Context) error {
	return purgeReports(ctx, c.client)
}

func (n *noopReportCache) GetReport(ctx context.Context, asOf time.Time) ([]byte, bool, error) {
	return nil, false, nil
}

func (n *noopReportCache) SetReport(ctx context.Context, asOf time.Time, payload []byte) error {
	return nil
}

func (n *noopReportCache) InvalidateAll(ctx context.Context) error {
	return nil
}
