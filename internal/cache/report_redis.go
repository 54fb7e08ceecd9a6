package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	// defaultReportTTL keeps a day's report around until the next daily review.
	defaultReportTTL  = 24 * time.Hour
	reportDialTimeout = 5 * time.Second
	purgeBatchSize    = 100
)

// dialReportRedis connects to the Redis instance holding closed-loop reports
// and fails fast when it does not answer a ping.
func dialReportRedis(cfg config.CacheConfig) (*redis.Client, time.Duration, error) {
	opts, err := reportRedisOptions(cfg)
	if err != nil {
		return nil, 0, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), reportDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, 0, fmt.Errorf("report cache ping %s failed: %w", opts.Addr, err)
	}
	return client, reportTTL(cfg.ReportTTLSeconds), nil
}

func reportTTL(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultReportTTL
	}
	return time.Duration(seconds) * time.Second
}

// reportRedisOptions prefers REDIS_URL and otherwise builds the address from
// host and port.
func reportRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid report cache url: %w", err)
		}
		return opts, nil
	}

	host, port := cfg.RedisHost, cfg.RedisPort
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "6379"
	}
	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

// purgeReports deletes every cached report, one batch of scanned keys at a time.
func purgeReports(ctx context.Context, client *redis.Client) error {
	iter := client.Scan(ctx, 0, reportKeyPrefix+"*", purgeBatchSize).Iterator()
	batch := make([]string, 0, purgeBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("delete cached reports: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == purgeBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached reports: %w", err)
	}
	return flush()
}
