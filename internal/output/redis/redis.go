// Package redis publishes run summaries to Redis so dashboards can read the
// latest day without touching the CSV exports.
//
// Each summary is a hash at auditor:summary:<date>; the dates are indexed in
// the sorted set auditor:summaries, scored by the date's Unix time.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crimson-sun/auditor/internal/model"
)

const (
	summaryKeyPrefix = "auditor:summary:"
	indexKey         = "auditor:summaries"
)

// SummaryKey returns the hash key for a run date.
func SummaryKey(date string) string {
	return summaryKeyPrefix + date
}

// Option configures a redis Output.
type Option func(*Output)

// WithTTL expires summary hashes after d. 0 (default) keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(o *Output) { o.ttl = d }
}

// Output writes summaries to Redis.
type Output struct {
	client *redis.Client
	ttl    time.Duration
	owned  bool
}

// Dial connects to redisURL and verifies the connection.
func Dial(ctx context.Context, redisURL string, opts ...Option) (*Output, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	o := New(client, opts...)
	o.owned = true
	return o, nil
}

// New wraps an existing client. Close leaves it open.
func New(client *redis.Client, opts ...Option) *Output {
	o := &Output{client: client}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Write replaces the summary hash for the report date and indexes the date.
func (o *Output) Write(ctx context.Context, report model.Report) error {
	s := report.Summary
	day, err := time.Parse("2006-01-02", s.Date)
	if err != nil {
		return fmt.Errorf("redis output: bad summary date %q: %w", s.Date, err)
	}

	key := SummaryKey(s.Date)
	pipe := o.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		"run_id":                report.RunID,
		"total_events":          s.TotalEvents,
		"failed_logins":         s.FailedLogins,
		"unauthorized_access":   s.UnauthorizedAccess,
		"suspicious_activities": s.SuspiciousActivities,
		"status":                string(s.Status),
		"dropped":               report.Dropped,
	})
	if o.ttl > 0 {
		pipe.Expire(ctx, key, o.ttl)
	}
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(day.Unix()), Member: s.Date})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis output: %w", err)
	}
	return nil
}

// Close closes the client if Dial created it.
func (o *Output) Close() error {
	if o.owned {
		return o.client.Close()
	}
	return nil
}
