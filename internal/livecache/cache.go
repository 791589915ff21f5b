// Package livecache keeps the dashboard-facing snapshot of the pipeline in
// Redis: the latest scored reading and the open-alert count. Writes are
// best-effort; a cache failure never fails message processing.
package livecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terminal-bench/motorwatch/internal/telemetry"
)

const (
	keyLatestReading = "motorwatch:latest_reading"
	keyOpenAlerts    = "motorwatch:open_alerts"

	snapshotTTL = 5 * time.Minute
)

// Cache wraps the Redis client.
type Cache struct {
	rdb *redis.Client
}

// New connects to Redis at addr.
func New(addr string) *Cache {
	return &Cache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetLatestReading stores the most recent scored reading.
func (c *Cache) SetLatestReading(ctx context.Context, r *telemetry.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	if err := c.rdb.Set(ctx, keyLatestReading, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache reading: %w", err)
	}
	return nil
}

// IncrOpenAlerts bumps the open-alert counter by delta (negative to drop).
func (c *Cache) IncrOpenAlerts(ctx context.Context, delta int64) error {
	if err := c.rdb.IncrBy(ctx, keyOpenAlerts, delta).Err(); err != nil {
		return fmt.Errorf("failed to update open-alert count: %w", err)
	}
	return nil
}

// Close releases the connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
