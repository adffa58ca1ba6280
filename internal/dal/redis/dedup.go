package redis

import (
	"context"
	"fmt"
	"time"
)

// DedupCache remembers processed event ids for a while. It is a fast path
// only; the processed-events ledger stays authoritative.
type DedupCache struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewDedupCache creates a cache for one consumer group.
func NewDedupCache(client *Client, consumerGroup string, ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &DedupCache{
		client: client,
		prefix: "processed:" + consumerGroup + ":",
		ttl:    ttl,
	}
}

// Seen reports whether eventID was remembered and has not expired yet.
func (c *DedupCache) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.client.rdb.Exists(ctx, c.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed event cache: %w", err)
	}

	return n > 0, nil
}

// Remember marks eventID as processed.
func (c *DedupCache) Remember(ctx context.Context, eventID string) error {
	if err := c.client.rdb.Set(ctx, c.prefix+eventID, 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to remember processed event: %w", err)
	}

	return nil
}
