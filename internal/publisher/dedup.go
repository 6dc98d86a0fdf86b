package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-search/meridian/internal/ingest"
	"github.com/meridian-search/meridian/pkg/redis"
)

// DedupCache remembers recently published segment IDs in Redis so that
// redelivered records can be acknowledged without a metastore round trip.
// It is purely an optimisation: the metastore remains the source of truth
// for idempotence, so cache failures degrade to extra metastore calls.
type DedupCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewDedupCache wraps a Redis client. Entries expire after ttl.
func NewDedupCache(client *redis.Client, ttl time.Duration) *DedupCache {
	return &DedupCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "publish-dedup"),
	}
}

// Seen reports whether the segment was recently published. A nil cache or a
// Redis error reports false.
func (c *DedupCache) Seen(ctx context.Context, seg ingest.UploadedSegment) bool {
	if c == nil || c.client == nil {
		return false
	}
	ok, err := c.client.Exists(ctx, dedupKey(seg))
	if err != nil {
		c.logger.Warn("dedup lookup failed", "segment_id", seg.SegmentID, "error", err)
		return false
	}
	return ok
}

// Mark records a successful publish. Errors are logged and ignored.
func (c *DedupCache) Mark(ctx context.Context, seg ingest.UploadedSegment) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, dedupKey(seg), "1", c.ttl); err != nil {
		c.logger.Warn("dedup mark failed", "segment_id", seg.SegmentID, "error", err)
	}
}

func dedupKey(seg ingest.UploadedSegment) string {
	return fmt.Sprintf("published:%s:%s", seg.IndexID, seg.SegmentID)
}
