// Package metastore defines the cluster-wide segment catalog the publisher
// commits into. The catalog is consumed through the Metastore interface so
// the publisher stays decoupled from the backing store; a PostgreSQL
// implementation backs production and an in-memory one backs tests.
package metastore

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-search/meridian/internal/ingest"
)

var (
	// ErrAlreadyPublished reports an idempotent re-commit of a segment ID
	// that is already visible. Callers treat it as success.
	ErrAlreadyPublished = errors.New("segment already published")

	// ErrStaleCheckpoint reports a commit whose checkpoint is strictly less
	// than the one already recorded for the same (index, source).
	ErrStaleCheckpoint = errors.New("stale source checkpoint")

	// ErrUnknownIndex reports a commit against an index the catalog has
	// never seen.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrIndexExists reports index creation against an existing index ID.
	ErrIndexExists = errors.New("index already exists")

	// ErrUnavailable reports a transient backend failure. Safe to retry.
	ErrUnavailable = errors.New("metastore unavailable")
)

// ErrorKind classifies a publish failure for observability and retry
// decisions.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindAlreadyPublished ErrorKind = "already_published"
	KindStaleCheckpoint  ErrorKind = "stale_checkpoint"
	KindUnknownIndex     ErrorKind = "unknown_index"
	KindTransient        ErrorKind = "transient"
)

// Classify maps an error from PublishSegment to its kind. Anything the
// taxonomy does not recognise counts as transient, so unexpected failures
// fall under the retry policy rather than being dropped.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAlreadyPublished):
		return KindAlreadyPublished
	case errors.Is(err, ErrStaleCheckpoint):
		return KindStaleCheckpoint
	case errors.Is(err, ErrUnknownIndex):
		return KindUnknownIndex
	default:
		return KindTransient
	}
}

// Segment is a committed catalog entry.
type Segment struct {
	IndexID     string            `json:"index_id"`
	SegmentID   string            `json:"segment_id"`
	SourceID    string            `json:"source_id"`
	TimeRange   *ingest.TimeRange `json:"time_range,omitempty"`
	SizeBytes   int64             `json:"size_bytes"`
	Checkpoint  uint64            `json:"checkpoint"`
	PublishedAt time.Time         `json:"published_at"`
}

// Metastore is the catalog capability the pipeline depends on.
//
// PublishSegment is atomic per index: the segment becomes visible only when
// the call returns nil. Concurrent publishes for the same index are
// linearised by the implementation.
type Metastore interface {
	CreateIndex(ctx context.Context, indexID string) error
	IndexExists(ctx context.Context, indexID string) (bool, error)
	PublishSegment(ctx context.Context, seg ingest.UploadedSegment) error
	ListSegments(ctx context.Context, indexID string) ([]Segment, error)
}
