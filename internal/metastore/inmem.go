package metastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridian-search/meridian/internal/ingest"
)

// InMemory is a Metastore held entirely in process memory. It mirrors the
// PostgreSQL implementation's semantics (idempotent re-commits, checkpoint
// monotonicity, unknown-index rejection) and is used in tests and local
// development.
type InMemory struct {
	mu          sync.Mutex
	indexes     map[string]bool
	segments    map[string][]Segment         // index_id -> committed segments in order
	checkpoints map[string]map[string]uint64 // index_id -> source_id -> checkpoint
}

// NewInMemory creates an empty in-memory catalog.
func NewInMemory() *InMemory {
	return &InMemory{
		indexes:     make(map[string]bool),
		segments:    make(map[string][]Segment),
		checkpoints: make(map[string]map[string]uint64),
	}
}

// CreateIndex registers a new, empty index.
func (m *InMemory) CreateIndex(ctx context.Context, indexID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexes[indexID] {
		return fmt.Errorf("%w: %s", ErrIndexExists, indexID)
	}
	m.indexes[indexID] = true
	m.checkpoints[indexID] = make(map[string]uint64)
	return nil
}

// IndexExists reports whether the index is registered.
func (m *InMemory) IndexExists(ctx context.Context, indexID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexes[indexID], nil
}

// PublishSegment commits the segment under the same contract as the
// PostgreSQL implementation.
func (m *InMemory) PublishSegment(ctx context.Context, seg ingest.UploadedSegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.indexes[seg.IndexID] {
		return fmt.Errorf("%w: %s", ErrUnknownIndex, seg.IndexID)
	}
	if stored, ok := m.checkpoints[seg.IndexID][seg.SourceID]; ok && seg.Checkpoint < stored {
		return fmt.Errorf("%w: supplied %d, stored %d", ErrStaleCheckpoint, seg.Checkpoint, stored)
	}
	for _, existing := range m.segments[seg.IndexID] {
		if existing.SegmentID == seg.SegmentID {
			return fmt.Errorf("%w: %s in index %s", ErrAlreadyPublished, seg.SegmentID, seg.IndexID)
		}
	}

	m.segments[seg.IndexID] = append(m.segments[seg.IndexID], Segment{
		IndexID:     seg.IndexID,
		SegmentID:   seg.SegmentID,
		SourceID:    seg.SourceID,
		TimeRange:   seg.TimeRange,
		SizeBytes:   seg.SizeBytes,
		Checkpoint:  seg.Checkpoint,
		PublishedAt: time.Now().UTC(),
	})
	if seg.Checkpoint > m.checkpoints[seg.IndexID][seg.SourceID] {
		m.checkpoints[seg.IndexID][seg.SourceID] = seg.Checkpoint
	}
	return nil
}

// ListSegments returns the committed segments of an index in publish order.
func (m *InMemory) ListSegments(ctx context.Context, indexID string) ([]Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.indexes[indexID] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, indexID)
	}
	out := make([]Segment, len(m.segments[indexID]))
	copy(out, m.segments[indexID])
	return out, nil
}
