package publisher

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-search/meridian/internal/ingest"
)

// Router dispatches uploaded-segment records across a fixed set of Publisher
// instances by hashing the index ID. Records for one index always land on
// the same instance, which preserves per-index publish ordering while
// letting disjoint indexes proceed in parallel.
type Router struct {
	publishers []*Publisher
	logger     *slog.Logger
}

// NewRouter creates numShards publishers sharing the same Options template;
// each gets its own ID and inbox.
func NewRouter(numShards int, opts Options) *Router {
	if numShards <= 0 {
		numShards = 1
	}
	r := &Router{
		publishers: make([]*Publisher, numShards),
		logger:     slog.Default().With("component", "publisher-router"),
	}
	for i := 0; i < numShards; i++ {
		shardOpts := opts
		shardOpts.ID = strconv.Itoa(i)
		r.publishers[i] = New(shardOpts)
	}
	r.logger.Info("publisher router ready", "num_shards", numShards)
	return r
}

// Route returns the Publisher responsible for the given index.
func (r *Router) Route(indexID string) *Publisher {
	h := fnv.New32a()
	h.Write([]byte(indexID))
	return r.publishers[h.Sum32()%uint32(len(r.publishers))]
}

// Deliver routes the record by index ID and blocks until the owning
// publisher accepts it or ctx is cancelled.
func (r *Router) Deliver(ctx context.Context, seg ingest.UploadedSegment) error {
	return r.Route(seg.IndexID).Deliver(ctx, seg)
}

// Publish routes the record by index ID and blocks until the owning
// publisher has committed or deliberately dropped it.
func (r *Router) Publish(ctx context.Context, seg ingest.UploadedSegment) error {
	return r.Route(seg.IndexID).Publish(ctx, seg)
}

// Start runs every publisher until ctx is cancelled.
func (r *Router) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range r.publishers {
		g.Go(func() error { return p.Start(ctx) })
	}
	return g.Wait()
}

// Snapshots returns the observable state of every publisher instance.
func (r *Router) Snapshots() []Snapshot {
	snaps := make([]Snapshot, 0, len(r.publishers))
	for _, p := range r.publishers {
		snaps = append(snaps, p.State())
	}
	return snaps
}
