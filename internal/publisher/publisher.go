// Package publisher contains the actors that commit uploaded segments into
// the metastore. Each Publisher is a single goroutine draining a bounded
// inbox: it validates one uploaded-segment record at a time, publishes it
// with bounded exponential backoff on transient failures, and exposes a
// snapshot of its progress. A processing error never terminates the actor;
// only context cancellation does.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-search/meridian/internal/ingest"
	"github.com/meridian-search/meridian/internal/ingest/validator"
	"github.com/meridian-search/meridian/internal/metastore"
	"github.com/meridian-search/meridian/pkg/metrics"
	"github.com/meridian-search/meridian/pkg/resilience"
)

// State names the phase a Publisher is in. Transitions are
// idle → processing → idle on success or drop, processing → backoff →
// processing on transient failure, and anything → stopped on shutdown.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateBackoff    State = "backoff"
	StateStopped    State = "stopped"
)

// kindInvalidRecord marks records that failed validation before any
// metastore call was made.
const kindInvalidRecord = "invalid_record"

// publishAttemptTimeout bounds a single metastore call. The attempt context
// is detached from the actor's context so an in-flight commit is not torn
// down mid-transaction by shutdown.
const publishAttemptTimeout = 30 * time.Second

// ErrInboxFull is returned by Enqueue when the bounded inbox is at capacity.
var ErrInboxFull = fmt.Errorf("publisher inbox full")

// envelope pairs an inbox record with an optional completion channel. The
// actor sends the processing outcome on done when it is non-nil.
type envelope struct {
	seg  ingest.UploadedSegment
	done chan error
}

// Snapshot is the observable state of one Publisher.
type Snapshot struct {
	PublisherID            string `json:"publisher_id"`
	State                  string `json:"state"`
	InboxDepth             int    `json:"inbox_depth"`
	PublishedCount         uint64 `json:"published_count"`
	FailedCount            uint64 `json:"failed_count"`
	LastPublishedSegmentID string `json:"last_published_segment_id,omitempty"`
	LastErrorKind          string `json:"last_error_kind,omitempty"`
}

// Options configures a Publisher.
type Options struct {
	ID        string
	InboxSize int
	Store     metastore.Metastore
	Retry     resilience.RetryConfig
	Dedup     *DedupCache      // optional
	Metrics   *metrics.Metrics // optional
}

// Publisher consumes uploaded-segment records and commits them to the
// metastore, one at a time, in arrival order.
type Publisher struct {
	id      string
	inbox   chan envelope
	store   metastore.Metastore
	retry   resilience.RetryConfig
	dedup   *DedupCache
	metrics *metrics.Metrics
	logger  *slog.Logger

	state stateCell
}

// New creates a Publisher. Call Start to begin processing.
func New(opts Options) *Publisher {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1
	}
	p := &Publisher{
		id:      opts.ID,
		inbox:   make(chan envelope, opts.InboxSize),
		store:   opts.Store,
		retry:   opts.Retry,
		dedup:   opts.Dedup,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "publisher", "publisher_id", opts.ID),
		state:   stateCell{state: StateIdle},
	}
	return p
}

// Enqueue offers a record to the inbox without blocking. It returns
// ErrInboxFull when the inbox is at capacity.
func (p *Publisher) Enqueue(seg ingest.UploadedSegment) error {
	select {
	case p.inbox <- envelope{seg: seg}:
		p.observeInboxDepth()
		return nil
	default:
		return ErrInboxFull
	}
}

// Deliver places a record in the inbox, blocking until there is room or ctx
// is cancelled. It does not wait for the record to be processed.
func (p *Publisher) Deliver(ctx context.Context, seg ingest.UploadedSegment) error {
	select {
	case p.inbox <- envelope{seg: seg}:
		p.observeInboxDepth()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish places a record in the inbox and blocks until the actor has
// finished with it. It returns nil once the segment is committed or
// deliberately dropped, and an error when the record must be redelivered:
// transient retry exhaustion, or shutdown before the record was processed.
// This is the path the Kafka consumer acknowledges offsets on.
func (p *Publisher) Publish(ctx context.Context, seg ingest.UploadedSegment) error {
	done := make(chan error, 1)
	select {
	case p.inbox <- envelope{seg: seg, done: done}:
		p.observeInboxDepth()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the actor loop until ctx is cancelled. It always returns nil:
// message-level failures are absorbed into observable state.
func (p *Publisher) Start(ctx context.Context) error {
	p.logger.Info("publisher started", "inbox_size", cap(p.inbox))
	defer p.state.setState(StateStopped)
	for {
		// Once cancelled, never start another record: queued envelopes stay
		// unacknowledged and are redelivered.
		select {
		case <-ctx.Done():
			p.logger.Info("publisher stopping", "reason", ctx.Err())
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			p.logger.Info("publisher stopping", "reason", ctx.Err())
			return nil
		case env := <-p.inbox:
			p.observeInboxDepth()
			err := p.processMessage(ctx, env.seg)
			if env.done != nil {
				env.done <- err
			}
		}
	}
}

// State returns a point-in-time snapshot of the publisher's progress.
func (p *Publisher) State() Snapshot {
	snap := p.state.snapshot()
	snap.PublisherID = p.id
	snap.InboxDepth = len(p.inbox)
	return snap
}

// processMessage runs the full per-message contract for one record:
// validate, dedup, publish with retries, classify the outcome. The returned
// error is non-nil only when the record must be redelivered; deliberate
// drops (invalid record, stale checkpoint, unknown index) return nil so the
// consumer can acknowledge them.
func (p *Publisher) processMessage(ctx context.Context, seg ingest.UploadedSegment) error {
	p.state.setState(StateProcessing)
	defer p.state.setState(StateIdle)

	if seg.SourceID == "" {
		seg.SourceID = ingest.DefaultSource
	}
	if err := validator.ValidateUploadedSegment(&seg); err != nil {
		p.logger.Warn("dropping invalid segment record",
			"segment_id", seg.SegmentID,
			"index_id", seg.IndexID,
			"error", err,
		)
		p.recordFailure(kindInvalidRecord)
		return nil
	}

	if p.dedup.Seen(ctx, seg) {
		if p.metrics != nil {
			p.metrics.DedupCacheHitsTotal.Inc()
		}
		p.logger.Debug("segment already published, dedup cache hit",
			"segment_id", seg.SegmentID,
			"index_id", seg.IndexID,
		)
		p.recordSuccess(seg.SegmentID)
		return nil
	}

	start := time.Now()
	err := resilience.Retry(ctx, "publish-segment", p.retryConfig(), func() error {
		p.state.setState(StateProcessing)
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishAttemptTimeout)
		defer cancel()
		publishErr := p.store.PublishSegment(attemptCtx, seg)
		switch metastore.Classify(publishErr) {
		case metastore.KindNone, metastore.KindAlreadyPublished:
			return nil
		case metastore.KindTransient:
			return publishErr
		default:
			return resilience.Permanent(publishErr)
		}
	})
	if p.metrics != nil {
		p.metrics.PublishLatency.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		kind := metastore.Classify(err)
		p.logger.Error("failed to publish segment",
			"segment_id", seg.SegmentID,
			"index_id", seg.IndexID,
			"checkpoint", seg.Checkpoint,
			"kind", string(kind),
			"error", err,
		)
		p.recordFailure(string(kind))
		if kind == metastore.KindTransient {
			return err
		}
		return nil
	}

	p.dedup.Mark(ctx, seg)
	p.recordSuccess(seg.SegmentID)
	p.logger.Info("segment published",
		"segment_id", seg.SegmentID,
		"index_id", seg.IndexID,
		"source_id", seg.SourceID,
		"checkpoint", seg.Checkpoint,
		"size_bytes", seg.SizeBytes,
	)
	return nil
}

// retryConfig wires the state machine and metrics into the shared retry
// helper: every backoff sleep is observable as the backoff state.
func (p *Publisher) retryConfig() resilience.RetryConfig {
	cfg := p.retry
	cfg.OnBackoff = func(attempt int, delay time.Duration) {
		p.state.setState(StateBackoff)
		if p.metrics != nil {
			p.metrics.PublishRetriesTotal.Inc()
		}
	}
	return cfg
}

func (p *Publisher) recordSuccess(segmentID string) {
	p.state.recordSuccess(segmentID)
	if p.metrics != nil {
		p.metrics.SegmentsPublishedTotal.Inc()
	}
}

func (p *Publisher) recordFailure(kind string) {
	p.state.recordFailure(kind)
	if p.metrics != nil {
		p.metrics.PublishFailuresTotal.WithLabelValues(kind).Inc()
	}
}

func (p *Publisher) observeInboxDepth() {
	if p.metrics != nil {
		p.metrics.PublisherInboxDepth.WithLabelValues(p.id).Set(float64(len(p.inbox)))
	}
}
