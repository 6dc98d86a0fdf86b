package metastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/meridian-search/meridian/internal/ingest"
	"github.com/meridian-search/meridian/pkg/postgres"
)

// schema creates the catalog tables. Idempotent; run at startup.
const schema = `
CREATE TABLE IF NOT EXISTS indexes (
	index_id   TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS segments (
	index_id     TEXT   NOT NULL REFERENCES indexes(index_id),
	segment_id   TEXT   NOT NULL,
	source_id    TEXT   NOT NULL,
	ts_start     BIGINT,
	ts_end       BIGINT,
	size_bytes   BIGINT NOT NULL,
	checkpoint   BIGINT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (index_id, segment_id)
);

CREATE TABLE IF NOT EXISTS source_checkpoints (
	index_id   TEXT   NOT NULL REFERENCES indexes(index_id),
	source_id  TEXT   NOT NULL,
	checkpoint BIGINT NOT NULL,
	PRIMARY KEY (index_id, source_id)
);
`

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// PostgresMetastore implements Metastore on top of PostgreSQL. Each publish
// runs in one transaction holding a row lock on the index, which linearises
// concurrent publishes per index.
type PostgresMetastore struct {
	db *postgres.Client
}

// NewPostgres creates a PostgresMetastore and ensures the schema exists.
func NewPostgres(ctx context.Context, db *postgres.Client) (*PostgresMetastore, error) {
	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating metastore schema: %w", err)
	}
	return &PostgresMetastore{db: db}, nil
}

// CreateIndex registers a new, empty index in the catalog.
func (m *PostgresMetastore) CreateIndex(ctx context.Context, indexID string) error {
	_, err := m.db.DB.ExecContext(ctx,
		`INSERT INTO indexes (index_id) VALUES ($1)`, indexID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrIndexExists, indexID)
		}
		return fmt.Errorf("%w: creating index %s: %v", ErrUnavailable, indexID, err)
	}
	return nil
}

// IndexExists reports whether the index is registered.
func (m *PostgresMetastore) IndexExists(ctx context.Context, indexID string) (bool, error) {
	var one int
	err := m.db.DB.QueryRowContext(ctx,
		`SELECT 1 FROM indexes WHERE index_id = $1`, indexID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: checking index %s: %v", ErrUnavailable, indexID, err)
	}
	return true, nil
}

// PublishSegment commits the segment and advances the source checkpoint in a
// single transaction. The segment row and the checkpoint move together: a
// reader never observes one without the other.
func (m *PostgresMetastore) PublishSegment(ctx context.Context, seg ingest.UploadedSegment) error {
	err := m.db.InTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM indexes WHERE index_id = $1 FOR UPDATE`, seg.IndexID).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrUnknownIndex, seg.IndexID)
		}
		if err != nil {
			return fmt.Errorf("%w: locking index %s: %v", ErrUnavailable, seg.IndexID, err)
		}

		var stored int64
		err = tx.QueryRowContext(ctx,
			`SELECT checkpoint FROM source_checkpoints WHERE index_id = $1 AND source_id = $2`,
			seg.IndexID, seg.SourceID).Scan(&stored)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("%w: reading checkpoint: %v", ErrUnavailable, err)
		}
		if err == nil && seg.Checkpoint < uint64(stored) {
			return fmt.Errorf("%w: supplied %d, stored %d", ErrStaleCheckpoint, seg.Checkpoint, stored)
		}

		var tsStart, tsEnd sql.NullInt64
		if tr := seg.TimeRange; tr != nil {
			tsStart = sql.NullInt64{Int64: tr.Start, Valid: true}
			tsEnd = sql.NullInt64{Int64: tr.End, Valid: true}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO segments (index_id, segment_id, source_id, ts_start, ts_end, size_bytes, checkpoint)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (index_id, segment_id) DO NOTHING`,
			seg.IndexID, seg.SegmentID, seg.SourceID, tsStart, tsEnd, seg.SizeBytes, int64(seg.Checkpoint))
		if err != nil {
			return fmt.Errorf("%w: inserting segment: %v", ErrUnavailable, err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: inspecting insert result: %v", ErrUnavailable, err)
		}
		if inserted == 0 {
			return fmt.Errorf("%w: %s in index %s", ErrAlreadyPublished, seg.SegmentID, seg.IndexID)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO source_checkpoints (index_id, source_id, checkpoint)
			VALUES ($1, $2, $3)
			ON CONFLICT (index_id, source_id)
			DO UPDATE SET checkpoint = GREATEST(source_checkpoints.checkpoint, EXCLUDED.checkpoint)`,
			seg.IndexID, seg.SourceID, int64(seg.Checkpoint))
		if err != nil {
			return fmt.Errorf("%w: advancing checkpoint: %v", ErrUnavailable, err)
		}
		return nil
	})
	return err
}

// ListSegments returns all committed segments of an index in publish order.
func (m *PostgresMetastore) ListSegments(ctx context.Context, indexID string) ([]Segment, error) {
	exists, err := m.IndexExists(ctx, indexID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, indexID)
	}

	rows, err := m.db.DB.QueryContext(ctx,
		`SELECT index_id, segment_id, source_id, ts_start, ts_end, size_bytes, checkpoint, published_at
		FROM segments WHERE index_id = $1 ORDER BY published_at, segment_id`, indexID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing segments: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		var s Segment
		var tsStart, tsEnd sql.NullInt64
		var checkpoint int64
		if err := rows.Scan(&s.IndexID, &s.SegmentID, &s.SourceID,
			&tsStart, &tsEnd, &s.SizeBytes, &checkpoint, &s.PublishedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning segment row: %v", ErrUnavailable, err)
		}
		if tsStart.Valid && tsEnd.Valid {
			s.TimeRange = &ingest.TimeRange{Start: tsStart.Int64, End: tsEnd.Int64}
		}
		s.Checkpoint = uint64(checkpoint)
		segments = append(segments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating segments: %v", ErrUnavailable, err)
	}
	return segments, nil
}
