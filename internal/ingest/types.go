// Package ingest defines the uploaded-segment record accepted by the
// write-ingress service and carried through Kafka to the publisher.
package ingest

import "time"

// TimeRange is an inclusive interval of document timestamps (Unix seconds)
// covered by a segment.
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// UploadedSegment describes a freshly produced, durably uploaded index
// segment that is ready to be made visible to queries. It is immutable once
// created: the upload stage fills it in after the artifact PUT succeeds, and
// the publisher only reads it.
type UploadedSegment struct {
	SegmentID  string     `json:"segment_id"`
	IndexID    string     `json:"index_id"`
	SourceID   string     `json:"source_id"`
	TimeRange  *TimeRange `json:"time_range,omitempty"`
	SizeBytes  int64      `json:"size_bytes"`
	Checkpoint uint64     `json:"checkpoint"`
	UploadedAt time.Time  `json:"uploaded_at"`
}

// DefaultSource is used when an uploader does not name its ingestion source.
const DefaultSource = "default"

// PublishResponse is returned by the ingress after a segment record is
// accepted onto the pipeline.
type PublishResponse struct {
	SegmentID string `json:"segment_id"`
	IndexID   string `json:"index_id"`
	Status    string `json:"status"`
}
