// Package validator provides input validation for uploaded-segment records.
// It enforces identifier and size constraints and returns per-field error
// details.
package validator

import (
	"fmt"
	"strings"

	"github.com/meridian-search/meridian/internal/ingest"
)

const (
	maxIDLength     = 255
	maxSourceLength = 255
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateUploadedSegment checks that the record carries well-formed
// identifiers and a consistent time range, returning a ValidationError if not.
func ValidateUploadedSegment(seg *ingest.UploadedSegment) error {
	errs := make(map[string]string)

	segmentID := strings.TrimSpace(seg.SegmentID)
	if segmentID == "" {
		errs["segment_id"] = "segment_id is required"
	} else if len(segmentID) > maxIDLength {
		errs["segment_id"] = fmt.Sprintf("segment_id must be at most %d characters", maxIDLength)
	}
	indexID := strings.TrimSpace(seg.IndexID)
	if indexID == "" {
		errs["index_id"] = "index_id is required"
	} else if len(indexID) > maxIDLength {
		errs["index_id"] = fmt.Sprintf("index_id must be at most %d characters", maxIDLength)
	}
	if len(seg.SourceID) > maxSourceLength {
		errs["source_id"] = fmt.Sprintf("source_id must be at most %d characters", maxSourceLength)
	}
	if seg.SizeBytes < 0 {
		errs["size_bytes"] = "size_bytes must not be negative"
	}
	if tr := seg.TimeRange; tr != nil && tr.End < tr.Start {
		errs["time_range"] = "time_range end must not precede start"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
