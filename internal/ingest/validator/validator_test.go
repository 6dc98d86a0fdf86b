package validator

import (
	"strings"
	"testing"

	"github.com/meridian-search/meridian/internal/ingest"
)

func validSegment() ingest.UploadedSegment {
	return ingest.UploadedSegment{
		SegmentID:  "seg-1",
		IndexID:    "logs",
		SourceID:   "src-1",
		SizeBytes:  4096,
		Checkpoint: 1,
		TimeRange:  &ingest.TimeRange{Start: 100, End: 200},
	}
}

func TestValidSegmentPasses(t *testing.T) {
	seg := validSegment()
	if err := ValidateUploadedSegment(&seg); err != nil {
		t.Fatalf("expected valid segment, got %v", err)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(*ingest.UploadedSegment)
		wantField string
	}{
		{"missing segment id", func(s *ingest.UploadedSegment) { s.SegmentID = "" }, "segment_id"},
		{"blank segment id", func(s *ingest.UploadedSegment) { s.SegmentID = "   " }, "segment_id"},
		{"overlong segment id", func(s *ingest.UploadedSegment) { s.SegmentID = strings.Repeat("x", 300) }, "segment_id"},
		{"missing index id", func(s *ingest.UploadedSegment) { s.IndexID = "" }, "index_id"},
		{"negative size", func(s *ingest.UploadedSegment) { s.SizeBytes = -1 }, "size_bytes"},
		{"inverted time range", func(s *ingest.UploadedSegment) { s.TimeRange = &ingest.TimeRange{Start: 200, End: 100} }, "time_range"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seg := validSegment()
			tc.mutate(&seg)
			err := ValidateUploadedSegment(&seg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if _, present := verr.Fields[tc.wantField]; !present {
				t.Fatalf("expected field %q in %v", tc.wantField, verr.Fields)
			}
		})
	}
}

func TestNilTimeRangeAllowed(t *testing.T) {
	seg := validSegment()
	seg.TimeRange = nil
	if err := ValidateUploadedSegment(&seg); err != nil {
		t.Fatalf("time range is optional, got %v", err)
	}
}
