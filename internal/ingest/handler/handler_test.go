package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meridian-search/meridian/internal/ingest"
	"github.com/meridian-search/meridian/internal/metastore"
	"github.com/meridian-search/meridian/pkg/kafka"
)

// captureProducer records published events instead of writing to Kafka.
type captureProducer struct {
	events []kafka.Event
	err    error
}

func (p *captureProducer) Publish(ctx context.Context, event kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *metastore.InMemory, *captureProducer) {
	t.Helper()
	store := metastore.NewInMemory()
	producer := &captureProducer{}
	return New(store, producer), store, producer
}

func newMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/indexes", h.CreateIndex)
	mux.HandleFunc("POST /api/v1/segments", h.SubmitSegment)
	mux.HandleFunc("GET /api/v1/indexes/{index}/segments", h.ListSegments)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateIndex(t *testing.T) {
	h, _, _ := newTestHandler(t)
	mux := newMux(h)

	rec := postJSON(t, mux, "/api/v1/indexes", map[string]string{"index_id": "logs"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, mux, "/api/v1/indexes", map[string]string{"index_id": "logs"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate index, got %d", rec.Code)
	}
}

func TestSubmitSegment(t *testing.T) {
	h, store, producer := newTestHandler(t)
	mux := newMux(h)
	if err := store.CreateIndex(context.Background(), "logs"); err != nil {
		t.Fatalf("creating index: %v", err)
	}

	seg := ingest.UploadedSegment{
		SegmentID:  "seg-1",
		IndexID:    "logs",
		SizeBytes:  4096,
		Checkpoint: 7,
	}
	rec := postJSON(t, mux, "/api/v1/segments", seg)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ingest.PublishResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SegmentID != "seg-1" || resp.Status != "PENDING" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if len(producer.events) != 1 {
		t.Fatalf("expected 1 produced event, got %d", len(producer.events))
	}
	if producer.events[0].Key != "logs" {
		t.Fatalf("events must be keyed by index ID, got %q", producer.events[0].Key)
	}
	produced, ok := producer.events[0].Value.(ingest.UploadedSegment)
	if !ok {
		t.Fatalf("unexpected event value type %T", producer.events[0].Value)
	}
	if produced.SourceID != ingest.DefaultSource {
		t.Fatalf("expected default source, got %q", produced.SourceID)
	}
	if produced.UploadedAt.IsZero() {
		t.Fatal("uploaded_at should be stamped on accept")
	}
}

func TestSubmitSegmentUnknownIndex(t *testing.T) {
	h, _, producer := newTestHandler(t)
	mux := newMux(h)

	seg := ingest.UploadedSegment{SegmentID: "seg-1", IndexID: "missing", Checkpoint: 1}
	rec := postJSON(t, mux, "/api/v1/segments", seg)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(producer.events) != 0 {
		t.Fatal("nothing should be produced for an unknown index")
	}
}

func TestSubmitSegmentValidationFailure(t *testing.T) {
	h, store, _ := newTestHandler(t)
	mux := newMux(h)
	if err := store.CreateIndex(context.Background(), "logs"); err != nil {
		t.Fatalf("creating index: %v", err)
	}

	seg := ingest.UploadedSegment{SegmentID: "", IndexID: "logs"}
	rec := postJSON(t, mux, "/api/v1/segments", seg)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, ok := body.Fields["segment_id"]; !ok {
		t.Fatalf("expected segment_id field error, got %v", body.Fields)
	}
}

func TestSubmitSegmentProducerFailure(t *testing.T) {
	h, store, producer := newTestHandler(t)
	mux := newMux(h)
	if err := store.CreateIndex(context.Background(), "logs"); err != nil {
		t.Fatalf("creating index: %v", err)
	}
	producer.err = errors.New("broker unreachable")

	seg := ingest.UploadedSegment{SegmentID: "seg-1", IndexID: "logs", Checkpoint: 1}
	rec := postJSON(t, mux, "/api/v1/segments", seg)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestListSegments(t *testing.T) {
	h, store, _ := newTestHandler(t)
	mux := newMux(h)
	ctx := context.Background()
	if err := store.CreateIndex(ctx, "logs"); err != nil {
		t.Fatalf("creating index: %v", err)
	}
	if err := store.PublishSegment(ctx, ingest.UploadedSegment{
		SegmentID: "seg-1", IndexID: "logs", SourceID: "src-1", Checkpoint: 1,
	}); err != nil {
		t.Fatalf("publishing segment: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/indexes/logs/segments", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Segments []metastore.Segment `json:"segments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Segments) != 1 || body.Segments[0].SegmentID != "seg-1" {
		t.Fatalf("unexpected segments: %+v", body.Segments)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/indexes/missing/segments", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown index, got %d", rec.Code)
	}
}
