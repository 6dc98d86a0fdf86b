// Package handler exposes the write-ingress HTTP API: index creation,
// uploaded-segment submission, and segment listing. Submitted records are
// validated and produced to Kafka, which serves as the publisher's mailbox.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridian-search/meridian/internal/ingest"
	"github.com/meridian-search/meridian/internal/ingest/validator"
	"github.com/meridian-search/meridian/internal/metastore"
	apperrors "github.com/meridian-search/meridian/pkg/errors"
	"github.com/meridian-search/meridian/pkg/kafka"
	"github.com/meridian-search/meridian/pkg/logger"
)

// EventProducer publishes events to the segment-uploaded topic.
type EventProducer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Handler holds the ingress dependencies.
type Handler struct {
	store    metastore.Metastore
	producer EventProducer
	logger   *slog.Logger
}

// New creates a Handler.
func New(store metastore.Metastore, producer EventProducer) *Handler {
	return &Handler{
		store:    store,
		producer: producer,
		logger:   slog.Default().With("component", "ingest-handler"),
	}
}

type createIndexRequest struct {
	IndexID string `json:"index_id"`
}

// CreateIndex registers a new index in the metastore.
func (h *Handler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req createIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.IndexID == "" {
		h.writeError(w, http.StatusBadRequest, "index_id is required")
		return
	}
	if err := h.store.CreateIndex(ctx, req.IndexID); err != nil {
		if errors.Is(err, metastore.ErrIndexExists) {
			h.writeError(w, http.StatusConflict, "index already exists")
			return
		}
		log.Error("index creation failed", "index_id", req.IndexID, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "index creation failed")
		return
	}
	log.Info("index created", "index_id", req.IndexID)
	h.writeJSON(w, http.StatusCreated, map[string]string{"index_id": req.IndexID})
}

// SubmitSegment accepts an uploaded-segment record and places it on the
// pipeline. The decompression middleware has already inflated the body.
func (h *Handler) SubmitSegment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var seg ingest.UploadedSegment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if seg.SourceID == "" {
		seg.SourceID = ingest.DefaultSource
	}
	if err := validator.ValidateUploadedSegment(&seg); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exists, err := h.store.IndexExists(ctx, seg.IndexID)
	if err != nil {
		log.Error("index lookup failed", "index_id", seg.IndexID, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(apperrors.ErrUnavailable), "index lookup failed")
		return
	}
	if !exists {
		h.writeError(w, http.StatusNotFound, "unknown index")
		return
	}

	if seg.UploadedAt.IsZero() {
		seg.UploadedAt = time.Now().UTC()
	}
	event := kafka.Event{
		Key:   seg.IndexID,
		Value: seg,
	}
	if err := h.producer.Publish(ctx, event); err != nil {
		log.Error("failed to enqueue segment record",
			"segment_id", seg.SegmentID,
			"index_id", seg.IndexID,
			"error", err,
		)
		h.writeError(w, http.StatusServiceUnavailable, "failed to enqueue segment")
		return
	}
	log.Info("segment record accepted",
		"segment_id", seg.SegmentID,
		"index_id", seg.IndexID,
		"checkpoint", seg.Checkpoint,
	)
	h.writeJSON(w, http.StatusAccepted, ingest.PublishResponse{
		SegmentID: seg.SegmentID,
		IndexID:   seg.IndexID,
		Status:    "PENDING",
	})
}

// ListSegments returns the committed segments of an index.
func (h *Handler) ListSegments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	indexID := r.PathValue("index")
	segments, err := h.store.ListSegments(ctx, indexID)
	if err != nil {
		if errors.Is(err, metastore.ErrUnknownIndex) {
			h.writeError(w, http.StatusNotFound, "unknown index")
			return
		}
		logger.FromContext(ctx).Error("segment listing failed", "index_id", indexID, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "segment listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index_id": indexID,
		"segments": segments,
	})
}

// Health is a liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
