package publisher

import (
	"context"
	"log/slog"

	"github.com/meridian-search/meridian/internal/ingest"
	"github.com/meridian-search/meridian/pkg/kafka"
)

// HandleMessage returns a Kafka MessageHandler that decodes uploaded-segment
// records and publishes them through the router.
//
// Records that fail to decode are logged and committed (they would never
// decode on redelivery either). Everything else blocks until the owning
// publisher has finished with the record, so the offset is committed only
// once the segment is in the metastore or was deliberately dropped. Records
// still queued when the service shuts down stay uncommitted and are
// redelivered.
func HandleMessage(router *Router) kafka.MessageHandler {
	logger := slog.Default().With("component", "segment-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		seg, err := kafka.DecodeJSON[ingest.UploadedSegment](value)
		if err != nil {
			logger.Error("failed to decode uploaded-segment record",
				"key", string(key),
				"error", err,
			)
			return nil
		}
		logger.Debug("uploaded-segment record received",
			"segment_id", seg.SegmentID,
			"index_id", seg.IndexID,
		)
		return router.Publish(ctx, seg)
	}
}
