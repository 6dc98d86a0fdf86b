package decompress

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/meridian-search/meridian/pkg/errors"
	"github.com/meridian-search/meridian/pkg/logger"
	"github.com/meridian-search/meridian/pkg/metrics"
)

// Middleware returns HTTP middleware that transparently inflates compressed
// request bodies before they reach the handler. On success the request body
// is replaced with the decoded payload and the Content-Encoding header is
// stripped. Rejections are written as JSON with 415, 400, or 413.
func Middleware(cfg Config, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hint := r.Header.Get("Content-Encoding")
			decoded, err := Decode(cfg, hint, r.Body)
			if err != nil {
				reason := rejectReason(err)
				if m != nil {
					m.DecodeRejectsTotal.WithLabelValues(reason).Inc()
				}
				logger.FromContext(r.Context()).Warn("request body rejected",
					"encoding", hint,
					"reason", reason,
					"error", err,
				)
				writeReject(w, err)
				return
			}
			if m != nil {
				encoding := hint
				if encoding == "" {
					encoding = Identity.String()
				}
				m.DecodedRequestsTotal.WithLabelValues(encoding).Inc()
				m.DecodedBytesTotal.Add(float64(len(decoded)))
			}

			r.Body = io.NopCloser(bytes.NewReader(decoded))
			r.ContentLength = int64(len(decoded))
			r.Header.Del("Content-Encoding")
			r.Header.Set("Content-Length", strconv.Itoa(len(decoded)))
			next.ServeHTTP(w, r)
		})
	}
}

// rejectReason labels a decode error for metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrUnsupportedEncoding):
		return "unsupported_algorithm"
	case errors.Is(err, apperrors.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, apperrors.ErrMalformedBody):
		return "malformed_body"
	default:
		return "read_error"
	}
}

func writeReject(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
