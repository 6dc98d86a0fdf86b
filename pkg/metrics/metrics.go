// Package metrics defines the Prometheus metric collectors used across the
// indexing pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	DecodedRequestsTotal *prometheus.CounterVec
	DecodedBytesTotal    prometheus.Counter
	DecodeRejectsTotal   *prometheus.CounterVec

	SegmentsPublishedTotal prometheus.Counter
	PublishFailuresTotal   *prometheus.CounterVec
	PublishRetriesTotal    prometheus.Counter
	PublishLatency         prometheus.Histogram
	PublisherInboxDepth    *prometheus.GaugeVec
	DedupCacheHitsTotal    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DecodedRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_decoded_requests_total",
				Help: "Request bodies decoded at the ingress by content encoding.",
			},
			[]string{"encoding"},
		),
		DecodedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_decoded_bytes_total",
				Help: "Total bytes produced by the ingress decompression stage.",
			},
		),
		DecodeRejectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_decode_rejects_total",
				Help: "Request bodies rejected by the decompression stage, by reason.",
			},
			[]string{"reason"},
		),
		SegmentsPublishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "publisher_segments_published_total",
				Help: "Segments successfully committed to the metastore.",
			},
		),
		PublishFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publisher_failures_total",
				Help: "Segment publish failures by error kind.",
			},
			[]string{"kind"},
		),
		PublishRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "publisher_retries_total",
				Help: "Publish attempts retried after transient metastore failures.",
			},
		),
		PublishLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "publisher_publish_duration_seconds",
				Help:    "End-to-end latency of one segment publish, including retries.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		PublisherInboxDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "publisher_inbox_depth",
				Help: "Messages waiting in each publisher's inbox.",
			},
			[]string{"publisher_id"},
		),
		DedupCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "publisher_dedup_cache_hits_total",
				Help: "Publishes short-circuited by the Redis dedup cache.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DecodedRequestsTotal,
		m.DecodedBytesTotal,
		m.DecodeRejectsTotal,
		m.SegmentsPublishedTotal,
		m.PublishFailuresTotal,
		m.PublishRetriesTotal,
		m.PublishLatency,
		m.PublisherInboxDepth,
		m.DedupCacheHitsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
