package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videostream",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "videostream",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	JobsEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videostream",
		Name:      "jobs_enqueued_total",
		Help:      "Total processing jobs enqueued by type.",
	}, []string{"type"})

	JobsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videostream",
		Name:      "jobs_finished_total",
		Help:      "Total processing jobs finished by type and terminal status.",
	}, []string{"type", "status"})

	JobsInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "videostream",
		Name:      "jobs_in_flight",
		Help:      "Number of jobs currently being processed by type.",
	}, []string{"type"})

	JobsRecoveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videostream",
		Name:      "jobs_stale_recovered_total",
		Help:      "Total PROCESSING jobs marked FAILED by the stale job reaper.",
	})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "videostream",
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Duration of pipeline stages (probe, convert, segment, compose, thumbnail).",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 900},
	}, []string{"stage"})

	SegmentLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videostream",
		Name:      "segment_lookups_total",
		Help:      "Total playback segment lookups by outcome.",
	}, []string{"outcome"})

	UploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videostream",
		Name:      "upload_bytes_total",
		Help:      "Total bytes received through chunked uploads.",
	})

	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "videostream",
		Name:      "ws_connections",
		Help:      "Number of open WebSocket connections.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		JobsEnqueuedTotal,
		JobsFinishedTotal,
		JobsInFlight,
		JobsRecoveredTotal,
		StageDuration,
		SegmentLookupsTotal,
		UploadBytesTotal,
		WSConnections,
	)
}
