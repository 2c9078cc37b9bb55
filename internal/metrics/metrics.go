// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perfeval_api_dispatch_duration_seconds",
			Help:    "Time taken by a single backend invocation in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120, 180, 300},
		},
		[]string{"model", "backend"},
	)

	DispatchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfeval_api_dispatch_results_total",
			Help: "Per-backend invocation outcomes",
		},
		[]string{"model", "backend", "status"},
	)

	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfeval_api_request_count_total",
			Help: "Total number of invoke requests processed",
		},
		[]string{"media_type", "status"},
	)

	InflightWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "perfeval_api_inflight_workers",
			Help: "Currently running dispatch workers",
		},
	)

	HeartbeatCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "perfeval_api_heartbeats_total",
			Help: "Heartbeat frames emitted while waiting on slow backends",
		},
	)

	FramesExtracted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "perfeval_api_video_frames_extracted",
			Help:    "Keyframes successfully extracted per video request",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		},
	)

	ExtractionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfeval_api_extraction_errors_total",
			Help: "Keyframe extraction failures by stage",
		},
		[]string{"stage"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfeval_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
