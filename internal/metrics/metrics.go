package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request-level counters. Slot-level failures are tracked separately from
// request-level rejections because one request can carry several slots.
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drawgate_requests_total",
		Help: "Inbound API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	PolicyRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawgate_policy_rejections_total",
		Help: "Prompts rejected by the banned-keyword filter.",
	})

	ImagesGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawgate_images_generated_total",
		Help: "Successfully generated image slots.",
	})

	SlotFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawgate_slot_failures_total",
		Help: "Image slots that failed upstream or timed out.",
	})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drawgate_upstream_latency_seconds",
		Help:    "Latency of upstream image-generation calls.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
