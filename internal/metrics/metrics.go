// Package metrics exposes pipeline counters to Prometheus
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every go-hush metric
const Namespace = "gohush"

// Metrics holds all Prometheus metrics for one pipeline
type Metrics struct {
	registry *prometheus.Registry

	// Block processing
	BlocksProcessed  *prometheus.CounterVec
	SpeechBlocks     prometheus.Counter
	ComfortNoise     prometheus.Counter
	BlockFaults      prometheus.Counter
	DeadlineOverruns prometheus.Counter
	BlockDuration    prometheus.Histogram

	// Routing
	ModeTransitions *prometheus.CounterVec
	EnableFailures  prometheus.Counter
	Mode            prometheus.Gauge

	// Parameters
	Threshold prometheus.Gauge
	Azimuth   prometheus.Gauge
}

// New creates the metrics on their own registry, alongside the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BlocksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blocks_processed_total",
			Help:      "Total number of audio blocks processed, by mode",
		}, []string{"mode"}),
		SpeechBlocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "speech_blocks_total",
			Help:      "Total number of blocks classified as speech",
		}),
		ComfortNoise: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "comfort_noise_blocks_total",
			Help:      "Total number of blocks replaced by comfort noise",
		}),
		BlockFaults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "block_faults_total",
			Help:      "Total number of blocks that failed to process",
		}),
		DeadlineOverruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "deadline_overruns_total",
			Help:      "Total number of blocks that took longer than their duration",
		}),
		BlockDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "block_processing_seconds",
			Help:      "Time spent processing one block",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~80ms
		}),

		ModeTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "mode_transitions_total",
			Help:      "Total number of routing mode transitions, by target mode",
		}, []string{"to"}),
		EnableFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "enable_failures_total",
			Help:      "Total number of failed attempts to enable processing",
		}),
		Mode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "processing_enabled",
			Help:      "1 when the processed path is active, 0 when raw",
		}),

		Threshold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "wavelet_threshold",
			Help:      "Current wavelet shrinkage threshold",
		}),
		Azimuth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "azimuth_degrees",
			Help:      "Current target azimuth of the virtual source",
		}),
	}
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetMode records the current routing mode
func (m *Metrics) SetMode(processing bool) {
	if processing {
		m.Mode.Set(1)
	} else {
		m.Mode.Set(0)
	}
}

// RecordTransition counts a transition into mode
func (m *Metrics) RecordTransition(mode string, processing bool) {
	m.ModeTransitions.WithLabelValues(mode).Inc()
	m.SetMode(processing)
}
