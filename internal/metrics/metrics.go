// Package metrics exports chat session metrics in Prometheus format.
//
// All methods are safe on a nil *Metrics so components can run uninstrumented.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tutorchat"

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	exchanges        *prometheus.CounterVec
	exchangeDuration prometheus.Histogram
	firstByte        prometheus.Histogram
	activeStreams    prometheus.Gauge
	deltas           prometheus.Counter
	streamErrors     prometheus.Counter
	commits          *prometheus.CounterVec
	quizCache        *prometheus.CounterVec
}

// New registers the collectors on reg, or on a fresh registry when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

	m := &Metrics{
		registry: reg,
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "exchanges_total",
				Help:      "Completed send exchanges by outcome",
			},
			[]string{"status"},
		),
		exchangeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "exchange_duration_seconds",
			Help:      "Time from send to end of stream",
			Buckets:   buckets,
		}),
		firstByte: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "first_event_seconds",
			Help:      "Time from send to the first stream event",
			Buckets:   buckets,
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active_streams",
			Help:      "Streams currently in flight",
		}),
		deltas: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "deltas_total",
			Help:      "Text deltas applied to assistant messages",
		}),
		streamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "server_errors_total",
			Help:      "Error events reported inside streams",
		}),
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "commits_total",
				Help:      "Conversation commits by result",
			},
			[]string{"result"},
		),
		quizCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quiz",
				Name:      "cache_lookups_total",
				Help:      "Quiz cache lookups by layer and result",
			},
			[]string{"layer", "result"},
		),
	}

	reg.MustRegister(
		m.exchanges,
		m.exchangeDuration,
		m.firstByte,
		m.activeStreams,
		m.deltas,
		m.streamErrors,
		m.commits,
		m.quizCache,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) StreamFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
	m.exchanges.WithLabelValues(status).Inc()
	m.exchangeDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) FirstEvent(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.firstByte.Observe(elapsed.Seconds())
}

func (m *Metrics) Delta() {
	if m == nil {
		return
	}
	m.deltas.Inc()
}

func (m *Metrics) ServerError() {
	if m == nil {
		return
	}
	m.streamErrors.Inc()
}

// Commit records a store commit; err == nil counts as persisted.
func (m *Metrics) Commit(err error) {
	if m == nil {
		return
	}
	result := "persisted"
	if err != nil {
		result = "skipped"
	}
	m.commits.WithLabelValues(result).Inc()
}

func (m *Metrics) QuizCache(layer string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.quizCache.WithLabelValues(layer, result).Inc()
}
