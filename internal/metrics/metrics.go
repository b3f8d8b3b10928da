// Package metrics exposes Prometheus instrumentation for image resolution and scheduling.
//
// All methods are safe on a nil *Metrics, so components can run uninstrumented in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bunnyclock"

// Resolution outcomes.
const (
	OutcomeFound     = "found"
	OutcomeNotFound  = "not_found"
	OutcomeExcluded  = "excluded_preview"
	OutcomeIntegrity = "integrity_violation"
	OutcomeError     = "error"
)

// Swap sources.
const (
	SwapPrefetched = "prefetched"
	SwapFresh      = "fresh"
)

type Metrics struct {
	resolutions  *prometheus.CounterVec
	swaps        *prometheus.CounterVec
	staleResults prometheus.Counter
	liveClients  prometheus.Gauge
}

// New creates the collectors and registers them on reg (prometheus.DefaultRegisterer if nil).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Image resolutions by lookup kind and outcome.",
		}, []string{"kind", "outcome"}),
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "bucket_swaps_total",
			Help:      "Displayed image changes by where the image came from.",
		}, []string{"source"}),
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "stale_results_total",
			Help:      "Resolutions discarded because their bucket was no longer current or next.",
		}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "frontend",
			Name:      "live_clients",
			Help:      "Connected websocket clients receiving image and tick updates.",
		}),
	}
	for _, c := range []prometheus.Collector{m.resolutions, m.swaps, m.staleResults, m.liveClients} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveResolution(kind, outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveSwap(source string) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveStaleResult() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}

func (m *Metrics) SetLiveClients(n int) {
	if m == nil {
		return
	}
	m.liveClients.Set(float64(n))
}
