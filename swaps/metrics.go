package swaps

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	quotes    *prometheus.CounterVec
	discarded prometheus.Counter
	swaps     *prometheus.CounterVec
	polls     *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsReg  *engineMetrics
)

// Metrics returns the lazily-registered engine collectors.
func Metrics() *engineMetrics {
	metricsOnce.Do(func() {
		metricsReg = &engineMetrics{
			quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosswap",
				Name:      "quote_requests_total",
				Help:      "Quote fetches segmented by outcome (published, error, canceled).",
			}, []string{"outcome"}),
			discarded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crosswap",
				Name:      "quote_discarded_total",
				Help:      "Quote responses dropped because a newer request superseded them.",
			}),
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosswap",
				Name:      "swaps_total",
				Help:      "Swap executions segmented by terminal stage and outcome.",
			}, []string{"outcome"}),
			polls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosswap",
				Name:      "bridge_polls_total",
				Help:      "Cross-chain status polls segmented by reported status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			metricsReg.quotes,
			metricsReg.discarded,
			metricsReg.swaps,
			metricsReg.polls,
		)
	})
	return metricsReg
}

func (m *engineMetrics) quote(outcome string) {
	m.quotes.WithLabelValues(outcome).Inc()
}

func (m *engineMetrics) discard() {
	m.discarded.Inc()
}

func (m *engineMetrics) swap(outcome string) {
	m.swaps.WithLabelValues(outcome).Inc()
}

func (m *engineMetrics) poll(status BridgeStatus) {
	if status == "" {
		status = "unknown"
	}
	m.polls.WithLabelValues(string(status)).Inc()
}
