package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the request pipeline does on behalf of callers.
//
// A nil *Metrics records nothing.
type Metrics struct {
	refreshes *prometheus.CounterVec
	retries   *prometheus.CounterVec
	expiries  prometheus.Counter
}

// NewMetrics registers the pipeline counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ems_refresh_attempts_total",
				Help: "Session refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ems_request_retries_total",
				Help: "Requests replayed after a refresh, by outcome",
			},
			[]string{"outcome"},
		),
		expiries: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ems_session_expiries_total",
				Help: "Sessions ended because a refresh failed",
			},
		),
	}
}

func (m *Metrics) refresh(outcome string) {
	if m != nil {
		m.refreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) retry(outcome string) {
	if m != nil {
		m.retries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) expired() {
	if m != nil {
		m.expiries.Inc()
	}
}
