package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randalmurphal/agentflow/pkg/agent"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	turns    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentflow_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_turns_total",
				Help: "Agent turns by resulting session status",
			},
			[]string{"status"},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.turns)
	return m
}

func (m *metrics) observeRequest(method, route string, code int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *metrics) observeTurn(status agent.Status) {
	m.turns.WithLabelValues(string(status)).Inc()
}
