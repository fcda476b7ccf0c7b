package rpc

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors of clients and responders.
// A nil *Metrics records nothing.
type Metrics struct {
	CallsTotal       *prometheus.CounterVec
	CallDuration     *prometheus.HistogramVec
	PendingCalls     prometheus.Gauge
	UnmatchedReplies prometheus.Counter

	RequestsHandled *prometheus.CounterVec
	HandleDuration  *prometheus.HistogramVec
	StaleDropped    *prometheus.CounterVec
	InFlight        *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. Collectors
// already registered by another Metrics on reg are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpcgw",
				Subsystem: "client",
				Name:      "calls_total",
				Help:      "Total number of RPC calls by outcome",
			},
			[]string{"queue", "outcome"},
		),

		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rpcgw",
				Subsystem: "client",
				Name:      "call_duration_seconds",
				Help:      "RPC round-trip duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),

		PendingCalls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rpcgw",
				Subsystem: "client",
				Name:      "pending_calls",
				Help:      "Calls waiting for a reply",
			},
		),

		UnmatchedReplies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rpcgw",
				Subsystem: "client",
				Name:      "unmatched_replies_total",
				Help:      "Replies whose correlation id had no pending call",
			},
		),

		RequestsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpcgw",
				Subsystem: "responder",
				Name:      "requests_total",
				Help:      "Total number of requests handled by outcome",
			},
			[]string{"queue", "outcome"},
		),

		HandleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rpcgw",
				Subsystem: "responder",
				Name:      "handle_duration_seconds",
				Help:      "Handler execution time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),

		StaleDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpcgw",
				Subsystem: "responder",
				Name:      "stale_dropped_total",
				Help:      "Requests dropped because they outlived the message TTL",
			},
			[]string{"queue"},
		),

		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rpcgw",
				Subsystem: "responder",
				Name:      "in_flight",
				Help:      "Requests currently being handled",
			},
			[]string{"queue"},
		),
	}

	if reg != nil {
		m.CallsTotal = register(reg, m.CallsTotal)
		m.CallDuration = register(reg, m.CallDuration)
		m.PendingCalls = register(reg, m.PendingCalls)
		m.UnmatchedReplies = register(reg, m.UnmatchedReplies)
		m.RequestsHandled = register(reg, m.RequestsHandled)
		m.HandleDuration = register(reg, m.HandleDuration)
		m.StaleDropped = register(reg, m.StaleDropped)
		m.InFlight = register(reg, m.InFlight)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) recordCall(queue, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(queue, outcome).Inc()
	m.CallDuration.WithLabelValues(queue).Observe(d.Seconds())
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.PendingCalls.Set(float64(n))
}

func (m *Metrics) recordUnmatched() {
	if m == nil {
		return
	}
	m.UnmatchedReplies.Inc()
}

func (m *Metrics) recordHandled(queue, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsHandled.WithLabelValues(queue, outcome).Inc()
	m.HandleDuration.WithLabelValues(queue).Observe(d.Seconds())
}

func (m *Metrics) recordStale(queue string) {
	if m == nil {
		return
	}
	m.StaleDropped.WithLabelValues(queue).Inc()
}

func (m *Metrics) inFlight(queue string, delta float64) {
	if m == nil {
		return
	}
	m.InFlight.WithLabelValues(queue).Add(delta)
}
