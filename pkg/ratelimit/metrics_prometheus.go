package ratelimit

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics is a Metrics implementation backed by Prometheus collectors.
type PrometheusMetrics struct {
	allowed      *prometheus.CounterVec
	denied       prometheus.Counter
	reservations prometheus.Counter
	expired      prometheus.Counter
	shardTokens  *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the limiter collectors and registers them with
// the given registerer. Pass prometheus.DefaultRegisterer for the global
// registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		allowed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_allowed_total",
				Help: "Total number of admitted requests by shard",
			},
			[]string{"shard"},
		),
		denied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratelimit_denied_total",
				Help: "Total number of denied requests",
			},
		),
		reservations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratelimit_reservations_created_total",
				Help: "Total number of reservations created",
			},
		),
		expired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratelimit_reservations_expired_total",
				Help: "Total number of reservations that lapsed unconsumed",
			},
		),
		shardTokens: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratelimit_shard_tokens",
				Help: "Current token count per shard",
			},
			[]string{"shard"},
		),
	}

	reg.MustRegister(m.allowed, m.denied, m.reservations, m.expired, m.shardTokens)
	return m
}

// RecordAllowed records an admitted request on the given shard.
func (m *PrometheusMetrics) RecordAllowed(shard int) {
	m.allowed.WithLabelValues(strconv.Itoa(shard)).Inc()
}

// RecordDenied records a denied request.
func (m *PrometheusMetrics) RecordDenied() {
	m.denied.Inc()
}

// RecordReservationCreated records a successfully created reservation.
func (m *PrometheusMetrics) RecordReservationCreated() {
	m.reservations.Inc()
}

// RecordReservationExpired records a reservation that lapsed unconsumed.
func (m *PrometheusMetrics) RecordReservationExpired() {
	m.expired.Inc()
}

// SetShardTokens records the current token count of a shard.
func (m *PrometheusMetrics) SetShardTokens(shard int, tokens float64) {
	m.shardTokens.WithLabelValues(strconv.Itoa(shard)).Set(tokens)
}
