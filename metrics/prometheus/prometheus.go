// Package prommetrics adapts github.com/prometheus/client_golang to
// gateway.Metrics.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements gateway.Metrics using Prometheus.
type Metrics struct {
	candidatesTotal        *prometheus.HistogramVec
	reservationsTotal      *prometheus.CounterVec
	reservationCost        *prometheus.HistogramVec
	rollbacksTotal         *prometheus.CounterVec
	rateLimitDeniedTotal   *prometheus.CounterVec
	dispatchDuration       *prometheus.HistogramVec
	dispatchTotal          *prometheus.CounterVec
	scoreCacheHitsTotal    *prometheus.CounterVec
	scoreCacheMissesTotal  *prometheus.CounterVec
	scoringDuration        *prometheus.HistogramVec
	exhaustedRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates a Prometheus metrics implementation registered under
// reg with the given namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		candidatesTotal: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_candidates",
			Help:      "Number of candidate providers considered per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}, []string{"method"}),

		reservationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_reservations_total",
			Help:      "Total number of quota reservation attempts.",
		}, []string{"provider", "success"}),

		reservationCost: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quota_reservation_cost",
			Help:      "Distribution of reserved quota cost units.",
			Buckets:   []float64{1, 5, 10, 20, 50, 100},
		}, []string{"provider"}),

		rollbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rollbacks_total",
			Help:      "Total number of quota rollbacks after a failed dispatch.",
		}, []string{"provider"}),

		rateLimitDeniedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denied_total",
			Help:      "Total number of candidates skipped for exceeding their rate limit.",
		}, []string{"provider"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Latency of upstream RPC dispatches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "success"}),

		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Total number of upstream RPC dispatches.",
		}, []string{"provider", "success"}),

		scoreCacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_cache_hits_total",
			Help:      "Total number of scoring cache hits.",
		}, []string{"method"}),

		scoreCacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_cache_misses_total",
			Help:      "Total number of scoring cache misses.",
		}, []string{"method"}),

		scoringDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Latency of CRITIC weight computation and provider scoring.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		exhaustedRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exhausted_requests_total",
			Help:      "Total number of requests for which every candidate was rate-limited or failed.",
		}, []string{"method"}),
	}
}

// DefaultMetrics returns a Metrics implementation registered against the
// default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}

func (m *Metrics) RecordCandidates(method string, count int) {
	m.candidatesTotal.WithLabelValues(method).Observe(float64(count))
}

func (m *Metrics) RecordReservation(provider string, cost int, success bool) {
	m.reservationsTotal.WithLabelValues(provider, boolLabel(success)).Inc()
	if success {
		m.reservationCost.WithLabelValues(provider).Observe(float64(cost))
	}
}

func (m *Metrics) RecordRollback(provider string, cost int) {
	m.rollbacksTotal.WithLabelValues(provider).Inc()
	m.reservationCost.WithLabelValues(provider).Observe(float64(cost))
}

func (m *Metrics) RecordRateLimitDenied(provider string) {
	m.rateLimitDeniedTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordDispatch(provider, method string, success bool, latencyMS float64) {
	label := boolLabel(success)
	m.dispatchDuration.WithLabelValues(provider, label).Observe(latencyMS / 1000)
	m.dispatchTotal.WithLabelValues(provider, label).Inc()
}

func (m *Metrics) RecordScoreCacheHit(method string) {
	m.scoreCacheHitsTotal.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordScoreCacheMiss(method string) {
	m.scoreCacheMissesTotal.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordScoringDuration(method string, duration time.Duration) {
	m.scoringDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) RecordExhausted(method string) {
	m.exhaustedRequestsTotal.WithLabelValues(method).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
