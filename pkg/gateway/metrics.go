package gateway

import "time"

// Metrics is the observability seam for the router's request lifecycle.
// One method per event, mirroring the corpus's record-event convention;
// implementations translate each call into whatever backend they expose.
type Metrics interface {
	// RecordCandidates records how many candidates survived the quota
	// filter for a request, before rate-limit/reservation is attempted.
	RecordCandidates(method string, count int)

	// RecordReservation records a quota reservation attempt outcome.
	RecordReservation(provider string, cost int, success bool)

	// RecordRollback records a quota rollback.
	RecordRollback(provider string, cost int)

	// RecordRateLimitDenied records a sliding-window rejection.
	RecordRateLimitDenied(provider string)

	// RecordDispatch records the outcome and latency of one dispatch
	// attempt, success or failure.
	RecordDispatch(provider, method string, success bool, latencyMS float64)

	// RecordScoreCacheHit/Miss record ScoreCache lookups.
	RecordScoreCacheHit(method string)
	RecordScoreCacheMiss(method string)

	// RecordScoringDuration records how long a CRITIC scoring pass took.
	RecordScoringDuration(method string, duration time.Duration)

	// RecordExhausted records a request that exhausted every candidate.
	RecordExhausted(method string)
}

// NoopMetrics discards every event. It is the default when no Metrics is
// configured.
type NoopMetrics struct{}

func (NoopMetrics) RecordCandidates(_ string, _ int)              {}
func (NoopMetrics) RecordReservation(_ string, _ int, _ bool)     {}
func (NoopMetrics) RecordRollback(_ string, _ int)                {}
func (NoopMetrics) RecordRateLimitDenied(_ string)                {}
func (NoopMetrics) RecordDispatch(_, _ string, _ bool, _ float64) {}
func (NoopMetrics) RecordScoreCacheHit(_ string)                  {}
func (NoopMetrics) RecordScoreCacheMiss(_ string)                 {}
func (NoopMetrics) RecordScoringDuration(_ string, _ time.Duration) {}
func (NoopMetrics) RecordExhausted(_ string)                      {}
