package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

const (
	defaultLatencyMS    = 500.0
	penaltyLatencyMS    = 5000.0
	defaultDispatchTimeout = 5 * time.Second
)

// Dispatcher is the seam Router uses to reach upstream providers. RPCClient
// implements it; tests substitute a fake to exercise orchestration without
// network I/O.
type Dispatcher interface {
	Send(ctx context.Context, url string, payload interface{}, timeout time.Duration) (*DispatchResult, error)
}

// RouterConfig carries the construction-time options for Router.
type RouterConfig struct {
	Providers         []*Provider
	Quota             *QuotaManager
	RateLimiter       *RateLimiter
	Metrics           *MetricsStore
	Client            Dispatcher
	Logger            Logger
	EventMetrics      Metrics
	Billing           BillingReporter
	ScoreCache        *ScoreCache
	DispatchTimeout   time.Duration
	EnableExploration bool
	ExplorationRate   float64
	Rand              *rand.Rand
}

// Router is the per-request orchestrator: candidate filtering, ordering,
// rate limiting, reservation, dispatch, and failover, per provider.
type Router struct {
	providers       []*Provider
	byName          map[string]*Provider
	quota           *QuotaManager
	limiter         *RateLimiter
	store           *MetricsStore
	client          Dispatcher
	logger          Logger
	events          Metrics
	billing         BillingReporter
	scoreCache      *ScoreCache
	dispatchTimeout time.Duration
	exploration     bool
	explorationRate float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRouter constructs a Router from cfg, defaulting unset optional fields.
func NewRouter(cfg RouterConfig) *Router {
	byName := make(map[string]*Provider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		byName[providerKey(p.Name)] = p
	}

	timeout := cfg.DispatchTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NoopLogger{}
	}
	events := cfg.EventMetrics
	if events == nil {
		events = NoopMetrics{}
	}
	billing := cfg.Billing
	if billing == nil {
		billing = NoopBillingReporter{}
	}

	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Router{
		providers:       cfg.Providers,
		byName:          byName,
		quota:           cfg.Quota,
		limiter:         cfg.RateLimiter,
		store:           cfg.Metrics,
		client:          cfg.Client,
		logger:          logger,
		events:          events,
		billing:         billing,
		scoreCache:      cfg.ScoreCache,
		dispatchTimeout: timeout,
		exploration:     cfg.EnableExploration,
		explorationRate: cfg.ExplorationRate,
		rnd:             rnd,
	}
}

type candidate struct {
	provider *Provider
	latency  float64
}

// Optimize runs the full pipeline for one parsed request and returns the
// response envelope to hand back to the client.
func (r *Router) Optimize(ctx context.Context, body map[string]interface{}) *Response {
	parsed, err := ParseRequest(body)
	if err != nil {
		return BuildError(idFromBody(body), CodeInvalidRequest, "invalid request", nil)
	}
	return r.optimizeParsed(ctx, parsed)
}

func idFromBody(body map[string]interface{}) interface{} {
	if id, ok := body["id"]; ok {
		return id
	}
	return nil
}

func (r *Router) optimizeParsed(ctx context.Context, req *ParsedRequest) *Response {
	candidates := r.enumerateCandidates(req.Method)
	r.events.RecordCandidates(req.Method, len(candidates))
	if len(candidates) == 0 {
		return BuildError(req.ID, CodeNoProvider, "no candidates with remaining quota", nil)
	}

	ordered := r.orderCandidates(candidates)
	ordered = r.applyExploration(ordered)

	var lastErr error
	var attempted bool

	for _, c := range ordered {
		p := c.provider

		if !r.limiter.IsAllowed(p.Name, p.LimitRPS) {
			r.events.RecordRateLimitDenied(p.Name)
			continue
		}

		cost := p.CostOf(req.Method)
		if !r.quota.TryReserve(p.Name, cost, p.LimitMonthly) {
			continue
		}

		attempted = true
		dispatchCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
		result, dispatchErr := r.client.Send(dispatchCtx, p.BaseURL, requestPayload(req), r.dispatchTimeout)
		cancel()

		if dispatchErr != nil {
			r.store.Append(p.Name, req.Method, penaltyLatencyMS, p.PricePerCall(r.store, req.Method))
			r.quota.Rollback(p.Name, cost)
			r.events.RecordDispatch(p.Name, req.Method, false, penaltyLatencyMS)
			lastErr = dispatchErr
			r.logger.Warn("dispatch failed, trying next candidate",
				Field{"provider", p.Name}, Field{"method", req.Method}, Field{"error", dispatchErr.Error()})
			continue
		}

		price := p.PricePerCall(r.store, req.Method)
		r.store.Append(p.Name, req.Method, result.LatencyMS, price)
		r.events.RecordDispatch(p.Name, req.Method, true, result.LatencyMS)
		r.reportBilling(p, req.Method, cost, price)

		sr := r.scoreFor(req.Method)
		var score *float64
		if s, ok := sr.Scores[providerKey(p.Name)]; ok {
			score = &s
		}
		return BuildSuccess(req.ID, result.Result, p.Name, result.LatencyMS, price, sr.WeightLatency, sr.WeightPrice, score, sr.Scores)
	}

	r.events.RecordExhausted(req.Method)
	if !attempted {
		return BuildError(req.ID, CodeNoProvider, "all candidates rate-limited or out of quota", nil)
	}
	msg := "all candidates rate-limited or failed"
	if lastErr != nil {
		msg = fmt.Sprintf("%s: %s", msg, lastErr.Error())
	}
	return BuildError(req.ID, CodeNoProvider, msg, nil)
}

func requestPayload(req *ParsedRequest) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": req.JSONRPC,
		"method":  req.Method,
		"params":  req.Params,
		"id":      req.ID,
	}
}

// enumerateCandidates returns every real (non-Best) provider still under
// its monthly quota, each annotated with its observed latency.
func (r *Router) enumerateCandidates(method string) []candidate {
	out := make([]candidate, 0, len(r.providers))
	for _, p := range r.providers {
		if providerKey(p.Name) == BestProviderName {
			continue
		}
		if !r.quota.Check(p.Name, p.LimitMonthly, 0) {
			continue
		}
		out = append(out, candidate{provider: p, latency: r.observedLatency(p.Name, method)})
	}
	return out
}

// observedLatency uses the most recently appended record's latency for
// (provider, method), defaulting to 500ms if absent. This gateway keeps a
// single estimator (last-observed, not mean/median) consistently across the
// process.
func (r *Router) observedLatency(provider, method string) float64 {
	latest := r.store.Latest(method)
	for _, rec := range latest {
		if providerKey(rec.Provider) == providerKey(provider) {
			return rec.LatencyMS
		}
	}
	return defaultLatencyMS
}

// orderCandidates sorts by (priority ascending, observed latency
// ascending), with ties broken by original provider-list order.
func (r *Router) orderCandidates(candidates []candidate) []candidate {
	ordered := make([]candidate, len(candidates))
	copy(ordered, candidates)

	originalIndex := make(map[string]int, len(r.providers))
	for i, p := range r.providers {
		originalIndex[providerKey(p.Name)] = i
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.provider.Priority != b.provider.Priority {
			return a.provider.Priority < b.provider.Priority
		}
		if a.latency != b.latency {
			return a.latency < b.latency
		}
		return originalIndex[providerKey(a.provider.Name)] < originalIndex[providerKey(b.provider.Name)]
	})
	return ordered
}

// applyExploration, when enabled, picks one priority-1 candidate uniformly
// at random (with probability ExplorationRate) and moves it to the head of
// the list. A list with no priority-1 candidates is left untouched.
func (r *Router) applyExploration(ordered []candidate) []candidate {
	if !r.exploration || r.explorationRate <= 0 {
		return ordered
	}

	r.mu.Lock()
	roll := r.rnd.Float64()
	if roll >= r.explorationRate {
		r.mu.Unlock()
		return ordered
	}

	var freeIdx []int
	for i, c := range ordered {
		if c.provider.Priority == 1 {
			freeIdx = append(freeIdx, i)
		}
	}
	if len(freeIdx) == 0 {
		r.mu.Unlock()
		return ordered
	}
	chosen := freeIdx[r.rnd.Intn(len(freeIdx))]
	r.mu.Unlock()

	out := make([]candidate, 0, len(ordered))
	out = append(out, ordered[chosen])
	for i, c := range ordered {
		if i == chosen {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Provider looks up a configured provider by name, for force-routing a
// request to a specific upstream. Returns ErrUnknownProvider if absent, or
// ErrProviderIsBest for the virtual pseudo-provider.
func (r *Router) Provider(name string) (*Provider, error) {
	if providerKey(name) == BestProviderName {
		return nil, ErrProviderIsBest
	}
	p, ok := r.byName[providerKey(name)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// DispatchTo force-routes req directly to the named provider, bypassing
// candidate ordering and exploration but still enforcing rate limit and
// quota reservation.
func (r *Router) DispatchTo(ctx context.Context, provider string, req *ParsedRequest) *Response {
	p, err := r.Provider(provider)
	if err != nil {
		return BuildError(req.ID, CodeRoutingError, err.Error(), nil)
	}

	if !r.limiter.IsAllowed(p.Name, p.LimitRPS) {
		return BuildError(req.ID, CodeNoProvider, "rate limited", nil)
	}

	cost := p.CostOf(req.Method)
	if !r.quota.TryReserve(p.Name, cost, p.LimitMonthly) {
		return BuildError(req.ID, CodeNoProvider, "no remaining quota", nil)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
	defer cancel()
	result, dispatchErr := r.client.Send(dispatchCtx, p.BaseURL, requestPayload(req), r.dispatchTimeout)
	if dispatchErr != nil {
		r.store.Append(p.Name, req.Method, penaltyLatencyMS, p.PricePerCall(r.store, req.Method))
		r.quota.Rollback(p.Name, cost)
		return BuildError(req.ID, CodeNoProvider, dispatchErr.Error(), nil)
	}

	price := p.PricePerCall(r.store, req.Method)
	r.store.Append(p.Name, req.Method, result.LatencyMS, price)
	r.reportBilling(p, req.Method, cost, price)

	sr := r.scoreFor(req.Method)
	var score *float64
	if s, ok := sr.Scores[providerKey(p.Name)]; ok {
		score = &s
	}
	return BuildSuccess(req.ID, result.Result, p.Name, result.LatencyMS, price, sr.WeightLatency, sr.WeightPrice, score, sr.Scores)
}

// reportBilling emits a BillingEvent for paid-tier (Priority 2) dispatches.
// Billing is observability, not a gate: a reporter panic is recovered and
// logged, never allowed to fail the request that already succeeded.
func (r *Router) reportBilling(p *Provider, method string, cost int, price float64) {
	if p.Priority != 2 {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("billing reporter panicked",
				Field{"provider", p.Name}, Field{"method", method}, Field{"error", fmt.Sprintf("%v", rec)})
		}
	}()
	r.billing.Report(BillingEvent{
		Provider:  p.Name,
		Method:    method,
		Units:     cost,
		PriceUSD:  price,
		Timestamp: defaultClock(),
	})
}

// scoreFor returns the CRITIC-weighted ScoreResult for method, consulting
// the configured ScoreCache first (a nil cache means always compute fresh).
// This is the "alternative routing mode" scoring subsystem of C7/C7a,
// exercised here only to annotate the success response and feed analytics;
// it never influences candidate ordering, which stays priority/latency per
// C8.
func (r *Router) scoreFor(method string) ScoreResult {
	compute := func() ScoreResult {
		start := time.Now()
		result := Score(r.store, method)
		r.events.RecordScoringDuration(method, time.Since(start))
		return result
	}

	if r.scoreCache == nil {
		return compute()
	}

	result, hit := r.scoreCache.Load(method, compute)
	if hit {
		r.events.RecordScoreCacheHit(method)
	} else {
		r.events.RecordScoreCacheMiss(method)
	}
	return result
}
