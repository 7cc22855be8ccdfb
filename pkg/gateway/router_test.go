package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDispatcher lets tests control dispatch outcomes per-URL without any
// network I/O.
type fakeDispatcher struct {
	mu        sync.Mutex
	behaviors map[string]func() (*DispatchResult, error)
	calls     map[string]int
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{behaviors: map[string]func() (*DispatchResult, error){}, calls: map[string]int{}}
}

func (f *fakeDispatcher) always(url string, result *DispatchResult, err error) {
	f.behaviors[url] = func() (*DispatchResult, error) { return result, err }
}

func (f *fakeDispatcher) Send(_ context.Context, url string, _ interface{}, _ time.Duration) (*DispatchResult, error) {
	f.mu.Lock()
	f.calls[url]++
	behavior := f.behaviors[url]
	f.mu.Unlock()
	if behavior == nil {
		return &DispatchResult{Result: "ok", LatencyMS: 10}, nil
	}
	return behavior()
}

func testSuccessClient() Dispatcher {
	return newFakeDispatcher()
}

func TestRouter_ColdStartHappyPath(t *testing.T) {
	p1 := &Provider{Name: "P1", BaseURL: "http://p1", Priority: 1, LimitRPS: 10, LimitMonthly: 100, PricingModel: PricingFlat}
	p2 := &Provider{Name: "P2", BaseURL: "http://p2", Priority: 2, LimitRPS: 10, LimitMonthly: 0, PricingModel: PricingFlat}

	quota := NewQuotaManager(nil, nil, nil)
	store := NewMetricsStore()
	router := NewRouter(RouterConfig{
		Providers:   []*Provider{p1, p2},
		Quota:       quota,
		RateLimiter: NewRateLimiter(),
		Metrics:     store,
	})
	router.client = testSuccessClient()

	resp := router.Optimize(context.Background(), map[string]interface{}{
		"jsonrpc": "2.0", "method": "eth_blockNumber", "id": float64(1), "params": []interface{}{},
	})

	require.Nil(t, resp.Error)
	assert.Equal(t, "P1", resp.Decision.SelectedProvider)
	assert.Equal(t, 1, quota.Usage("P1"))
}

func TestRouter_MonthlySpillover(t *testing.T) {
	p1 := &Provider{Name: "P1", BaseURL: "http://p1", Priority: 1, LimitRPS: 0, LimitMonthly: 50, PricingModel: PricingComputeUnit, MethodCosts: map[string]int{"eth_blockNumber": 10}}
	p2 := &Provider{Name: "P2", BaseURL: "http://p2", Priority: 2, LimitRPS: 0, LimitMonthly: 0, PricingModel: PricingFlat}

	quota := NewQuotaManager(nil, nil, nil)
	router := NewRouter(RouterConfig{
		Providers:   []*Provider{p1, p2},
		Quota:       quota,
		RateLimiter: NewRateLimiter(),
		Metrics:     NewMetricsStore(),
	})
	router.client = testSuccessClient()

	body := map[string]interface{}{"jsonrpc": "2.0", "method": "eth_blockNumber", "id": float64(1), "params": []interface{}{}}

	for i := 0; i < 5; i++ {
		resp := router.Optimize(context.Background(), body)
		require.Nil(t, resp.Error)
		assert.Equal(t, "P1", resp.Decision.SelectedProvider)
	}
	assert.Equal(t, 50, quota.Usage("P1"))

	resp := router.Optimize(context.Background(), body)
	require.Nil(t, resp.Error)
	assert.Equal(t, "P2", resp.Decision.SelectedProvider, "P1 exhausted its monthly quota")
}

func TestRouter_NoCandidatesWhenAllOverQuota(t *testing.T) {
	p1 := &Provider{Name: "P1", BaseURL: "http://p1", Priority: 1, LimitMonthly: 1, PricingModel: PricingFlat}
	quota := NewQuotaManager(nil, nil, nil)
	quota.TryReserve("P1", 1, 1)

	router := NewRouter(RouterConfig{
		Providers:   []*Provider{p1},
		Quota:       quota,
		RateLimiter: NewRateLimiter(),
		Metrics:     NewMetricsStore(),
	})
	router.client = testSuccessClient()

	resp := router.Optimize(context.Background(), map[string]interface{}{
		"jsonrpc": "2.0", "method": "eth_blockNumber", "id": float64(1),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNoProvider, resp.Error.Code)
}

func TestRouter_InvalidRequest(t *testing.T) {
	router := NewRouter(RouterConfig{
		Providers:   nil,
		Quota:       NewQuotaManager(nil, nil, nil),
		RateLimiter: NewRateLimiter(),
		Metrics:     NewMetricsStore(),
	})
	resp := router.Optimize(context.Background(), map[string]interface{}{"method": "eth_blockNumber"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestRouter_OrderCandidatesByPriorityThenLatency(t *testing.T) {
	p1 := &Provider{Name: "P1", Priority: 2}
	p2 := &Provider{Name: "P2", Priority: 1}
	p3 := &Provider{Name: "P3", Priority: 1}

	router := &Router{providers: []*Provider{p1, p2, p3}}
	ordered := router.orderCandidates([]candidate{
		{provider: p1, latency: 10},
		{provider: p2, latency: 50},
		{provider: p3, latency: 20},
	})

	assert.Equal(t, "P3", ordered[0].provider.Name)
	assert.Equal(t, "P2", ordered[1].provider.Name)
	assert.Equal(t, "P1", ordered[2].provider.Name)
}

func TestRouter_DispatchFailureFailover(t *testing.T) {
	p1 := &Provider{Name: "P1", BaseURL: "http://p1", Priority: 1, LimitMonthly: 100, PricingModel: PricingFlat}
	p2 := &Provider{Name: "P2", BaseURL: "http://p2", Priority: 2, LimitMonthly: 0, PricingModel: PricingFlat}

	dispatcher := newFakeDispatcher()
	dispatcher.always("http://p1", nil, &DispatchError{Kind: FailureConnection, Message: "refused"})

	quota := NewQuotaManager(nil, nil, nil)
	store := NewMetricsStore()
	router := NewRouter(RouterConfig{
		Providers:   []*Provider{p1, p2},
		Quota:       quota,
		RateLimiter: NewRateLimiter(),
		Metrics:     store,
	})
	router.client = dispatcher

	resp := router.Optimize(context.Background(), map[string]interface{}{
		"jsonrpc": "2.0", "method": "eth_blockNumber", "id": float64(1),
	})

	require.Nil(t, resp.Error)
	assert.Equal(t, "P2", resp.Decision.SelectedProvider)
	assert.Equal(t, 0, quota.Usage("P1"), "failed dispatch must be rolled back")

	penaltyRecords := store.GetRecords("eth_blockNumber")
	var sawPenalty bool
	for _, r := range penaltyRecords {
		if r.Provider == "P1" && r.LatencyMS == penaltyLatencyMS {
			sawPenalty = true
		}
	}
	assert.True(t, sawPenalty, "P1's failure should be recorded as a penalty row")
}

type recordingBillingReporter struct {
	mu     sync.Mutex
	events []BillingEvent
}

func (r *recordingBillingReporter) Report(event BillingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestRouter_BillingReportedOnlyForPaidTierDispatch(t *testing.T) {
	p1 := &Provider{Name: "P1", BaseURL: "http://p1", Priority: 1, LimitMonthly: 100, PricingModel: PricingFlat}
	p2 := &Provider{Name: "P2", BaseURL: "http://p2", Priority: 2, LimitMonthly: 0, PricingModel: PricingFlat}

	dispatcher := newFakeDispatcher()
	dispatcher.always("http://p1", nil, &DispatchError{Kind: FailureConnection, Message: "refused"})

	billing := &recordingBillingReporter{}
	router := NewRouter(RouterConfig{
		Providers:   []*Provider{p1, p2},
		Quota:       NewQuotaManager(nil, nil, nil),
		RateLimiter: NewRateLimiter(),
		Metrics:     NewMetricsStore(),
		Billing:     billing,
	})
	router.client = dispatcher

	resp := router.Optimize(context.Background(), map[string]interface{}{
		"jsonrpc": "2.0", "method": "eth_blockNumber", "id": float64(1),
	})

	require.Nil(t, resp.Error)
	assert.Equal(t, "P2", resp.Decision.SelectedProvider)
	require.Len(t, billing.events, 1, "only the paid-tier (Priority 2) dispatch should be billed")
	assert.Equal(t, "P2", billing.events[0].Provider)
	assert.Equal(t, "eth_blockNumber", billing.events[0].Method)
}

func TestRouter_NilBillingReporterDefaultsToNoop(t *testing.T) {
	p1 := &Provider{Name: "P1", BaseURL: "http://p1", Priority: 2, LimitMonthly: 0, PricingModel: PricingFlat}
	router := NewRouter(RouterConfig{
		Providers:   []*Provider{p1},
		Quota:       NewQuotaManager(nil, nil, nil),
		RateLimiter: NewRateLimiter(),
		Metrics:     NewMetricsStore(),
	})
	router.client = testSuccessClient()

	assert.NotPanics(t, func() {
		resp := router.Optimize(context.Background(), map[string]interface{}{
			"jsonrpc": "2.0", "method": "eth_blockNumber", "id": float64(1),
		})
		require.Nil(t, resp.Error)
	})
}

func TestRouter_SuccessResponseCarriesComputedWeightsAndScore(t *testing.T) {
	p1 := &Provider{Name: "P1", BaseURL: "http://p1", Priority: 1, LimitMonthly: 100, PricingModel: PricingFlat}
	p2 := &Provider{Name: "P2", BaseURL: "http://p2", Priority: 1, LimitMonthly: 100, PricingModel: PricingFlat}
	store := NewMetricsStore()
	// Seed history with varying latency so CRITIC weights aren't the
	// fallback equal split.
	store.Append("P1", "eth_blockNumber", 10, 0.01)
	store.Append("P2", "eth_blockNumber", 200, 0.01)
	store.Append("P1", "eth_blockNumber", 12, 0.01)
	store.Append("P2", "eth_blockNumber", 190, 0.01)

	router := NewRouter(RouterConfig{
		Providers:   []*Provider{p1, p2},
		Quota:       NewQuotaManager(nil, nil, nil),
		RateLimiter: NewRateLimiter(),
		Metrics:     store,
		Client:      testSuccessClient(),
	})

	resp := router.Optimize(context.Background(), map[string]interface{}{
		"jsonrpc": "2.0", "method": "eth_blockNumber", "id": float64(1),
	})

	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Decision)
	require.NotNil(t, resp.Decision.Score, "a score should be available once history exists")
	assert.NotNil(t, resp.Decision.AllProviders)
	assert.Contains(t, resp.Decision.AllProviders, "p1")
	assert.Contains(t, resp.Decision.AllProviders, "p2")
}

func TestRouter_ScoreCacheIsConsultedAndPopulated(t *testing.T) {
	p1 := &Provider{Name: "P1", BaseURL: "http://p1", Priority: 1, LimitMonthly: 100, PricingModel: PricingFlat}
	store := NewMetricsStore()
	cache := NewScoreCache(time.Minute)

	router := NewRouter(RouterConfig{
		Providers:   []*Provider{p1},
		Quota:       NewQuotaManager(nil, nil, nil),
		RateLimiter: NewRateLimiter(),
		Metrics:     store,
		Client:      testSuccessClient(),
		ScoreCache:  cache,
	})

	resp := router.Optimize(context.Background(), map[string]interface{}{
		"jsonrpc": "2.0", "method": "eth_blockNumber", "id": float64(1),
	})
	require.Nil(t, resp.Error)

	_, hits := cache.Stats()
	_, ok := cache.Get("eth_blockNumber")
	assert.True(t, ok, "the first dispatch should have populated the cache")
	_ = hits

	hitsBefore, _ := cache.Stats()
	resp2 := router.Optimize(context.Background(), map[string]interface{}{
		"jsonrpc": "2.0", "method": "eth_blockNumber", "id": float64(2),
	})
	require.Nil(t, resp2.Error)
	hitsAfter, _ := cache.Stats()
	assert.Greater(t, hitsAfter, hitsBefore, "the second dispatch should hit the now-populated cache")
}

func TestRouter_ProviderLookup(t *testing.T) {
	p1 := &Provider{Name: "P1"}
	router := NewRouter(RouterConfig{Providers: []*Provider{p1}, Quota: NewQuotaManager(nil, nil, nil), RateLimiter: NewRateLimiter(), Metrics: NewMetricsStore()})

	got, err := router.Provider("p1")
	require.NoError(t, err)
	assert.Same(t, p1, got)

	_, err = router.Provider("unknown")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = router.Provider(BestProviderName)
	assert.ErrorIs(t, err, ErrProviderIsBest)
}
