package gateway

import (
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// criteriaCount is the number of scoring criteria: Latency, Price.
const criteriaCount = 2

// ScoreResult is the outcome of one scoring pass: a per-provider score plus
// the weights that produced it.
type ScoreResult struct {
	Scores        map[string]float64
	WeightLatency float64
	WeightPrice   float64
}

// Score computes a CRITIC-weighted score per provider for method, using all
// historical records for method (to derive weights) and the latest record
// per provider for method (to score). The virtual Best provider is left out
// of both: its records are filtered from the history here, and
// MetricsStore.Latest already excludes it.
func Score(store *MetricsStore, method string) ScoreResult {
	history := make([]MetricRecord, 0)
	for _, r := range store.GetRecords(method) {
		if providerKey(r.Provider) != BestProviderName {
			history = append(history, r)
		}
	}
	latest := store.Latest(method)

	if len(latest) == 0 {
		return ScoreResult{Scores: map[string]float64{}, WeightLatency: 0.5, WeightPrice: 0.5}
	}

	latencies := make([]float64, len(history))
	prices := make([]float64, len(history))
	for i, r := range history {
		latencies[i] = r.LatencyMS
		prices[i] = r.PriceUSD
	}

	normLatency := normalize(latencies)
	normPrice := normalize(prices)

	wLatency, wPrice := criticWeights(normLatency, normPrice)

	latestLatencies := make([]float64, len(latest))
	latestPrices := make([]float64, len(latest))
	for i, r := range latest {
		latestLatencies[i] = r.LatencyMS
		latestPrices[i] = r.PriceUSD
	}
	scoredLatency := normalize(latestLatencies)
	scoredPrice := normalize(latestPrices)

	scores := make(map[string]float64, len(latest))
	for i, r := range latest {
		s := scoredLatency[i]*wLatency + scoredPrice[i]*wPrice
		if math.IsNaN(s) {
			s = 0
		}
		scores[providerKey(r.Provider)] = s
	}

	return ScoreResult{Scores: scores, WeightLatency: wLatency, WeightPrice: wPrice}
}

// normalize maps x into x̂ = 1 - (x-min)/(max-min), so lower-is-better. A
// constant column (max == min) normalizes to all-ones.
func normalize(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	min, max := xs[0], xs[0]
	for _, x := range xs {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	if max == min {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, x := range xs {
		out[i] = 1 - (x-min)/(max-min)
	}
	return out
}

// criticWeights computes CRITIC weights for the two normalized criteria
// columns. With fewer than 2 rows, weights are equal (1/k each).
func criticWeights(colA, colB []float64) (float64, float64) {
	n := len(colA)
	if n < 2 {
		return 1.0 / criteriaCount, 1.0 / criteriaCount
	}

	sigmaA := stddev(colA)
	sigmaB := stddev(colB)
	r := pearson(colA, colB)
	if math.IsNaN(r) {
		r = 0
	}

	// With exactly two criteria, each column's only off-diagonal
	// correlation is r itself, so the CRITIC conflict term
	// 1 - avg_{k!=j}|R_jk| reduces to 1 - |r| for both columns.
	conflictA := 1 - math.Abs(r)
	conflictB := 1 - math.Abs(r)

	cA := sigmaA * conflictA
	cB := sigmaB * conflictB
	if sigmaA < 1e-9 {
		cA = 0
	}
	if sigmaB < 1e-9 {
		cB = 0
	}
	if cA < 0 {
		cA = 0
	}
	if cB < 0 {
		cB = 0
	}

	total := cA + cB
	if total == 0 {
		return 1.0 / criteriaCount, 1.0 / criteriaCount
	}
	return cA / total, cB / total
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)

	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// pearson is the Pearson correlation coefficient of two equal-length
// columns. Returns NaN if either column has zero variance.
func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return math.NaN()
	}
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}

// ScoreCache is a TTL-keyed cache of ScoreResult by method, grounded on the
// corpus's TTL/mutex/copy-on-read cache shape. Concurrent writers serialize
// under a mutex; reads return a copy.
type ScoreCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]scoreCacheEntry
	hits    int64
	misses  int64
	nowFn   func() time.Time
	group   singleflight.Group
}

type scoreCacheEntry struct {
	result     ScoreResult
	expiration time.Time
}

// NewScoreCache builds a cache with the given TTL. ttl <= 0 defaults to 5
// seconds.
func NewScoreCache(ttl time.Duration) *ScoreCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &ScoreCache{
		ttl:     ttl,
		entries: make(map[string]scoreCacheEntry),
		nowFn:   time.Now,
	}
}

// Get returns a copy of the cached ScoreResult for method, if present and
// unexpired.
func (c *ScoreCache) Get(method string) (ScoreResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[method]
	if !ok || c.nowFn().After(entry.expiration) {
		c.misses++
		return ScoreResult{}, false
	}
	c.hits++
	return copyScoreResult(entry.result), true
}

// Set stores result for method with the cache's TTL.
func (c *ScoreCache) Set(method string, result ScoreResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[method] = scoreCacheEntry{
		result:     copyScoreResult(result),
		expiration: c.nowFn().Add(c.ttl),
	}
}

// Load returns the cached ScoreResult for method if present and unexpired,
// else calls compute exactly once across however many goroutines miss the
// cache for method concurrently, caching and fanning out the single result.
// hit reports whether the value came from the cache rather than compute.
func (c *ScoreCache) Load(method string, compute func() ScoreResult) (result ScoreResult, hit bool) {
	if cached, ok := c.Get(method); ok {
		return cached, true
	}

	v, _, _ := c.group.Do(method, func() (interface{}, error) {
		result := compute()
		c.Set(method, result)
		return result, nil
	})
	return v.(ScoreResult), false
}

// Invalidate removes method's cached entry, if any.
func (c *ScoreCache) Invalidate(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, method)
}

// InvalidateAll clears the cache.
func (c *ScoreCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]scoreCacheEntry)
}

// Stats returns hit/miss counters.
func (c *ScoreCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func copyScoreResult(r ScoreResult) ScoreResult {
	scores := make(map[string]float64, len(r.Scores))
	for k, v := range r.Scores {
		scores[k] = v
	}
	return ScoreResult{Scores: scores, WeightLatency: r.WeightLatency, WeightPrice: r.WeightPrice}
}
