package gateway

// ProviderSummary is one row of the analytics projection: per-provider
// aggregate view over the metrics store's records for a method.
type ProviderSummary struct {
	Provider     string  `json:"provider"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	AvgPriceUSD  float64 `json:"avg_price_usd"`
	RecordCount  int64   `json:"record_count"`
	NormLatency  float64 `json:"norm_latency"`
	NormPrice    float64 `json:"norm_price"`
}

// Analytics is a pure projector over a MetricsStore; it holds no state of
// its own.
type Analytics struct {
	store *MetricsStore
}

// NewAnalytics wraps store for derived-view queries.
func NewAnalytics(store *MetricsStore) *Analytics {
	return &Analytics{store: store}
}

// GetAllRecords returns every record, optionally filtered by method.
func (a *Analytics) GetAllRecords(method string) []MetricRecord {
	return a.store.GetRecords(method)
}

// LatestSnapshot returns the latest record per provider for method,
// excluding the virtual Best provider.
func (a *Analytics) LatestSnapshot(method string) []MetricRecord {
	return a.store.Latest(method)
}

// ProviderSummaries computes average latency/price, record count, and
// normalized latency/price per provider for method, excluding Best.
func (a *Analytics) ProviderSummaries(method string) []ProviderSummary {
	records := a.store.GetRecords(method)

	type agg struct {
		sumLatency float64
		sumPrice   float64
		count      int64
	}
	byProvider := make(map[string]*agg)
	order := make([]string, 0)

	for _, r := range records {
		key := providerKey(r.Provider)
		if key == BestProviderName {
			continue
		}
		entry, ok := byProvider[key]
		if !ok {
			entry = &agg{}
			byProvider[key] = entry
			order = append(order, key)
		}
		entry.sumLatency += r.LatencyMS
		entry.sumPrice += r.PriceUSD
		entry.count++
	}

	avgLatencies := make([]float64, len(order))
	avgPrices := make([]float64, len(order))
	for i, key := range order {
		entry := byProvider[key]
		avgLatencies[i] = entry.sumLatency / float64(entry.count)
		avgPrices[i] = entry.sumPrice / float64(entry.count)
	}
	normLatency := normalize(avgLatencies)
	normPrice := normalize(avgPrices)

	out := make([]ProviderSummary, 0, len(order))
	for i, key := range order {
		entry := byProvider[key]
		out = append(out, ProviderSummary{
			Provider:     key,
			AvgLatencyMS: avgLatencies[i],
			AvgPriceUSD:  avgPrices[i],
			RecordCount:  entry.count,
			NormLatency:  normLatency[i],
			NormPrice:    normPrice[i],
		})
	}
	return out
}
