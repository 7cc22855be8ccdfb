package gateway

import "math"

func round(x float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Round(x*mult) / mult
}

// BuildSuccess shapes a success envelope, rounding presentation values per
// the fixed precision contract: latency to 0.01ms, price to 6 decimals,
// weights to 3, score to 4.
func BuildSuccess(id interface{}, result interface{}, provider string, latencyMS, priceUSD float64, weightLatency, weightPrice float64, score *float64, allProviders map[string]float64) *Response {
	var roundedScore *float64
	if score != nil {
		s := round(*score, 4)
		roundedScore = &s
	}

	var allRounded map[string]float64
	if allProviders != nil {
		allRounded = make(map[string]float64, len(allProviders))
		for k, v := range allProviders {
			allRounded[k] = round(v, 4)
		}
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
		Decision: &Decision{
			SelectedProvider: provider,
			Score:            roundedScore,
			Weights:          Weights{Latency: round(weightLatency, 3), Price: round(weightPrice, 3)},
			LatencyMS:        round(latencyMS, 2),
			PriceUSD:         round(priceUSD, 6),
			AllProviders:     allRounded,
		},
	}
}

// BuildError shapes an error envelope for the given JSON-RPC code.
func BuildError(id interface{}, code int, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}
