package gateway

import "errors"

// Sentinel errors for the router's internal error taxonomy. ParseRequest
// returns ErrInvalidRequest, and Router.Provider returns ErrUnknownProvider
// or ErrProviderIsBest. The router reports the no-candidates and exhausted
// conditions as JSON-RPC error envelopes with their own messages rather than
// returning ErrNoCandidates or ErrExhausted. Upstream failures are consumed
// by the router and translated into failover decisions.
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrNoCandidates    = errors.New("no provider with remaining quota")
	ErrExhausted       = errors.New("all candidates rate-limited or failed")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrUpstreamConn    = errors.New("upstream connection failure")
	ErrUpstreamHTTP    = errors.New("upstream http error")
	ErrUpstreamDecode  = errors.New("upstream decode failure")
	ErrQuotaIO         = errors.New("quota persistence failure")
	ErrInternal        = errors.New("internal error")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrProviderIsBest  = errors.New("cannot route directly to the best pseudo-provider")
)

// JSON-RPC 2.0 error codes reserved by this gateway.
const (
	CodeInvalidRequest = -32600
	CodeRoutingError   = -32601
	CodeNoProvider     = -32000
	CodeInternal       = -32603
)
