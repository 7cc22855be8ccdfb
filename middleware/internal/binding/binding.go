// Package binding implements the HTTP-framework-independent request/response
// translation shared by every gateway HTTP adapter (net/http, chi, gin,
// echo, fiber). Routing, path params, and content negotiation stay in the
// per-framework packages; decoding JSON-RPC bodies and shaping the five §6
// response envelopes lives here exactly once.
package binding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rpcmux/gateway/pkg/gateway"
)

// Gateway binds a Router and Analytics projector to the five HTTP
// endpoints. Per-framework adapters hold one Gateway and translate their
// framework's request/response types into and out of its methods.
type Gateway struct {
	Router          *gateway.Router
	Analytics       *gateway.Analytics
	ProvidersLoaded int
}

// NewGateway constructs a Gateway. providersLoaded is reported verbatim by
// Health - it is the configured provider count, not a liveness probe of
// each upstream.
func NewGateway(router *gateway.Router, analytics *gateway.Analytics, providersLoaded int) *Gateway {
	return &Gateway{Router: router, Analytics: analytics, ProvidersLoaded: providersLoaded}
}

// DecodeBody parses raw into the loosely-typed JSON-RPC request map the
// Router's ParseRequest expects. A malformed or empty body decodes to an
// empty map so the Router reports the specific validation failure rather
// than this layer guessing at one.
func DecodeBody(raw []byte) map[string]interface{} {
	var out map[string]interface{}
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

// Best runs the full candidate-selection pipeline for body.
func (g *Gateway) Best(ctx context.Context, raw []byte) *gateway.Response {
	return g.Router.Optimize(ctx, DecodeBody(raw))
}

// NotFoundError is the plain 404 envelope used for force-routing to an
// unknown provider, distinct from the JSON-RPC Response envelope the other
// endpoints use.
type NotFoundError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// ForceRoute force-routes body to the named provider. ok is false only when
// the name is genuinely unknown, in which case notFound carries the §6 404
// body and resp is nil. Naming the virtual Best provider (any case not
// already routed through Best separately) is not a 404: it is a routing
// error, reported as a -32601 JSON-RPC envelope via DispatchTo.
func (g *Gateway) ForceRoute(ctx context.Context, providerName string, raw []byte) (resp *gateway.Response, notFound *NotFoundError, ok bool) {
	body := DecodeBody(raw)
	parsed, err := gateway.ParseRequest(body)
	if err != nil {
		return gateway.BuildError(idFromBody(body), gateway.CodeInvalidRequest, "invalid request", nil), nil, true
	}

	if _, err := g.Router.Provider(providerName); err != nil && errors.Is(err, gateway.ErrUnknownProvider) {
		return nil, &NotFoundError{Error: fmt.Sprintf("unknown provider: %s", providerName), Code: http.StatusNotFound}, false
	}

	return g.Router.DispatchTo(ctx, providerName, parsed), nil, true
}

func idFromBody(body map[string]interface{}) interface{} {
	if id, ok := body["id"]; ok {
		return id
	}
	return nil
}

// RecordsResponse is the §6 `GET /api/records` payload.
type RecordsResponse struct {
	Method       string                  `json:"method"`
	Records      []gateway.MetricRecord `json:"records"`
	TotalRecords int                     `json:"total_records"`
}

// Records returns every record for method (or all methods when method is
// empty).
func (g *Gateway) Records(method string) RecordsResponse {
	records := g.Analytics.GetAllRecords(method)
	return RecordsResponse{Method: method, Records: records, TotalRecords: len(records)}
}

// AnalyticsResponse is the §6 `GET /api/analytics` payload.
type AnalyticsResponse struct {
	Method    string                    `json:"method"`
	Providers []gateway.ProviderSummary `json:"providers"`
}

// ErrMethodRequired is returned by Analytics when method is empty, per §6's
// "requires method" contract.
var ErrMethodRequired = fmt.Errorf("method query parameter is required")

// Analytics returns per-provider averages and counts for method.
func (g *Gateway) Analytics(method string) (AnalyticsResponse, error) {
	if method == "" {
		return AnalyticsResponse{}, ErrMethodRequired
	}
	return AnalyticsResponse{Method: method, Providers: g.Analytics.ProviderSummaries(method)}, nil
}

// HealthResponse is the §6 `GET /health` payload.
type HealthResponse struct {
	Status          string `json:"status"`
	ProvidersLoaded int    `json:"providers_loaded"`
}

// Health reports liveness and the configured provider count.
func (g *Gateway) Health() HealthResponse {
	return HealthResponse{Status: "ok", ProvidersLoaded: g.ProvidersLoaded}
}
