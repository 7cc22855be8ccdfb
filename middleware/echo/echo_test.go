package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpcmux/gateway/pkg/gateway"
)

type fakeDispatcher struct{}

func (fakeDispatcher) Send(_ context.Context, _ string, _ interface{}, _ time.Duration) (*gateway.DispatchResult, error) {
	return &gateway.DispatchResult{Result: "ok", LatencyMS: 5}, nil
}

func testEcho() *echo.Echo {
	p1 := &gateway.Provider{Name: "P1", BaseURL: "http://p1", Priority: 1, LimitMonthly: 100, PricingModel: gateway.PricingFlat}
	store := gateway.NewMetricsStore()
	router := gateway.NewRouter(gateway.RouterConfig{
		Providers:   []*gateway.Provider{p1},
		Quota:       gateway.NewQuotaManager(nil, nil, nil),
		RateLimiter: gateway.NewRateLimiter(),
		Metrics:     store,
		Client:      fakeDispatcher{},
	})
	h := NewHandler(router, gateway.NewAnalytics(store), 1)

	e := echo.New()
	h.Mount(e, "/api")
	return e
}

func TestEchoHandler_Best(t *testing.T) {
	e := testEcho()
	req := httptest.NewRequest(http.MethodPost, "/api/rpc/best", strings.NewReader(`{"jsonrpc":"2.0","method":"eth_blockNumber","id":1}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp gateway.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	assert.Equal(t, "P1", resp.Decision.SelectedProvider)
}

func TestEchoHandler_ForceRoute_UnknownProvider404(t *testing.T) {
	e := testEcho()
	req := httptest.NewRequest(http.MethodPost, "/api/rpc/nope", strings.NewReader(`{"jsonrpc":"2.0","method":"eth_blockNumber","id":1}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEchoHandler_ForceRoute_BestIsRoutingErrorNot404(t *testing.T) {
	e := testEcho()
	req := httptest.NewRequest(http.MethodPost, "/api/rpc/BEST", strings.NewReader(`{"jsonrpc":"2.0","method":"eth_blockNumber","id":1}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp gateway.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, gateway.CodeRoutingError, resp.Error.Code)
}

func TestEchoHandler_Health(t *testing.T) {
	e := testEcho()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestEchoHandler_Analytics_RequiresMethod(t *testing.T) {
	e := testEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
