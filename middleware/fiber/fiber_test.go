package fiber

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpcmux/gateway/pkg/gateway"
)

type fakeDispatcher struct{}

func (fakeDispatcher) Send(_ context.Context, _ string, _ interface{}, _ time.Duration) (*gateway.DispatchResult, error) {
	return &gateway.DispatchResult{Result: "ok", LatencyMS: 5}, nil
}

func testApp() *fiber.App {
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

	app := fiber.New()
	h.Mount(app, "/api")
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestFiberHandler_Best(t *testing.T) {
	app := testApp()
	resp := doRequest(t, app, http.MethodPost, "/api/rpc/best", `{"jsonrpc":"2.0","method":"eth_blockNumber","id":1}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	var parsed gateway.Response
	require.NoError(t, json.Unmarshal(raw, &parsed))
	require.Nil(t, parsed.Error)
	assert.Equal(t, "P1", parsed.Decision.SelectedProvider)
}

func TestFiberHandler_ForceRoute_UnknownProvider404(t *testing.T) {
	app := testApp()
	resp := doRequest(t, app, http.MethodPost, "/api/rpc/nope", `{"jsonrpc":"2.0","method":"eth_blockNumber","id":1}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFiberHandler_ForceRoute_BestIsRoutingErrorNot404(t *testing.T) {
	app := testApp()
	resp := doRequest(t, app, http.MethodPost, "/api/rpc/BEST", `{"jsonrpc":"2.0","method":"eth_blockNumber","id":1}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	var parsed gateway.Response
	require.NoError(t, json.Unmarshal(raw, &parsed))
	require.NotNil(t, parsed.Error)
	assert.Equal(t, gateway.CodeRoutingError, parsed.Error.Code)
}

func TestFiberHandler_Health(t *testing.T) {
	app := testApp()
	resp := doRequest(t, app, http.MethodGet, "/health", "")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestFiberHandler_Analytics_RequiresMethod(t *testing.T) {
	app := testApp()
	resp := doRequest(t, app, http.MethodGet, "/api/analytics", "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
