// Package echo wires a gateway Router onto labstack/echo, binding the five
// §6 HTTP endpoints.
package echo

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rpcmux/gateway/middleware/internal/binding"
	"github.com/rpcmux/gateway/pkg/gateway"
)

// Handler implements the five gateway endpoints as Echo handlers.
type Handler struct {
	gw *binding.Gateway
}

// NewHandler builds a Handler from router, analytics and the configured
// provider count (reported verbatim by /health).
func NewHandler(router *gateway.Router, analytics *gateway.Analytics, providersLoaded int) *Handler {
	return &Handler{gw: binding.NewGateway(router, analytics, providersLoaded)}
}

// Mount registers all five endpoints on e under prefix (e.g. "/api"), and
// /health at the router root, per §6.
func (h *Handler) Mount(e *echo.Echo, prefix string) {
	e.POST(prefix+"/rpc/best", h.best)
	e.POST(prefix+"/rpc/:provider", h.forceRoute)
	e.GET(prefix+"/records", h.records)
	e.GET(prefix+"/analytics", h.analytics)
	e.GET("/health", h.health)
}

func (h *Handler) best(c echo.Context) error {
	raw, _ := io.ReadAll(c.Request().Body)
	resp := h.gw.Best(c.Request().Context(), raw)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) forceRoute(c echo.Context) error {
	providerName := c.Param("provider")
	raw, _ := io.ReadAll(c.Request().Body)
	resp, notFound, _ := h.gw.ForceRoute(c.Request().Context(), providerName, raw)
	if notFound != nil {
		return c.JSON(http.StatusNotFound, notFound)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) records(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gw.Records(c.QueryParam("method")))
}

func (h *Handler) analytics(c echo.Context) error {
	resp, err := h.gw.Analytics(c.QueryParam("method"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gw.Health())
}
