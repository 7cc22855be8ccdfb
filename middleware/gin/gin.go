// Package gin wires a gateway Router onto gin-gonic/gin, binding the five
// §6 HTTP endpoints.
package gin

import (
	"io"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/rpcmux/gateway/middleware/internal/binding"
	"github.com/rpcmux/gateway/pkg/gateway"
)

// Handler implements the five gateway endpoints as Gin handlers.
type Handler struct {
	gw *binding.Gateway
}

// NewHandler builds a Handler from router, analytics and the configured
// provider count (reported verbatim by /health).
func NewHandler(router *gateway.Router, analytics *gateway.Analytics, providersLoaded int) *Handler {
	return &Handler{gw: binding.NewGateway(router, analytics, providersLoaded)}
}

// Mount registers all five endpoints on r under prefix (e.g. "/api"), and
// /health at the router root, per §6.
func (h *Handler) Mount(r gongin.IRouter, prefix string) {
	r.POST(prefix+"/rpc/best", h.best)
	r.POST(prefix+"/rpc/:provider", h.forceRoute)
	r.GET(prefix+"/records", h.records)
	r.GET(prefix+"/analytics", h.analytics)
	r.GET("/health", h.health)
}

func (h *Handler) best(c *gongin.Context) {
	raw, _ := io.ReadAll(c.Request.Body)
	resp := h.gw.Best(c.Request.Context(), raw)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) forceRoute(c *gongin.Context) {
	providerName := c.Param("provider")
	raw, _ := io.ReadAll(c.Request.Body)
	resp, notFound, _ := h.gw.ForceRoute(c.Request.Context(), providerName, raw)
	if notFound != nil {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) records(c *gongin.Context) {
	c.JSON(http.StatusOK, h.gw.Records(c.Query("method")))
}

func (h *Handler) analytics(c *gongin.Context) {
	resp, err := h.gw.Analytics(c.Query("method"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gongin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) health(c *gongin.Context) {
	c.JSON(http.StatusOK, h.gw.Health())
}
