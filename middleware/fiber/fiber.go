// Package fiber wires a gateway Router onto gofiber/fiber, binding the five
// §6 HTTP endpoints.
package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/rpcmux/gateway/middleware/internal/binding"
	"github.com/rpcmux/gateway/pkg/gateway"
)

// Handler implements the five gateway endpoints as Fiber handlers.
type Handler struct {
	gw *binding.Gateway
}

// NewHandler builds a Handler from router, analytics and the configured
// provider count (reported verbatim by /health).
func NewHandler(router *gateway.Router, analytics *gateway.Analytics, providersLoaded int) *Handler {
	return &Handler{gw: binding.NewGateway(router, analytics, providersLoaded)}
}

// Mount registers all five endpoints on app under prefix (e.g. "/api"), and
// /health at the app root, per §6.
func (h *Handler) Mount(app *fiber.App, prefix string) {
	app.Post(prefix+"/rpc/best", h.best)
	app.Post(prefix+"/rpc/:provider", h.forceRoute)
	app.Get(prefix+"/records", h.records)
	app.Get(prefix+"/analytics", h.analytics)
	app.Get("/health", h.health)
}

func (h *Handler) best(c *fiber.Ctx) error {
	resp := h.gw.Best(c.UserContext(), c.Body())
	return c.Status(http.StatusOK).JSON(resp)
}

func (h *Handler) forceRoute(c *fiber.Ctx) error {
	providerName := c.Params("provider")
	resp, notFound, _ := h.gw.ForceRoute(c.UserContext(), providerName, c.Body())
	if notFound != nil {
		return c.Status(http.StatusNotFound).JSON(notFound)
	}
	return c.Status(http.StatusOK).JSON(resp)
}

func (h *Handler) records(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(h.gw.Records(c.Query("method")))
}

func (h *Handler) analytics(c *fiber.Ctx) error {
	resp, err := h.gw.Analytics(c.Query("method"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(resp)
}

func (h *Handler) health(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(h.gw.Health())
}
