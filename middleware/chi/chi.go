// Package chi wires a gateway Router onto go-chi/chi, binding the five §6
// HTTP endpoints.
package chi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rpcmux/gateway/middleware/internal/binding"
	"github.com/rpcmux/gateway/pkg/gateway"
)

// Handler implements the five gateway endpoints as chi handlers.
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
func (h *Handler) Mount(r chi.Router, prefix string) {
	r.Route(prefix, func(r chi.Router) {
		r.Post("/rpc/best", h.best)
		r.Post("/rpc/{provider}", h.forceRoute)
		r.Get("/records", h.records)
		r.Get("/analytics", h.analytics)
	})
	r.Get("/health", h.health)
}

func (h *Handler) best(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	resp := h.gw.Best(r.Context(), raw)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) forceRoute(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	raw, _ := io.ReadAll(r.Body)
	resp, notFound, _ := h.gw.ForceRoute(r.Context(), providerName, raw)
	if notFound != nil {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Records(r.URL.Query().Get("method")))
}

func (h *Handler) analytics(w http.ResponseWriter, r *http.Request) {
	resp, err := h.gw.Analytics(r.URL.Query().Get("method"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Health())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
