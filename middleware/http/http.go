// Package http wires a gateway Router onto plain net/http, binding the five
// §6 HTTP endpoints with no framework dependency.
package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rpcmux/gateway/middleware/internal/binding"
	"github.com/rpcmux/gateway/pkg/gateway"
)

// Handler implements the five gateway endpoints as net/http handler
// functions. It is not itself an http.Handler; Mount registers its endpoints
// on a *http.ServeMux.
type Handler struct {
	gw *binding.Gateway
}

// NewHandler builds a Handler from router, analytics and the configured
// provider count (reported verbatim by /health).
func NewHandler(router *gateway.Router, analytics *gateway.Analytics, providersLoaded int) *Handler {
	return &Handler{gw: binding.NewGateway(router, analytics, providersLoaded)}
}

// Mount registers all five endpoints on mux under prefix (e.g. "/api").
// Health is registered at "/health", independent of prefix, per §6.
func (h *Handler) Mount(mux *http.ServeMux, prefix string) {
	mux.HandleFunc(prefix+"/rpc/best", h.best)
	mux.HandleFunc(prefix+"/rpc/", h.forceRoute)
	mux.HandleFunc(prefix+"/records", h.records)
	mux.HandleFunc(prefix+"/analytics", h.analytics)
	mux.HandleFunc("/health", h.health)
}

func (h *Handler) best(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	resp := h.gw.Best(r.Context(), raw)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) forceRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerName := providerFromPath(r.URL.Path)
	if providerName == "" || providerName == "best" {
		http.NotFound(w, r)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	resp, notFound, _ := h.gw.ForceRoute(r.Context(), providerName, raw)
	if notFound != nil {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func providerFromPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return path[idx+1:]
}

func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Query().Get("method")
	writeJSON(w, http.StatusOK, h.gw.Records(method))
}

func (h *Handler) analytics(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Query().Get("method")
	resp, err := h.gw.Analytics(method)
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
