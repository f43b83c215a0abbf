package handler

import (
	"encoding/json"
	"net/http"
)

// ServiceName is the name reported by the health endpoints.
const ServiceName = "inventory-ledger"

type HTTPHealthHandler struct {
	store Pinger
}

type HealthHTTPResponse struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

func NewHTTPHealthHandler(store Pinger) *HTTPHealthHandler {
	return &HTTPHealthHandler{store: store}
}

func (h *HTTPHealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthHTTPResponse{
			Service: ServiceName,
			Status:  "unavailable",
			Error:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthHTTPResponse{
		Service: ServiceName,
		Status:  "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
