// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// probeResponse is the JSON payload for probe endpoints.
type probeResponse struct {
	Status Status        `json:"status"`
	Checks []CheckResult `json:"checks,omitempty"`
}

// Handler exposes the checker's probes over HTTP.
type Handler struct {
	checker *Checker
}

// NewHandler creates an HTTP handler for the checker.
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// MountChi mounts the probe endpoints on a chi router.
func MountChi(r chi.Router, h *Handler) {
	r.Get("/healthz", h.Liveness)
	r.Get("/readyz", h.Readiness)
	r.Get("/startupz", h.Startup)
}

// Liveness handles GET /healthz.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	result := h.checker.Live(r.Context())
	writeProbe(w, probeResponse{
		Status: result.Status,
		Checks: []CheckResult{result},
	})
}

// Readiness handles GET /readyz.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	results := h.checker.Ready(r.Context())
	writeProbe(w, probeResponse{
		Status: AggregateStatus(results),
		Checks: results,
	})
}

// Startup handles GET /startupz.
func (h *Handler) Startup(w http.ResponseWriter, r *http.Request) {
	result := h.checker.Startup(r.Context())
	writeProbe(w, probeResponse{
		Status: result.Status,
		Checks: []CheckResult{result},
	})
}

func writeProbe(w http.ResponseWriter, resp probeResponse) {
	status := http.StatusOK
	if resp.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
