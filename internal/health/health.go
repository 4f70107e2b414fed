// Package health serves liveness and readiness probes for audxd.
//
//   - /healthz — liveness; a process that can answer HTTP is alive.
//   - /readyz  — readiness; 200 only while every registered [Check]
//     passes. audxd registers an engine check that opens and closes a
//     denoising session, so readiness flips to 503 when the engine
//     backend cannot produce sessions.
//
// Responses are JSON: {"status": "ok"|"fail", "checks": {name: detail}}.
// Each check detail carries the probe duration so slow engine startup is
// visible from the probe itself.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe. Opening an engine session
// is cheap once the model is loaded; anything slower than this is a
// failure worth reporting.
const probeTimeout = 2 * time.Second

// Check is a named readiness probe. Probe returns nil while the dependency
// can do work, and must respect context cancellation.
type Check struct {
	// Name keys the probe's entry in the JSON response, e.g. "engine".
	Name string

	Probe func(ctx context.Context) error
}

// checkDetail is one probe's entry in the readiness response.
type checkDetail struct {
	Status   string `json:"status"` // "ok" or "fail"
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

type response struct {
	Status string                 `json:"status"`
	Checks map[string]checkDetail `json:"checks,omitempty"`
}

// Handler answers the probe endpoints. The check list is fixed at
// construction, so the handler is safe for concurrent use.
type Handler struct {
	checks []Check
}

// New returns a Handler that runs the given checks, in order, on every
// /readyz request.
func New(checks ...Check) *Handler {
	c := make([]Check, len(checks))
	copy(c, checks)
	return &Handler{checks: c}
}

// Healthz always answers 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz runs every check under a probeTimeout deadline and answers 503 if
// any of them fail.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := response{
		Status: "ok",
		Checks: make(map[string]checkDetail, len(h.checks)),
	}
	code := http.StatusOK

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		start := time.Now()
		err := c.Probe(ctx)
		elapsed := time.Since(start)
		cancel()

		detail := checkDetail{Status: "ok", Duration: elapsed.String()}
		if err != nil {
			detail.Status = "fail"
			detail.Error = err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
		}
		res.Checks[c.Name] = detail
	}

	writeJSON(w, code, res)
}

// Register adds both probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
