package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// HealthResponse represents the response for the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse represents the response for the ready endpoint.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// CheckFunc reports whether a component is able to serve.
type CheckFunc func() bool

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	clock   clockwork.Clock
	version string
	started time.Time

	mu     sync.RWMutex
	ready  bool
	checks map[string]CheckFunc
}

// NewHealthHandler creates a HealthHandler that starts out ready.
func NewHealthHandler(clk clockwork.Clock, version string) *HealthHandler {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &HealthHandler{
		clock:   clk,
		version: version,
		started: clk.Now(),
		ready:   true,
		checks:  make(map[string]CheckFunc),
	}
}

// Health handles GET /health. It answers as long as the process is serving.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    now.Sub(h.started).Truncate(time.Second).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. Every registered check must pass and the
// handler must not have been marked unready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	allReady := h.ready
	checks := make(map[string]string, len(h.checks))

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if h.checks[name]() {
			checks[name] = "ok"
			continue
		}
		checks[name] = "fail"
		allReady = false
	}

	status, code := "ready", http.StatusOK
	if !allReady {
		status, code = "not ready", http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
	}
	if len(checks) > 0 {
		response.Checks = checks
	}

	writeJSON(w, code, response)
}

// SetReady sets the ready state.
func (h *HealthHandler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the current ready state.
func (h *HealthHandler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// AddCheck registers a readiness check under name.
func (h *HealthHandler) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
