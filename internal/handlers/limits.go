package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/admitd/admitd/internal/ratelimit"
	"github.com/admitd/admitd/internal/security"
	"github.com/admitd/admitd/pkg/logger"
)

const (
	// maxBodyBytes bounds decision request bodies.
	maxBodyBytes = 1 << 16
	// maxThrottleInterval bounds how long one throttle request can hold a connection.
	maxThrottleInterval = time.Minute
)

// IdentifierRequest is the body of check, success and failure requests.
type IdentifierRequest struct {
	Identifier string `json:"identifier"`
}

// ThrottleRequest is the body of a throttle request.
type ThrottleRequest struct {
	Identifier  string `json:"identifier"`
	MinInterval string `json:"min_interval"`
}

// ThrottleResponse reports the delay imposed on a throttled call.
type ThrottleResponse struct {
	DelayMs int64 `json:"delay_ms"`
}

// ResultResponse is the wire form of an admission decision.
type ResultResponse struct {
	Allowed      bool   `json:"allowed"`
	Remaining    int    `json:"remaining"`
	Limit        int    `json:"limit"`
	ResetAt      string `json:"reset_at"`
	RetryAfterMs int64  `json:"retry_after_ms"`
}

// PresetResponse describes one catalog entry.
type PresetResponse struct {
	Name                   string `json:"name"`
	Window                 string `json:"window"`
	MaxRequests            int    `json:"max_requests"`
	BlockDuration          string `json:"block_duration"`
	SkipSuccessfulRequests bool   `json:"skip_successful_requests"`
	SkipFailedRequests     bool   `json:"skip_failed_requests"`
}

// LimitsHandler exposes the admission engine over HTTP.
type LimitsHandler struct {
	limiter   *ratelimit.Limiter
	throttle  *ratelimit.Throttle
	sanitizer *security.Sanitizer
	log       *logger.Logger
}

// NewLimitsHandler creates a LimitsHandler. A nil sanitizer uses
// security.DefaultConfig.
func NewLimitsHandler(limiter *ratelimit.Limiter, throttle *ratelimit.Throttle, sanitizer *security.Sanitizer, log *logger.Logger) *LimitsHandler {
	if sanitizer == nil {
		sanitizer = security.NewSanitizer(security.DefaultConfig())
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LimitsHandler{
		limiter:   limiter,
		throttle:  throttle,
		sanitizer: sanitizer,
		log:       log,
	}
}

// Routes mounts the decision endpoints on r.
func (h *LimitsHandler) Routes(r chi.Router) {
	r.Get("/presets", h.Presets)
	r.Post("/throttle", h.Throttle)
	r.Route("/limits/{preset}", func(r chi.Router) {
		r.Post("/check", h.Check)
		r.Get("/status", h.Status)
		r.Post("/success", h.Success)
		r.Post("/failure", h.Failure)
		r.Delete("/", h.Reset)
	})
}

// Presets handles GET /api/v1/presets.
func (h *LimitsHandler) Presets(w http.ResponseWriter, r *http.Request) {
	all := ratelimit.Presets()
	out := make([]PresetResponse, 0, len(all))
	for _, cfg := range all {
		out = append(out, NewPresetResponse(cfg))
	}
	writeJSON(w, http.StatusOK, out)
}

// Check handles POST /api/v1/limits/{preset}/check.
func (h *LimitsHandler) Check(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.preset(w, r)
	if !ok {
		return
	}
	id, ok := h.decodeIdentifier(w, r)
	if !ok {
		return
	}

	res, err := h.limiter.Check(id, cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	if !res.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(res.RetryAfter)))
		writeJSON(w, http.StatusTooManyRequests, newResultResponse(res))
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(res))
}

// Status handles GET /api/v1/limits/{preset}/status?identifier=.
func (h *LimitsHandler) Status(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.preset(w, r)
	if !ok {
		return
	}

	id, ok := h.queryIdentifier(w, r)
	if !ok {
		return
	}

	res, err := h.limiter.Status(id, cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(res))
}

// Success handles POST /api/v1/limits/{preset}/success.
func (h *LimitsHandler) Success(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, h.limiter.RecordSuccess)
}

// Failure handles POST /api/v1/limits/{preset}/failure.
func (h *LimitsHandler) Failure(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, h.limiter.RecordFailure)
}

// Reset handles DELETE /api/v1/limits/{preset}?identifier=.
func (h *LimitsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.preset(w, r)
	if !ok {
		return
	}

	id, ok := h.queryIdentifier(w, r)
	if !ok {
		return
	}

	if err := h.limiter.Reset(id, cfg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Throttle handles POST /api/v1/throttle. The response is written once the
// caller's slot arrives.
func (h *LimitsHandler) Throttle(w http.ResponseWriter, r *http.Request) {
	var req ThrottleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.sanitizer.Validate(req.Identifier); err != nil {
		writeError(w, err)
		return
	}

	interval, err := time.ParseDuration(req.MinInterval)
	if err != nil || interval > maxThrottleInterval {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("min_interval must be a duration between 1ns and %s", maxThrottleInterval),
			Code:  "INVALID_INTERVAL",
		})
		return
	}

	delay, err := h.throttle.Wait(r.Context(), req.Identifier, interval)
	if err != nil {
		// The client is gone; there is no one to answer.
		if r.Context().Err() != nil {
			h.log.Debug("throttle wait abandoned", "delay", delay)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ThrottleResponse{DelayMs: delay.Milliseconds()})
}

func (h *LimitsHandler) report(w http.ResponseWriter, r *http.Request, record func(string, ratelimit.Config) error) {
	cfg, ok := h.preset(w, r)
	if !ok {
		return
	}
	id, ok := h.decodeIdentifier(w, r)
	if !ok {
		return
	}

	if err := record(id, cfg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// preset resolves the {preset} path segment, writing a 404 when unknown.
func (h *LimitsHandler) preset(w http.ResponseWriter, r *http.Request) (ratelimit.Config, bool) {
	name, err := ratelimit.ParsePresetName(chi.URLParam(r, "preset"))
	if err == nil {
		var cfg ratelimit.Config
		if cfg, err = ratelimit.Preset(name); err == nil {
			return cfg, true
		}
	}
	writeError(w, err)
	return ratelimit.Config{}, false
}

func (h *LimitsHandler) decodeIdentifier(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req IdentifierRequest
	if !decodeBody(w, r, &req) {
		return "", false
	}
	if err := h.sanitizer.Validate(req.Identifier); err != nil {
		writeError(w, err)
		return "", false
	}
	return req.Identifier, true
}

func (h *LimitsHandler) queryIdentifier(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("identifier")
	if err := h.sanitizer.Validate(id); err != nil {
		writeError(w, err)
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return false
	}
	return true
}

// NewPresetResponse converts a catalog config to its wire form.
func NewPresetResponse(cfg ratelimit.Config) PresetResponse {
	return PresetResponse{
		Name:                   cfg.Name,
		Window:                 cfg.Window.String(),
		MaxRequests:            cfg.MaxRequests,
		BlockDuration:          cfg.BlockDuration.String(),
		SkipSuccessfulRequests: cfg.SkipSuccessfulRequests,
		SkipFailedRequests:     cfg.SkipFailedRequests,
	}
}

func newResultResponse(res ratelimit.Result) ResultResponse {
	return ResultResponse{
		Allowed:      res.Allowed,
		Remaining:    res.Remaining,
		Limit:        res.Limit,
		ResetAt:      res.ResetAt.UTC().Format(time.RFC3339),
		RetryAfterMs: res.RetryAfter.Milliseconds(),
	}
}

// retrySeconds rounds d up to whole seconds, never below one.
func retrySeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
