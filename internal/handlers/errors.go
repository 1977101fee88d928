package handlers

import (
	"errors"
	"net/http"

	"github.com/admitd/admitd/internal/ratelimit"
	"github.com/admitd/admitd/internal/security"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// mapErrorToResponse maps engine errors to HTTP status codes and error responses.
func mapErrorToResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, ratelimit.ErrEmptyIdentifier):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "MISSING_IDENTIFIER",
		}
	case errors.Is(err, security.ErrIdentifierTooLong):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "IDENTIFIER_TOO_LONG",
		}
	case errors.Is(err, security.ErrInvalidIdentifier):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_IDENTIFIER",
		}
	case errors.Is(err, security.ErrBlockedIdentifier):
		return http.StatusForbidden, ErrorResponse{
			Error: err.Error(),
			Code:  "BLOCKED_IDENTIFIER",
		}
	case errors.Is(err, ratelimit.ErrUnknownPreset):
		return http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "UNKNOWN_PRESET",
		}
	case errors.Is(err, ratelimit.ErrInvalidInterval):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_INTERVAL",
		}
	case errors.Is(err, ratelimit.ErrInvalidConfig):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		}
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, ErrorResponse{
			Error: err.Error(),
			Code:  "RATE_LIMIT_EXCEEDED",
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, resp := mapErrorToResponse(err)
	writeJSON(w, status, resp)
}

// NotFound answers requests for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error: "resource not found",
		Code:  "NOT_FOUND",
	})
}

// MethodNotAllowed answers requests using an unsupported method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error: "method not allowed",
		Code:  "METHOD_NOT_ALLOWED",
	})
}
