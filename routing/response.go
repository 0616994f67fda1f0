package routing

import (
	"encoding/json"
	"errors"
	"net/http"

	kerrors "github.com/km-arc/go-kernel/framework/errors"
	"github.com/km-arc/go-kernel/framework/tenant"
)

// ── Response ─────────────────────────────────────────────────────────────────

// Response wraps http.ResponseWriter with JSON helpers.
type Response struct {
	w http.ResponseWriter
}

// NewResponse wraps a ResponseWriter.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

// JSON sends a JSON response.
//
//	res.JSON(http.StatusOK, map[string]any{"message": "ok"})
func (res *Response) JSON(status int, data any) {
	res.w.Header().Set("Content-Type", "application/json")
	res.w.WriteHeader(status)
	_ = json.NewEncoder(res.w).Encode(data)
}

// Success sends 200 JSON: {"data": v}
func (res *Response) Success(v any) {
	res.JSON(http.StatusOK, envelope{"data": v})
}

// Error sends a JSON error response: {"message": message}
func (res *Response) Error(status int, message string) {
	res.JSON(status, envelope{"message": message})
}

// ServerError sends 500.
func (res *Response) ServerError(message ...string) {
	res.Error(http.StatusInternalServerError, first(message, "Server Error."))
}

// Fail maps err to a status code and sends it:
//
//	unsatisfied dependency      → 404
//	current tenant not set      → 400
//	illegal container state     → 503
//	anything else               → 500
func (res *Response) Fail(err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, kerrors.ErrUnsatisfiedDependency):
		status = http.StatusNotFound
	case errors.Is(err, tenant.ErrCurrentTenantNotSet):
		status = http.StatusBadRequest
	case errors.Is(err, kerrors.ErrIllegalState):
		status = http.StatusServiceUnavailable
	}
	res.Error(status, err.Error())
}

// ── Helpers ──────────────────────────────────────────────────────────────────

type envelope map[string]any

func first(ss []string, fallback string) string {
	if len(ss) > 0 && ss[0] != "" {
		return ss[0]
	}
	return fallback
}
