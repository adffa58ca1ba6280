package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
)

// HeaderCorrelationID carries the saga correlation id on requests and responses.
const HeaderCorrelationID = "X-Correlation-ID"

const codeInternal = "INTERNAL_ERROR"

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "Error sending response", "error", err)
	}
}

// Error maps err to a status code and writes it as {code, message}. Errors
// without a domain code are logged and reported as a generic 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *errs.Error
	if !errors.As(err, &domainErr) {
		slog.ErrorContext(r.Context(), "Internal error", "error", err, "path", r.URL.Path)
		JSON(w, r, http.StatusInternalServerError, errorResponse{
			Code:    codeInternal,
			Message: "internal server error",
		})

		return
	}

	status := StatusOf(domainErr.Code)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Upstream error", "error", err, "path", r.URL.Path)
	}

	JSON(w, r, status, errorResponse{
		Code:    string(domainErr.Code),
		Message: domainErr.Message,
	})
}

// StatusOf returns the HTTP status for an error code.
func StatusOf(code errs.Code) int {
	switch code {
	case errs.CodeOrderNotFound:
		return http.StatusNotFound
	case errs.CodeInvalidOrderState:
		return http.StatusConflict
	case errs.CodeValidationFailed:
		return http.StatusBadRequest
	case errs.CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CorrelationID returns the caller supplied correlation id, falling back to
// the request id.
func CorrelationID(r *http.Request) string {
	if id := r.Header.Get(HeaderCorrelationID); id != "" {
		return id
	}

	return middleware.GetReqID(r.Context())
}

// EchoCorrelationID copies the effective correlation id onto the response.
func EchoCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := CorrelationID(r); id != "" {
			w.Header().Set(HeaderCorrelationID, id)
		}
		next.ServeHTTP(w, r)
	})
}
