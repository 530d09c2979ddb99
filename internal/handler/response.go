// Package handler exposes the verification pipeline over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rooftophq/rooftop/internal/domain"
	"github.com/rooftophq/rooftop/internal/verify"
)

// maxRequestBodySize caps request bodies (base64 image payloads included).
const maxRequestBodySize = 16 << 20 // 16 MB

// APIResponse is the envelope for successful responses.
type APIResponse struct {
	Data interface{} `json:"data"`
}

// APIErrorResponse is the envelope for error responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned to clients.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondJSON writes a JSON response with the given status code and data.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Data: data})
}

// respondError maps an application error onto an HTTP status and envelope.
// Internal details never reach the client.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	status := statusForCode(code)

	// Verification failure surface gets its own mapping: the oracle being
	// down is an upstream problem, not a client one.
	switch {
	case errors.Is(err, verify.ErrOracleUnavailable):
		code, status = domain.EUNAVAILABLE, http.StatusServiceUnavailable
	case errors.Is(err, verify.ErrMalformedResponse):
		code, status = domain.EMALFORMED, http.StatusBadGateway
	case errors.Is(err, verify.ErrInvalidInput):
		code, status = domain.EINVALID, http.StatusUnprocessableEntity
	}

	if status >= 500 {
		logger.Error("Request failed", "code", code, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: domain.ErrorMessage(err),
		},
	})
}

// statusForCode maps domain error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusUnprocessableEntity
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable
	case domain.EMALFORMED:
		return http.StatusBadGateway
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into dst, enforcing the body cap.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return domain.Wrap(err, domain.EINVALID, "handler.decode", "request body is not valid JSON")
	}
	return nil
}
