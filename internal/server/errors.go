// Package server provides the HTTP REST API for the interview engine.
package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/interview-engine/internal/gateway"
	"github.com/jonathan/interview-engine/internal/session"
	"github.com/jonathan/interview-engine/internal/store"
)

// Error codes surfaced in the response envelope.
const (
	CodeValidation    = "validationError"
	CodeNotFound      = "notFound"
	CodeStateConflict = "stateConflict"
	CodeQuota         = "quotaExceeded"
	CodeUnavailable   = "serviceUnavailable"
	CodeDeadline      = "deadlineExceeded"
	CodeInternal      = "internalError"
)

// apiError is the wire shape of every error response.
type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// mapError translates domain errors into (status, envelope). Unrecognized
// errors become opaque 500s; their details go to the log, not the client.
func mapError(err error) (int, apiError) {
	var (
		validation *session.ErrValidation
		notFound   *session.ErrSessionNotFound
		conflict   *session.ErrStateConflict
		deadline   *session.ErrDeadline
		gwErr      *gateway.Error
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, apiError{Code: CodeValidation, Message: validation.Message}
	case errors.As(err, &notFound):
		return http.StatusNotFound, apiError{Code: CodeNotFound, Message: notFound.Error()}
	case errors.As(err, &conflict):
		return http.StatusConflict, apiError{Code: CodeStateConflict, Message: conflict.Message, Retryable: true}
	case errors.As(err, &deadline):
		return http.StatusGatewayTimeout, apiError{Code: CodeDeadline, Message: deadline.Error(), Retryable: true}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, apiError{Code: CodeNotFound, Message: "resource not found"}
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, apiError{Code: CodeStateConflict, Message: "concurrent modification, retry", Retryable: true}
	case errors.As(err, &gwErr):
		return mapGatewayError(gwErr)
	}
	return http.StatusInternalServerError, apiError{Code: CodeInternal, Message: "internal error"}
}

func mapGatewayError(err *gateway.Error) (int, apiError) {
	switch err.Kind {
	case gateway.FailQuota:
		return http.StatusTooManyRequests, apiError{Code: CodeQuota, Message: "LLM provider quota exceeded", Retryable: true}
	case gateway.FailTimeout:
		return http.StatusGatewayTimeout, apiError{Code: CodeDeadline, Message: "LLM call timed out", Retryable: true}
	case gateway.FailUnavailable, gateway.FailAuth:
		return http.StatusServiceUnavailable, apiError{Code: CodeUnavailable, Message: "LLM provider unavailable", Retryable: err.Kind == gateway.FailUnavailable}
	}
	return http.StatusServiceUnavailable, apiError{Code: CodeUnavailable, Message: "LLM call failed", Retryable: err.Retryable()}
}
