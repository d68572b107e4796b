// Package responder writes the JSON envelope used by every non-image
// response: {data, error{code,message,details}, meta{traceId,took}}.
package responder

import (
	stderrors "errors"
	"net/http"

	"github.com/leeforge/pngpress/errors"
	"github.com/leeforge/pngpress/http/binding"
	"github.com/leeforge/pngpress/http/middleware"
	"github.com/leeforge/pngpress/json"
)

var encodeFailed = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"encode failed"},"meta":{"took":0}}`)

// MetaFrom reads the trace ID and elapsed time set by the middleware.
func MetaFrom(r *http.Request) Meta {
	return Meta{
		TraceId: middleware.GetTraceID(r.Context()),
		Took:    middleware.GetRequestDuration(r.Context()).Milliseconds(),
	}
}

// writeJSON is the internal helper for all global functions
func writeJSON(w http.ResponseWriter, status int, payload any) {
	raw, err := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(encodeFailed)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

// Write sends a success response with data
func Write(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, &Response{Data: data, Meta: MetaFrom(r)})
}

// OK responds with 200 OK and data
func OK(w http.ResponseWriter, r *http.Request, data any) {
	Write(w, r, http.StatusOK, data)
}

// WriteError sends an error response
func WriteError(w http.ResponseWriter, r *http.Request, status int, err Error) {
	writeJSON(w, status, &Response{Error: &err, Meta: MetaFrom(r)})
}

// FromError maps err to a status and envelope: AppErrors keep their code,
// message and HTTP status, bind and validation errors become 400, an
// oversized body 413, anything else a 500 without internal detail.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	var bindErr *binding.BindError
	var validationErrs binding.ValidationErrors
	var appErr *errors.AppError

	switch {
	case stderrors.As(err, &maxErr):
		WriteError(w, r, http.StatusRequestEntityTooLarge, NewErrorWithDetails(ErrCodePayloadTooLarge, "", map[string]int64{"limit": maxErr.Limit}))
	case stderrors.As(err, &validationErrs):
		WriteError(w, r, http.StatusBadRequest, NewErrorWithDetails(ErrCodeValidationFailed, "", []binding.BindError(validationErrs)))
	case stderrors.As(err, &bindErr):
		WriteError(w, r, http.StatusBadRequest, NewErrorWithDetails(ErrCodeBindFailed, "", []binding.BindError{*bindErr}))
	case stderrors.As(err, &appErr):
		WriteError(w, r, errors.Status(appErr), NewErrorWithDetails(appErr.Code, appErr.Message, appErr.Details))
	default:
		InternalServerError(w, r, "")
	}
}

// InternalServerError responds with 500 Internal Server Error
func InternalServerError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, NewError(ErrCodeInternalServer, message))
}

// NotFound responds with 404 for unknown routes
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, NewError(ErrCodeRouteNotFound, ""))
}

// MethodNotAllowed responds with 405
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, NewError(ErrCodeMethodNotAllowed, ""))
}

// UnsupportedMediaType responds with 415 and the detected type.
func UnsupportedMediaType(w http.ResponseWriter, r *http.Request, detected string) {
	WriteError(w, r, http.StatusUnsupportedMediaType, NewErrorWithDetails(ErrCodeUnsupportedMedia, "", map[string]string{"detected": detected}))
}

// TooManyRequests responds with 429. Retry-After is set by the limiter.
func TooManyRequests(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusTooManyRequests, NewError(ErrCodeRateLimited, ""))
}
