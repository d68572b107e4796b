package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType represents the kind of failure. Kinds are stable and safe to
// switch on; messages are for humans.
type ErrorType string

const (
	// ErrorTypeInvalidArgument is raised synchronously during request
	// validation, before any work is scheduled.
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"

	// Pipeline stage failures.
	ErrorTypeDecode       ErrorType = "decode"
	ErrorTypeEncode       ErrorType = "encode"
	ErrorTypeOptimization ErrorType = "optimization"

	// System errors
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error codes exposed to HTTP clients.
const (
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeDecodeFailed       = "DECODE_FAILED"
	CodeEncodeFailed       = "ENCODE_FAILED"
	CodeOptimizationFailed = "OPTIMIZATION_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError represents a classified error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	InnerError error                  `json:"-"`
	Stack      []string               `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.InnerError != nil {
		return e.InnerError.Error()
	}
	return string(e.Type)
}

// Unwrap returns the inner error
func (e *AppError) Unwrap() error {
	return e.InnerError
}

// WithMessage sets the message
func (e *AppError) WithMessage(msg string) *AppError {
	e.Message = msg
	return e
}

// WithCode sets the code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithHTTPStatus sets the HTTP status code
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// WithInnerError sets the inner error
func (e *AppError) WithInnerError(err error) *AppError {
	e.InnerError = err
	return e
}

// WithStack captures the call stack
func (e *AppError) WithStack() *AppError {
	e.Stack = captureStack(3)
	return e
}

// Is reports whether target is an *AppError of the same kind.
func (e *AppError) Is(target error) bool {
	if targetApp, ok := target.(*AppError); ok {
		return e.Type == targetApp.Type
	}
	return false
}

// New creates a new AppError
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Code:    string(errType),
	}
}

// FromError converts a standard error to AppError. Wrapped AppErrors are
// found through the chain.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return &AppError{
		Type:       ErrorTypeUnknown,
		Code:       CodeInternalError,
		Message:    err.Error(),
		InnerError: err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// WrapWithType wraps an error with a specific type
func WrapWithType(err error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		InnerError: err,
		Code:       string(errType),
	}
}

// Kind returns the ErrorType carried by err, or ErrorTypeUnknown.
func Kind(err error) ErrorType {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorType) bool {
	return err != nil && errors.Is(err, &AppError{Type: kind})
}

// NewInvalidArgument never wraps an underlying error.
func NewInvalidArgument(message string) *AppError {
	return New(ErrorTypeInvalidArgument, message).
		WithCode(CodeInvalidArgument).
		WithHTTPStatus(http.StatusBadRequest)
}

// NewDecode reports input bytes that could not be read as an image.
func NewDecode(err error) *AppError {
	return WrapWithType(err, ErrorTypeDecode, fmt.Sprintf("invalid PNG buffer: %v", err)).
		WithCode(CodeDecodeFailed).
		WithHTTPStatus(http.StatusUnprocessableEntity)
}

// NewEncode reports a failure to re-encode a resampled image.
func NewEncode(err error) *AppError {
	return WrapWithType(err, ErrorTypeEncode, fmt.Sprintf("failed to encode resized PNG: %v", err)).
		WithCode(CodeEncodeFailed).
		WithHTTPStatus(http.StatusInternalServerError)
}

// NewOptimization reports a failure in the lossless optimization step.
func NewOptimization(err error) *AppError {
	return WrapWithType(err, ErrorTypeOptimization, fmt.Sprintf("optimization failed: %v", err)).
		WithCode(CodeOptimizationFailed).
		WithHTTPStatus(http.StatusUnprocessableEntity)
}

// System errors
func NewInternal(message string) *AppError {
	return New(ErrorTypeInternal, message).
		WithCode(CodeInternalError).
		WithHTTPStatus(http.StatusInternalServerError)
}

func NewUnavailable(message string) *AppError {
	return New(ErrorTypeUnavailable, message).
		WithCode(CodeServiceUnavailable).
		WithHTTPStatus(http.StatusServiceUnavailable)
}

// Status returns the HTTP status for err, defaulting to 500.
func Status(err error) int {
	appErr := FromError(err)
	if appErr == nil {
		return http.StatusOK
	}
	if appErr.HTTPStatus > 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Recover converts a recovered panic value into an internal AppError.
// It must be called with the value returned by recover().
func Recover(r any) *AppError {
	if r == nil {
		return nil
	}
	var appErr *AppError
	switch v := r.(type) {
	case error:
		appErr = NewInternal(fmt.Sprintf("panic recovered: %v", v)).WithInnerError(v)
	case string:
		appErr = NewInternal("panic recovered: " + v)
	default:
		appErr = NewInternal(fmt.Sprintf("panic recovered: %v", v))
	}
	return appErr.WithStack()
}

// captureStack captures the call stack
func captureStack(skip int) []string {
	var stack []string
	for i := skip; i < 12; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		funcName := fn.Name()
		if idx := strings.LastIndex(funcName, "/"); idx >= 0 {
			funcName = funcName[idx+1:]
		}

		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, funcName))
	}
	return stack
}
