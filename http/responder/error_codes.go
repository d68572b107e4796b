package responder

import "github.com/leeforge/pngpress/errors"

// Transport error codes. Pipeline failures use the codes in package errors.
const (
	ErrCodeBindFailed       = "BIND_FAILED"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	ErrCodeRouteNotFound    = "ROUTE_NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeUnsupportedMedia = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternalServer   = errors.CodeInternalError
)

// 错误消息映射
var errorMessages = map[string]string{
	ErrCodeBindFailed:       "Invalid Request Parameters",
	ErrCodeValidationFailed: "Validation Failed",
	ErrCodePayloadTooLarge:  "Request Body Too Large",
	ErrCodeRouteNotFound:    "Route Not Found",
	ErrCodeMethodNotAllowed: "Method Not Allowed",
	ErrCodeUnsupportedMedia: "Unsupported Media Type",
	ErrCodeRateLimited:      "Too Many Requests",
	ErrCodeInternalServer:   "Internal Server Error",
}

// GetErrorMessage returns the default message for an error code
func GetErrorMessage(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "Unknown Error"
}

// NewError fills an empty message from the code.
func NewError(code, message string) Error {
	return NewErrorWithDetails(code, message, nil)
}

func NewErrorWithDetails(code, message string, details any) Error {
	if message == "" {
		message = GetErrorMessage(code)
	}
	return Error{Code: code, Message: message, Details: details}
}
