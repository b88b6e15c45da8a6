package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

type ErrorCode string

const (
	ErrNotFound    ErrorCode = "NOT_FOUND"
	ErrForbidden   ErrorCode = "FORBIDDEN"
	ErrValidation  ErrorCode = "VALIDATION"
	ErrUnavailable ErrorCode = "UNAVAILABLE"

	// Webhook path. None of these reach the platform: the handler answers 200
	// and the outcome only shows up in the audit log.
	ErrMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	ErrIgnoredEvent     ErrorCode = "IGNORED_EVENT"
	ErrUnknownPage      ErrorCode = "UNKNOWN_PAGE"

	// Outbound calls.
	ErrPlatformAPI ErrorCode = "PLATFORM_API"
	ErrTransport   ErrorCode = "TRANSPORT"
	ErrImage       ErrorCode = "IMAGE"
)

type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

func New(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code ErrorCode, err error, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound, ErrUnknownPage:
		return http.StatusNotFound
	case ErrForbidden:
		return http.StatusForbidden
	case ErrValidation, ErrMalformedPayload:
		return http.StatusBadRequest
	case ErrPlatformAPI, ErrTransport:
		return http.StatusBadGateway
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PlatformError is an `error` object returned in a Graph API response body.
type PlatformError struct {
	Method  string
	Message string
	Type    string
	Code    int
	Subcode int
	TraceID string
	Status  int
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: platform error: %s (type: %s, code: %d)", e.Method, e.Message, e.Type, e.Code)
}

// CodeOf returns the ErrorCode carried by err, looking through wrapping.
// PlatformErrors report ErrPlatformAPI; anything else is "".
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return ErrPlatformAPI
	}
	return ""
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encoding JSON response failed", zap.Error(err))
	}
}

// HandleError writes err as an HTTP response. Errors that are not AppErrors
// are logged through the global zap logger and answered with a bare 500.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.StatusCode()
		response := ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		WriteJSON(w, status, response)
		return
	}

	zap.L().Error("internal error", zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
