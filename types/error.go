package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 统一错误码
type ErrorCode string

// 通用错误码
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// 线索 / 邮件错误码
const (
	ErrInvalidLead     ErrorCode = "INVALID_LEAD"
	ErrLeadNotFound    ErrorCode = "LEAD_NOT_FOUND"
	ErrDeliveryFailed  ErrorCode = "DELIVERY_FAILED"
	ErrStorageFailure  ErrorCode = "STORAGE_FAILURE"
	ErrWorkflowInvalid ErrorCode = "WORKFLOW_INVALID"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError 在错误链中查找 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode 判断错误链中是否包含指定错误码
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// StatusFor 返回错误码对应的默认 HTTP 状态码
func StatusFor(code ErrorCode) int {
	switch code {
	case ErrInvalidRequest, ErrInvalidLead, ErrWorkflowInvalid:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound, ErrLeadNotFound:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case ErrUpstreamError, ErrDeliveryFailed:
		return http.StatusBadGateway
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewInvalidRequestError 常用构造：请求参数错误
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewNotFoundError 常用构造：资源不存在
func NewNotFoundError(message string) *Error {
	return NewError(ErrNotFound, message).WithHTTPStatus(http.StatusNotFound)
}

// NewInternalError 常用构造：内部错误
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternalError, message).WithCause(cause).WithHTTPStatus(http.StatusInternalServerError)
}
