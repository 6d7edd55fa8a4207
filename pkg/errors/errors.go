// Package errors provides standardized error types for the cache monitor.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across repositories, services and handlers.
const (
	CodeNetworkFailure   = "NETWORK_FAILURE"
	CodeUpstreamStatus   = "UPSTREAM_STATUS"
	CodeDecodeFailed     = "DECODE_FAILED"
	CodeBatchUndecodable = "BATCH_UNDECODABLE"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeCanceled         = "CANCELED"
	CodeInternal         = "INTERNAL_ERROR"
)

// MonitorError represents a monitor error with code, message, and optional details.
type MonitorError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *MonitorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *MonitorError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *MonitorError) Is(target error) bool {
	t, ok := target.(*MonitorError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails adds details to the error.
func (e *MonitorError) WithDetails(details map[string]interface{}) *MonitorError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *MonitorError) WithDetail(key string, value interface{}) *MonitorError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common errors
var (
	ErrNoServerAddress  = &MonitorError{Code: CodeInvalidRequest, Message: "server address is required"}
	ErrPlanNotFound     = &MonitorError{Code: CodeNotFound, Message: "execution plan not found"}
	ErrNoPlans          = &MonitorError{Code: CodeNotFound, Message: "no execution plans loaded"}
	ErrNoFlamegraph     = &MonitorError{Code: CodeNotFound, Message: "plan has no flamegraph"}
	ErrUnknownAction    = &MonitorError{Code: CodeInvalidRequest, Message: "unknown action"}
	ErrUnknownPanel     = &MonitorError{Code: CodeInvalidRequest, Message: "unknown panel"}
	ErrArchiveDisabled  = &MonitorError{Code: CodeUnavailable, Message: "plan archive is not configured"}
	ErrBatchUndecodable = &MonitorError{Code: CodeBatchUndecodable, Message: "no execution plan could be decoded"}
)

// New creates a new MonitorError with the given code and message.
func New(code, message string) *MonitorError {
	return &MonitorError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a MonitorError.
func Wrap(err error, code, message string) *MonitorError {
	if err == nil {
		return nil
	}
	return &MonitorError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *MonitorError {
	if err == nil {
		return nil
	}
	return &MonitorError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// FromContext converts a context error into a CANCELED error, or returns nil.
func FromContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Wrap(err, CodeCanceled, "request canceled")
	}
	return nil
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsInvalidRequest checks if an error is an invalid request error.
func IsInvalidRequest(err error) bool {
	return hasCode(err, CodeInvalidRequest)
}

// IsCanceled reports whether the error came from a canceled or expired context.
func IsCanceled(err error) bool {
	if hasCode(err, CodeCanceled) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// IsNetwork reports whether the error is a transport or upstream status failure.
func IsNetwork(err error) bool {
	return hasCode(err, CodeNetworkFailure) || hasCode(err, CodeUpstreamStatus)
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var monErr *MonitorError
	if errors.As(err, &monErr) {
		return monErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var monErr *MonitorError
	if errors.As(err, &monErr) {
		return monErr.Message
	}
	return err.Error()
}

// Describe renders an error for people: the message of a coded error
// followed by its cause, without the code.
func Describe(err error) string {
	var monErr *MonitorError
	if !errors.As(err, &monErr) {
		return err.Error()
	}
	if monErr.Cause != nil {
		return fmt.Sprintf("%s: %v", monErr.Message, monErr.Cause)
	}
	return monErr.Message
}

// HTTPStatus maps an error to the status code the dashboard answers with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNetworkFailure, CodeUpstreamStatus, CodeBatchUndecodable, CodeDecodeFailed:
		return http.StatusBadGateway
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func hasCode(err error, code string) bool {
	var monErr *MonitorError
	if errors.As(err, &monErr) {
		return monErr.Code == code
	}
	return false
}
