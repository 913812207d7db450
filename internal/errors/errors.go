package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Validation
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeUnknownPairingCode ErrorCode = "UNKNOWN_PAIRING_CODE"
	ErrCodeDeviceNotFound     ErrorCode = "DEVICE_NOT_FOUND"
	ErrCodeNoChallenge        ErrorCode = "NO_CHALLENGE_PENDING"

	// Protocol state
	ErrCodeWrongDeviceRole    ErrorCode = "WRONG_DEVICE_ROLE"
	ErrCodePartnerRoleInvalid ErrorCode = "PARTNER_ROLE_INVALID"
	ErrCodeNotPaired          ErrorCode = "NOT_PAIRED"

	// Rendezvous
	ErrCodeAwaitTimeout ErrorCode = "AWAIT_TIMEOUT"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(fields ...string) *AppError {
	if len(fields) == 0 {
		return New(ErrCodeMissingRequired, "Missing required field")
	}
	return New(ErrCodeMissingRequired, fmt.Sprintf("Missing '%s' in request", strings.Join(fields, "' or '")))
}

func UnknownPairingCode() *AppError {
	return New(ErrCodeUnknownPairingCode, "Unknown or already used pairing code")
}

func DeviceNotFound() *AppError {
	return New(ErrCodeDeviceNotFound, "Device not found")
}

func NoChallengePending() *AppError {
	return New(ErrCodeNoChallenge, "No 2FA request awaiting")
}

func WrongDeviceRole(expected string) *AppError {
	return New(ErrCodeWrongDeviceRole, fmt.Sprintf("Device is not a %s", expected))
}

func PartnerRoleInvalid() *AppError {
	return New(ErrCodePartnerRoleInvalid, "Partner device is not a smartphone")
}

func NotPaired() *AppError {
	return New(ErrCodeNotPaired, "Partner device not found, not paired yet")
}

func AwaitTimeout() *AppError {
	return New(ErrCodeAwaitTimeout, "Timed out waiting for the 2FA verdict; retry to keep waiting")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
