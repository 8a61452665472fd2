package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the server envelope and the client error classifier.
const (
	CodeMissingToken       = "MISSING_TOKEN"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeAccountDeactivated = "ACCOUNT_DEACTIVATED"
	CodeInsufficientRole   = "INSUFFICIENT_ROLE"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Envelope is the failure body written for every rejected request.
type Envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Envelope renders the error in wire form.
func (e *DomainError) Envelope() Envelope {
	return Envelope{Success: false, Message: e.Message, Code: e.Code, Details: e.Details}
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewMissingToken() *DomainError {
	return NewDomainError(CodeMissingToken, "access token required", http.StatusUnauthorized, nil)
}

func NewInvalidToken(err error) *DomainError {
	de := NewDomainError(CodeInvalidToken, "invalid or expired token", http.StatusUnauthorized, nil)
	de.Err = err
	return de
}

func NewUserNotFound() *DomainError {
	return NewDomainError(CodeUserNotFound, "user not found", http.StatusUnauthorized, nil)
}

func NewAccountDeactivated() *DomainError {
	return NewDomainError(CodeAccountDeactivated, "account is deactivated", http.StatusUnauthorized, nil)
}

func NewInsufficientRole(message string) *DomainError {
	if message == "" {
		message = "insufficient permissions"
	}
	return NewDomainError(CodeInsufficientRole, message, http.StatusForbidden, nil)
}

func NewInvalidCredentials() *DomainError {
	return NewDomainError(CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized, nil)
}

func NewRateLimited(retryAfterSeconds int) *DomainError {
	return NewDomainError(CodeRateLimited, "too many login attempts", http.StatusTooManyRequests,
		map[string]any{"retry_after_seconds": retryAfterSeconds})
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
