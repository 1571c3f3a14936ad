// Package apperr defines the error envelope returned by the HTTP API.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Code identifies a class of error
type Code string

const (
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConfigNotFound    Code = "CONFIG_NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeQueueFull         Code = "QUEUE_FULL"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// AppError is an error with a code and the HTTP status it maps to.
type AppError struct {
	Code       Code         `json:"code"`
	Message    string       `json:"message"`
	Details    string       `json:"details,omitempty"`
	Fields     []FieldError `json:"fields,omitempty"`
	Cause      error        `json:"-"`
	HTTPStatus int          `json:"-"`
}

// FieldError represents an error for a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds additional details
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause adds a cause error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// New creates an AppError with the status for code.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: statusFor(code)}
}

// Wrap wraps err with a code and message.
func Wrap(err error, code Code, message string) *AppError {
	return New(code, message).WithCause(err).WithDetails(err.Error())
}

// NotFound is a shorthand for a NOT_FOUND error.
func NotFound(message string) *AppError {
	return New(CodeNotFound, message)
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return New(CodeInternal, "Internal server error").WithCause(err)
}

// Validation builds a VALIDATION_ERROR with field detail.
func Validation(message string, fields ...FieldError) *AppError {
	e := New(CodeValidation, message)
	e.Fields = fields
	return e
}

// FromBinding converts a request binding error into a validation error.
// Validator failures are reported per field; other errors, such as
// malformed JSON, are reported as details.
func FromBinding(err error) *AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field:   jsonName(fe),
				Message: describe(fe),
			})
		}
		return Validation("Invalid request", fields...).WithCause(err)
	}
	return Validation("Invalid request").WithCause(err).WithDetails(err.Error())
}

// As extracts an AppError from an error chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func statusFor(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound, CodeConfigNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition:
		return http.StatusConflict
	case CodeQueueFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func jsonName(fe validator.FieldError) string {
	// Namespace is Struct.field when a json tag name func is registered.
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
