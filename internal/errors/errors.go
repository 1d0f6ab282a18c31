// Package errors defines the HTTP-facing error type used by frame services.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable       Code = "UNAVAILABLE"
	CodeInternal          Code = "INTERNAL"
)

// ServiceError is an error that knows its HTTP status.
type ServiceError struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// New builds a ServiceError.
func New(code Code, status int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap builds a ServiceError around cause.
func Wrap(code Code, status int, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: cause}
}

func BadRequest(message string) *ServiceError {
	return New(CodeBadRequest, http.StatusBadRequest, message)
}

func Unauthorized(message string) *ServiceError {
	return New(CodeUnauthorized, http.StatusUnauthorized, message)
}

func NotFound(resource, id string) *ServiceError {
	return New(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s %q not found", resource, id))
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, http.StatusConflict, message)
}

func Unavailable(message string) *ServiceError {
	return New(CodeUnavailable, http.StatusServiceUnavailable, message)
}

// RateLimitExceeded reports a limit of limit requests per window.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeRateLimitExceeded, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window))
}

func Internal(message string, cause error) *ServiceError {
	return Wrap(CodeInternal, http.StatusInternalServerError, message, cause)
}

// From converts any error to a ServiceError, defaulting to 500.
func From(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return Internal("internal error", err)
}
