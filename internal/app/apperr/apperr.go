// Package apperr defines the application-layer error type shared by all
// use-case packages. The HTTP adapter maps it 1:1 onto the error envelope.
package apperr

import (
	"errors"
	"net/http"
)

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeProfileIncomplete   = "PROFILE_INCOMPLETE"
	CodeAuthRequired        = "AUTHENTICATION_REQUIRED"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenMalformed      = "TOKEN_MALFORMED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
	CodeRoleRequired        = "ROLE_REQUIRED"
	CodeProfileNotFound     = "PROFILE_NOT_FOUND"
	CodeMessageNotFound     = "MESSAGE_NOT_FOUND"
	CodeProfileNotPublished = "PROFILE_NOT_PUBLISHED"
	CodeProfileExists       = "PROFILE_ALREADY_EXISTS"
	CodeAccountExists       = "ACCOUNT_ALREADY_EXISTS"
	CodeEmailInUse          = "EMAIL_ALREADY_IN_USE"
	CodeIdempotencyReuse    = "IDEMPOTENCY_KEY_REUSE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL"
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// As reports whether err is (or wraps) an *Error and returns it.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Validation builds a 400 naming the offending field.
func Validation(field, reason string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeValidation,
		Message: "invalid " + field,
		Details: map[string]any{field: reason},
	}
}

func ProfileIncomplete() *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeProfileIncomplete,
		Message: "city/state/radius required",
	}
}

func AuthRequired() *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    CodeAuthRequired,
		Message: "authentication required",
	}
}

func Unauthorized(code, msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: code, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Code: CodeForbidden, Message: msg}
}

func RoleRequired(role string) *Error {
	return &Error{
		Status:  http.StatusForbidden,
		Code:    CodeRoleRequired,
		Message: "only " + role + "s may perform this action",
		Details: map[string]any{"requiredRole": role},
	}
}

func ProfileNotFound() *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeProfileNotFound, Message: "profile not found"}
}

func MessageNotFound() *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeMessageNotFound, Message: "message not found"}
}

func ProfileNotPublished() *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeProfileNotPublished,
		Message: "cannot contact unpublished profile",
	}
}

func ProfileExists() *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeProfileExists, Message: "profile already exists"}
}

func Conflict(code, msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Message: msg}
}
