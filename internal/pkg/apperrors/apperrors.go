// Package apperrors defines the error taxonomy shared by the billing core and
// its HTTP surface. Errors carry a stable snake_case code that handlers return
// verbatim in the "error" field.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type Code string

const (
	CodeUnauthorized     Code = "unauthorized"
	CodeNotFound         Code = "not_found"
	CodeForbidden        Code = "forbidden"
	CodeInvalidState     Code = "invalid_state"
	CodeQuotaExceeded    Code = "quota_exceeded"
	CodePaymentRequired  Code = "payment_required"
	CodeExternalService  Code = "external_service_error"
	CodeConflictNoop     Code = "conflict_noop"
	CodeValidation       Code = "validation_failed"
	CodeInvalidSignature Code = "invalid_signature"
	CodeRateLimited      Code = "rate_limited"
	CodeInternal         Code = "internal_server_error"
)

// Error is a taxonomy error. Details are merged into the JSON response body.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

// Sentinels for errors.Is. Matching is by code, so any *Error with the same
// code matches regardless of message or details.
var (
	ErrUnauthorized     = &Error{Code: CodeUnauthorized, Message: "authentication required"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "resource not found"}
	ErrForbidden        = &Error{Code: CodeForbidden, Message: "resource belongs to another account"}
	ErrInvalidState     = &Error{Code: CodeInvalidState, Message: "transition not permitted"}
	ErrQuotaExceeded    = &Error{Code: CodeQuotaExceeded, Message: "subscription period limit reached"}
	ErrPaymentRequired  = &Error{Code: CodePaymentRequired, Message: "no available credit"}
	ErrExternalService  = &Error{Code: CodeExternalService, Message: "payment processor request failed"}
	ErrValidation       = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrInvalidSignature = &Error{Code: CodeInvalidSignature, Message: "webhook signature verification failed"}
	ErrRateLimited      = &Error{Code: CodeRateLimited, Message: "too many requests"}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New builds an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a cause to a new taxonomy error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetails returns a copy of e carrying the given details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range details {
		cp.Details[k] = v
	}
	return &cp
}

// CodeOf extracts the taxonomy code, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsNotFound reports whether err is a not_found taxonomy error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// HTTPStatus maps a code to the status the API responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeForbidden, CodeQuotaExceeded:
		return fiber.StatusForbidden
	case CodeInvalidState:
		return fiber.StatusConflict
	case CodePaymentRequired:
		return fiber.StatusPaymentRequired
	case CodeExternalService:
		return fiber.StatusBadGateway
	case CodeConflictNoop:
		return fiber.StatusOK
	case CodeValidation:
		return fiber.StatusUnprocessableEntity
	case CodeInvalidSignature:
		return fiber.StatusBadRequest
	case CodeRateLimited:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// Body renders the JSON envelope for err.
func Body(err error) fiber.Map {
	body := fiber.Map{}
	var e *Error
	if errors.As(err, &e) {
		for k, v := range e.Details {
			body[k] = v
		}
		body["error"] = string(e.Code)
		body["message"] = e.Message
		return body
	}
	body["error"] = string(CodeInternal)
	body["message"] = "internal error"
	return body
}
