package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes shared by services and the HTTP boundary.
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyLiked        = "ALREADY_LIKED"
	CodeNotLiked            = "NOT_LIKED"
	CodeConflict            = "CONFLICT"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
)

// FieldError is a single violated input field.
type FieldError struct {
	Field   string `json:"param"`
	Message string `json:"msg"`
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error  string       `json:"message"`
	Code   string       `json:"code,omitempty"`
	Errors []FieldError `json:"errors,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

// NewNotFoundMessage is a not-found error with a caller-chosen message.
func NewNotFoundMessage(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewFieldValidationError reports every violated field at once.
func NewFieldValidationError(fields []FieldError) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: "Validation failed",
		Fields:  fields,
	}
}

func NewUnauthenticatedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthenticated,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewAlreadyLikedError() *AppError {
	return &AppError{
		Code:    CodeAlreadyLiked,
		Message: "Post already liked.",
	}
}

func NewNotLikedError() *AppError {
	return &AppError{
		Code:    CodeNotLiked,
		Message: "Post has not yet been liked.",
	}
}

func NewConflictError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Err:     err,
	}
}

func NewUpstreamUnavailableError(err error) *AppError {
	return &AppError{
		Code:    CodeUpstreamUnavailable,
		Message: "Upstream service unavailable",
		Err:     err,
	}
}

func NewStoreUnavailableError(err error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: "Server error",
		Err:     err,
	}
}

// ErrorCode returns the AppError code carried by err, or "" for foreign errors.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// StatusFor maps an error to the HTTP status the boundary should answer with.
func StatusFor(err error) int {
	switch ErrorCode(err) {
	case CodeValidation, CodeAlreadyLiked, CodeNotLiked:
		return fiber.StatusBadRequest
	case CodeUnauthenticated:
		return fiber.StatusUnauthorized
	case CodeUnauthorized:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeConflict:
		return fiber.StatusConflict
	case CodeUpstreamUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError writes a standardized error response. Internal causes are
// never echoed to the client.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) && status < fiber.StatusInternalServerError {
		response = ErrorResponse{
			Error:  appErr.Message,
			Code:   appErr.Code,
			Errors: appErr.Fields,
		}
	} else if errors.As(err, &appErr) && appErr.Code == CodeUpstreamUnavailable {
		response = ErrorResponse{Error: appErr.Message, Code: appErr.Code}
	} else {
		response = ErrorResponse{Error: "Server error"}
	}

	return c.Status(status).JSON(response)
}
