package utils

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies an application error for clients
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindUnknownRecipient   Kind = "UnknownRecipient"
	KindInvalidMailbox     Kind = "InvalidMailbox"
	KindNotFound           Kind = "NotFound"
	KindPreconditionFailed Kind = "PreconditionFailed"
	KindMethodNotAllowed   Kind = "MethodNotAllowed"
	KindUnauthorized       Kind = "Unauthorized"
	KindForbidden          Kind = "Forbidden"
	KindRateLimited        Kind = "RateLimited"
	KindInternal           Kind = "InternalError"
)

// AppError represents a custom application error with context
type AppError struct {
	Code      int                    // HTTP status code
	Kind      Kind                   // Error class reported to clients
	Message   string                 // User-friendly message
	MessageID string                 // i18n message id, empty when Message is final
	Err       error                  // Underlying error
	Context   map[string]interface{} // Additional context
}

// NewAppError creates a new AppError
func NewAppError(code int, kind Kind, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying error to errors.Is/As
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	e.Context[key] = value
	return e
}

// Localized marks the message as translatable under messageID
func (e *AppError) Localized(messageID string) *AppError {
	e.MessageID = messageID
	return e
}

// AsAppError converts any handler error to an AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch fiberErr.Code {
		case fiber.StatusMethodNotAllowed:
			return NewAppError(fiberErr.Code, KindMethodNotAllowed, fiberErr.Message, nil).Localized("error_method_not_allowed")
		case fiber.StatusNotFound:
			return NewAppError(fiberErr.Code, KindNotFound, fiberErr.Message, nil).Localized("error_404")
		case fiber.StatusBadRequest:
			return NewAppError(fiberErr.Code, KindValidation, fiberErr.Message, nil)
		}
		if fiberErr.Code >= fiber.StatusInternalServerError {
			return NewAppError(fiberErr.Code, KindInternal, fiberErr.Message, nil)
		}
		return NewAppError(fiberErr.Code, KindValidation, fiberErr.Message, nil)
	}

	return InternalServerError("Internal server error", err)
}

// Common error constructors
func ValidationError(message string, err error) *AppError {
	return NewAppError(fiber.StatusBadRequest, KindValidation, message, err)
}

func UnknownRecipientError(message string, err error) *AppError {
	return NewAppError(fiber.StatusBadRequest, KindUnknownRecipient, message, err)
}

func InvalidMailboxError(message string, err error) *AppError {
	return NewAppError(fiber.StatusBadRequest, KindInvalidMailbox, message, err)
}

func PreconditionFailedError(message string, err error) *AppError {
	return NewAppError(fiber.StatusBadRequest, KindPreconditionFailed, message, err)
}

func UnauthorizedError(message string, err error) *AppError {
	return NewAppError(fiber.StatusUnauthorized, KindUnauthorized, message, err)
}

func ForbiddenError(message string, err error) *AppError {
	return NewAppError(fiber.StatusForbidden, KindForbidden, message, err)
}

func NotFoundError(message string, err error) *AppError {
	return NewAppError(fiber.StatusNotFound, KindNotFound, message, err)
}

func InternalServerError(message string, err error) *AppError {
	return NewAppError(fiber.StatusInternalServerError, KindInternal, message, err)
}
