package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeAuthentication       = "AUTHENTICATION_ERROR"
	CodeAuthorization        = "AUTHORIZATION_ERROR"
	CodeNotParticipant       = "NOT_PARTICIPANT"
	CodeNotFound             = "NOT_FOUND"
	CodeConversationInactive = "CONVERSATION_INACTIVE"
	CodeValidation           = "VALIDATION_ERROR"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeInternal             = "INTERNAL_ERROR"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Authentication is returned for every credential failure. Callers must not
// leak which check failed, so the message is fixed.
func Authentication(err error) *AppError {
	return &AppError{
		Code:    CodeAuthentication,
		Message: "authentication failed",
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Authorization(message string, err error) *AppError {
	return &AppError{
		Code:    CodeAuthorization,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func NotParticipant(conversationID string) *AppError {
	return &AppError{
		Code:    CodeNotParticipant,
		Message: fmt.Sprintf("not a participant of conversation %s", conversationID),
		Status:  http.StatusForbidden,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func ConversationInactive(conversationID string) *AppError {
	return &AppError{
		Code:    CodeConversationInactive,
		Message: fmt.Sprintf("conversation %s is not active", conversationID),
		Status:  http.StatusConflict,
	}
}

func Validation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsAuthorization reports whether err denies access to a conversation,
// including the NOT_PARTICIPANT subtype.
func IsAuthorization(err error) bool {
	return Is(err, CodeAuthorization) || Is(err, CodeNotParticipant)
}

// As extracts the AppError from err. Errors that are not AppErrors are
// wrapped as internal errors so callers always get a code.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}
