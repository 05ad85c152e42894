package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	// Connection setup
	ErrAuthentication = fmt.Errorf("authentication failed")
	ErrMissingToken   = fmt.Errorf("%w: credential is missing", ErrAuthentication)
	ErrInvalidToken   = fmt.Errorf("%w: invalid or expired token", ErrAuthentication)

	// Message lifecycle
	ErrUnauthorized          = fmt.Errorf("only the sender can modify this message")
	ErrMutationWindowExpired = fmt.Errorf("message can no longer be modified")
	ErrMessageNotFound       = fmt.Errorf("message not found")
	ErrMessageDeleted        = fmt.Errorf("message has been deleted")
	ErrUpload                = fmt.Errorf("file upload failed")
	ErrPersistence           = fmt.Errorf("message could not be stored")

	// Validation
	ErrInvalidIntent    = fmt.Errorf("invalid message intent")
	ErrMissingRecipient = fmt.Errorf("%w: recipient is required", ErrInvalidIntent)
	ErrEmptyMessage     = fmt.Errorf("%w: text or file is required", ErrInvalidIntent)
	ErrInvalidFile      = fmt.Errorf("%w: file data is not valid base64", ErrInvalidIntent)
	ErrUnknownEvent     = fmt.Errorf("%w: unknown event type", ErrInvalidIntent)

	// Accounts
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidUsername    = fmt.Errorf("username should be in small letters only (a-z, 0-9, underscores allowed)")
	ErrInvalidPassword    = fmt.Errorf("password must be at least 8 characters long and include uppercase, lowercase, number, and special character")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrTooManyRequests    = fmt.Errorf("too many accounts created from this address today")
)

// Is re-exports the standard library helper so callers importing this
// package under the name errors keep a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As re-exports the standard library helper.
func As(err error, target any) bool { return stderrors.As(err, target) }

// New re-exports the standard library helper.
func New(text string) error { return stderrors.New(text) }

// HTTPStatus maps a failure of the taxonomy to the status code used by the
// REST surface. Unknown errors are internal failures.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, ErrAuthentication), Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case Is(err, ErrUnauthorized), Is(err, ErrMutationWindowExpired), Is(err, ErrMessageDeleted):
		return http.StatusForbidden
	case Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case Is(err, ErrInvalidIntent), Is(err, ErrInvalidUsername), Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	case Is(err, ErrUpload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text exposed to clients in an error event or
// response body. Internal failures never leak their cause.
func PublicMessage(err error) string {
	for _, known := range []error{
		ErrMissingToken, ErrInvalidToken, ErrAuthentication,
		ErrUnauthorized, ErrMutationWindowExpired, ErrMessageNotFound, ErrMessageDeleted,
		ErrUpload, ErrPersistence,
		ErrMissingRecipient, ErrEmptyMessage, ErrInvalidFile, ErrUnknownEvent, ErrInvalidIntent,
		ErrUserAlreadyExists, ErrInvalidCredentials, ErrInvalidUsername, ErrInvalidPassword,
		ErrTooManyRequests,
	} {
		if Is(err, known) {
			return known.Error()
		}
	}
	return "internal server error"
}
