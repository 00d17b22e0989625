package services

import "errors"

var (
	ErrInvalidSessionID   = errors.New("Invalid session id")
	ErrEmptyContent       = errors.New("Message content is required")
	ErrInvalidStatus      = errors.New("Invalid session status")
	ErrSessionNotFound    = errors.New("Session not found")
	ErrSessionNotActive   = errors.New("Session is no longer active")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrOperatorExists     = errors.New("operator already exists")
)

// IsValidation reports whether err is a caller mistake that should be
// answered with 400: a malformed input or a send against a closed session.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidSessionID) ||
		errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrSessionNotActive)
}
