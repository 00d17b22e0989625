package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport wraps failures to reach the chat API at all.
var ErrTransport = errors.New("chat: transport failure")

// APIError is a non-2xx answer from the chat API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat: %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// sessionClosedMessage is what the API answers when a send targets a
// session that is no longer active.
const sessionClosedMessage = "Session is no longer active"

// IsSessionClosed reports whether err rejected a send because the
// session was closed.
func IsSessionClosed(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		apiErr.StatusCode == http.StatusBadRequest &&
		apiErr.Message == sessionClosedMessage
}

// displayMessage is the server's short message for API errors and
// fallback for everything else.
func displayMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
