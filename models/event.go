package models

import "time"

type ChatEventType string

const (
	EventSessionCreated ChatEventType = "session.created"
	EventSessionUpdated ChatEventType = "session.updated"
	EventMessageCreated ChatEventType = "message.created"
)

// ChatEvent describes a committed change to a session or its messages.
// It is fanned out to stream subscribers and the event log.
type ChatEvent struct {
	Type      ChatEventType `json:"type"`
	SessionID string        `json:"sessionId"`
	Session   *ChatSession  `json:"session,omitempty"`
	Message   *ChatMessage  `json:"message,omitempty"`
	At        time.Time     `json:"at"`
}
