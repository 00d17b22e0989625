package models

import "time"

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
	SessionIgnored SessionStatus = "ignored"
)

// Valid reports whether s is one of the known session statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionClosed, SessionIgnored:
		return true
	}
	return false
}

// ChatSession is one visitor conversation. It owns its messages.
type ChatSession struct {
	ID            string        `json:"_id" gorm:"primaryKey;size:26"`
	VisitorID     *string       `json:"visitorId" gorm:"size:128;index:idx_chat_sessions_visitor_status,priority:1"`
	Name          *string       `json:"name"`
	Email         *string       `json:"email"`
	Status        SessionStatus `json:"status" gorm:"size:16;not null;default:'active';index:idx_chat_sessions_visitor_status,priority:2;index:idx_chat_sessions_status_last,priority:1"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	LastMessageAt *time.Time    `json:"lastMessageAt" gorm:"index:idx_chat_sessions_status_last,priority:2"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

// IsActive reports whether messages may still be sent to the session.
func (s *ChatSession) IsActive() bool { return s.Status == SessionActive }

// SessionSummary is a session annotated with an unread message count.
// The count covers visitor messages in the admin inbox and admin
// messages in the visitor lookup.
type SessionSummary struct {
	ChatSession
	UnreadCount int `json:"unreadCount"`
}
