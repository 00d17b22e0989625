package models

import "time"

type MessageSender string

const (
	SenderVisitor MessageSender = "visitor"
	SenderAdmin   MessageSender = "admin"
)

// ParseSender maps anything other than "admin" to the visitor side.
func ParseSender(s string) MessageSender {
	if MessageSender(s) == SenderAdmin {
		return SenderAdmin
	}
	return SenderVisitor
}

type ChatMessage struct {
	ID        string        `json:"_id" gorm:"primaryKey;size:26"`
	SessionID string        `json:"sessionId" gorm:"size:26;not null;index:idx_chat_messages_session_created,priority:1"`
	Sender    MessageSender `json:"sender" gorm:"size:16;not null"`
	Content   string        `json:"content" gorm:"type:text;not null"`
	Read      bool          `json:"read" gorm:"column:is_read;not null;default:false"`
	CreatedAt time.Time     `json:"createdAt" gorm:"index:idx_chat_messages_session_created,priority:2"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
