package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cr4all/supportservices/models"
	"gorm.io/gorm"
)

// SessionUpdate is a partial update of a session. Nil fields are left
// untouched.
type SessionUpdate struct {
	// Status replaces the session status. Must be a known status.
	Status *models.SessionStatus
	// Name and Email are trimmed; an empty result clears the field.
	Name  *string
	Email *string
	// MarkRead marks every visitor message of the session read.
	MarkRead bool
	// MarkAdminMessagesRead marks every admin message of the session read.
	MarkAdminMessagesRead bool
}

func (u SessionUpdate) changes() map[string]interface{} {
	changes := make(map[string]interface{})
	if u.Status != nil {
		changes["status"] = string(*u.Status)
	}
	if u.Name != nil {
		changes["name"] = trimmedOrNil(*u.Name)
	}
	if u.Email != nil {
		changes["email"] = trimmedOrNil(*u.Email)
	}
	return changes
}

type ChatService struct {
	db     *gorm.DB
	events EventSink
	now    func() time.Time
}

func NewChatService(db *gorm.DB, sinks ...EventSink) *ChatService {
	return &ChatService{
		db:     db,
		events: Sinks(sinks...),
		now:    Now,
	}
}

// Now is the service clock: UTC with microsecond precision, the finest
// resolution PostgreSQL keeps, so returned timestamps match stored ones.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// CreateSession always creates a new active session. Callers that want at
// most one active session per visitor look one up first.
func (s *ChatService) CreateSession(ctx context.Context, visitorID string) (*models.ChatSession, error) {
	now := s.now()
	session := models.ChatSession{
		ID:        models.NewID(),
		Status:    models.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if visitorID != "" {
		session.VisitorID = &visitorID
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.publish(ctx, models.ChatEvent{Type: models.EventSessionCreated, SessionID: session.ID, Session: &session, At: now})
	return &session, nil
}

func (s *ChatService) FindSession(ctx context.Context, id string) (*models.ChatSession, error) {
	id, ok := models.CanonicalID(id)
	if !ok {
		return nil, ErrInvalidSessionID
	}
	return s.findSession(s.db.WithContext(ctx), id)
}

func (s *ChatService) findSession(tx *gorm.DB, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := tx.Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// FindActiveSessionByVisitor returns the most recently updated active
// session of a visitor with the number of admin messages it has not read.
func (s *ChatService) FindActiveSessionByVisitor(ctx context.Context, visitorID string) (*models.SessionSummary, error) {
	if visitorID == "" {
		return nil, ErrSessionNotFound
	}
	db := s.db.WithContext(ctx)
	var session models.ChatSession
	err := db.Where("visitor_id = ? AND status = ?", visitorID, string(models.SessionActive)).
		Order("updated_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find visitor session: %w", err)
	}

	var unread int64
	if err := unreadFrom(db, session.ID, models.SenderAdmin).Count(&unread).Error; err != nil {
		return nil, fmt.Errorf("count unread admin messages: %w", err)
	}
	return &models.SessionSummary{ChatSession: session, UnreadCount: int(unread)}, nil
}

// ListSessions returns every session, most recent activity first, with
// the number of unread visitor messages of each.
func (s *ChatService) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	db := s.db.WithContext(ctx)
	var sessions []models.ChatSession
	err := db.Order("last_message_at IS NULL").
		Order("last_message_at DESC").
		Order("updated_at DESC").
		Order("id DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	ids := make([]string, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
	}
	unread := make(map[string]int, len(sessions))
	if len(ids) > 0 {
		var counts []struct {
			SessionID string
			Count     int
		}
		err := db.Model(&models.ChatMessage{}).
			Select("session_id, COUNT(*) AS count").
			Where("session_id IN ? AND sender = ? AND is_read = ?", ids, string(models.SenderVisitor), false).
			Group("session_id").
			Scan(&counts).Error
		if err != nil {
			return nil, fmt.Errorf("count unread visitor messages: %w", err)
		}
		for _, c := range counts {
			unread[c.SessionID] = c.Count
		}
	}

	out := make([]models.SessionSummary, len(sessions))
	for i := range sessions {
		out[i] = models.SessionSummary{ChatSession: sessions[i], UnreadCount: unread[sessions[i].ID]}
	}
	return out, nil
}

// UpdateSession applies upd and returns the resulting session. An update
// without fields is a plain lookup; the read flags never touch the session
// row itself.
func (s *ChatService) UpdateSession(ctx context.Context, id string, upd SessionUpdate) (*models.ChatSession, error) {
	id, ok := models.CanonicalID(id)
	if !ok {
		return nil, ErrInvalidSessionID
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	db := s.db.WithContext(ctx)

	session, err := s.findSession(db, id)
	if err != nil {
		return nil, err
	}

	changes := upd.changes()
	if len(changes) > 0 {
		changes["updated_at"] = s.now()
		if err := db.Model(&models.ChatSession{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
		if session, err = s.findSession(db, id); err != nil {
			return nil, err
		}
	}

	if upd.MarkRead {
		if err := markRead(db, id, models.SenderVisitor); err != nil {
			return nil, err
		}
	}
	if upd.MarkAdminMessagesRead {
		if err := markRead(db, id, models.SenderAdmin); err != nil {
			return nil, err
		}
	}

	if len(changes) > 0 || upd.MarkRead || upd.MarkAdminMessagesRead {
		s.publish(ctx, models.ChatEvent{Type: models.EventSessionUpdated, SessionID: id, Session: session, At: s.now()})
	}
	return session, nil
}

// ListMessages returns the messages of a session in the order they were
// sent. A well-formed id without a session yields an empty list.
func (s *ChatService) ListMessages(ctx context.Context, id string) ([]models.ChatMessage, error) {
	id, ok := models.CanonicalID(id)
	if !ok {
		return nil, ErrInvalidSessionID
	}
	messages := make([]models.ChatMessage, 0)
	err := s.db.WithContext(ctx).
		Where("session_id = ?", id).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// SendMessage stores a message and moves the session's last activity to
// it. Both writes share one transaction, and the session update only
// matches while the session is still active, so a concurrent close makes
// the send fail instead of leaving a message behind.
func (s *ChatService) SendMessage(ctx context.Context, id string, sender models.MessageSender, content string) (*models.ChatMessage, error) {
	id, ok := models.CanonicalID(id)
	if !ok {
		return nil, ErrInvalidSessionID
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if sender != models.SenderAdmin {
		sender = models.SenderVisitor
	}

	var (
		message models.ChatMessage
		session *models.ChatSession
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if session, err = s.findSession(tx, id); err != nil {
			return err
		}
		if !session.IsActive() {
			return ErrSessionNotActive
		}

		now := s.now()
		message = models.ChatMessage{
			ID:        models.NewID(),
			SessionID: id,
			Sender:    sender,
			Content:   content,
			CreatedAt: now,
		}
		if err := tx.Create(&message).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		res := tx.Model(&models.ChatSession{}).
			Where("id = ? AND status = ?", id, string(models.SessionActive)).
			Updates(map[string]interface{}{"last_message_at": now, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("touch session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotActive
		}
		session.LastMessageAt = &now
		session.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.ChatEvent{
		Type:      models.EventMessageCreated,
		SessionID: id,
		Session:   session,
		Message:   &message,
		At:        message.CreatedAt,
	})
	return &message, nil
}

func (s *ChatService) publish(ctx context.Context, event models.ChatEvent) {
	if s.events != nil {
		s.events.Publish(ctx, event)
	}
}

func unreadFrom(db *gorm.DB, sessionID string, sender models.MessageSender) *gorm.DB {
	return db.Model(&models.ChatMessage{}).
		Where("session_id = ? AND sender = ? AND is_read = ?", sessionID, string(sender), false)
}

func markRead(db *gorm.DB, sessionID string, sender models.MessageSender) error {
	err := db.Model(&models.ChatMessage{}).
		Where("session_id = ? AND sender = ?", sessionID, string(sender)).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("mark %s messages read: %w", sender, err)
	}
	return nil
}

func trimmedOrNil(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
