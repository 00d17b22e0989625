package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cr4all/supportservices/models"
	"github.com/cr4all/supportservices/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.ChatEvent
}

func (r *recordingSink) Publish(_ context.Context, event models.ChatEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) types() []models.ChatEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ChatEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// steppingClock advances one millisecond per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Millisecond)
		return cur
	}
}

func newTestService(t *testing.T) (*ChatService, *gorm.DB, *recordingSink) {
	t.Helper()
	db := testutil.NewDB(t)
	sink := &recordingSink{}
	svc := NewChatService(db, sink)
	svc.now = steppingClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return svc, db, sink
}

func countMessages(t *testing.T, db *gorm.DB, sessionID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.ChatMessage{}).Where("session_id = ?", sessionID).Count(&n).Error)
	return n
}

func statusPtr(s models.SessionStatus) *models.SessionStatus { return &s }
func strPtr(s string) *string                                { return &s }

func TestCreateSession(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, models.ValidID(session.ID))
	assert.Equal(t, models.SessionActive, session.Status)
	require.NotNil(t, session.VisitorID)
	assert.Equal(t, "v1", *session.VisitorID)
	assert.Nil(t, session.LastMessageAt)
	assert.Nil(t, session.Name)

	anonymous, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, anonymous.VisitorID)

	// Creating never looks for an existing session.
	again, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, again.ID)

	assert.Equal(t, []models.ChatEventType{
		models.EventSessionCreated, models.EventSessionCreated, models.EventSessionCreated,
	}, sink.types())
}

func TestFindSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.FindSession(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	_, err = svc.FindSession(ctx, models.NewID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	created, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)
	found, err := svc.FindSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.True(t, created.CreatedAt.Equal(found.CreatedAt))

	found, err = svc.FindSession(ctx, strings.ToLower(created.ID))
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestLowercaseIDsReachTheSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)
	lower := strings.ToLower(created.ID)

	msg, err := svc.SendMessage(ctx, lower, models.SenderVisitor, "hi")
	require.NoError(t, err)
	assert.Equal(t, created.ID, msg.SessionID)

	messages, err := svc.ListMessages(ctx, lower)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	updated, err := svc.UpdateSession(ctx, lower, SessionUpdate{Status: statusPtr(models.SessionClosed)})
	require.NoError(t, err)
	assert.Equal(t, models.SessionClosed, updated.Status)
}

func TestFindActiveSessionByVisitor(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.FindActiveSessionByVisitor(ctx, "v1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	older, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)
	newer, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, "v2")
	require.NoError(t, err)

	found, err := svc.FindActiveSessionByVisitor(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)

	_, err = svc.UpdateSession(ctx, newer.ID, SessionUpdate{Status: statusPtr(models.SessionClosed)})
	require.NoError(t, err)

	found, err = svc.FindActiveSessionByVisitor(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, older.ID, found.ID)
	assert.Equal(t, 0, found.UnreadCount)

	_, err = svc.SendMessage(ctx, older.ID, models.SenderAdmin, "hi there")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, older.ID, models.SenderAdmin, "anyone?")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, older.ID, models.SenderVisitor, "yes")
	require.NoError(t, err)

	found, err = svc.FindActiveSessionByVisitor(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, found.UnreadCount)

	_, err = svc.FindActiveSessionByVisitor(ctx, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsOrderAndUnread(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	quiet, err := svc.CreateSession(ctx, "quiet")
	require.NoError(t, err)
	first, err := svc.CreateSession(ctx, "first")
	require.NoError(t, err)
	second, err := svc.CreateSession(ctx, "second")
	require.NoError(t, err)
	quieter, err := svc.CreateSession(ctx, "quieter")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, first.ID, models.SenderVisitor, "one")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, second.ID, models.SenderVisitor, "two")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, second.ID, models.SenderVisitor, "three")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, second.ID, models.SenderAdmin, "reply")
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 4)

	// Sessions with messages first by last activity, then the rest by update time.
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)
	assert.Equal(t, quieter.ID, sessions[2].ID)
	assert.Equal(t, quiet.ID, sessions[3].ID)

	assert.Equal(t, 2, sessions[0].UnreadCount)
	assert.Equal(t, 1, sessions[1].UnreadCount)
	assert.Equal(t, 0, sessions[2].UnreadCount)

	_, err = svc.UpdateSession(ctx, second.ID, SessionUpdate{MarkRead: true})
	require.NoError(t, err)
	sessions, err = svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sessions[0].UnreadCount)
}

func TestListSessionsEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)
	sessions, err := svc.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestUpdateSessionFields(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)

	updated, err := svc.UpdateSession(ctx, session.ID, SessionUpdate{
		Name:  strPtr("  Ada  "),
		Email: strPtr("ada@example.com"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Name)
	assert.Equal(t, "Ada", *updated.Name)
	assert.Equal(t, "ada@example.com", *updated.Email)
	assert.Equal(t, models.SessionActive, updated.Status)
	assert.True(t, updated.UpdatedAt.After(session.UpdatedAt))

	cleared, err := svc.UpdateSession(ctx, session.ID, SessionUpdate{Name: strPtr("   ")})
	require.NoError(t, err)
	assert.Nil(t, cleared.Name)
	require.NotNil(t, cleared.Email, "untouched fields are kept")

	closed, err := svc.UpdateSession(ctx, session.ID, SessionUpdate{Status: statusPtr(models.SessionIgnored)})
	require.NoError(t, err)
	assert.Equal(t, models.SessionIgnored, closed.Status)

	assert.Contains(t, sink.types(), models.EventSessionUpdated)
}

func TestUpdateSessionWithoutFieldsReturnsCurrent(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)

	got, err := svc.UpdateSession(ctx, session.ID, SessionUpdate{})
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.True(t, session.UpdatedAt.Equal(got.UpdatedAt), "no write happens")
	assert.Equal(t, []models.ChatEventType{models.EventSessionCreated}, sink.types())
}

func TestUpdateSessionErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateSession(ctx, "bad", SessionUpdate{})
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	_, err = svc.UpdateSession(ctx, models.NewID(), SessionUpdate{MarkRead: true})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)
	_, err = svc.UpdateSession(ctx, session.ID, SessionUpdate{Status: statusPtr("pending")})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.True(t, IsValidation(err))
}

func TestMarkReadIsScopedBySender(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)
	for _, m := range []struct {
		sender  models.MessageSender
		content string
	}{
		{models.SenderVisitor, "hello"},
		{models.SenderAdmin, "hi"},
		{models.SenderVisitor, "question"},
		{models.SenderAdmin, "answer"},
	} {
		_, err := svc.SendMessage(ctx, session.ID, m.sender, m.content)
		require.NoError(t, err)
	}

	readState := func() map[models.MessageSender][]bool {
		msgs, err := svc.ListMessages(ctx, session.ID)
		require.NoError(t, err)
		out := map[models.MessageSender][]bool{}
		for _, m := range msgs {
			out[m.Sender] = append(out[m.Sender], m.Read)
		}
		return out
	}

	_, err = svc.UpdateSession(ctx, session.ID, SessionUpdate{MarkRead: true})
	require.NoError(t, err)
	state := readState()
	assert.Equal(t, []bool{true, true}, state[models.SenderVisitor])
	assert.Equal(t, []bool{false, false}, state[models.SenderAdmin])

	// Idempotent.
	_, err = svc.UpdateSession(ctx, session.ID, SessionUpdate{MarkRead: true})
	require.NoError(t, err)
	assert.Equal(t, state, readState())

	_, err = svc.UpdateSession(ctx, session.ID, SessionUpdate{MarkAdminMessagesRead: true})
	require.NoError(t, err)
	state = readState()
	assert.Equal(t, []bool{true, true}, state[models.SenderAdmin])
	assert.Equal(t, int64(4), countMessages(t, db, session.ID))
}

func TestSendMessage(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, session.ID, models.SenderVisitor, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, session.ID, msg.SessionID)
	assert.Equal(t, models.SenderVisitor, msg.Sender)
	assert.False(t, msg.Read)
	assert.True(t, models.ValidID(msg.ID))

	found, err := svc.FindSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastMessageAt)
	assert.True(t, found.LastMessageAt.Equal(msg.CreatedAt))

	// Unknown senders are visitors.
	other, err := svc.SendMessage(ctx, session.ID, "robot", "beep")
	require.NoError(t, err)
	assert.Equal(t, models.SenderVisitor, other.Sender)

	types := sink.types()
	assert.Equal(t, models.EventMessageCreated, types[len(types)-1])
	sink.mu.Lock()
	last := sink.events[len(sink.events)-1]
	sink.mu.Unlock()
	require.NotNil(t, last.Message)
	assert.Equal(t, other.ID, last.Message.ID)
}

func TestSendMessageValidation(t *testing.T) {
	svc, db, sink := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "bad-id", models.SenderVisitor, "hi")
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	for _, content := range []string{"", "   ", "\n\t "} {
		_, err = svc.SendMessage(ctx, session.ID, models.SenderVisitor, content)
		assert.ErrorIs(t, err, ErrEmptyContent)
	}

	_, err = svc.SendMessage(ctx, models.NewID(), models.SenderVisitor, "hi")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Zero(t, countMessages(t, db, session.ID))
	assert.Equal(t, []models.ChatEventType{models.EventSessionCreated}, sink.types())
}

func TestSendMessageToInactiveSession(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	for _, status := range []models.SessionStatus{models.SessionClosed, models.SessionIgnored} {
		session, err := svc.CreateSession(ctx, "v1")
		require.NoError(t, err)
		_, err = svc.UpdateSession(ctx, session.ID, SessionUpdate{Status: statusPtr(status)})
		require.NoError(t, err)

		_, err = svc.SendMessage(ctx, session.ID, models.SenderVisitor, "hello?")
		assert.ErrorIs(t, err, ErrSessionNotActive)
		assert.True(t, IsValidation(err))
		assert.Zero(t, countMessages(t, db, session.ID))

		found, err := svc.FindSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Nil(t, found.LastMessageAt)
	}
}

func TestListMessagesOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)

	_, err = svc.ListMessages(ctx, "bad")
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	empty, err := svc.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for i := 0; i < 10; i++ {
		_, err := svc.SendMessage(ctx, session.ID, models.SenderVisitor, "msg")
		require.NoError(t, err)
	}
	msgs, err := svc.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}

func TestMessagesInSameInstant(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)

	instant := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return instant }

	a, err := svc.SendMessage(ctx, session.ID, models.SenderVisitor, "a")
	require.NoError(t, err)
	b, err := svc.SendMessage(ctx, session.ID, models.SenderAdmin, "b")
	require.NoError(t, err)

	msgs, err := svc.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, a.ID, msgs[0].ID)
	assert.Equal(t, b.ID, msgs[1].ID)
}

func TestConcurrentSendsAreAllStored(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := svc.SendMessage(ctx, session.ID, models.SenderVisitor, "burst")
			if assert.NoError(t, err) {
				ids <- msg.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	msgs, err := svc.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	seen := map[string]bool{}
	for _, m := range msgs {
		assert.False(t, seen[m.ID], "duplicate message %s", m.ID)
		seen[m.ID] = true
	}
	for id := range ids {
		assert.True(t, seen[id])
	}
}

func TestVisitorScenario(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.FindActiveSessionByVisitor(ctx, "v1")
	require.ErrorIs(t, err, ErrSessionNotFound)

	session, err := svc.CreateSession(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, session.Status)

	msg, err := svc.SendMessage(ctx, session.ID, models.SenderVisitor, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)

	closed, err := svc.UpdateSession(ctx, session.ID, SessionUpdate{Status: statusPtr(models.SessionClosed)})
	require.NoError(t, err)
	assert.Equal(t, models.SessionClosed, closed.Status)

	_, err = svc.SendMessage(ctx, session.ID, models.SenderVisitor, "still there?")
	assert.ErrorIs(t, err, ErrSessionNotActive)
}
