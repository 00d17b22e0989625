package client

import (
	"context"
	"testing"

	"github.com/cr4all/supportservices/models"
	"github.com/cr4all/supportservices/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitorOpenCreatesThenResumes(t *testing.T) {
	_, c := newTestServer(t)
	store := &MemoryStore{}
	ctx := context.Background()

	v := NewVisitor(c, VisitorOptions{Store: store, PollInterval: fastPoll})
	t.Cleanup(v.Close)
	require.NoError(t, v.Open(ctx))
	snap := v.Snapshot()
	assert.Equal(t, VisitorReady, snap.State)
	assert.NotEmpty(t, snap.SessionID)
	assert.Empty(t, snap.Messages)

	stored, _ := store.Load()
	assert.Equal(t, snap.VisitorID, stored)

	again := NewVisitor(c, VisitorOptions{Store: store, PollInterval: fastPoll})
	t.Cleanup(again.Close)
	require.NoError(t, again.Open(ctx))
	assert.Equal(t, snap.SessionID, again.Snapshot().SessionID)
}

func TestVisitorSendShowsContactPromptOnce(t *testing.T) {
	s, c := newTestServer(t)
	ctx := context.Background()
	v := NewVisitor(c, VisitorOptions{Store: &MemoryStore{}, PollInterval: fastPoll})
	t.Cleanup(v.Close)
	require.NoError(t, v.Open(ctx))

	require.NoError(t, v.Send(ctx, "  hello  "))
	snap := v.Snapshot()
	assert.Equal(t, VisitorReady, snap.State)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hello", snap.Messages[0].Content)
	assert.True(t, snap.ShowContactPrompt)

	// Blank input is ignored.
	require.NoError(t, v.Send(ctx, "   "))
	assert.Len(t, v.Snapshot().Messages, 1)

	v.SubmitContact(" Ada ", "")
	assert.False(t, v.Snapshot().ShowContactPrompt)
	require.Eventually(t, func() bool {
		session, err := s.Chat.FindSession(ctx, snap.SessionID)
		return err == nil && session.Name != nil && *session.Name == "Ada"
	}, waitFor, tick)

	require.NoError(t, v.Send(ctx, "second"))
	assert.False(t, v.Snapshot().ShowContactPrompt)

	// A second submit is not sent.
	v.SubmitContact("Eve", "eve@example.com")
	session, err := s.Chat.FindSession(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Nil(t, session.Email)
}

func TestVisitorSkipContact(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()
	v := NewVisitor(c, VisitorOptions{Store: &MemoryStore{}, PollInterval: fastPoll})
	t.Cleanup(v.Close)
	require.NoError(t, v.Open(ctx))
	require.NoError(t, v.Send(ctx, "hello"))

	v.SkipContact()
	assert.False(t, v.Snapshot().ShowContactPrompt)
	assert.Equal(t, VisitorReady, v.Snapshot().State)
}

func TestVisitorPollsRepliesAndMarksThemRead(t *testing.T) {
	s, c := newTestServer(t)
	ctx := context.Background()
	store := &MemoryStore{}
	v := NewVisitor(c, VisitorOptions{Store: store, PollInterval: fastPoll})
	t.Cleanup(v.Close)
	require.NoError(t, v.Open(ctx))
	id := v.Snapshot().SessionID

	assert.Equal(t, 0, UnreadBadge(ctx, c, store))
	_, err := s.Chat.SendMessage(ctx, id, models.SenderAdmin, "how can we help?")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap := v.Snapshot()
		return len(snap.Messages) == 1 && snap.Messages[0].Sender == models.SenderAdmin
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return UnreadBadge(ctx, c, store) == 0
	}, waitFor, tick)
	summary, err := s.Chat.FindActiveSessionByVisitor(ctx, v.Snapshot().VisitorID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.UnreadCount)
}

func TestUnreadBadge(t *testing.T) {
	s, c := newTestServer(t)
	ctx := context.Background()

	assert.Equal(t, 0, UnreadBadge(ctx, c, nil))
	assert.Equal(t, 0, UnreadBadge(ctx, c, &MemoryStore{}))

	store := &MemoryStore{}
	require.NoError(t, store.Save("v-badge"))
	assert.Equal(t, 0, UnreadBadge(ctx, c, store))

	session, err := s.Chat.CreateSession(ctx, "v-badge")
	require.NoError(t, err)
	_, err = s.Chat.SendMessage(ctx, session.ID, models.SenderAdmin, "reply")
	require.NoError(t, err)
	assert.Equal(t, 1, UnreadBadge(ctx, c, store))
}

func TestVisitorClosedByOperator(t *testing.T) {
	s, c := newTestServer(t)
	ctx := context.Background()
	v := NewVisitor(c, VisitorOptions{Store: &MemoryStore{}, PollInterval: fastPoll})
	t.Cleanup(v.Close)
	require.NoError(t, v.Open(ctx))
	id := v.Snapshot().SessionID

	closed := models.SessionClosed
	_, err := s.Chat.UpdateSession(ctx, id, services.SessionUpdate{Status: &closed})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return v.Snapshot().State == VisitorClosed
	}, waitFor, tick)
	assert.Equal(t, models.SessionClosed, v.Snapshot().SessionStatus)

	require.NoError(t, v.Send(ctx, "anyone?"))
	assert.Empty(t, v.Snapshot().Messages)
}

func TestVisitorSendToClosedSessionCloses(t *testing.T) {
	s, c := newTestServer(t)
	ctx := context.Background()
	// Polling slower than the test so the send is what notices.
	v := NewVisitor(c, VisitorOptions{Store: &MemoryStore{}, PollInterval: waitFor * 10})
	t.Cleanup(v.Close)
	require.NoError(t, v.Open(ctx))

	closed := models.SessionClosed
	_, err := s.Chat.UpdateSession(ctx, v.Snapshot().SessionID, services.SessionUpdate{Status: &closed})
	require.NoError(t, err)

	err = v.Send(ctx, "hello?")
	assert.True(t, IsSessionClosed(err))
	assert.Equal(t, VisitorClosed, v.Snapshot().State)
}

func TestVisitorSendFailureKeepsChatting(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()
	api := &flakyAPI{ChatAPI: c}
	v := NewVisitor(api, VisitorOptions{Store: &MemoryStore{}, PollInterval: waitFor * 10})
	t.Cleanup(v.Close)
	require.NoError(t, v.Open(ctx))

	api.setSendErr(errBoom)
	assert.Error(t, v.Send(ctx, "lost"))
	snap := v.Snapshot()
	assert.Equal(t, VisitorReady, snap.State)
	assert.Equal(t, "Failed to send.", snap.Error)
	assert.Empty(t, snap.Messages)

	api.setSendErr(nil)
	require.NoError(t, v.Send(ctx, "found"))
	snap = v.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Len(t, snap.Messages, 1)
}

func TestVisitorOpenFailureAndRetry(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()
	api := &flakyAPI{ChatAPI: c, findErr: errBoom}
	v := NewVisitor(api, VisitorOptions{Store: &MemoryStore{}, PollInterval: fastPoll})
	t.Cleanup(v.Close)

	assert.Error(t, v.Open(ctx))
	snap := v.Snapshot()
	assert.Equal(t, VisitorError, snap.State)
	assert.Equal(t, "Could not load chat.", snap.Error)

	api.setFindErr(nil)
	require.NoError(t, v.Retry(ctx))
	assert.Equal(t, VisitorReady, v.Snapshot().State)
	assert.Empty(t, v.Snapshot().Error)
}

func TestVisitorCreateFailure(t *testing.T) {
	_, c := newTestServer(t)
	api := &flakyAPI{ChatAPI: c, createErr: errBoom}
	v := NewVisitor(api, VisitorOptions{Store: &MemoryStore{}})
	t.Cleanup(v.Close)

	assert.Error(t, v.Open(context.Background()))
	assert.Equal(t, "Could not start chat.", v.Snapshot().Error)
}

func TestVisitorCloseDropsLateResults(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()
	api := &flakyAPI{ChatAPI: c}
	v := NewVisitor(api, VisitorOptions{Store: &MemoryStore{}, PollInterval: fastPoll})
	require.NoError(t, v.Open(ctx))

	updates, cancel := v.Subscribe()
	defer cancel()

	api.hold = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- v.Send(ctx, "late") }()
	require.Eventually(t, func() bool {
		return v.Snapshot().State == VisitorSending
	}, waitFor, tick)

	v.Close()
	close(api.hold)
	assert.ErrorIs(t, <-done, ErrClientClosed)
	assert.Empty(t, v.Snapshot().Messages)

	// Close ends the subscription.
	for range updates {
	}
	assert.ErrorIs(t, v.Open(ctx), ErrClientClosed)
}
