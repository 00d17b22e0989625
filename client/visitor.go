package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cr4all/supportservices/models"
)

type VisitorState string

const (
	VisitorLoading VisitorState = "loading"
	VisitorReady   VisitorState = "ready"
	VisitorSending VisitorState = "sending"
	VisitorError   VisitorState = "error"
	// VisitorClosed is terminal: the operator ended the session.
	VisitorClosed VisitorState = "closed"
)

const (
	DefaultVisitorPollInterval = 2500 * time.Millisecond

	msgLoadFailed  = "Could not load chat."
	msgStartFailed = "Could not start chat."
	msgSendFailed  = "Failed to send."
)

// ErrClientClosed is returned by operations on a client after Close.
var ErrClientClosed = errors.New("chat: client closed")

// VisitorSnapshot is the visitor chat as a UI would render it.
type VisitorSnapshot struct {
	State         VisitorState
	VisitorID     string
	SessionID     string
	SessionStatus models.SessionStatus
	Messages      []models.ChatMessage
	// Error is the load error in VisitorError, or the last failed send
	// otherwise.
	Error             string
	ShowContactPrompt bool
}

type VisitorOptions struct {
	Store        VisitorIDStore
	PollInterval time.Duration
}

// Visitor drives one visitor's chat: it resolves or starts a session,
// polls its messages and sends new ones.
type Visitor struct {
	api      ChatAPI
	store    VisitorIDStore
	interval time.Duration
	feed     *feed[VisitorSnapshot]

	mu      sync.Mutex
	snap    VisitorSnapshot
	gen     uint64 // bumped by Close; results from older generations are dropped
	opening bool
	closed  bool
	cancel  context.CancelFunc

	contactShown bool
	contactSent  bool
}

func NewVisitor(api ChatAPI, opts VisitorOptions) *Visitor {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultVisitorPollInterval
	}
	return &Visitor{
		api:      api,
		store:    opts.Store,
		interval: interval,
		feed:     newFeed[VisitorSnapshot](),
		snap:     VisitorSnapshot{State: VisitorLoading},
	}
}

func (v *Visitor) Snapshot() VisitorSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *Visitor) snapshotLocked() VisitorSnapshot {
	s := v.snap
	s.Messages = copyMessages(v.snap.Messages)
	return s
}

// Subscribe delivers a snapshot after every change until the returned
// cancel func is called or the visitor is closed.
func (v *Visitor) Subscribe() (<-chan VisitorSnapshot, func()) {
	return v.feed.subscribe()
}

func (v *Visitor) notifyLocked() {
	v.feed.publish(v.snapshotLocked())
}

// Open resolves the visitor's active session, creating one if there is
// none, loads its messages and starts polling. It only runs from the
// initial state; use Retry after a failure.
func (v *Visitor) Open(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClientClosed
	}
	if v.opening || v.snap.SessionID != "" {
		v.mu.Unlock()
		return nil
	}
	v.opening = true
	gen := v.gen
	v.snap.State = VisitorLoading
	v.snap.Error = ""
	v.notifyLocked()
	v.mu.Unlock()

	visitorID := LoadOrCreateVisitorID(v.store)
	session, loadErr := v.resolve(ctx, visitorID)

	var messages []models.ChatMessage
	if loadErr == nil {
		// A failed first fetch leaves the list empty until the next poll.
		messages, _ = v.api.ListMessages(ctx, session.ID)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.opening = false
	if gen != v.gen {
		return ErrClientClosed
	}
	v.snap.VisitorID = visitorID
	if loadErr != nil {
		v.snap.State = VisitorError
		v.snap.Error = loadErr.msg
		v.notifyLocked()
		return loadErr.err
	}

	v.snap.SessionID = session.ID
	v.snap.SessionStatus = session.Status
	v.snap.Messages = messages
	if !session.IsActive() {
		v.snap.State = VisitorClosed
		v.notifyLocked()
		return nil
	}
	v.snap.State = VisitorReady
	v.notifyLocked()

	pollCtx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	go v.poll(pollCtx, gen, session.ID)
	if hasUnread(messages, models.SenderAdmin) {
		v.markAdminMessagesRead(session.ID)
	}
	return nil
}

type loadError struct {
	err error
	msg string
}

func (v *Visitor) resolve(ctx context.Context, visitorID string) (*models.ChatSession, *loadError) {
	summary, err := v.api.FindActiveSession(ctx, visitorID)
	if err == nil {
		return &summary.ChatSession, nil
	}
	if !IsNotFound(err) {
		return nil, &loadError{err: err, msg: msgLoadFailed}
	}
	session, err := v.api.CreateSession(ctx, visitorID)
	if err != nil {
		return nil, &loadError{err: err, msg: msgStartFailed}
	}
	return session, nil
}

// Retry re-runs Open after it failed.
func (v *Visitor) Retry(ctx context.Context) error {
	v.mu.Lock()
	failed := v.snap.State == VisitorError
	v.mu.Unlock()
	if !failed {
		return nil
	}
	return v.Open(ctx)
}

func (v *Visitor) poll(ctx context.Context, gen uint64, sessionID string) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !v.refresh(ctx, gen, sessionID) {
				return
			}
		}
	}
}

// refresh replaces the message list and session status with the
// server's. Failures are ignored until the next tick. It reports whether
// polling should go on.
func (v *Visitor) refresh(ctx context.Context, gen uint64, sessionID string) bool {
	messages, msgErr := v.api.ListMessages(ctx, sessionID)
	session, sessErr := v.api.GetSession(ctx, sessionID)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return false
	}
	if msgErr == nil {
		v.snap.Messages = messages
	}
	active := true
	if sessErr == nil {
		v.snap.SessionStatus = session.Status
		if !session.IsActive() {
			v.closeSessionLocked()
			active = false
		}
	}
	v.notifyLocked()

	if active && msgErr == nil && hasUnread(messages, models.SenderAdmin) {
		v.markAdminMessagesRead(sessionID)
	}
	return active
}

// closeSessionLocked moves to the terminal closed state and stops polling.
func (v *Visitor) closeSessionLocked() {
	v.snap.State = VisitorClosed
	v.snap.ShowContactPrompt = false
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}

func (v *Visitor) markAdminMessagesRead(sessionID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = v.api.UpdateSession(ctx, sessionID, UpdateRequest{MarkAdminMessagesRead: true})
	}()
}

// Send posts text as a visitor message. Blank text, or a send while not
// ready, is ignored. The caller clears its input before calling; a
// failed send is reported in the snapshot and the text is not kept.
func (v *Visitor) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	v.mu.Lock()
	if text == "" || v.snap.State != VisitorReady {
		v.mu.Unlock()
		return nil
	}
	gen := v.gen
	sessionID := v.snap.SessionID
	firstMessage := len(v.snap.Messages) == 0
	v.snap.State = VisitorSending
	v.snap.Error = ""
	v.notifyLocked()
	v.mu.Unlock()

	message, err := v.api.SendMessage(ctx, sessionID, models.SenderVisitor, text)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return ErrClientClosed
	}
	switch {
	case err != nil && IsSessionClosed(err):
		v.snap.SessionStatus = models.SessionClosed
		v.closeSessionLocked()
	case err != nil:
		v.snap.Error = displayMessage(err, msgSendFailed)
		if v.snap.State == VisitorSending {
			v.snap.State = VisitorReady
		}
	default:
		v.snap.Messages = appendUnique(v.snap.Messages, *message)
		if firstMessage && !v.contactShown {
			v.contactShown = true
			v.snap.ShowContactPrompt = true
		}
		if v.snap.State == VisitorSending {
			v.snap.State = VisitorReady
		}
	}
	v.notifyLocked()
	return err
}

// SubmitContact stores whichever of name and email are non-blank on the
// session, at most once per client, and hides the prompt. It does not
// wait for the update.
func (v *Visitor) SubmitContact(name, email string) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.snap.ShowContactPrompt = false
	v.notifyLocked()
	if v.closed || v.contactSent || v.snap.SessionID == "" || (name == "" && email == "") {
		return
	}
	v.contactSent = true

	req := UpdateRequest{}
	if name != "" {
		req.Name = &name
	}
	if email != "" {
		req.Email = &email
	}
	sessionID := v.snap.SessionID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = v.api.UpdateSession(ctx, sessionID, req)
	}()
}

func (v *Visitor) SkipContact() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.snap.ShowContactPrompt {
		v.snap.ShowContactPrompt = false
		v.notifyLocked()
	}
}

// Close stops polling. Requests still in flight finish but their
// results are dropped.
func (v *Visitor) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.gen++
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.mu.Unlock()
	v.feed.close()
}
