package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cr4all/supportservices/models"
)

type SendStatus string

const (
	SendIdle    SendStatus = "idle"
	SendSending SendStatus = "sending"
	SendError   SendStatus = "error"
)

const (
	DefaultInboxPollInterval  = 4 * time.Second
	DefaultThreadPollInterval = 2500 * time.Millisecond

	msgReplyFailed = "Failed to send reply."
	msgCloseFailed = "Failed to close session."
)

// AdminSnapshot is the operator dashboard as a UI would render it.
type AdminSnapshot struct {
	// Loading is true until the first inbox fetch has finished.
	Loading    bool
	Sessions   []models.SessionSummary
	SelectedID string
	Messages   []models.ChatMessage
	SendStatus SendStatus
	// Error stays set until the next send, a selection change or
	// DismissError.
	Error string
}

// Selected returns the inbox row of the selected session, if any.
func (s AdminSnapshot) Selected() (models.SessionSummary, bool) {
	for _, session := range s.Sessions {
		if session.ID == s.SelectedID && s.SelectedID != "" {
			return session, true
		}
	}
	return models.SessionSummary{}, false
}

// ActiveCount is the number of inbox sessions still active.
func (s AdminSnapshot) ActiveCount() int {
	n := 0
	for _, session := range s.Sessions {
		if session.IsActive() {
			n++
		}
	}
	return n
}

type AdminOptions struct {
	InboxInterval  time.Duration
	ThreadInterval time.Duration
}

// Admin drives the operator side: an inbox polled while mounted and an
// optional selected thread polled while selected.
type Admin struct {
	api            ChatAPI
	inboxInterval  time.Duration
	threadInterval time.Duration

	mu           sync.Mutex
	feed         *feed[AdminSnapshot] // replaced on a Mount after Unmount
	snap         AdminSnapshot
	mounted      bool
	inboxGen     uint64
	threadGen    uint64
	inboxCancel  context.CancelFunc
	threadCancel context.CancelFunc
}

func NewAdmin(api ChatAPI, opts AdminOptions) *Admin {
	a := &Admin{
		api:            api,
		inboxInterval:  opts.InboxInterval,
		threadInterval: opts.ThreadInterval,
		feed:           newFeed[AdminSnapshot](),
		snap:           AdminSnapshot{Loading: true, SendStatus: SendIdle},
	}
	if a.inboxInterval <= 0 {
		a.inboxInterval = DefaultInboxPollInterval
	}
	if a.threadInterval <= 0 {
		a.threadInterval = DefaultThreadPollInterval
	}
	return a
}

func (a *Admin) Snapshot() AdminSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Admin) snapshotLocked() AdminSnapshot {
	s := a.snap
	s.Sessions = append([]models.SessionSummary(nil), a.snap.Sessions...)
	s.Messages = copyMessages(a.snap.Messages)
	return s
}

// Subscribe delivers a snapshot after every change until the returned
// cancel func is called or the dashboard is unmounted. Subscribe again
// after a new Mount.
func (a *Admin) Subscribe() (<-chan AdminSnapshot, func()) {
	a.mu.Lock()
	f := a.feed
	a.mu.Unlock()
	return f.subscribe()
}

func (a *Admin) notifyLocked() {
	a.feed.publish(a.snapshotLocked())
}

// ActiveCount is the number of inbox sessions still active.
func (a *Admin) ActiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.ActiveCount()
}

// Mount fetches the inbox now and then on every inbox interval until
// Unmount.
func (a *Admin) Mount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mounted {
		return
	}
	a.mounted = true
	if a.feed.isClosed() {
		a.feed = newFeed[AdminSnapshot]()
		a.snap.Loading = true
	}
	a.inboxGen++
	ctx, cancel := context.WithCancel(context.Background())
	a.inboxCancel = cancel
	go a.pollInbox(ctx, a.inboxGen)
}

// Unmount stops both polls and the selected thread.
func (a *Admin) Unmount() {
	a.mu.Lock()
	if !a.mounted {
		a.mu.Unlock()
		return
	}
	a.mounted = false
	a.inboxGen++
	if a.inboxCancel != nil {
		a.inboxCancel()
		a.inboxCancel = nil
	}
	a.deselectLocked()
	f := a.feed
	a.mu.Unlock()
	f.close()
}

func (a *Admin) pollInbox(ctx context.Context, gen uint64) {
	a.fetchInbox(ctx, gen)
	ticker := time.NewTicker(a.inboxInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.fetchInbox(ctx, gen)
		}
	}
}

func (a *Admin) fetchInbox(ctx context.Context, gen uint64) {
	sessions, err := a.api.ListSessions(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.inboxGen {
		return
	}
	a.snap.Loading = false
	if err == nil {
		a.snap.Sessions = sessions
	}
	a.notifyLocked()
}

// Select opens the thread of a session: its visitor messages are marked
// read without waiting, and its messages are polled until another
// selection, Deselect or Unmount.
func (a *Admin) Select(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.mounted || id == "" || id == a.snap.SelectedID {
		return
	}
	a.deselectLocked()
	a.snap.SelectedID = id
	a.threadGen++
	ctx, cancel := context.WithCancel(context.Background())
	a.threadCancel = cancel
	a.notifyLocked()

	go func() {
		markCtx, markCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer markCancel()
		_, _ = a.api.UpdateSession(markCtx, id, UpdateRequest{MarkRead: true})
	}()
	go a.pollThread(ctx, a.threadGen, id)
}

func (a *Admin) Deselect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snap.SelectedID == "" {
		return
	}
	a.deselectLocked()
	a.notifyLocked()
}

func (a *Admin) deselectLocked() {
	a.threadGen++
	if a.threadCancel != nil {
		a.threadCancel()
		a.threadCancel = nil
	}
	a.snap.SelectedID = ""
	a.snap.Messages = nil
	a.snap.SendStatus = SendIdle
	a.snap.Error = ""
}

func (a *Admin) pollThread(ctx context.Context, gen uint64, id string) {
	a.fetchThread(ctx, gen, id)
	ticker := time.NewTicker(a.threadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.fetchThread(ctx, gen, id)
		}
	}
}

func (a *Admin) fetchThread(ctx context.Context, gen uint64, id string) {
	messages, err := a.api.ListMessages(ctx, id)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.threadGen {
		return
	}
	a.snap.Messages = messages
	a.notifyLocked()
}

// SendReply posts text to the selected session as the operator. Blank
// text, no selection or a send already in flight is ignored.
func (a *Admin) SendReply(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	a.mu.Lock()
	if text == "" || a.snap.SelectedID == "" || a.snap.SendStatus == SendSending {
		a.mu.Unlock()
		return nil
	}
	gen := a.threadGen
	id := a.snap.SelectedID
	a.snap.SendStatus = SendSending
	a.snap.Error = ""
	a.notifyLocked()
	a.mu.Unlock()

	message, err := a.api.SendMessage(ctx, id, models.SenderAdmin, text)

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.threadGen {
		return err
	}
	if err != nil {
		a.snap.SendStatus = SendError
		a.snap.Error = displayMessage(err, msgReplyFailed)
	} else {
		a.snap.SendStatus = SendIdle
		a.snap.Messages = appendUnique(a.snap.Messages, *message)
	}
	a.notifyLocked()
	return err
}

// CloseSession closes the selected session, patches its inbox row and
// deselects it.
func (a *Admin) CloseSession(ctx context.Context) error {
	a.mu.Lock()
	id := a.snap.SelectedID
	gen := a.threadGen
	a.mu.Unlock()
	if id == "" {
		return nil
	}

	closed := models.SessionClosed
	session, err := a.api.UpdateSession(ctx, id, UpdateRequest{Status: &closed})

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		if gen == a.threadGen {
			a.snap.SendStatus = SendError
			a.snap.Error = displayMessage(err, msgCloseFailed)
			a.notifyLocked()
		}
		return err
	}
	for i := range a.snap.Sessions {
		if a.snap.Sessions[i].ID == id {
			a.snap.Sessions[i].ChatSession = *session
		}
	}
	if a.snap.SelectedID == id {
		a.deselectLocked()
	}
	a.notifyLocked()
	return nil
}

func (a *Admin) DismissError() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snap.SendStatus != SendError {
		return
	}
	a.snap.SendStatus = SendIdle
	a.snap.Error = ""
	a.notifyLocked()
}
