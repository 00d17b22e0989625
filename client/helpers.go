package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cr4all/supportservices/models"
)

// SessionLabel names a session for the inbox: name, else email, else
// visitor id, else the tail of the session id.
func SessionLabel(s models.ChatSession) string {
	switch {
	case s.Name != nil && *s.Name != "":
		return *s.Name
	case s.Email != nil && *s.Email != "":
		return *s.Email
	case s.VisitorID != nil && *s.VisitorID != "":
		return *s.VisitorID
	}
	id := s.ID
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return "Session " + id
}

// Initials is the two-letter avatar text for a session.
func Initials(s models.ChatSession) string {
	if s.Email != nil && strings.Contains(*s.Email, "@") {
		return upperPrefix(*s.Email, 2)
	}
	if s.Name != nil && len([]rune(*s.Name)) >= 2 {
		return upperPrefix(*s.Name, 2)
	}
	if label := SessionLabel(s); len([]rune(label)) >= 2 {
		return upperPrefix(label, 2)
	}
	return "?"
}

func upperPrefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return strings.ToUpper(string(r))
}

// RelativeTime renders t relative to now the way the inbox shows last
// activity.
func RelativeTime(t *time.Time, now time.Time) string {
	if t == nil {
		return "—"
	}
	diff := now.Sub(*t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff/(24*time.Hour)))
	}
	return t.Local().Format("Jan 2")
}

// BadgeText renders an unread count, or "" when there is nothing unread.
func BadgeText(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 99:
		return "99+"
	}
	return strconv.Itoa(n)
}

// UnreadBadge returns how many operator replies the stored visitor has
// not read yet. Every failure, including no stored id, counts as zero.
func UnreadBadge(ctx context.Context, api ChatAPI, store VisitorIDStore) int {
	if store == nil {
		return 0
	}
	visitorID, err := store.Load()
	if err != nil || visitorID == "" {
		return 0
	}
	summary, err := api.FindActiveSession(ctx, visitorID)
	if err != nil {
		return 0
	}
	return summary.UnreadCount
}

func appendUnique(messages []models.ChatMessage, m models.ChatMessage) []models.ChatMessage {
	for _, existing := range messages {
		if existing.ID == m.ID {
			return messages
		}
	}
	return append(messages, m)
}

func hasUnread(messages []models.ChatMessage, sender models.MessageSender) bool {
	for _, m := range messages {
		if m.Sender == sender && !m.Read {
			return true
		}
	}
	return false
}

func copyMessages(messages []models.ChatMessage) []models.ChatMessage {
	if messages == nil {
		return nil
	}
	out := make([]models.ChatMessage, len(messages))
	copy(out, messages)
	return out
}
