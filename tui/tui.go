// Package tui renders the visitor and operator chat clients in a terminal using Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cr4all/supportservices/models"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	ownStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	peerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)
)

// actionTimeout bounds every request a key press starts.
const actionTimeout = 15 * time.Second

// feedClosedMsg is sent once a client's snapshot feed has been closed.
type feedClosedMsg struct{}

// actionDoneMsg reports the end of an action. Failures already show up in
// the next snapshot, so the error is only kept for callers that want it.
type actionDoneMsg struct{ err error }

func runAction(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{err: fn(ctx)}
	}
}

// renderMessages lays out a thread; own is the sender shown as "You".
func renderMessages(messages []models.ChatMessage, own models.MessageSender, peer string) string {
	if len(messages) == 0 {
		return infoStyle.Render("No messages yet.")
	}
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		stamp := infoStyle.Render(m.CreatedAt.Local().Format("15:04"))
		if m.Sender == own {
			b.WriteString(fmt.Sprintf("%s %s %s", stamp, ownStyle.Render("You:"), m.Content))
		} else {
			b.WriteString(fmt.Sprintf("%s %s %s", stamp, peerStyle.Render(peer+":"), m.Content))
		}
	}
	return b.String()
}

func contentWidth(width int) int {
	if width <= 4 {
		return 60
	}
	return width - 4
}
