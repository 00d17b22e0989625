package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cr4all/supportservices/client"
	"github.com/cr4all/supportservices/models"
)

type adminSnapshotMsg client.AdminSnapshot

func waitAdmin(ch <-chan client.AdminSnapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return adminSnapshotMsg(snap)
	}
}

// AdminModel is the operator dashboard: an inbox and, once a session is
// selected, its thread with a reply box.
type AdminModel struct {
	admin   *client.Admin
	updates <-chan client.AdminSnapshot
	cancel  func()
	snap    client.AdminSnapshot
	cursor  int
	now     func() time.Time

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
}

func NewAdminModel(a *client.Admin) AdminModel {
	updates, cancel := a.Subscribe()

	ti := textinput.New()
	ti.Placeholder = "Reply..."
	ti.CharLimit = 2000
	ti.Width = 60

	return AdminModel{
		admin:    a,
		updates:  updates,
		cancel:   cancel,
		snap:     a.Snapshot(),
		now:      time.Now,
		input:    ti,
		viewport: viewport.New(60, 12),
	}
}

func (m AdminModel) Init() tea.Cmd {
	m.admin.Mount()
	return tea.Batch(textinput.Blink, waitAdmin(m.updates))
}

func (m AdminModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = contentWidth(msg.Width)
		m.viewport.Height = max(msg.Height/2-4, 3)
		m.input.Width = contentWidth(msg.Width) - 2
		m.refreshThread()
		return m, nil

	case adminSnapshotMsg:
		selected := m.snap.SelectedID
		m.snap = client.AdminSnapshot(msg)
		if m.cursor >= len(m.snap.Sessions) {
			m.cursor = max(len(m.snap.Sessions)-1, 0)
		}
		switch {
		case m.snap.SelectedID != "" && selected == "":
			m.input.Focus()
		case m.snap.SelectedID == "" && selected != "":
			m.input.Reset()
			m.input.Blur()
		}
		m.refreshThread()
		return m, waitAdmin(m.updates)

	case feedClosedMsg, actionDoneMsg:
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.shutdown()
			return m, tea.Quit
		}
		if m.snap.SelectedID == "" {
			return m.updateInbox(msg)
		}
		return m.updateThread(msg)
	}
	return m, nil
}

func (m AdminModel) updateInbox(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.shutdown()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.snap.Sessions)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(m.snap.Sessions) {
			m.admin.Select(m.snap.Sessions[m.cursor].ID)
		}
	}
	return m, nil
}

func (m AdminModel) updateThread(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.snap.SendStatus == client.SendError {
			m.admin.DismissError()
		} else {
			m.admin.Deselect()
		}
		return m, nil
	case tea.KeyCtrlX:
		return m, runAction(m.admin.CloseSession)
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.snap.SendStatus == client.SendSending {
			return m, nil
		}
		m.input.Reset()
		return m, runAction(func(ctx context.Context) error {
			return m.admin.SendReply(ctx, text)
		})
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *AdminModel) refreshThread() {
	if m.snap.SelectedID == "" {
		return
	}
	m.viewport.SetContent(renderMessages(m.snap.Messages, models.SenderAdmin, "Visitor"))
	m.viewport.GotoBottom()
}

func (m *AdminModel) shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.admin.Unmount()
}

func (m AdminModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Support inbox"))
	b.WriteString("\n\n")

	if m.snap.SelectedID != "" {
		b.WriteString(m.threadView())
	} else {
		b.WriteString(m.inboxView())
	}

	b.WriteString("\n")
	b.WriteString(statusBarStyle.Render(fmt.Sprintf("%d active • %d total", m.snap.ActiveCount(), len(m.snap.Sessions))))
	return b.String()
}

func (m AdminModel) inboxView() string {
	if m.snap.Loading {
		return infoStyle.Render("Loading sessions...") + "\n"
	}
	if len(m.snap.Sessions) == 0 {
		return infoStyle.Render("No conversations yet.") + "\n" + helpStyle.Render("q quit") + "\n"
	}

	now := m.now()
	var b strings.Builder
	for i, s := range m.snap.Sessions {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		status := infoStyle.Render(string(s.Status))
		if s.IsActive() {
			status = activeStyle.Render(string(s.Status))
		}
		line := fmt.Sprintf("%s[%s] %-28s %s  %s", cursor, client.Initials(s.ChatSession), client.SessionLabel(s.ChatSession), status, infoStyle.Render(client.RelativeTime(s.LastMessageAt, now)))
		if badge := client.BadgeText(s.UnreadCount); badge != "" {
			line += " " + badgeStyle.Render(badge)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ move • enter open • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m AdminModel) threadView() string {
	var b strings.Builder
	header := m.snap.SelectedID
	if s, ok := m.snap.Selected(); ok {
		header = client.SessionLabel(s.ChatSession)
		if s.Email != nil && s.Name != nil {
			header += " <" + *s.Email + ">"
		}
		header += " • " + string(s.Status)
	}
	b.WriteString(activeStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(m.viewport.View()))
	b.WriteString("\n")

	if m.snap.Error != "" {
		b.WriteString(errorStyle.Render(m.snap.Error))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	if m.snap.SendStatus == client.SendSending {
		b.WriteString(" " + infoStyle.Render("sending..."))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter reply • ctrl+x close session • esc back"))
	b.WriteString("\n")
	return b.String()
}
