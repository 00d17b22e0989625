package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cr4all/supportservices/client"
	"github.com/cr4all/supportservices/models"
)

type visitorSnapshotMsg client.VisitorSnapshot

func waitVisitor(ch <-chan client.VisitorSnapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return visitorSnapshotMsg(snap)
	}
}

// VisitorModel is the visitor chat window.
type VisitorModel struct {
	visitor *client.Visitor
	updates <-chan client.VisitorSnapshot
	cancel  func()
	snap    client.VisitorSnapshot

	input        textinput.Model
	nameInput    textinput.Model
	emailInput   textinput.Model
	contactField int
	viewport     viewport.Model
	ready        bool
	width        int
	height       int
}

func NewVisitorModel(v *client.Visitor) VisitorModel {
	updates, cancel := v.Subscribe()

	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 2000
	ti.Width = 60
	ti.Focus()

	name := textinput.New()
	name.Placeholder = "Name"
	name.CharLimit = 120
	name.Width = 40

	email := textinput.New()
	email.Placeholder = "Email"
	email.CharLimit = 254
	email.Width = 40

	return VisitorModel{
		visitor:    v,
		updates:    updates,
		cancel:     cancel,
		snap:       v.Snapshot(),
		input:      ti,
		nameInput:  name,
		emailInput: email,
		viewport:   viewport.New(60, 15),
	}
}

func (m VisitorModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		waitVisitor(m.updates),
		runAction(m.visitor.Open),
	)
}

func (m VisitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = contentWidth(msg.Width)
		m.viewport.Height = max(msg.Height-10, 3)
		m.input.Width = contentWidth(msg.Width) - 2
		m.ready = true
		m.refreshThread()
		return m, nil

	case visitorSnapshotMsg:
		prompted := m.snap.ShowContactPrompt
		m.snap = client.VisitorSnapshot(msg)
		if m.snap.ShowContactPrompt && !prompted {
			m.contactField = 0
			m.input.Blur()
			m.nameInput.Focus()
		}
		if !m.snap.ShowContactPrompt && prompted {
			m.nameInput.Blur()
			m.emailInput.Blur()
			m.input.Focus()
		}
		m.refreshThread()
		return m, waitVisitor(m.updates)

	case feedClosedMsg, actionDoneMsg:
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.shutdown()
			return m, tea.Quit
		}
		if m.snap.ShowContactPrompt {
			return m.updateContact(msg)
		}
		return m.updateChat(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m VisitorModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.snap.State {
	case client.VisitorError:
		switch msg.String() {
		case "r":
			return m, runAction(m.visitor.Retry)
		case "q", "esc":
			m.shutdown()
			return m, tea.Quit
		}
		return m, nil
	case client.VisitorClosed:
		switch msg.String() {
		case "q", "esc", "enter":
			m.shutdown()
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	switch msg.Type {
	case tea.KeyEsc:
		m.shutdown()
		return m, tea.Quit
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.snap.State != client.VisitorReady {
			return m, nil
		}
		m.input.Reset()
		return m, runAction(func(ctx context.Context) error {
			return m.visitor.Send(ctx, text)
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

func (m VisitorModel) updateContact(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.visitor.SkipContact()
		return m, nil
	case tea.KeyTab, tea.KeyShiftTab:
		m.toggleContactField()
		return m, nil
	case tea.KeyEnter:
		if m.contactField == 0 {
			m.toggleContactField()
			return m, nil
		}
		m.visitor.SubmitContact(m.nameInput.Value(), m.emailInput.Value())
		return m, nil
	}

	var cmd tea.Cmd
	if m.contactField == 0 {
		m.nameInput, cmd = m.nameInput.Update(msg)
	} else {
		m.emailInput, cmd = m.emailInput.Update(msg)
	}
	return m, cmd
}

func (m *VisitorModel) toggleContactField() {
	if m.contactField == 0 {
		m.contactField = 1
		m.nameInput.Blur()
		m.emailInput.Focus()
		return
	}
	m.contactField = 0
	m.emailInput.Blur()
	m.nameInput.Focus()
}

func (m *VisitorModel) refreshThread() {
	m.viewport.SetContent(renderMessages(m.snap.Messages, models.SenderVisitor, "Support"))
	m.viewport.GotoBottom()
}

func (m *VisitorModel) shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.visitor.Close()
}

func (m VisitorModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Chat with us"))
	b.WriteString("\n\n")

	switch m.snap.State {
	case client.VisitorLoading:
		b.WriteString(infoStyle.Render("Connecting..."))
		b.WriteString("\n")
		return b.String()
	case client.VisitorError:
		b.WriteString(errorStyle.Render(m.snap.Error))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("r retry • q quit"))
		return b.String()
	}

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.snap.State == client.VisitorClosed {
		b.WriteString(boxStyle.Render("This chat has ended. Thanks for reaching out."))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	if m.snap.ShowContactPrompt {
		prompt := strings.Join([]string{
			"Leave your details so we can follow up:",
			m.nameInput.View(),
			m.emailInput.View(),
		}, "\n")
		b.WriteString(boxStyle.Render(prompt))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab switch • enter save • esc skip"))
		return b.String()
	}

	if m.snap.Error != "" {
		b.WriteString(errorStyle.Render(m.snap.Error))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	if m.snap.State == client.VisitorSending {
		b.WriteString(" " + infoStyle.Render("sending..."))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter send • pgup/pgdown scroll • esc quit"))
	return b.String()
}
