// Package tui is the terminal presentation layer. It consumes the session
// manager's message/state stream and drives Send, Connect, and Close; it
// never touches sockets or frame reassembly itself.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/crisismesh/meshchat/internal/session"
	"github.com/crisismesh/meshchat/pkg/protocol"
)

// refreshMsg signals that the session produced a new message or state
// transition and the transcript should be rebuilt.
type refreshMsg struct{}

// Model is the bubbletea model for the chat screen.
type Model struct {
	sess      *session.Session
	relayAddr string

	input    textinput.Model
	viewport viewport.Model
	styles   Styles

	events chan struct{}
	state  session.State
	notice string
	ready  bool
}

// New builds the chat model and subscribes it to the session. The
// subscription only nudges a channel; transcript content is always
// rebuilt from the session's log so a dropped nudge never loses text.
func New(sess *session.Session, relayAddr string) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Focus()
	input.CharLimit = 512

	events := make(chan struct{}, 64)
	nudge := func() {
		select {
		case events <- struct{}{}:
		default:
		}
	}
	sess.OnMessage(func(protocol.Message) { nudge() })
	sess.OnStateChange(func(session.State) { nudge() })

	return Model{
		sess:      sess,
		relayAddr: relayAddr,
		input:     input,
		styles:    DefaultStyles(),
		events:    events,
		state:     sess.State(),
	}
}

func waitEvent(events chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-events
		return refreshMsg{}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitEvent(m.events))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			// Teardown order matters: main stops the reconnect policy
			// before closing the session, so quitting only quits.
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit()
			return m, nil
		}

	case tea.WindowSizeMsg:
		inputHeight := 1
		chromeHeight := 3 // title + status + input separator
		m.viewport = viewport.New(msg.Width, msg.Height-inputHeight-chromeHeight)
		m.input.Width = msg.Width - 4
		m.ready = true
		m.refresh()
		return m, nil

	case refreshMsg:
		m.state = m.sess.State()
		m.refresh()
		return m, waitEvent(m.events)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the composed text and surfaces send errors as a notice
// instead of leaving them invisible.
func (m *Model) submit() {
	text := m.input.Value()
	switch err := m.sess.Send(text); err {
	case nil:
		m.input.Reset()
		m.notice = ""
	case session.ErrEmptyMessage:
		m.notice = "nothing to send"
	case session.ErrNotConnected:
		m.notice = "not connected — message not sent"
	case protocol.ErrEmbeddedNewline:
		m.notice = "messages cannot contain line breaks"
	default:
		m.notice = "send failed: " + err.Error()
	}
	m.refresh()
}

// refresh rebuilds the transcript from the message log.
func (m *Model) refresh() {
	if !m.ready {
		return
	}

	var b strings.Builder
	for _, msg := range m.sess.Log().All() {
		b.WriteString(m.styles.RenderMessage(msg))
		b.WriteByte('\n')
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}
