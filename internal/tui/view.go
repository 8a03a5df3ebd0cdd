package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/crisismesh/meshchat/internal/session"
	"github.com/crisismesh/meshchat/pkg/protocol"
)

// Styles holds the lipgloss styles for the chat screen.
type Styles struct {
	Title        lipgloss.Style
	SelfPrefix   lipgloss.Style
	PeerPrefix   lipgloss.Style
	Timestamp    lipgloss.Style
	Notice       lipgloss.Style
	Connected    lipgloss.Style
	Connecting   lipgloss.Style
	Disconnected lipgloss.Style
}

// DefaultStyles returns the standard color scheme.
func DefaultStyles() Styles {
	return Styles{
		Title:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		SelfPrefix:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		PeerPrefix:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
		Timestamp:    lipgloss.NewStyle().Faint(true),
		Notice:       lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		Connected:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Connecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Disconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
}

// RenderMessage renders one transcript line.
func (s Styles) RenderMessage(msg protocol.Message) string {
	stamp := s.Timestamp.Render(msg.Timestamp.Format("15:04:05"))
	prefix := s.PeerPrefix.Render("peer")
	if msg.Origin == protocol.OriginSelf {
		prefix = s.SelfPrefix.Render("you ")
	}
	return fmt.Sprintf("%s %s %s", stamp, prefix, msg.Text)
}

// renderState renders the connection state for the status bar.
func (s Styles) renderState(st session.State) string {
	switch st {
	case session.StateConnected:
		return s.Connected.Render("● connected")
	case session.StateConnecting:
		return s.Connecting.Render("◌ connecting")
	case session.StateClosed:
		return s.Disconnected.Render("○ closed")
	default:
		return s.Disconnected.Render("○ disconnected")
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "starting meshchat..."
	}

	title := m.styles.Title.Render("meshchat") + "  " + m.styles.Timestamp.Render(m.relayAddr)

	status := m.styles.renderState(m.state)
	if m.notice != "" {
		status += "  " + m.styles.Notice.Render(m.notice)
	}

	return fmt.Sprintf("%s\n%s\n> %s\n%s",
		title,
		m.viewport.View(),
		m.input.View(),
		status,
	)
}
