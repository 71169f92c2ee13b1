package watch

import (
	"fmt"
	"sort"
	"strings"

	"file_manager/types"

	"github.com/charmbracelet/lipgloss"
)

const (
	headerHeight = 3
	footerHeight = 2
)

func (m *model) View() string {
	if m.quitting {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ColorPrimary))

	statusStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorSecondary))
	if !m.connected {
		statusStyle = statusStyle.Foreground(lipgloss.Color(ColorError))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("file-manager events"))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(m.status()))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)).Render(m.summary()))
	b.WriteString("\n")

	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(strings.Join(m.lines, "\n"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keymap))
	return b.String()
}

func (m *model) status() string {
	if m.connected {
		mode := "following"
		if !m.following {
			mode = "paused"
		}
		return fmt.Sprintf("● connected to %s (%s)", m.addr, mode)
	}
	if m.err != nil {
		return fmt.Sprintf("○ disconnected from %s: %v", m.addr, m.err)
	}
	return fmt.Sprintf("○ disconnected from %s", m.addr)
}

func (m *model) summary() string {
	if len(m.counts) == 0 {
		return "waiting for events"
	}
	names := make([]string, 0, len(m.counts))
	for name := range m.counts {
		names = append(names, string(name))
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %d", name, m.counts[types.EventName(name)]))
	}
	return strings.Join(parts, "  ")
}
