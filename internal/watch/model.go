// Package watch renders the event stream of a file manager server in the
// terminal.
package watch

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"file_manager/internal/events"
	"file_manager/types"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/net/websocket"
)

const (
	ColorPrimary   = "#7D56F4"
	ColorSecondary = "#04B575"
	ColorGray      = "#888888"
	ColorError     = "#FF0000"
	ColorWarning   = "#FFA500"
)

const maxLines = 500

type keymap struct {
	quit   key.Binding
	clear  key.Binding
	follow key.Binding
	up     key.Binding
	down   key.Binding
}

func (k keymap) ShortHelp() []key.Binding {
	return []key.Binding{k.up, k.down, k.follow, k.clear, k.quit}
}

func (k keymap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newKeymap() keymap {
	return keymap{
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear"),
		),
		follow: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "follow"),
		),
		up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
	}
}

type model struct {
	addr      string
	conn      *websocket.Conn
	keymap    keymap
	help      help.Model
	viewport  viewport.Model
	lines     []string
	counts    map[types.EventName]int
	following bool
	connected bool
	err       error
	quitting  bool
	ready     bool
	width     int
	height    int
}

func newModel(addr string, conn *websocket.Conn) *model {
	return &model{
		addr:      addr,
		conn:      conn,
		keymap:    newKeymap(),
		help:      help.New(),
		counts:    make(map[types.EventName]int),
		following: true,
		connected: conn != nil,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.next(), tea.WindowSize())
}

func (m *model) next() tea.Cmd {
	if m.conn == nil || !m.connected {
		return nil
	}
	return listen(m.conn)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		height := msg.Height - headerHeight - footerHeight
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refresh()
		return m, nil

	case eventMsg:
		m.record(events.Event(msg))
		return m, m.next()

	case disconnectedMsg:
		m.connected = false
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.quit):
			m.quitting = true
			if m.conn != nil {
				_ = m.conn.Close()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keymap.clear):
			m.lines = nil
			m.counts = make(map[types.EventName]int)
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keymap.follow):
			m.following = !m.following
			if m.following && m.ready {
				m.viewport.GotoBottom()
			}
			return m, nil
		}
	}

	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) record(ev events.Event) {
	m.counts[ev.Name]++
	m.lines = append(m.lines, formatEvent(ev))
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.refresh()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if m.following {
		m.viewport.GotoBottom()
	}
}

func formatEvent(ev events.Event) string {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	name := lipgloss.NewStyle().
		Foreground(lipgloss.Color(eventColor(ev.Name))).
		Bold(true).
		Width(16).
		Render(string(ev.Name))

	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray))
	return fmt.Sprintf("%s %s %s", timeStyle.Render(ts.Format("15:04:05")), name, describe(ev))
}

func eventColor(name types.EventName) string {
	switch name {
	case types.FileUploaded:
		return ColorSecondary
	case types.FileDeleted, types.UploadFailed:
		return ColorError
	case types.FileRenamed:
		return ColorWarning
	default:
		return ColorPrimary
	}
}

func describe(ev events.Event) string {
	str := func(k string) string {
		v, _ := ev.Data[k].(string)
		return v
	}

	switch ev.Name {
	case types.FileUploaded:
		if n, ok := ev.Data["bytes_written"].(float64); ok {
			return fmt.Sprintf("%s (%d bytes)", str("filename"), int64(n))
		}
		return str("filename")
	case types.FileRenamed:
		return fmt.Sprintf("%s → %s", str("oldName"), str("newName"))
	case types.FileCompressed, types.FileEncrypted:
		if orig := str("original"); orig != "" {
			return fmt.Sprintf("%s → %s", orig, str("filename"))
		}
		return str("filename")
	case types.UploadFailed:
		return fmt.Sprintf("%s: %s", str("filename"), str("error"))
	}

	if f := str("filename"); f != "" {
		return f
	}
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ev.Data[k]))
	}
	return strings.Join(parts, " ")
}

// Run connects to addr and blocks until the user quits.
func Run(addr string, output io.Writer, opts ...tea.ProgramOption) error {
	eventURL, err := EventURL(addr)
	if err != nil {
		return err
	}
	conn, err := Dial(eventURL)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", eventURL, err)
	}

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithOutput(output)}, opts...)
	_, err = tea.NewProgram(newModel(addr, conn), opts...).Run()
	return err
}
