package watch

import (
	"fmt"
	"net/url"
	"strings"

	"file_manager/internal/events"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/net/websocket"
)

type eventMsg events.Event

type disconnectedMsg struct {
	err error
}

// EventURL turns a server address such as "localhost:3000" or
// "https://files.example.com" into the URL of its event stream.
func EventURL(addr string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", addr)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func Dial(eventURL string) (*websocket.Conn, error) {
	origin := strings.Replace(eventURL, "ws", "http", 1)
	return websocket.Dial(eventURL, "", origin)
}

// listen reads the next event from conn. The model issues it again after
// every event so exactly one read is pending at a time.
func listen(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			return disconnectedMsg{err: err}
		}
		var ev events.Event
		if err := ev.UnmarshalJSON(raw); err != nil {
			return eventMsg(events.New("unparsed", map[string]any{"raw": string(raw)}))
		}
		return eventMsg(ev)
	}
}
