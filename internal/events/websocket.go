package events

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/websocket"
)

const writeTimeout = 10 * time.Second

type wsSubscriber struct {
	id   string
	conn *websocket.Conn
}

func (w *wsSubscriber) ID() string { return w.id }

func (w *wsSubscriber) Send(msg []byte) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return websocket.Message.Send(w.conn, string(msg))
}

func (w *wsSubscriber) Close() error { return w.conn.Close() }

// Handler upgrades the request and streams every published event as a text
// frame until the client goes away. Incoming frames are read and discarded.
func (h *Hub) Handler() http.Handler {
	return websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			id, err := h.NewID("ws")
			if err != nil {
				log.Error().Err(err).Msg("generate subscriber id")
				_ = conn.Close()
				return
			}

			if err = h.Subscribe(&wsSubscriber{id: id, conn: conn}); err != nil {
				log.Debug().Err(err).Msg("websocket subscription refused")
				_ = conn.Close()
				return
			}
			defer h.Unsubscribe(id)

			var discard []byte
			for {
				if err = websocket.Message.Receive(conn, &discard); err != nil {
					return
				}
			}
		},
	}
}
