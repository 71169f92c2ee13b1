package transport

import (
	"context"
	"errors"
	stdlog "log"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const readHeaderTimeout = 10 * time.Second

type httpServer struct {
	server *http.Server
	port   string
}

func NewHTTPServer(port string, handler http.Handler) Transport {
	return &httpServer{
		server: newServer(handler, "http"),
		port:   port,
	}
}

func newServer(handler http.Handler, component string) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          stdlog.New(log.Logger.With().Str("component", component).Logger(), "", 0),
	}
}

func (ht *httpServer) Listen() (net.Listener, error) {
	return net.Listen("tcp", ":"+ht.port)
}

// Serve blocks until the listener fails or Shutdown is called, in which case
// it returns net.ErrClosed.
func (ht *httpServer) Serve(listener net.Listener) error {
	log.Info().Str("port", ht.port).Msg("HTTP server is starting")
	return serve(ht.server, listener)
}

func (ht *httpServer) Shutdown(ctx context.Context) error {
	return ht.server.Shutdown(ctx)
}

func serve(server *http.Server, listener net.Listener) error {
	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return net.ErrClosed
	}
	return err
}
