package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"
)

type httpsServer struct {
	server    *http.Server
	tlsConfig *tls.Config
	port      string
}

func NewHTTPSServer(port string, handler http.Handler, tlsConfig *tls.Config) Transport {
	return &httpsServer{
		server:    newServer(handler, "https"),
		tlsConfig: tlsConfig,
		port:      port,
	}
}

func (ht *httpsServer) Listen() (net.Listener, error) {
	return tls.Listen("tcp", ":"+ht.port, ht.tlsConfig)
}

func (ht *httpsServer) Serve(listener net.Listener) error {
	log.Info().Str("port", ht.port).Msg("HTTPS server is starting")
	return serve(ht.server, listener)
}

func (ht *httpsServer) Shutdown(ctx context.Context) error {
	return ht.server.Shutdown(ctx)
}
