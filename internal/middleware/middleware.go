package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Header is the subset of http.Header middleware needs.
type Header interface {
	Get(key string) string
	Set(key, value string)
	Del(key string)
}

type RequestMiddleware interface {
	HandleRequest(remoteAddr string, header Header) error
}

type ResponseMiddleware interface {
	HandleResponse(header Header, status int) error
}

type Chain struct {
	request  []RequestMiddleware
	response []ResponseMiddleware
}

func NewChain() *Chain {
	return &Chain{}
}

func (c *Chain) UseRequest(m ...RequestMiddleware) *Chain {
	c.request = append(c.request, m...)
	return c
}

func (c *Chain) UseResponse(m ...ResponseMiddleware) *Chain {
	c.response = append(c.response, m...)
	return c
}

// Then wraps next. Request middleware runs before next, response middleware
// runs right before the status line is written, and every request is logged
// once it has been served.
func (c *Chain) Then(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, response: c.response, status: http.StatusOK}

		for _, m := range c.request {
			if err := m.HandleRequest(r.RemoteAddr, r.Header); err != nil {
				log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("request middleware failed")
				http.Error(rw, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				accessLog(r, rw, start)
				return
			}
		}

		next.ServeHTTP(rw, r)
		accessLog(r, rw, start)
	})
}

func accessLog(r *http.Request, rw *responseWriter, start time.Time) {
	log.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rw.status).
		Int64("bytes", rw.written).
		Str("client", r.Header.Get("X-Forwarded-For")).
		Dur("duration", time.Since(start)).
		Msg("request")
}

type responseWriter struct {
	http.ResponseWriter
	response    []ResponseMiddleware
	status      int
	written     int64
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(status int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.status = status
	for _, m := range rw.response {
		if err := m.HandleResponse(rw.Header(), status); err != nil {
			log.Warn().Err(err).Msg("response middleware failed")
		}
	}
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(p)
	rw.written += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack is needed by the websocket upgrade, which asserts http.Hijacker
// directly.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijack not supported by %T", rw.ResponseWriter)
	}
	rw.status = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return h.Hijack()
}
