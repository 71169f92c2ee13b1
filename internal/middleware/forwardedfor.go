package middleware

import (
	"net"
)

type ForwardedFor struct{}

func NewForwardedFor() *ForwardedFor {
	return &ForwardedFor{}
}

// HandleRequest records the peer address when no proxy in front of us has
// already done so.
func (ff *ForwardedFor) HandleRequest(remoteAddr string, header Header) error {
	if header.Get("X-Forwarded-For") != "" {
		return nil
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return err
	}
	header.Set("X-Forwarded-For", host)
	return nil
}
