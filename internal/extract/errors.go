package extract

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedFraming    = errors.New("malformed multipart framing")
	ErrNoFilePartFound     = errors.New("no file part found")
	ErrSinkFailure         = errors.New("sink failure")
	ErrSourceFailure       = errors.New("source failure")
	ErrHeaderTooLarge      = fmt.Errorf("%w: part header too large", ErrMalformedFraming)
	ErrUnterminatedPayload = errors.New("payload ended without closing delimiter")
	ErrNilSink             = errors.New("nil sink")
)
