// Package extract pulls the payload of a single file part out of a
// multipart body delivered in chunks of arbitrary size.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/rs/zerolog/log"
)

const DefaultMaxHeaderSize = 64 << 10

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
	dashes   = []byte("--")
)

// Sink is the durable destination of an extracted payload. Open is called at
// most once per session; Delete removes whatever a failed session left behind.
type Sink interface {
	Open(target string) (io.WriteCloser, error)
	Delete(target string) error
}

type Option func(*Session)

// WithCompletion registers the callback that receives the terminal outcome.
// It runs exactly once, after the session lock is released.
func WithCompletion(fn func(Outcome)) Option {
	return func(s *Session) {
		s.onComplete = fn
	}
}

func WithMaxHeaderSize(size int) Option {
	return func(s *Session) {
		if size > 0 {
			s.maxHeaderSize = size
		}
	}
}

// WithStrictTermination makes input that ends before the closing delimiter a
// failure instead of an implicit-end completion.
func WithStrictTermination(strict bool) Option {
	return func(s *Session) {
		s.strict = strict
	}
}

type Session struct {
	mu sync.Mutex

	target    string
	delimiter []byte
	closing   []byte
	sink      Sink
	handle    io.WriteCloser

	pending []byte
	window  []byte
	carry   []byte

	state   State
	inField bool
	opened  bool
	written int64
	part    Part
	outcome Outcome

	maxHeaderSize int
	strict        bool
	onComplete    func(Outcome)
	done          chan struct{}
}

func Begin(target, token string, sink Sink, opts ...Option) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty boundary", ErrMalformedFraming)
	}
	if sink == nil {
		return nil, ErrNilSink
	}

	delimiter := make([]byte, 0, len(dashes)+len(token))
	delimiter = append(delimiter, dashes...)
	delimiter = append(delimiter, token...)

	closing := make([]byte, 0, len(crlf)+len(delimiter))
	closing = append(closing, crlf...)
	closing = append(closing, delimiter...)

	s := &Session{
		target:        target,
		delimiter:     delimiter,
		closing:       closing,
		sink:          sink,
		state:         AwaitingPayloadStart,
		maxHeaderSize: DefaultMaxHeaderSize,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) Target() string {
	return s.target
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Part() Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.part
}

func (s *Session) BytesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Outcome returns the terminal outcome once the session is finished.
func (s *Session) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.state == Finished
}

// Done is closed after the completion callback has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Feed processes one chunk. Chunks fed after the session finished are
// ignored, which covers the multipart epilogue following the closing
// delimiter.
func (s *Session) Feed(chunk []byte) error {
	return s.run(func() error {
		switch s.state {
		case AwaitingPayloadStart:
			return s.scan(chunk)
		case StreamingPayload:
			return s.forward(chunk)
		default:
			return nil
		}
	})
}

// End signals that no more chunks will arrive.
func (s *Session) End() error {
	return s.run(func() error {
		switch s.state {
		case AwaitingPayloadStart:
			return s.fail(ErrNoFilePartFound)
		case StreamingPayload:
			if s.strict {
				return s.fail(ErrUnterminatedPayload)
			}
			if err := s.write(s.carry); err != nil {
				return err
			}
			s.carry = nil
			return s.finish(CompletedImplicitEnd)
		default:
			return nil
		}
	})
}

// Abort fails the session because the chunk source broke or went away. Any
// partially written sink content is removed.
func (s *Session) Abort(cause error) error {
	return s.run(func() error {
		if s.state == Finished {
			return nil
		}
		if cause == nil {
			cause = io.ErrUnexpectedEOF
		}
		return s.fail(fmt.Errorf("%w: %w", ErrSourceFailure, cause))
	})
}

func (s *Session) run(step func() error) error {
	s.mu.Lock()
	wasFinished := s.state == Finished
	err := step()
	justFinished := !wasFinished && s.state == Finished
	outcome := s.outcome
	callback := s.onComplete
	s.mu.Unlock()

	if justFinished {
		if callback != nil {
			callback(outcome)
		}
		close(s.done)
	}
	return err
}

func (s *Session) scan(chunk []byte) error {
	s.pending = append(s.pending, chunk...)

	for {
		// Only the first delimiter may open the body without a preceding
		// CRLF; after a field part it must start a line.
		sep := s.delimiter
		if s.inField {
			sep = s.closing
		}
		idx := bytes.Index(s.pending, sep)
		if idx == -1 {
			s.pending = keepTail(s.pending, len(sep)-1)
			return nil
		}
		if s.inField {
			idx += len(crlf)
			s.inField = false
		}
		s.pending = s.pending[idx:]

		rest := s.pending[len(s.delimiter):]
		if len(rest) < len(dashes) {
			return s.checkHeaderSize(len(s.pending))
		}
		if bytes.HasPrefix(rest, dashes) {
			return s.fail(ErrNoFilePartFound)
		}

		lineEnd := bytes.Index(rest, crlf)
		if lineEnd == -1 {
			return s.checkHeaderSize(len(s.pending))
		}
		block := rest[lineEnd+len(crlf):]

		var headerBlock, body []byte
		if bytes.HasPrefix(block, crlf) {
			body = block[len(crlf):]
		} else {
			headerEnd := bytes.Index(block, crlfcrlf)
			if headerEnd == -1 {
				return s.checkHeaderSize(len(s.pending))
			}
			headerBlock = block[:headerEnd]
			body = block[headerEnd+len(crlfcrlf):]
		}
		if err := s.checkHeaderSize(len(s.pending) - len(body)); err != nil {
			return err
		}

		part, ok := parsePartHeader(headerBlock).file()
		if !ok {
			// field part: its value runs until the next line-anchored delimiter
			s.pending = body
			s.inField = true
			continue
		}

		s.part = part
		s.pending = nil
		if err := s.open(); err != nil {
			return err
		}
		s.state = StreamingPayload
		return s.forward(body)
	}
}

// checkHeaderSize fails the session when a part header, counted from its
// delimiter, exceeds the configured bound.
func (s *Session) checkHeaderSize(size int) error {
	if size > s.maxHeaderSize {
		return s.fail(fmt.Errorf("%w: %d bytes buffered, limit %d", ErrHeaderTooLarge, size, s.maxHeaderSize))
	}
	return nil
}

// forward writes everything that cannot be the start of the closing
// delimiter. The last len(closing)-1 bytes stay in carry until the next chunk
// shows whether the delimiter straddles the seam.
func (s *Session) forward(chunk []byte) error {
	s.window = append(append(s.window[:0], s.carry...), chunk...)

	if idx := bytes.Index(s.window, s.closing); idx != -1 {
		if err := s.write(s.window[:idx]); err != nil {
			return err
		}
		s.carry = nil
		s.window = nil
		return s.finish(Completed)
	}

	keep := len(s.closing) - 1
	if keep > len(s.window) {
		keep = len(s.window)
	}
	flush := len(s.window) - keep

	if err := s.write(s.window[:flush]); err != nil {
		return err
	}
	s.carry = append(s.carry[:0], s.window[flush:]...)
	return nil
}

func (s *Session) open() error {
	if s.opened {
		return s.fail(fmt.Errorf("%w: sink for %s already opened", ErrSinkFailure, s.target))
	}
	handle, err := s.sink.Open(s.target)
	if err != nil {
		return s.fail(fmt.Errorf("%w: open %s: %w", ErrSinkFailure, s.target, err))
	}
	s.opened = true
	s.handle = handle
	return nil
}

func (s *Session) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := s.handle.Write(p)
	s.written += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return s.fail(fmt.Errorf("%w: write %s: %w", ErrSinkFailure, s.target, err))
	}
	return nil
}

func (s *Session) finish(kind Kind) error {
	handle := s.handle
	s.handle = nil
	if err := handle.Close(); err != nil {
		s.removeSink()
		s.complete(Outcome{Kind: Failed, BytesWritten: s.written, Err: fmt.Errorf("%w: close %s: %w", ErrSinkFailure, s.target, err)})
		return s.outcome.Err
	}
	s.complete(Outcome{Kind: kind, BytesWritten: s.written})
	return nil
}

func (s *Session) fail(err error) error {
	if s.handle != nil {
		if closeErr := s.handle.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Str("target", s.target).Msg("close sink after failure")
		}
		s.handle = nil
	}
	if s.opened {
		s.removeSink()
	}
	s.complete(Outcome{Kind: Failed, BytesWritten: s.written, Err: err})
	return err
}

func (s *Session) removeSink() {
	if err := s.sink.Delete(s.target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("target", s.target).Msg("failed to remove partial sink output")
	}
}

func (s *Session) complete(outcome Outcome) {
	if s.state == Finished {
		return
	}
	s.state = Finished
	s.outcome = outcome
	s.pending = nil
	s.window = nil
	s.carry = nil
}

func keepTail(buf []byte, n int) []byte {
	if len(buf) <= n {
		return buf
	}
	return append(buf[:0], buf[len(buf)-n:]...)
}
