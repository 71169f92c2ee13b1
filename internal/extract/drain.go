package extract

import (
	"context"
	"errors"
	"io"
)

const DefaultChunkSize = 32 << 10

// Drain pumps src into the session one read at a time until the session
// finishes. Each chunk is fully processed before the next read, so a slow
// sink holds back consumption of src.
func Drain(ctx context.Context, src io.Reader, s *Session, buf []byte) Outcome {
	if len(buf) == 0 {
		buf = make([]byte, DefaultChunkSize)
	}

	for {
		if err := ctx.Err(); err != nil {
			_ = s.Abort(err)
			break
		}

		n, err := src.Read(buf)
		if n > 0 {
			if feedErr := s.Feed(buf[:n]); feedErr != nil {
				break
			}
			if s.State() == Finished {
				break
			}
		}

		if errors.Is(err, io.EOF) {
			_ = s.End()
			break
		}
		if err != nil {
			_ = s.Abort(err)
			break
		}
	}

	outcome, _ := s.Outcome()
	return outcome
}
