package random

import (
	"crypto/rand"
	"fmt"
	"io"
)

const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

// largest multiple of len(charset) that fits in a byte; bytes at or above it
// are rejected to keep the distribution uniform
const rejectAbove = 256 - 256%len(charset)

var (
	ErrInvalidLength = fmt.Errorf("invalid length")
)

type Random interface {
	String(length int) (string, error)
	ID(prefix string) (string, error)
}

type random struct {
	reader io.Reader
}

func New() Random {
	return &random{reader: rand.Reader}
}

func (ran *random) String(length int) (string, error) {
	if length < 0 {
		return "", ErrInvalidLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := io.ReadFull(ran.reader, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}

// ID returns prefix-xxxxxxxxxxxx, used to tell event subscribers apart in logs.
func (ran *random) ID(prefix string) (string, error) {
	s, err := ran.String(12)
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return s, nil
	}
	return prefix + "-" + s, nil
}
