package random

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct {
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	return 0, f.err
}

func TestRandom_String(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{"ValidLengthZero", 0, false},
		{"ValidPositiveLength", 10, false},
		{"NegativeLength", -1, true},
		{"VeryLargeLength", 1_000_000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			randomizer := New()

			result, err := randomizer.String(tt.length)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLength)
				return
			}
			require.NoError(t, err)
			assert.Len(t, result, tt.length)
			for _, c := range result {
				assert.True(t, strings.ContainsRune(charset, c))
			}
		})
	}
}

func TestRandom_StringRejectsBiasedBytes(t *testing.T) {
	src := append(bytes.Repeat([]byte{255}, 8), bytes.Repeat([]byte{1}, 32)...)
	randomizer := &random{reader: bytes.NewReader(src)}

	result, err := randomizer.String(4)
	require.NoError(t, err)
	assert.Equal(t, "bbbb", result)
}

func TestRandomWithFailingReader_String(t *testing.T) {
	errRead := fmt.Errorf("entropy source unavailable")
	var randomizer Random = &random{reader: &failingReader{err: errRead}}

	result, err := randomizer.String(20)
	assert.True(t, errors.Is(err, errRead))
	assert.Empty(t, result)

	id, err := randomizer.ID("ws")
	assert.True(t, errors.Is(err, errRead))
	assert.Empty(t, id)
}

func TestRandom_ID(t *testing.T) {
	randomizer := New()

	id, err := randomizer.ID("ws")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "ws-"))
	assert.Len(t, id, len("ws-")+12)

	bare, err := randomizer.ID("")
	require.NoError(t, err)
	assert.Len(t, bare, 12)
	assert.NotEqual(t, id[3:], bare)
}
