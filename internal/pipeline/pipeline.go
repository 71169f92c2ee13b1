// Package pipeline derives new files from complete uploads by piping them
// through a compressor or an encryptor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"file_manager/internal/storage"
	"file_manager/types"

	"filippo.io/age"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownCodec = errors.New("unknown compression codec")
	ErrNoRecipients = errors.New("no encryption recipients")
)

type Store interface {
	OpenRead(name string) (*os.File, storage.FileInfo, error)
	Open(name string) (io.WriteCloser, error)
	Delete(name string) error
}

type Result struct {
	Original string
	Output   string
	BytesIn  int64
	BytesOut int64
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 32*1024)
	},
}

func copyWithBuffer(dst io.Writer, src io.Reader) (written int64, err error) {
	buf := bufferPool.Get().([]byte)
	defer bufferPool.Put(buf)
	return io.CopyBuffer(dst, src, buf)
}

func Compress(ctx context.Context, store Store, name string, codec types.Codec) (Result, error) {
	ext := codec.Extension()
	if ext == "" {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
	return run(ctx, store, name, name+ext, func(w io.Writer) (io.WriteCloser, error) {
		return newCompressor(w, codec)
	})
}

func Encrypt(ctx context.Context, store Store, name string, recipients ...age.Recipient) (Result, error) {
	if len(recipients) == 0 {
		return Result{}, ErrNoRecipients
	}
	return run(ctx, store, name, name+types.EncryptedExtension, func(w io.Writer) (io.WriteCloser, error) {
		return age.Encrypt(w, recipients...)
	})
}

func newCompressor(w io.Writer, codec types.Codec) (io.WriteCloser, error) {
	switch codec {
	case types.Gzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case types.Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case types.LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
}

// run streams name through the writer built by wrap into output. On any
// error the output file is removed.
func run(ctx context.Context, store Store, name, output string, wrap func(io.Writer) (io.WriteCloser, error)) (Result, error) {
	src, _, err := store.OpenRead(name)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	dst, err := store.Open(output)
	if err != nil {
		return Result{}, err
	}

	counter := &countingWriter{w: dst}
	in, err := pipe(ctx, src, counter, wrap)
	if closeErr := dst.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := store.Delete(output); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Warn().Err(rmErr).Str("output", output).Msg("failed to remove partial pipeline output")
		}
		return Result{}, fmt.Errorf("%s -> %s: %w", name, output, err)
	}

	return Result{Original: name, Output: output, BytesIn: in, BytesOut: counter.n}, nil
}

func pipe(ctx context.Context, src io.Reader, dst io.Writer, wrap func(io.Writer) (io.WriteCloser, error)) (int64, error) {
	enc, err := wrap(dst)
	if err != nil {
		return 0, err
	}
	n, err := copyWithBuffer(enc, &ctxReader{ctx: ctx, r: src})
	if err != nil {
		_ = enc.Close()
		return n, err
	}
	return n, enc.Close()
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
