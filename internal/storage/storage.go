// Package storage keeps uploaded files in a flat directory and exposes the
// small namespace the HTTP surface works on.
package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrExists      = errors.New("file already exists")
	ErrInvalidName = errors.New("invalid file name")
)

type FileInfo struct {
	Name        string    `json:"filename"`
	Size        int64     `json:"size_bytes"`
	ModifiedAt  time.Time `json:"modified_at"`
	IsDirectory bool      `json:"is_directory"`
	BLAKE3      string    `json:"blake3,omitempty"`
}

type Store struct {
	root string
	// serialises rename checks so two renames cannot claim the same target
	mu sync.Mutex
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Store{root: abs}, nil
}

func (s *Store) Root() string {
	return s.root
}

func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}

// Open creates or truncates name for writing.
func (s *Store) Open(name string) (io.WriteCloser, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

func (s *Store) Delete(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	return notFound(os.Remove(p))
}

func (s *Store) OpenRead(name string) (*os.File, FileInfo, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, FileInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, FileInfo{}, notFound(err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, FileInfo{}, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, FileInfo{}, fmt.Errorf("%w: %s is a directory", ErrNotFound, name)
	}
	return f, infoFrom(name, st), nil
}

// Stat describes name. Regular files also carry their BLAKE3 digest.
func (s *Store) Stat(name string) (FileInfo, error) {
	p, err := s.path(name)
	if err != nil {
		return FileInfo{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return FileInfo{}, notFound(err)
	}
	info := infoFrom(name, st)
	if st.IsDir() {
		return info, nil
	}

	f, err := os.Open(p)
	if err != nil {
		return FileInfo{}, notFound(err)
	}
	defer f.Close()

	info.BLAKE3, err = Checksum(f)
	if err != nil {
		return FileInfo{}, fmt.Errorf("checksum %s: %w", name, err)
	}
	return info, nil
}

// Rename moves oldName to newName and refuses to replace an existing file.
func (s *Store) Rename(oldName, newName string) error {
	oldPath, err := s.path(oldName)
	if err != nil {
		return err
	}
	newPath, err := s.path(newName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err = os.Lstat(oldPath); err != nil {
		return notFound(err)
	}
	if _, err = os.Lstat(newPath); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, newName)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(oldPath, newPath)
}

func Checksum(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func infoFrom(name string, st fs.FileInfo) FileInfo {
	return FileInfo{
		Name:        name,
		Size:        st.Size(),
		ModifiedAt:  st.ModTime().UTC(),
		IsDirectory: st.IsDir(),
	}
}

// notFound keeps the fs error in the chain so callers may match either.
func notFound(err error) error {
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
