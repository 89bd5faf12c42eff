package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FSStore keeps replays as files in one directory
type FSStore struct {
	dir string
}

// NewFSStore creates dir if needed
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating replay dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(hash string) string {
	return filepath.Join(s.dir, hash)
}

// Put writes data unless a file with the same hash already exists
func (s *FSStore) Put(_ context.Context, hash string, data []byte) error {
	if err := validHash(hash); err != nil {
		return err
	}
	p := s.path(hash)
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	tmp, err := os.CreateTemp(s.dir, hash+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating replay file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing replay: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing replay: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storing replay: %w", err)
	}
	return nil
}

func (s *FSStore) Open(_ context.Context, hash string) (io.ReadCloser, error) {
	if err := validHash(hash); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("replay %s: %w", hash, errNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening replay: %w", err)
	}
	return f, nil
}

func (s *FSStore) Delete(_ context.Context, hash string) error {
	if err := validHash(hash); err != nil {
		return err
	}
	err := os.Remove(s.path(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("replay %s: %w", hash, errNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting replay: %w", err)
	}
	return nil
}
