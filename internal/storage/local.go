// internal/storage/local.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("object not found")

// LocalStore writes proofs to a directory. URLs point at the admin proof download route.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create proof dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Save(ctx context.Context, name string, contentType string, r io.Reader) (Object, error) {
	ext := allowedContentTypes[contentType]
	id := filepath.Base(name) + ext
	path := filepath.Join(s.dir, id)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create proof file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return Object{}, fmt.Errorf("write proof file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("close proof file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Object{}, fmt.Errorf("store proof file: %w", err)
	}
	return Object{ID: id, URL: s.baseURL + "/" + id}, nil
}

func (s *LocalStore) Delete(ctx context.Context, id string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(id)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete proof file: %w", err)
	}
	return nil
}

// Open returns the stored file for download.
func (s *LocalStore) Open(id string) (*os.File, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(id)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}
