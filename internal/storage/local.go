package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultLocalBaseURL is the route the server mounts the local store on.
const DefaultLocalBaseURL = "/media"

// LocalStore writes objects below a directory on disk.
type LocalStore struct {
	dir        string
	publicBase string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, publicBase string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("local blob directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	if publicBase == "" {
		publicBase = DefaultLocalBaseURL
	}
	return &LocalStore{dir: dir, publicBase: publicBase}, nil
}

// Dir returns the root directory.
func (s *LocalStore) Dir() string { return s.dir }

// Put writes r to objectPath below the root directory.
func (s *LocalStore) Put(ctx context.Context, objectPath string, r io.Reader, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	name, err := cleanObjectPath(objectPath)
	if err != nil {
		return Object{}, err
	}

	full := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return Object{}, fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Object{}, fmt.Errorf("open object %s: %w", name, err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		return Object{}, fmt.Errorf("write object %s: %w", name, err)
	}

	return Object{
		Path:        name,
		URL:         joinURL(s.publicBase, name),
		Size:        n,
		ContentType: contentType,
	}, nil
}

// Close is a no-op.
func (s *LocalStore) Close() error { return nil }
