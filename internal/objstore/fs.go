package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/matheus3301/layover/internal/backend"
)

var _ backend.ObjectStorage = (*FS)(nil)

// FS stores objects as files under a root directory.
type FS struct {
	root string
}

// NewFS creates the root directory if needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FS{root: abs}, nil
}

func (s *FS) file(bucket, path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" || bucket == "" || strings.ContainsAny(bucket, `/\`) {
		return "", backend.Errorf(backend.CodeInvalid, "invalid object path %s/%s", bucket, path)
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(clean)), nil
}

// Upload writes data to <root>/<bucket>/<path>.
func (s *FS) Upload(_ context.Context, bucket, path string, data []byte, _ string) (string, error) {
	name, err := s.file(bucket, path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o700); err != nil {
		return "", fmt.Errorf("create bucket dir: %w", err)
	}
	if err := os.WriteFile(name, data, 0o600); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return s.PublicURL(bucket, path), nil
}

// PublicURL returns a file:// URL for the object.
func (s *FS) PublicURL(bucket, path string) string {
	name, err := s.file(bucket, path)
	if err != nil {
		return ""
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(name)}).String()
}

// Remove deletes the object file. Removing a missing object succeeds.
func (s *FS) Remove(_ context.Context, bucket, path string) error {
	name, err := s.file(bucket, path)
	if err != nil {
		return err
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
