package httpapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type objectStore interface {
	Backend() string
	PutObject(ctx context.Context, objectPath, contentType string, data []byte) error
	DeleteObject(ctx context.Context, objectPath string) error
	ObjectURL(objectPath string) string
}

// localObjectStore keeps uploads on the local filesystem and serves them
// back under /uploads/. It is the default backend for development; GCS takes
// over when a bucket is configured.
type localObjectStore struct {
	rootDir string
}

func newLocalObjectStore(rootDir string) (*localObjectStore, error) {
	trimmed := strings.TrimSpace(rootDir)
	if trimmed == "" {
		return nil, errors.New("upload dir is required")
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &localObjectStore{rootDir: trimmed}, nil
}

func (s *localObjectStore) Backend() string {
	return "local"
}

func (s *localObjectStore) PutObject(_ context.Context, objectPath, _ string, data []byte) error {
	fullPath, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("write object %q: %w", objectPath, err)
	}
	return nil
}

func (s *localObjectStore) DeleteObject(_ context.Context, objectPath string) error {
	fullPath, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object %q: %w", objectPath, err)
	}
	return nil
}

func (s *localObjectStore) ObjectURL(objectPath string) string {
	return "/uploads/" + strings.Trim(objectPath, "/")
}

func (s *localObjectStore) resolve(objectPath string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(objectPath), "/")
	if clean == "" || strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(clean)), nil
}
