// Package storage removes uploaded attachments referenced by messages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"im-social/config"
)

// Store removes resources by the path or URL kept in message content
type Store interface {
	// IsManaged reports whether ref points at a resource this store owns
	IsManaged(ref string) bool
	Remove(ctx context.Context, ref string) error
}

// New builds the store selected by cfg.Driver
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.LocalDir, cfg.PublicURL), nil
	case "s3":
		return NewS3Store(ctx, cfg.S3Region, cfg.S3Bucket)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// LocalStore keeps uploads under Dir, served under PublicURL
type LocalStore struct {
	Dir       string
	PublicURL string
}

// NewLocalStore serves files of dir under publicURL
func NewLocalStore(dir, publicURL string) *LocalStore {
	if publicURL == "" {
		publicURL = "/uploads/"
	}
	if !strings.HasSuffix(publicURL, "/") {
		publicURL += "/"
	}
	return &LocalStore{Dir: dir, PublicURL: publicURL}
}

func (s *LocalStore) relative(ref string) (string, bool) {
	if !strings.HasPrefix(ref, s.PublicURL) {
		return "", false
	}
	rel := filepath.Clean(strings.TrimPrefix(ref, s.PublicURL))
	if rel == "." || rel == "" || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", false
	}
	return rel, true
}

// IsManaged reports whether ref points below publicURL
func (s *LocalStore) IsManaged(ref string) bool {
	_, ok := s.relative(ref)
	return ok
}

// Remove deletes the file; a file that is already gone is not an error
func (s *LocalStore) Remove(_ context.Context, ref string) error {
	rel, ok := s.relative(ref)
	if !ok {
		return fmt.Errorf("not a managed upload: %q", ref)
	}
	err := os.Remove(filepath.Join(s.Dir, rel))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}
