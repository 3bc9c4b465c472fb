// Package storage persists conversion artifacts on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docconvert/internal/domain"
)

// Store is a flat directory of artifacts sharing one extension. Keys are
// canonical filenames; anything else is rejected before touching the disk.
type Store struct {
	dir     string
	ext     string
	baseURL string
	route   string
}

// New creates dir if needed. URLs are built as baseURL + route + "/" + key.
func New(dir, ext, baseURL, route string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &Store{
		dir:     dir,
		ext:     ext,
		baseURL: strings.TrimRight(baseURL, "/"),
		route:   "/" + strings.Trim(route, "/"),
	}, nil
}

// Dir is the directory backing the store.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(key string) (string, error) {
	if !domain.IsCanonicalKey(key, s.ext) {
		return "", domain.Invalid("artifact key %q is not a canonical %s filename", key, s.ext)
	}
	return filepath.Join(s.dir, key), nil
}

// Put writes data under key atomically and returns the stored size. An existing
// artifact with the same key is replaced.
func (s *Store) Put(key string, data []byte) (int64, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return 0, domain.Wrap(domain.ErrPersist, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return 0, domain.Wrap(domain.ErrPersist, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, domain.Wrap(domain.ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, domain.Wrap(domain.ErrPersist, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return 0, domain.Wrap(domain.ErrPersist, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return 0, domain.Wrap(domain.ErrPersist, err)
	}
	tmpName = ""

	return s.Size(key)
}

// Exists reports whether key is stored. Invalid keys never exist.
func (s *Store) Exists(key string) bool {
	p, err := s.path(key)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Read returns the artifact bytes.
func (s *Store) Read(key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	if err != nil {
		return nil, domain.Wrap(domain.ErrPersist, err)
	}
	return b, nil
}

// Size returns the stored size of key in bytes.
func (s *Store) Size(key string) (int64, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	if err != nil {
		return 0, domain.Wrap(domain.ErrPersist, err)
	}
	return fi.Size(), nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	if err != nil {
		return domain.Wrap(domain.ErrPersist, err)
	}
	return nil
}

// URL is the public retrieval address of key.
func (s *Store) URL(key string) string {
	return s.baseURL + s.route + "/" + key
}

// Sweep removes artifacts last modified before cutoff and returns how many were
// deleted. Stale temp files from interrupted writes are removed as well.
func (s *Store) Sweep(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("storage: list %s: %w", s.dir, err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, ".tmp-") && !domain.IsCanonicalKey(name, s.ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
