// Package cache provides the file-backed persistence for Memori: the
// Granola access credential and the meetings snapshot.  Files live in a
// single cache directory and are written atomically; a write is either
// complete or absent, never partial.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	credsFile    = "granola.json"
	meetingsFile = "meetings.json"
	memoriesFile = "memories.json"
	contextsFile = "contexts.json"
)

// ErrNotCached indicates that the requested file has never been written.
var ErrNotCached = errors.New("not cached")

// Manager owns the cache directory.
type Manager struct {
	dir string
	now func() time.Time
}

// Option is the Manager option.
type Option func(*Manager)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager over dir, creating it with rwx------
// permissions if it does not exist.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	m := &Manager{dir: dir, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return m, nil
}

// Dir returns the cache directory.
func (m *Manager) Dir() string {
	return m.dir
}

// loadJSON reads and decodes the named cache file.  A missing file maps to
// ErrNotCached.
func loadJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotCached
		}
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// storeJSON writes v to the named cache file atomically: encode to a
// temporary file in the same directory, then rename over the target.
func storeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// remove deletes the named cache file; a missing file is not an error.
func remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
