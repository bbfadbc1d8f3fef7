// Package ndjson persists pipeline records as newline-delimited JSON
// under a date-partitioned directory tree:
//
//	<root>/candles/<tf>/YYYY/MM/DD/<symbol>.ndjson
//	<root>/ticks/YYYY/MM/DD/<symbol>.ndjson
//	<root>/proposals/YYYY/MM/DD/proposals.ndjson
//
// Records are appended, one JSON object per line, and partition dates
// come from the record's own UTC timestamp, never the wall clock.
package ndjson

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeSymbol maps a symbol to a filesystem-safe name. Runs of
// characters outside [A-Za-z0-9._-] collapse to a single underscore.
func SanitizeSymbol(symbol string) string {
	return unsafePathChars.ReplaceAllString(symbol, "_")
}

// Store appends NDJSON lines under a root directory. Files are kept
// open per partition and reused across appends; Close flushes and
// releases them all.
type Store struct {
	root string

	mu    sync.Mutex
	files map[string]*os.File
}

// New creates a store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ndjson: create root: %w", err)
	}
	return &Store{root: root, files: make(map[string]*os.File)}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

func datePath(ts time.Time) string {
	u := ts.UTC()
	return filepath.Join(
		fmt.Sprintf("%04d", u.Year()),
		fmt.Sprintf("%02d", int(u.Month())),
		fmt.Sprintf("%02d", u.Day()),
	)
}

func (s *Store) candlePath(tf, symbol string, ts time.Time) string {
	return filepath.Join(s.root, "candles", tf, datePath(ts), SanitizeSymbol(symbol)+".ndjson")
}

func (s *Store) tickPath(symbol string, ts time.Time) string {
	return filepath.Join(s.root, "ticks", datePath(ts), SanitizeSymbol(symbol)+".ndjson")
}

func (s *Store) proposalPath(ts time.Time) string {
	return filepath.Join(s.root, "proposals", datePath(ts), "proposals.ndjson")
}

// appendLine writes one line to the partition file at path, opening
// and caching the handle on first use.
func (s *Store) appendLine(path string, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[path]
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("ndjson: mkdir %s: %w", filepath.Dir(path), err)
		}
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("ndjson: open %s: %w", path, err)
		}
		s.files[path] = f
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("ndjson: append %s: %w", path, err)
	}
	return nil
}

// Close syncs and closes all open partition files.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for path, f := range s.files {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, path)
	}
	return firstErr
}
