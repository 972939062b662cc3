// Package jsonstore persists clipboard history as a single JSON document,
// replaced atomically on every save.
package jsonstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/hpungsan/clipnest/internal/capture"
)

// FileName is the history file inside the base directory.
const FileName = "clipboard_history.json"

// ErrCorrupt marks a history file that exists but does not decode.
var ErrCorrupt = errors.New("history file is corrupt")

// Store reads and writes baseDir/clipboard_history.json.
type Store struct {
	path string
	mu   sync.Mutex // serializes writers within this process
}

// New returns a Store rooted at baseDir, creating the directory.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{path: filepath.Join(baseDir, FileName)}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Save writes entries in order, replacing the previous file.
func (s *Store) Save(ctx context.Context, entries []capture.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entries == nil {
		entries = []capture.Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Load returns the saved entries. A missing file is an empty history.
// Entries written by older versions get their derived fields filled.
func (s *Store) Load(ctx context.Context) ([]capture.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []capture.Entry{}, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	var entries []capture.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for i := range entries {
		entries[i].FillDerived()
	}
	if entries == nil {
		entries = []capture.Entry{}
	}
	return entries, nil
}

// Quarantine moves the history file aside so the next save cannot
// overwrite it, and returns where it went.
func (s *Store) Quarantine(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := s.path + ".corrupt-" + now.UTC().Format("20060102T150405")
	if err := os.Rename(s.path, dst); err != nil {
		return "", fmt.Errorf("move corrupt history: %w", err)
	}
	return dst, nil
}
