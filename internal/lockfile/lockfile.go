// Package lockfile marks the process that owns a base directory's history.
//
// The owner is the long-running watcher or MCP server. It holds an
// exclusive advisory lock on baseDir/clipnest.lock for its lifetime; the
// OS drops the lock when the process exits, so a crash never leaves a
// stale owner behind.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileName is the lock file inside the base directory.
const FileName = "clipnest.lock"

// ErrHeld is returned when another process owns the lock.
var ErrHeld = errors.New("lock held by another process")

// Lock is a held lock. Call Close to release it.
type Lock struct {
	mu   sync.Mutex
	file *os.File
}

// TryAcquire takes the lock for baseDir without waiting. It returns ErrHeld
// when another process (or another open Lock in this one) holds it.
func TryAcquire(baseDir string) (*Lock, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	path := filepath.Join(baseDir, FileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		return nil, err
	}

	// The pid is informational; the lock itself is what other processes test.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{file: f}, nil
}

// Close releases the lock. It is idempotent.
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	unlockErr := unlock(l.file)
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(unlockErr, closeErr)
}
