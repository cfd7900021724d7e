package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// LockFilename is the name of the cache lock file
const LockFilename = "sync.lock"

// ErrLockTimeout indicates the lock acquisition timed out
var ErrLockTimeout = errors.New("lock acquisition timed out")

// CacheLock serializes cache writers across processes using flock(2).
// The kernel releases it when the holding process exits.
type CacheLock struct {
	path string
	file *os.File
}

// NewCacheLock creates a lock backed by the file at path.
func NewCacheLock(path string) *CacheLock {
	return &CacheLock{path: path}
}

// TryAcquire takes the lock without blocking.
// Returns false, nil when another process holds it.
func (l *CacheLock) TryAcquire() (bool, error) {
	if err := l.open(); err != nil {
		return false, err
	}

	ok, err := l.flock()
	if err != nil || !ok {
		l.closeFile()
	}
	return ok, err
}

// Acquire blocks until the lock is taken, the timeout expires, or ctx is canceled.
func (l *CacheLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := l.open(); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	poll := 10 * time.Millisecond
	const maxPoll = 500 * time.Millisecond

	for {
		ok, err := l.flock()
		if err != nil {
			l.closeFile()
			return err
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			l.closeFile()
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			l.closeFile()
			return ctx.Err()
		case <-time.After(poll):
			poll = min(poll*2, maxPoll)
		}
	}
}

// Release unlocks. Releasing a lock that is not held is a no-op.
func (l *CacheLock) Release() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	return closeErr
}

// Held reports whether this instance holds the lock.
func (l *CacheLock) Held() bool {
	return l.file != nil
}

// Path returns the lock file path.
func (l *CacheLock) Path() string {
	return l.path
}

func (l *CacheLock) flock() (bool, error) {
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return false, nil
	}
	return false, fmt.Errorf("flock failed: %w", err)
}

func (l *CacheLock) open() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	l.file = file
	return nil
}

func (l *CacheLock) closeFile() {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}
