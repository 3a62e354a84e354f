package render

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

// Locker serializes access to a backend. Lock blocks until the lock is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock()
}

// NoLock is the Locker for backends that are safe for concurrent use.
type NoLock struct{}

func (NoLock) Lock(ctx context.Context) error {
	return nil
}

func (NoLock) Unlock() {}

// MutexLock serializes backend calls within this process.
type MutexLock struct {
	sem *semaphore.Weighted
}

func NewMutexLock() *MutexLock {
	return &MutexLock{sem: semaphore.NewWeighted(1)}
}

func (l *MutexLock) Lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

func (l *MutexLock) Unlock() {
	l.sem.Release(1)
}

// fileLockRetry is the interval at which a held file lock is retried.
const fileLockRetry = 25 * time.Millisecond

// FileLock serializes backend calls across processes with flock(2) on a lock file,
// e.g. for a backend that writes to a shared scratch directory.
type FileLock struct {
	path  string
	local *MutexLock
	file  *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, local: NewMutexLock()}
}

func (l *FileLock) Lock(ctx context.Context) error {
	if err := l.local.Lock(ctx); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		l.local.Unlock()
		return fmt.Errorf("could not open lock file: %w", err)
	}

	ticker := time.NewTicker(fileLockRetry)
	defer ticker.Stop()
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.file = f
			return nil
		}
		if err != unix.EWOULDBLOCK {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-ticker.C:
			continue
		}
		break
	}
	f.Close()
	l.local.Unlock()
	return fmt.Errorf("could not lock %s: %w", l.path, err)
}

func (l *FileLock) Unlock() {
	if l.file != nil {
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		l.file.Close()
		l.file = nil
	}
	l.local.Unlock()
}
