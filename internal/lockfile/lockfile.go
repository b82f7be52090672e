// Package lockfile implements the flock-based locking discipline used by
// the devices file (C3) and the hints file (C8): an exclusive lock for
// writers, a shared lock for readers, nested-idempotent acquisition
// within one process, and a non-blocking variant for "try, don't wait"
// callers.
//
// Grounded on original_source/lib/label/hints.c's _flock/_funlock pair,
// and styled on the injectable-locker seam shape shown in
// canonical-snapd's daemon/fmutex package (an FLocker interface with a
// replaceable constructor), adapted to a real flock(2) backing via
// golang.org/x/sys/unix instead of an in-memory mutex.
package lockfile

import (
	"errors"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock marks, inside this package, a non-blocking attempt that
// found the lock currently held (by another process, or by this one in
// an incompatible mode); TryAcquire turns it into (false, nil).
var ErrWouldBlock = errors.New("lockfile: would block")

// Mode selects the flock(2) lock type to take.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

// Lock represents one on-disk lock file. The zero value is not usable;
// construct with New. A Lock is safe for concurrent use: Acquire/Release
// calls from multiple goroutines in the same process serialize against
// the internal mutex and share one underlying file descriptor, so the
// nested-acquire counting below is correct per-process, matching lvm2's
// own single-process nested lock handling.
type Lock struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	mode  Mode
	depth int
}

// New returns a Lock bound to path. The file is created on first
// Acquire/TryAcquire, not here.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Acquire takes the lock in the given mode, blocking until it is
// available. A second Acquire from the same Lock value while a
// compatible mode is already held (anything while Exclusive is held, or
// the same mode while Shared is held) is a no-op that only bumps the
// nesting depth — it does not re-issue the flock syscall.
func (l *Lock) Acquire(mode Mode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquireLocked(mode, true)
}

// TryAcquire is the non-blocking form of Acquire. It returns
// (false, nil) rather than an error from Flock's LOCK_NB path when the
// lock cannot be taken immediately.
func (l *Lock) TryAcquire(mode Mode) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.acquireLocked(mode, false); err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *Lock) acquireLocked(mode Mode, blocking bool) error {
	if l.file != nil && (l.mode == Exclusive || l.mode == mode) {
		l.depth++
		return nil
	}

	if l.file == nil {
		f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		l.file = f
	}

	how := unix.LOCK_SH
	if mode == Exclusive {
		how = unix.LOCK_EX
	}
	if !blocking {
		how |= unix.LOCK_NB
	}

	if err := unix.Flock(int(l.file.Fd()), how); err != nil {
		if !blocking && errors.Is(err, unix.EWOULDBLOCK) {
			if l.depth == 0 {
				l.file.Close()
				l.file = nil
			}
			return ErrWouldBlock
		}
		if l.depth == 0 {
			l.file.Close()
			l.file = nil
		}
		return err
	}

	l.mode = mode
	l.depth++
	return nil
}

// Release drops one level of nesting, unlocking and closing the
// underlying descriptor only once the nesting depth returns to zero.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || l.depth == 0 {
		return nil
	}
	l.depth--
	if l.depth > 0 {
		return nil
	}

	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
