package lvmcache

import (
	"context"
	"sync"
	"time"

	"github.com/lvmteam/lvmcore/pkg/metrics"
)

// Mode selects the granularity of an in-process vgname lock: Shared for
// readers, Exclusive for writers. Mirrors internal/lockfile.Mode's
// vocabulary, applied here to intra-process serialisation rather than
// flock(2).
type Mode int

const (
	LockShared Mode = iota
	LockExclusive
)

// LockTable is lvmcache's lock_map (spec.md §4.7): vgname-granularity
// advisory locks used to serialise concurrent readers/writers of the
// same VG within one process. A second Lock call for a vgname already
// held in a compatible mode (anything while Exclusive is held, or the
// same mode while Shared is held — the same rule internal/lockfile
// applies to its own nested acquisition) is a no-op that only bumps a
// nesting depth, matching spec.md §5's nested-idempotent-acquire rule.
type LockTable struct {
	mu      sync.Mutex
	entries map[string]*vgLock
}

type vgLock struct {
	cond    *sync.Cond
	mode    Mode
	depth   int
	readers int // distinct shared holders, counted only when mode == LockShared
}

// NewLockTable returns an empty LockTable.
func NewLockTable() *LockTable {
	return &LockTable{entries: make(map[string]*vgLock)}
}

func (t *LockTable) entry(vgname string) *vgLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vgname]
	if !ok {
		e = &vgLock{cond: sync.NewCond(&sync.Mutex{})}
		t.entries[vgname] = e
	}
	return e
}

// Lock acquires vgname's lock in the given mode, blocking until
// available or ctx is cancelled. sync.Cond has no cancellable wait, so a
// background goroutine broadcasts once ctx is done to wake any blocked
// waiters for a re-check; it exits as soon as Lock itself returns.
func (t *LockTable) Lock(ctx context.Context, vgname string, mode Mode) error {
	start := time.Now()
	modeLabel := "shared"
	if mode == LockExclusive {
		modeLabel = "exclusive"
	}
	defer func() { metrics.RecordLockWait(modeLabel, time.Since(start)) }()

	e := t.entry(vgname)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			e.cond.L.Lock()
			e.cond.Broadcast()
			e.cond.L.Unlock()
		case <-stop:
		}
	}()

	e.cond.L.Lock()
	defer e.cond.L.Unlock()

	for e.depth > 0 && !(e.mode == LockExclusive || e.mode == mode) {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.depth > 0 {
		e.depth++
		if mode == LockShared {
			e.readers++
		}
		return nil
	}

	e.mode = mode
	e.depth = 1
	if mode == LockShared {
		e.readers = 1
	}
	return nil
}

// Unlock releases one level of nesting for vgname, waking any waiters
// once the depth returns to zero.
func (t *LockTable) Unlock(vgname string) {
	e := t.entry(vgname)
	e.cond.L.Lock()
	defer e.cond.L.Unlock()

	if e.depth == 0 {
		return
	}
	if e.mode == LockShared && e.readers > 0 {
		e.readers--
	}
	e.depth--
	if e.depth == 0 {
		e.cond.Broadcast()
	}
}

// HolderCount reports the current nesting depth held on vgname (0 if
// free), for tests and diagnostics.
func (t *LockTable) HolderCount(vgname string) int {
	e := t.entry(vgname)
	e.cond.L.Lock()
	defer e.cond.L.Unlock()
	return e.depth
}
