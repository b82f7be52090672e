package hints

import (
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/lvmteam/lvmcore/internal/lockfile"
	"github.com/lvmteam/lvmcore/pkg/metrics"
)

// Store binds a hints file to its own lockfile and the nohints/newhints
// side-channel files that live alongside it, per spec.md §4.8.
type Store struct {
	Path         string // .../run/lvm/hints
	LockPath     string // <locking_dir>/P_hints (separate from the devices file's lock)
	NoHintsPath  string // .../run/lvm/nohints
	NewHintsPath string // .../run/lvm/newhints

	lock *lockfile.Lock
}

func (s *Store) ensureLock() *lockfile.Lock {
	if s.lock == nil {
		s.lock = lockfile.New(s.LockPath)
	}
	return s.lock
}

// NoHintsActive reports whether the nohints side file is present — while
// it is, hints are ignored entirely regardless of their content.
func (s *Store) NoHintsActive() bool {
	_, err := os.Stat(s.NoHintsPath)
	return err == nil
}

// NewHintsRequested reports whether the newhints side file is present —
// its presence tells the next command to rescan everything and rewrite
// hints unconditionally.
func (s *Store) NewHintsRequested() bool {
	_, err := os.Stat(s.NewHintsPath)
	return err == nil
}

// TouchNoHints creates the nohints file (a state-changing command sets
// this on entry).
func (s *Store) TouchNoHints() error { return touch(s.NoHintsPath) }

// ClearNoHints removes the nohints file (cleared on exit by the command
// that set it).
func (s *Store) ClearNoHints() error { return removeIfExists(s.NoHintsPath) }

// TouchNewHints creates the newhints file, signalling the next command
// to do a full rescan and refresh the hints file.
func (s *Store) TouchNewHints() error { return touch(s.NewHintsPath) }

// ClearNewHints removes the newhints file once a command has honoured
// it by writing fresh hints.
func (s *Store) ClearNewHints() error { return removeIfExists(s.NewHintsPath) }

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Read acquires a shared lock and parses the live hints file. A missing
// file is not an error: it is reported via the bool return being false,
// matching _read_hint_file's fopen-failure-means-no-hints-yet behaviour.
func (s *Store) Read() (*File, bool, error) {
	l := s.ensureLock()
	if err := l.Acquire(lockfile.Shared); err != nil {
		return nil, false, err
	}
	defer l.Release()

	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			metrics.RecordHintsOutcome("missing")
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	parsed, err := Parse(f)
	if err != nil {
		metrics.RecordHintsOutcome("unparseable")
		return nil, false, err
	}
	metrics.RecordHintsOutcome("read")
	return parsed, true, nil
}

// Write acquires an exclusive lock and atomically replaces the hints
// file with body, an already formatted hints file, clearing newhints
// on success (a refresh satisfies whatever asked for one).
func (s *Store) Write(body []byte) error {
	l := s.ensureLock()
	if err := l.Acquire(lockfile.Exclusive); err != nil {
		return err
	}
	defer l.Release()

	if err := atomicRewrite(s.Path, body); err != nil {
		metrics.RecordHintsOutcome("write_error")
		return err
	}
	metrics.RecordHintsOutcome("written")
	if err := s.ClearNewHints(); err != nil {
		klog.Warningf("hints: failed to clear newhints after refresh: %v", err)
	}
	return nil
}

// Invalidate removes the hints file outright, forcing every future
// command to do a full scan until a fresh file is written. A missing
// file is not an error.
func (s *Store) Invalidate() error {
	return removeIfExists(s.Path)
}

// atomicRewrite mirrors internal/devicesfile's temp-file + fsync +
// rename + parent-dir-fsync sequence; the hints file follows the same
// crash-consistency discipline even though it is a disposable cache
// rather than durable state, per spec.md §4.8 ("written atomically with
// the same flock discipline as the devices file").
func atomicRewrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
