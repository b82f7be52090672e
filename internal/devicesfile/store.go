package devicesfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/lvmteam/lvmcore/internal/lockfile"
	"github.com/lvmteam/lvmcore/pkg/metrics"
)

// ErrRaceLost is returned by UpdateTry when another writer's rewrite was
// observed between this process's read and its non-blocking lock
// attempt; the caller should simply let a later command retry.
var ErrRaceLost = errors.New("devicesfile: lost race with concurrent writer")

// Store binds a devices file to its companion lockfile and backup
// directory, and implements the locked atomic-rewrite-with-backup
// discipline from spec.md §4.3.
type Store struct {
	Path         string // .../lvm/devices/system.devices
	LockPath     string // .../lvm/locks/D_system.devices
	BackupDir    string // .../lvm/devices/backup
	BackupLimit  int    // devices/devicesfile_backup_limit, 0 disables backups
	LockDisabled bool   // sysinit / ignorelockingfailure: degrade lock failures to warnings

	lock *lockfile.Lock
}

func (s *Store) ensureLock() *lockfile.Lock {
	if s.lock == nil {
		s.lock = lockfile.New(s.LockPath)
	}
	return s.lock
}

// Read acquires a shared lock, parses the live file, and releases the
// lock. A reader that took the lock observes the file exactly as it was
// at that instant — never a half-written file — because writers only
// ever replace it via rename.
func (s *Store) Read() (*File, error) {
	l := s.ensureLock()
	if err := l.Acquire(lockfile.Shared); err != nil {
		if !s.LockDisabled {
			return nil, fmt.Errorf("devicesfile: lock %s: %w", s.LockPath, err)
		}
		klog.Warningf("devicesfile: failed to lock %s, continuing unlocked: %v", s.LockPath, err)
	} else {
		defer l.Release()
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Write acquires an exclusive lock, rotates a backup of the current file,
// and atomically replaces it with the serialised form of nf, bumping its
// counter. The counter in nf.Version is overwritten with
// (current-on-disk-counter + 1) so concurrent readers of the old and new
// file always see a monotonically increasing value.
func (s *Store) Write(nf *File) error {
	l := s.ensureLock()
	if err := l.Acquire(lockfile.Exclusive); err != nil {
		if !s.LockDisabled {
			return fmt.Errorf("devicesfile: lock %s: %w", s.LockPath, err)
		}
		klog.Warningf("devicesfile: failed to lock %s, continuing unlocked: %v", s.LockPath, err)
	} else {
		defer l.Release()
	}
	return s.writeLocked(nf)
}

// UpdateTry implements _device_ids_update_try: it takes the exclusive
// lock without blocking, re-reads the on-disk VERSION, and only proceeds
// with the write if it still matches readVersion (the version this
// process originally read before computing nf). If another writer raced
// in first, it returns ErrRaceLost rather than overwriting that writer's
// changes; the caller is expected to let a later command retry instead of
// looping here.
func (s *Store) UpdateTry(readVersion Version, nf *File) error {
	l := s.ensureLock()
	ok, err := l.TryAcquire(lockfile.Exclusive)
	if err != nil {
		return fmt.Errorf("devicesfile: try-lock %s: %w", s.LockPath, err)
	}
	if !ok {
		return ErrRaceLost
	}
	defer l.Release()

	cur, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	onDisk, err := Parse(cur)
	cur.Close()
	if err != nil {
		return err
	}
	if onDisk.Version != readVersion {
		klog.V(4).Infof("devicesfile: abandoning update, on-disk version %s != read version %s", onDisk.Version, readVersion)
		return ErrRaceLost
	}
	return s.writeLocked(nf)
}

func (s *Store) writeLocked(nf *File) error {
	if cur, err := os.Open(s.Path); err == nil {
		onDisk, perr := Parse(cur)
		cur.Close()
		if perr == nil {
			nf.Version.Counter = onDisk.Version.Counter + 1
		} else {
			nf.Version.Counter++
		}
	} else if !os.IsNotExist(err) {
		return err
	} else {
		nf.Version.Counter = 1
	}
	nf.Version.Major = WriterMajor
	nf.Version.Minor = WriterMinor

	if err := s.rotateBackup(); err != nil {
		klog.Warningf("devicesfile: backup rotation failed, continuing with rewrite: %v", err)
	}

	if err := atomicRewrite(s.Path, Format(nf)); err != nil {
		metrics.RecordDevicesFileRewrite("error")
		return err
	}
	metrics.RecordDevicesFileRewrite("success")
	return nil
}

// atomicRewrite writes data to a sibling temp file, fflush+fsync+renames
// it over path, then fsyncs the containing directory — the crash-
// consistency recipe from spec.md §4.3.
func atomicRewrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

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

// rotateBackup copies the current live file into the backup directory
// under a timestamped name before it is overwritten, then prunes old
// backups down to BackupLimit.
func (s *Store) rotateBackup() error {
	if s.BackupLimit <= 0 {
		return nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(s.BackupDir, 0o755); err != nil {
		return err
	}

	name := backupName(time.Now())
	if err := atomicRewrite(filepath.Join(s.BackupDir, name), data); err != nil {
		return err
	}
	return s.pruneBackups()
}

func backupName(t time.Time) string {
	return fmt.Sprintf("system.devices-%s.%04d", t.Format("20060102.150405"), t.Nanosecond()/1e5%10000)
}

// pruneBackups keeps the BackupLimit most recent backups. Names sort
// lexicographically in timestamp order, so removing the lowest-keyed
// names beyond the limit removes the oldest files — the
// most-recent-oldest removal policy from spec.md §4.3. It always lists
// the backup directory and sorts the names with a plain byte-wise
// comparison, avoiding any locale-dependent collation, whether one file
// or several are in excess; there is no separate single-file path.
func (s *Store) pruneBackups() error {
	entries, err := os.ReadDir(s.BackupDir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "system.devices-") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= s.BackupLimit {
		return nil
	}
	sort.Strings(names)
	excess := names[:len(names)-s.BackupLimit]
	for _, n := range excess {
		if err := os.Remove(filepath.Join(s.BackupDir, n)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
