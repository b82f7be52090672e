// Package ioretry wraps block-device ReadAt/WriteAt calls with a bounded,
// no-backoff EINTR retry, per spec.md §5's "I/O transient: EINTR, short
// read — retry up to a small bound; then surface as I/O error" policy.
//
// Grounded on the generic-retry shape of
// fenio-tns-csi/pkg/utils/retry.go's WithRetry, specialised here to an
// immediate bounded loop (no exponential backoff, no context plumbing)
// since EINTR is a transient kernel-signal artifact, not a remote
// failure that benefits from spacing out attempts.
package ioretry

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// MaxAttempts bounds the total number of calls a ReadAt/WriteAt makes,
// the first one included, before an EINTR is surfaced to the caller.
const MaxAttempts = 4

// ReadAt calls fn (typically an *os.File's ReadAt) up to MaxAttempts
// times, retrying only on EINTR. Any other error, including io.EOF and
// a short read with a nil error, is returned immediately.
func ReadAt(fn func(p []byte, off int64) (int, error), p []byte, off int64) (int, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		n, err := fn(p, off)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return n, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// WriteAt is ReadAt's write-side counterpart.
func WriteAt(fn func(p []byte, off int64) (int, error), p []byte, off int64) (int, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		n, err := fn(p, off)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return n, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// ReaderAt/WriterAt adapt an io.ReaderAt/io.WriterAt to the (p, off)
// function signature ReadAt/WriteAt expect, so callers can wrap a
// standard *os.File directly: ioretry.ReadAt(ioretry.ReaderAt(f), buf, off).
func ReaderAt(r io.ReaderAt) func([]byte, int64) (int, error) {
	return func(p []byte, off int64) (int, error) { return r.ReadAt(p, off) }
}

func WriterAt(w io.WriterAt) func([]byte, int64) (int, error) {
	return func(p []byte, off int64) (int, error) { return w.WriteAt(p, off) }
}
