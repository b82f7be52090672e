package ioretry

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestReadAtRetriesOnEINTRThenSucceeds(t *testing.T) {
	calls := 0
	fn := func(p []byte, off int64) (int, error) {
		calls++
		if calls < 3 {
			return 0, unix.EINTR
		}
		return copy(p, "ok"), nil
	}
	n, err := ReadAt(fn, make([]byte, 2), 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 bytes read, got %d", n)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestReadAtGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	fn := func(p []byte, off int64) (int, error) {
		calls++
		return 0, unix.EINTR
	}
	_, err := ReadAt(fn, make([]byte, 2), 0)
	if !errors.Is(err, unix.EINTR) {
		t.Fatalf("expected EINTR to be surfaced after exhausting retries, got %v", err)
	}
	if calls != MaxAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", MaxAttempts, calls)
	}
}

func TestReadAtDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	wantErr := errors.New("disk on fire")
	fn := func(p []byte, off int64) (int, error) {
		calls++
		return 0, wantErr
	}
	_, err := ReadAt(fn, make([]byte, 2), 0)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the non-EINTR error to be surfaced, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-EINTR error, got %d", calls)
	}
}

func TestWriterAtAdapterDelegatesToWriteAt(t *testing.T) {
	buf := make([]byte, 4)
	w := &sliceWriterAt{buf: buf}
	n, err := WriteAt(WriterAt(w), []byte("abcd"), 0)
	if err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if n != 4 || string(buf) != "abcd" {
		t.Fatalf("unexpected write result: n=%d buf=%q", n, buf)
	}
}

type sliceWriterAt struct{ buf []byte }

func (s *sliceWriterAt) WriteAt(p []byte, off int64) (int, error) {
	return copy(s.buf[off:], p), nil
}
