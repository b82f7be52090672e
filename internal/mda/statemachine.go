package mda

import "k8s.io/klog/v2"

// State is one node of the per-MDA write-path state machine (spec.md
// §4.6): CLEAN -> DIRTY -> PRECOMMITTED -> CLEAN, with a revert edge back
// to CLEAN from either DIRTY or PRECOMMITTED.
type State int

const (
	Clean State = iota
	Dirty
	Precommitted
)

// Context is the per-MDA runtime state the write path threads across
// Write/Precommit/Commit/Revert: the decoded header, the area's ring
// geometry, the I/O callbacks, and the cached RawLocn of a record staged
// but not yet committed.
type Context struct {
	Ring   Ring
	Header *Header
	ReadAt  func(off int64, buf []byte) (int, error)
	WriteAt func(off int64, buf []byte) (int, error)

	state  State
	cached RawLocn // the staged record, valid once state != Clean
}

// NewContext constructs a Context for one metadata area, given its
// already-decoded header and I/O callbacks bound to the underlying
// device.
func NewContext(ring Ring, hdr *Header, readAt, writeAt func(off int64, buf []byte) (int, error)) *Context {
	return &Context{Ring: ring, Header: hdr, ReadAt: readAt, WriteAt: writeAt, state: Clean}
}

// State reports the context's current write-path state.
func (c *Context) State() State { return c.state }

// Write serialises vgText into the next free position in the ring and
// caches the resulting RawLocn, without touching the on-disk header —
// the header is only rewritten at Precommit/Commit/Revert time. On any
// failure the cached record is dropped so a retried Write re-serialises
// from scratch, per spec.md §4.6's failure-handling note.
func (c *Context) Write(vgText []byte) error {
	off := NextRecordStart(c.Ring, c.Header.Live.Offset, c.Header.Live.Size)
	loc, err := Write(c.Ring, off, vgText, c.Header.Live, c.WriteAt)
	if err != nil {
		c.cached = RawLocn{}
		c.state = Clean
		return err
	}
	c.cached = loc
	c.state = Dirty
	return nil
}

// Precommit stages the cached record into slot 1 (precommit) of the MDA
// header and rewrites the header with a fresh CRC.
func (c *Context) Precommit() error {
	if c.state != Dirty {
		return errState(c.state, Dirty)
	}
	prev := c.Header.Precommit
	c.Header.Precommit = c.cached
	if err := c.writeHeader(); err != nil {
		c.Header.Precommit = prev
		c.cached = RawLocn{}
		c.state = Clean
		return err
	}
	c.state = Precommitted
	return nil
}

// Commit promotes the cached (precommitted) record into slot 0 (live),
// clears slot 1, and rewrites the header.
func (c *Context) Commit() error {
	if c.state != Precommitted {
		return errState(c.state, Precommitted)
	}
	prevLive, prevPre := c.Header.Live, c.Header.Precommit
	c.Header.Live = c.cached
	c.Header.Precommit = RawLocn{}
	if err := c.writeHeader(); err != nil {
		c.Header.Live, c.Header.Precommit = prevLive, prevPre
		c.cached = RawLocn{}
		c.state = Clean
		return err
	}
	c.cached = RawLocn{}
	c.state = Clean
	return nil
}

// Revert discards the cached record, clears slot 1 if it was staged, and
// rewrites the header. It is valid from Dirty or Precommitted.
func (c *Context) Revert() error {
	if c.state == Clean {
		return nil
	}
	prevPre := c.Header.Precommit
	c.Header.Precommit = RawLocn{}
	if err := c.writeHeader(); err != nil {
		c.Header.Precommit = prevPre
		return err
	}
	c.cached = RawLocn{}
	c.state = Clean
	return nil
}

func (c *Context) writeHeader() error {
	sec := c.Header.Encode()
	_, err := c.WriteAt(int64(c.Ring.Start), sec)
	return err
}

func errState(got, want State) error {
	names := map[State]string{Clean: "clean", Dirty: "dirty", Precommitted: "precommitted"}
	klog.V(4).Infof("mda: invalid state transition, have %s want %s", names[got], names[want])
	return &stateError{got: names[got], want: names[want]}
}

type stateError struct{ got, want string }

func (e *stateError) Error() string {
	return "mda: invalid transition from " + e.got + ", expected " + e.want
}
