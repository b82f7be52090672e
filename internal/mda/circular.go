package mda

import "github.com/lvmteam/lvmcore/internal/crc32lvm"

// Ring describes the circular metadata-text region of one MDA: the
// bytes available for records are [Start+MdaHeaderSize, Start+Size),
// i.e. a ring of length Size-MdaHeaderSize whose logical zero point is
// MdaHeaderSize bytes into the area. All offsets in this file's
// exported functions (RawLocn.Offset included) are relative to Start,
// not absolute device addresses — Start is only added at the point an
// actual readAt/writeAt call is made.
type Ring struct {
	Start uint64 // area.start, absolute device byte offset
	Size  uint64 // area.size
}

// capacity is the usable ring length: the area minus its header sector.
func (r Ring) capacity() uint64 { return r.Size - MdaHeaderSize }

// wrap maps a relative offset (relative to Start, may be any multiple of
// the ring's capacity past MdaHeaderSize) back into [MdaHeaderSize, Size).
func (r Ring) wrap(relOff uint64) uint64 {
	cap := r.capacity()
	rel := (relOff - MdaHeaderSize) % cap
	return MdaHeaderSize + rel
}

// Read extracts the record described by loc from the ring, given readAt
// reading absolute device bytes, handling wraparound by issuing up to
// two reads and reassembling the logical byte order. It verifies the
// record's checksum against loc.Checksum.
func Read(r Ring, loc RawLocn, readAt func(off int64, buf []byte) (int, error)) ([]byte, error) {
	if loc.Empty() || loc.Ignored() {
		return nil, nil
	}
	if loc.Size > r.capacity() {
		return nil, ErrRecordTooBig
	}

	buf := make([]byte, loc.Size)
	start := r.wrap(loc.Offset)
	firstLen := r.Size - start
	if firstLen > loc.Size {
		firstLen = loc.Size
	}

	if _, err := readAt(int64(r.Start+start), buf[:firstLen]); err != nil {
		return nil, err
	}
	if firstLen < loc.Size {
		tailStart := int64(r.Start + MdaHeaderSize)
		if _, err := readAt(tailStart, buf[firstLen:]); err != nil {
			return nil, err
		}
	}

	if crc32lvm.Checksum(buf) != loc.Checksum {
		return nil, ErrBadCRC
	}
	return buf, nil
}

// NextRecordStart rounds off+size up to the next sector boundary and
// wraps it into the ring, giving the relative offset a following record
// should be written at (spec.md §4.6: "round offset+size up to the next
// sector, and wrap"). An empty current record (off==0, size==0, i.e. no
// live record yet) starts the very first record at MdaHeaderSize, the
// ring's logical zero point.
func NextRecordStart(r Ring, off, size uint64) uint64 {
	if off == 0 && size == 0 {
		return MdaHeaderSize
	}
	const sector = 512
	end := off + size
	rounded := ((end + sector - 1) / sector) * sector
	return r.wrap(rounded)
}

// Write serialises data into the ring starting at the relative offset
// off, handling wraparound with a second aligned write for the tail, and
// returns the RawLocn describing the written record (with a freshly
// computed checksum). It rejects writes that would collide with the
// current live record or that don't fit the ring.
func Write(r Ring, off uint64, data []byte, live RawLocn, writeAt func(off int64, buf []byte) (int, error)) (RawLocn, error) {
	size := uint64(len(data))
	if size > r.capacity() {
		return RawLocn{}, ErrRecordTooBig
	}

	start := r.wrap(off)
	if recordsOverlap(start, size, r, live) {
		return RawLocn{}, ErrRecordOverlap
	}

	firstLen := r.Size - start
	if firstLen > size {
		firstLen = size
	}
	if _, err := writeAt(int64(r.Start+start), data[:firstLen]); err != nil {
		return RawLocn{}, err
	}
	if firstLen < size {
		tailStart := int64(r.Start + MdaHeaderSize)
		if _, err := writeAt(tailStart, data[firstLen:]); err != nil {
			return RawLocn{}, err
		}
	}

	return RawLocn{
		Offset:   off,
		Size:     size,
		Checksum: crc32lvm.Checksum(data),
	}, nil
}

// recordsOverlap reports whether a new record of (start,size) within the
// ring would collide with the live record's byte range. Both ranges are
// expressed relative to the ring's logical zero (MdaHeaderSize) so they
// can run from 0 up to capacity; a record that itself wraps is checked
// against a second lap of the live interval (and vice versa) so a
// collision spanning the seam is still caught.
func recordsOverlap(newStart, newSize uint64, r Ring, live RawLocn) bool {
	if live.Empty() || live.Size == 0 {
		return false
	}
	liveStart := r.wrap(live.Offset)
	cap := r.capacity()

	a0 := newStart - MdaHeaderSize
	a1 := a0 + newSize
	b0 := liveStart - MdaHeaderSize
	b1 := b0 + live.Size

	overlaps := func(s0, e0, s1, e1 uint64) bool {
		return s0 < e1 && s1 < e0
	}
	return overlaps(a0, a1, b0, b1) ||
		overlaps(a0, a1, b0+cap, b1+cap) ||
		overlaps(a0+cap, a1+cap, b0, b1)
}
