// Package mda implements the PV-header/MDA engine (spec.md component
// C6): decoding the PvHeader and PvHeaderExt from a label sector,
// decoding each metadata area's MdaHeader, and the circular
// metadata-text buffer's read/write/precommit/commit/revert state
// machine.
//
// Grounded on original_source/lib/format_text/{format-text.c,
// text_label.c,layout.h} for the exact on-disk structures and the
// precommit/commit/revert protocol.
package mda

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/lvmteam/lvmcore/internal/crc32lvm"
	"github.com/lvmteam/lvmcore/internal/xlate"
)

const (
	// MdaHeaderSize is the fixed size of the sector an MdaHeader occupies.
	MdaHeaderSize = 512
	// mdaMagic is the 16-byte MDA header magic from spec.md §6.
	mdaMagic = " LVM2 x[5A%r0N*>"
	// mdaVersion is the only MdaHeader version this engine understands.
	mdaVersion = 1
	// RawLocnSize is the on-disk size of one RawLocn record.
	RawLocnSize = 32
	// numRawLocnSlots is the number of RawLocn slots in an MdaHeader:
	// slot 0 (live) and slot 1 (precommit).
	numRawLocnSlots = 2
	// rawLocnIgnored is the RawLocn.Flags bit marking a slot that must be
	// skipped for reads regardless of its offset/size.
	rawLocnIgnored = 1 << 0
)

var (
	ErrBadMagic      = errors.New("mda: bad MdaHeader magic")
	ErrBadVersion    = errors.New("mda: unsupported MdaHeader version")
	ErrBadCRC        = errors.New("mda: MdaHeader CRC mismatch")
	ErrBadStart      = errors.New("mda: MdaHeader start does not match area start")
	ErrRecordOverlap = errors.New("mda: new record would overlap the live record")
	ErrRecordTooBig  = errors.New("mda: record exceeds circular buffer capacity")
)

// AreaRef is a (offset, size) pair as found in a PvHeader's null-
// terminated data-area / metadata-area / bootloader-area arrays.
type AreaRef struct {
	Offset uint64
	Size   uint64
}

// PvHeader is the decoded V1 on-disk PV header (spec.md §3/§6).
type PvHeader struct {
	PVID        [32]byte
	DeviceSize  uint64
	DataAreas   []AreaRef
	MetadataAreas []AreaRef
}

// PvHeaderExt is the optional V2 extension following PvHeader when bytes
// remain after the metadata-area terminator.
type PvHeaderExt struct {
	Version         uint32
	Flags           uint32
	BootloaderAreas []AreaRef
}

// PV header extension flags (spec.md §3).
const (
	ExtRAIDMetadataBadblocksIgnored uint32 = 1 << 0
	ExtRestoreMissingPVAllowed     uint32 = 1 << 1
)

// DecodePvHeader reads a PvHeader (and, if present, a PvHeaderExt) from
// buf, which must start at the PvHeader's own offset within the label
// sector (internal/label.Label.PvHeaderBytes()).
func DecodePvHeader(buf []byte) (*PvHeader, *PvHeaderExt, error) {
	if len(buf) < 40 {
		return nil, nil, errors.New("mda: PvHeader buffer too short")
	}
	h := &PvHeader{}
	copy(h.PVID[:], buf[0:32])
	h.DeviceSize = xlate.LE64(buf[32:40])

	off := 40
	areas, off, err := readAreaList(buf, off)
	if err != nil {
		return nil, nil, fmt.Errorf("mda: data areas: %w", err)
	}
	h.DataAreas = areas

	areas, off, err = readAreaList(buf, off)
	if err != nil {
		return nil, nil, fmt.Errorf("mda: metadata areas: %w", err)
	}
	h.MetadataAreas = areas

	if off >= len(buf) || allZero(buf[off:]) {
		return h, nil, nil
	}

	ext := &PvHeaderExt{}
	if off+8 > len(buf) {
		return h, nil, nil
	}
	ext.Version = xlate.LE32(buf[off : off+4])
	ext.Flags = xlate.LE32(buf[off+4 : off+8])
	off += 8

	bootAreas, _, err := readAreaList(buf, off)
	if err != nil {
		return nil, nil, fmt.Errorf("mda: bootloader areas: %w", err)
	}
	ext.BootloaderAreas = bootAreas

	return h, ext, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// readAreaList reads a null-terminated array of (offset,size) pairs
// (16 bytes each) starting at buf[off], returning the areas and the
// offset just past the terminating zero pair.
func readAreaList(buf []byte, off int) ([]AreaRef, int, error) {
	var areas []AreaRef
	for {
		if off+16 > len(buf) {
			return nil, 0, errors.New("mda: area list runs past buffer end")
		}
		areaOff := xlate.LE64(buf[off : off+8])
		areaSize := xlate.LE64(buf[off+8 : off+16])
		off += 16
		if areaOff == 0 && areaSize == 0 {
			return areas, off, nil
		}
		areas = append(areas, AreaRef{Offset: areaOff, Size: areaSize})
	}
}

// RawLocn is one metadata-record descriptor within an MdaHeader (spec.md
// §3/§6): 32 bytes, offset/size/checksum/flags.
type RawLocn struct {
	Offset   uint64
	Size     uint64
	Checksum uint32
	Flags    uint32
}

// Ignored reports whether the IGNORED bit is set — a slot in this state
// carries no usable metadata regardless of Offset/Size.
func (r RawLocn) Ignored() bool { return r.Flags&rawLocnIgnored != 0 }

// Empty reports whether this is an all-zero (unused) slot.
func (r RawLocn) Empty() bool { return r == RawLocn{} }

func decodeRawLocn(b []byte) RawLocn {
	return RawLocn{
		Offset:   xlate.LE64(b[0:8]),
		Size:     xlate.LE64(b[8:16]),
		Checksum: xlate.LE32(b[16:20]),
		Flags:    xlate.LE32(b[20:24]),
	}
}

func encodeRawLocn(r RawLocn, b []byte) {
	xlate.PutLE64(b[0:8], r.Offset)
	xlate.PutLE64(b[8:16], r.Size)
	xlate.PutLE32(b[16:20], r.Checksum)
	xlate.PutLE32(b[20:24], r.Flags)
}

// Header is the decoded 512-byte MdaHeader sitting at the start of each
// metadata area.
type Header struct {
	Start uint64 // absolute start byte of the MDA area
	Size  uint64 // MDA area size in bytes
	Live       RawLocn // slot 0
	Precommit  RawLocn // slot 1
}

// DecodeHeader parses and validates a 512-byte MdaHeader sector.
// areaStart is the area's own absolute start byte (from the PvHeader's
// metadata-area list), checked against the header's own Start field.
func DecodeHeader(sec []byte, areaStart uint64) (*Header, error) {
	if len(sec) != MdaHeaderSize {
		return nil, fmt.Errorf("mda: header sector must be %d bytes, got %d", MdaHeaderSize, len(sec))
	}
	storedCRC := xlate.LE32(sec[0:4])
	if crc32lvm.Checksum(sec[4:MdaHeaderSize]) != storedCRC {
		return nil, ErrBadCRC
	}
	if !bytes.Equal(sec[4:20], []byte(mdaMagic)) {
		return nil, ErrBadMagic
	}
	if v := xlate.LE32(sec[20:24]); v != mdaVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}

	h := &Header{
		Start: xlate.LE64(sec[24:32]),
		Size:  xlate.LE64(sec[32:40]),
	}
	if h.Start != areaStart {
		return nil, ErrBadStart
	}

	h.Live = decodeRawLocn(sec[40 : 40+RawLocnSize])
	h.Precommit = decodeRawLocn(sec[40+RawLocnSize : 40+2*RawLocnSize])
	return h, nil
}

// Encode serialises h back into a 512-byte sector, computing a fresh
// header CRC over bytes 4..end.
func (h *Header) Encode() []byte {
	sec := make([]byte, MdaHeaderSize)
	copy(sec[4:20], []byte(mdaMagic))
	xlate.PutLE32(sec[20:24], mdaVersion)
	xlate.PutLE64(sec[24:32], h.Start)
	xlate.PutLE64(sec[32:40], h.Size)
	encodeRawLocn(h.Live, sec[40:40+RawLocnSize])
	encodeRawLocn(h.Precommit, sec[40+RawLocnSize:40+2*RawLocnSize])

	crc := crc32lvm.Checksum(sec[4:MdaHeaderSize])
	xlate.PutLE32(sec[0:4], crc)
	return sec
}
