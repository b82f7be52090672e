// Package label implements the label scanner (spec.md component C5): it
// finds the LVM label sector within the first 4 KB of a device and hands
// its payload off to the PV-header decoder (internal/mda).
//
// Grounded on original_source/lib/label/label.c's sector-scan loop and
// CRC/offset validation.
package label

import (
	"bytes"
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/lvmteam/lvmcore/internal/crc32lvm"
	"github.com/lvmteam/lvmcore/internal/xlate"
)

const (
	// SectorSize is the fixed 512-byte sector size LVM labels use.
	SectorSize = 512
	// ScanSize is the area read from the start of a device to search for
	// a label: the first 4 sectors.
	ScanSize = 4 * SectorSize
	// MaxLabelSector is the highest sector index a label may occupy.
	MaxLabelSector = 3

	magic       = "LABELONE"
	payloadType = "LVM2 001"
)

// Static errors.
var (
	ErrNoLabel          = errors.New("label: no LVM label found in scan area")
	ErrUnknownPayload   = errors.New("label: unrecognised payload type")
	ErrMultipleCandidates = errors.New("label: multiple label candidates found")
)

// Label is the decoded contents of the 512-byte label sector (spec.md
// §3/§6): the magic, the sector this label occupies, the byte offset of
// its payload within the sector, and the raw payload type and sector
// bytes needed by the PV-header decoder.
type Label struct {
	Sector       uint64
	PayloadOffset uint32
	PayloadType  string
	SectorBytes  [SectorSize]byte
}

// Scan reads the first ScanSize bytes of a device (via readAt) and
// returns the single valid label found among sectors 0..MaxLabelSector.
// Per spec.md §4.5, at most one label is expected; if more than one
// sector independently validates (a malformed or maliciously crafted
// device), the first one found is used and the rest are logged and
// discarded — duplicates are not a hard error.
func Scan(readAt func(off int64, buf []byte) (int, error)) (*Label, error) {
	area := make([]byte, ScanSize)
	if _, err := readAt(0, area); err != nil {
		return nil, fmt.Errorf("label: reading scan area: %w", err)
	}

	var found *Label
	duplicates := 0
	for sector := 0; sector <= MaxLabelSector; sector++ {
		start := sector * SectorSize
		sec := area[start : start+SectorSize]
		if !bytes.Equal(sec[0:8], []byte(magic)) {
			continue
		}

		l, ok := decodeCandidate(sec, uint64(sector))
		if !ok {
			continue
		}
		if found == nil {
			found = l
		} else {
			duplicates++
		}
	}

	if duplicates > 0 {
		klog.Warningf("label: %d duplicate label candidate(s) found, using sector %d", duplicates, found.Sector)
	}
	if found == nil {
		return nil, ErrNoLabel
	}
	if found.PayloadType != payloadType {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayload, found.PayloadType)
	}
	return found, nil
}

// decodeCandidate validates one sector-sized buffer as a label: the
// sector-number field must equal the sector it was actually found at,
// and the CRC over bytes 20..end-of-sector must match the stored value.
func decodeCandidate(sec []byte, actualSector uint64) (*Label, bool) {
	sectorField := xlate.LE64(sec[8:16])
	if sectorField != actualSector {
		return nil, false
	}

	storedCRC := xlate.LE32(sec[16:20])
	computed := crc32lvm.Checksum(sec[20:SectorSize])
	if computed != storedCRC {
		return nil, false
	}

	l := &Label{
		Sector:        actualSector,
		PayloadOffset: xlate.LE32(sec[20:24]),
		PayloadType:   string(bytes.TrimRight(sec[24:32], "\x00")),
	}
	copy(l.SectorBytes[:], sec)
	return l, true
}

// PvHeaderBytes returns the bytes of the label sector starting at the
// payload offset, ready for internal/mda to decode as a PvHeader.
func (l *Label) PvHeaderBytes() []byte {
	if int(l.PayloadOffset) >= SectorSize {
		return nil
	}
	return l.SectorBytes[l.PayloadOffset:]
}
