// Package xlate provides explicit fixed-width byte-order accessors for the
// on-disk structures decoded elsewhere in this module.
//
// Only little-endian is exercised by format-text (the only labeller in
// scope); the big-endian helpers exist because the on-disk byte order of
// PV metadata is bimodal across the lvm2 family (format1 used big-endian)
// and a structured decoder with an explicit order per field is clearer
// than a raw cast, per spec.md's design notes.
package xlate

import "encoding/binary"

// LE16 reads a little-endian uint16 at the start of b.
func LE16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

// LE32 reads a little-endian uint32 at the start of b.
func LE32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// LE64 reads a little-endian uint64 at the start of b.
func LE64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// PutLE16 writes v as little-endian into b.
func PutLE16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }

// PutLE32 writes v as little-endian into b.
func PutLE32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// PutLE64 writes v as little-endian into b.
func PutLE64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// BE16 reads a big-endian uint16 at the start of b.
func BE16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

// BE32 reads a big-endian uint32 at the start of b.
func BE32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// BE64 reads a big-endian uint64 at the start of b.
func BE64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// PutBE32 writes v as big-endian into b.
func PutBE32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
