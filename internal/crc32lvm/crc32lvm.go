// Package crc32lvm computes the CRC-32 variant used throughout the LVM2
// on-disk format: the standard reflected IEEE 802.3 polynomial (identical
// table to zlib's crc32), but seeded with a non-standard initial value and
// without the final XOR that zlib applies. It protects labels, MDA
// headers, metadata records, and the devices-file HASH comment.
package crc32lvm

import "hash/crc32"

// Initial is the seed every LVM CRC computation starts from.
const Initial uint32 = 0xf597a6cf

// Calc runs the LVM CRC-32 over data, continuing from a running value of
// initial. Pass crc32lvm.Initial to start a fresh computation.
func Calc(initial uint32, data []byte) uint32 {
	return ^crc32.Update(^initial, crc32.IEEETable, data)
}

// Checksum is Calc(Initial, data) — the common case of computing a CRC
// over a single contiguous buffer.
func Checksum(data []byte) uint32 {
	return Calc(Initial, data)
}
