// Package devicecache implements the process-wide device registry
// (dev_cache_scan): the concrete Device type, a scan that discovers
// block devices and labels them, and the adapters that let
// internal/matcher and internal/deviceid operate against real devices
// instead of their test fakes.
//
// Grounded on spec.md §3's Device/DevID data model and §2's
// dev_cache_scan -> devices_file_read -> device_ids_match -> filters
// pipeline; bounded concurrent scanning styled on
// fenio-tns-csi/pkg/driver/node_device.go's device-probing pattern.
package devicecache

import "github.com/lvmteam/lvmcore/internal/deviceid"

// ScanStatus records whether a device's label has been read this run.
type ScanStatus int

const (
	NotScanned ScanStatus = iota
	ScanFound              // a valid LVM label was found
	ScanNoLabel            // scanned, no LVM label present
	ScanError              // scan attempted and failed (I/O error, short read, ...)
)

// FilterStatus records a device's last nodata-filter verdict.
type FilterStatus int

const (
	FilterUnknown FilterStatus = iota
	FilterPassed
	FilterRejected
)

// MatchStatus records a device's devices-file matcher outcome for this
// run. No code in this module sets Device.Match; it stays MatchUnknown.
type MatchStatus int

const (
	MatchUnknown MatchStatus = iota
	MatchBound
	MatchProvisional
	MatchUnbound
)

// Device is a handle for one block device: its primary/partition
// numbers, its current devname, the PVID its label carries (empty if
// none), its scan/filter/match status flags, every devname alias it has
// ever been seen under, and every stable identifier this run has tried
// to read for it.
type Device struct {
	Major, Minor int
	PartNum      int
	DevName      string
	Aliases      []string
	PVID         string

	Scan   ScanStatus
	Filter FilterStatus
	Match  MatchStatus

	// IDs is ordered by the sequence identifiers were probed in, one
	// entry per deviceid.Type actually attempted (successful or not);
	// callers looking for "the" stable id for this device use
	// PreferredID, not this list directly.
	IDs []deviceid.DevID

	// VgName is the best-known VG attachment from a label-scan pass
	// with no mdas (lvmcache.Cache is authoritative once a full vg_read
	// has happened; this is only the hints-file-grade guess spec.md
	// §4.8 describes).
	VgName string

	// MDACount is how many metadata areas this PV's header lists.
	// ActiveMDACount excludes any area whose live RawLocn carries the
	// IGNORED flag (vgchange --metadataignore) or whose header sector
	// failed to decode — metadataignore does not shrink MDACount, only
	// ActiveMDACount, per spec.md §4.6.
	MDACount       int
	ActiveMDACount int
}

// idIndex returns the index of an existing DevID of type t, or -1.
func (d *Device) idIndex(t deviceid.Type) int {
	for i, id := range d.IDs {
		if id.Type == t {
			return i
		}
	}
	return -1
}

// RecordID appends or overwrites a DevID entry for type t.
func (d *Device) RecordID(t deviceid.Type, name string) {
	if i := d.idIndex(t); i >= 0 {
		d.IDs[i].Name = name
		return
	}
	d.IDs = append(d.IDs, deviceid.DevID{Type: t, Name: name})
}

// HasAnyStableID reports whether d carries any identifier other than
// the always-available Devname fallback.
func (d *Device) HasAnyStableID() bool {
	for _, id := range d.IDs {
		if id.Type != deviceid.Devname && !id.Absent() {
			return true
		}
	}
	return false
}
