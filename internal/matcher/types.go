// Package matcher implements the device-ID matcher (spec.md component
// C4): the four-phase algorithm that reconciles the rows of the devices
// file with the devices actually present on the system.
//
// Grounded on original_source/lib/device/device_id.c's
// device_ids_match/device_ids_validate/device_ids_find_device/check_serial
// handling. Phase C's search is throttled by a rate.Limiter and does not
// retry or back off.
package matcher

import "github.com/lvmteam/lvmcore/internal/deviceid"

// System is everything the matcher needs from the rest of the runtime:
// reading identifiers and PVIDs, lazily and with caching, and listing
// the devices currently visible to nodata filters. Keeping it as an
// interface here (rather than importing internal/devicecache directly)
// is what lets the four phases be unit tested against a fake without
// wiring up label scanning or a real filter chain.
type System interface {
	// DevnameExists reports whether devname currently resolves to a live
	// device (the Phase A cheap-success-path probe).
	DevnameExists(devname string) bool
	// ReadID lazily reads and caches idtype for devname. ok is false when
	// the type is unavailable for this device.
	ReadID(devname string, idtype deviceid.Type) (name string, ok bool)
	// ReadPVID returns the PVID label_scan found for devname, if any.
	ReadPVID(devname string) (pvid string, ok bool)
	// Candidates lists devnames that passed the nodata filters, in a
	// stable order, excluding any devname already excluded by the caller.
	Candidates() []string
	// DropFromCache purges devname from lvmcache — used when Phase B or D
	// determines a previously-bound device no longer belongs in this run.
	DropFromCache(devname string)
	// HasAnyStableID reports whether devname already exposes some
	// non-DEVNAME stable identifier, used by Phase C's "auto" search
	// policy to skip devices that wouldn't need devname-based search in
	// the first place.
	HasAnyStableID(devname string) bool
	// PreferredID returns the identifier type and name Phase C should
	// record for a newly found device, per the same preferred-order rule
	// used when a device is first added to the devices file.
	PreferredID(devname string) (idtype, idname string)
}

// SearchPolicy mirrors the search_for_devnames config setting consulted
// in Phase C.
type SearchPolicy int

const (
	SearchNone SearchPolicy = iota
	SearchAuto
	SearchAll
)

// Binding is the matcher's working record of one UseEntry's pairing to a
// device name. Provisional is true for a DEVNAME-type match that Phase B
// has not yet confirmed by PVID.
type Binding struct {
	Entry       int // index into the Entries slice passed to Run
	DevName     string
	Provisional bool
}

// stableIDType reports whether idtype names anything other than the
// DEVNAME fallback — i.e. whether an entry of this type is eligible for
// the Phase A "probe then iterate-and-cache" match, as opposed to the
// simple-name-lookup DEVNAME path.
func stableIDType(idtype string) bool {
	return idtype != "devname"
}
