// Package lvmcache implements the process-wide PV/VG attachment cache
// (spec.md component C7): three hash maps keyed by PVID/VGID/vgname, a
// vgname-granularity lock table, and the duplicate-PVID resolution
// policy applied when two live devices claim the same PVID.
//
// Grounded on original_source/lib/cache/lvmcache.c
// (vginfo_from_vgname/vginfo_from_vgid/info_from_pvid,
// lvmcache_update_vgname_and_id, lvmcache_add's duplicate-PV handling).
package lvmcache

// OrphanVGName is the well-known sentinel vgname every PvInfo not
// attached to a real VG belongs to, per spec.md §4.7's "orphan VG has a
// well-known sentinel vgname" invariant.
const OrphanVGName = ""

// PvInfo is one physical volume's cache entry: the device name backing
// it, its PVID, and the VgInfo it is currently attached to.
type PvInfo struct {
	DevName string
	PVID    string
	VgInfo  *VgInfo

	// devMajor is the device's major number, recorded at Attach time so
	// a later duplicate-PVID arbitration can compare it against the
	// major of a newly seen competing device without the cache needing
	// to re-stat anything.
	devMajor int

	// mdaCount/activeMdaCount are this PV's own metadata-area counts, as
	// read from its header; VgInfo.MDACount/ActiveMDACount are the sum
	// of these across every PV currently attached to that VG.
	mdaCount       int
	activeMdaCount int
}

// VgInfo is one volume group's cache entry: its name and ID, and the
// set of PVs currently attached to it.
type VgInfo struct {
	VgName string
	VgID   string
	PVs    []*PvInfo

	// MDACount and ActiveMDACount track the VG's total metadata areas
	// versus those not carrying the MdaHeader IGNORED flag: an ignored
	// MDA is still counted towards MDACount (vgchange --metadataignore
	// does not shrink the VG's MDA count) but excluded from
	// ActiveMDACount, which read/write paths use to pick a live MDA.
	MDACount       int
	ActiveMDACount int
}

// detach removes pv from this VgInfo's PV list. It does not touch
// pv.VgInfo — callers update that themselves as part of the attach/
// detach protocol.
func (v *VgInfo) detach(pv *PvInfo) {
	for i, p := range v.PVs {
		if p == pv {
			v.PVs = append(v.PVs[:i], v.PVs[i+1:]...)
			return
		}
	}
}
