package lvmcache

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/lvmteam/lvmcore/internal/deviceid"
	"github.com/lvmteam/lvmcore/pkg/metrics"
)

// Cache is the process-wide PV/VG attachment table (spec.md §4.7): three
// hash maps keyed by PVID/VGID/vgname, a list of VgInfo in "orphan VG
// last" iteration order, and a vgname-granularity lock table. All
// methods are safe for concurrent use.
type Cache struct {
	mu sync.Mutex

	pvidMap   map[string]*PvInfo
	vgidMap   map[string]*VgInfo
	vgnameMap map[string]*VgInfo
	vginfos   []*VgInfo // real VGs first (prepended), orphan VG appended last

	// Locks is lvmcache's lock_map: vgname-granularity advisory locks,
	// exposed as its own type so callers take it explicitly rather than
	// going through ad hoc Cache methods.
	Locks *LockTable

	majors           deviceid.MajorNumbers
	hasDuplicateDevs bool
}

// New returns an empty Cache. majors is used by the duplicate-PVID
// policy to recognise md-raid and device-mapper devices by major
// number (original_source/lib/cache/lvmcache.c's md_major()/
// dm_is_dm_major() checks).
func New(majors deviceid.MajorNumbers) *Cache {
	return &Cache{
		pvidMap:   make(map[string]*PvInfo),
		vgidMap:   make(map[string]*VgInfo),
		vgnameMap: make(map[string]*VgInfo),
		Locks:     NewLockTable(),
		majors:    majors,
	}
}

// PvInfoByPVID looks up the cache entry for pvid, if any.
func (c *Cache) PvInfoByPVID(pvid string) (*PvInfo, bool) {
	c.mu.Lock()
	pv, ok := c.pvidMap[pvid]
	c.mu.Unlock()
	if ok {
		metrics.RecordCacheLookup(metrics.CacheHit)
	} else {
		metrics.RecordCacheLookup(metrics.CacheMiss)
	}
	return pv, ok
}

// VgInfoByVgname looks up a VG's cache entry by name.
func (c *Cache) VgInfoByVgname(vgname string) (*VgInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vg, ok := c.vgnameMap[vgname]
	return vg, ok
}

// VgInfoByVgid looks up a VG's cache entry by its ID.
func (c *Cache) VgInfoByVgid(vgid string) (*VgInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vg, ok := c.vgidMap[vgid]
	return vg, ok
}

// Vginfos returns the current VG list in iteration order: real VGs in
// most-recently-added-first order, with the orphan VG always last, per
// spec.md §4.7 ("readers visiting by insertion order always see real
// VGs first").
func (c *Cache) Vginfos() []*VgInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*VgInfo, len(c.vginfos))
	copy(out, c.vginfos)
	return out
}

// HasDuplicateDevs reports whether a duplicate-PVID resolution has
// occurred during this cache's lifetime — callers consult this to force
// an empty hints-file emission per spec.md §4.8.
func (c *Cache) HasDuplicateDevs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasDuplicateDevs
}

// isMdMajor/isDmMajor classify a device's major number. The major
// itself is supplied by the caller (device scanning owns stat(2); this
// package only compares the numbers against the configured majors).
func isMdMajor(major int, m deviceid.MajorNumbers) bool { return major == m.MD }
func isDmMajor(major int, m deviceid.MajorNumbers) bool { return major == m.DeviceMapper }

// Attach records that devname (with the given major number, used only
// for duplicate-PVID arbitration) holds pvid. If another live device
// already claims pvid, the duplicate-PVID policy from spec.md §4.7
// decides which device wins the cache slot:
//
//   - an md-raid major beats a non-md major
//   - otherwise a device-mapper major beats a non-dm major
//   - otherwise the existing entry is replaced by the new device, and a
//     sticky has_duplicate_devs flag is set (this also happens when the
//     md/dm rules explicitly prefer the new device over an old one of
//     a plain major).
//
// The losing device's devname is returned so the caller can decide
// whether to still track it outside the PVID cache.
func (c *Cache) Attach(devname string, major int, pvid string) (loserDevName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.pvidMap[pvid]
	if ok && existing.DevName != devname {
		keepExisting, dup := c.resolveDuplicate(existing, devname, major)
		if dup {
			c.hasDuplicateDevs = true
			metrics.RecordDuplicateDevs()
		}
		if keepExisting {
			return devname
		}
		// the new device wins: detach the PVID slot from its old
		// devname but keep its VgInfo attachment, which the caller
		// will normally re-home in the same update pass.
		loserDevName = existing.DevName
		existing.DevName = devname
		existing.devMajor = major
		c.pvidMap[pvid] = existing
		return loserDevName
	}

	if !ok {
		existing = &PvInfo{DevName: devname, PVID: pvid, devMajor: major}
		c.pvidMap[pvid] = existing
	} else {
		existing.devMajor = major
	}
	return ""
}

// resolveDuplicate implements lvmcache_add's duplicate-PV major-number
// arbitration. It returns (keepExisting, isDuplicate): keepExisting is
// true when the existing cache entry's device should be kept over the
// new one; isDuplicate is true whenever the two devices are genuinely
// different devices claiming the same PVID (even when the outcome is
// an unambiguous md/dm preference), since spec.md only exempts the
// cache from flagging a duplicate when there is no competing device at
// all.
func (c *Cache) resolveDuplicate(existing *PvInfo, newDevName string, newMajor int) (keepExisting, isDuplicate bool) {
	existingMajor := existing.devMajor
	switch {
	case isMdMajor(existingMajor, c.majors) && !isMdMajor(newMajor, c.majors):
		klog.V(2).Infof("lvmcache: ignoring duplicate PV %s on %s, using md device %s",
			existing.PVID, newDevName, existing.DevName)
		return true, true
	case isDmMajor(existingMajor, c.majors) && !isDmMajor(newMajor, c.majors):
		klog.V(2).Infof("lvmcache: ignoring duplicate PV %s on %s, using dm device %s",
			existing.PVID, newDevName, existing.DevName)
		return true, true
	case !isMdMajor(existingMajor, c.majors) && isMdMajor(newMajor, c.majors):
		klog.V(2).Infof("lvmcache: duplicate PV %s on %s, preferring md device %s",
			existing.PVID, existing.DevName, newDevName)
		return false, true
	case !isDmMajor(existingMajor, c.majors) && isDmMajor(newMajor, c.majors):
		klog.V(2).Infof("lvmcache: duplicate PV %s on %s, preferring dm device %s",
			existing.PVID, existing.DevName, newDevName)
		return false, true
	default:
		klog.Warningf("lvmcache: found duplicate PV %s, using %s not %s",
			existing.PVID, newDevName, existing.DevName)
		return false, true
	}
}

// SetMdaCounts records a PV's own metadata-area counts (from its
// decoded header) and refreshes its VG's aggregate MDACount/
// ActiveMDACount, per spec.md §4.6/§4.7: an ignored MDA still counts
// toward the VG's MDACount, only ActiveMDACount excludes it. A PVID not
// yet in the cache is ignored; a cached PV not yet attached to a VG only
// records its own counts, for when it is attached later.
func (c *Cache) SetMdaCounts(pvid string, total, active int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pv, ok := c.pvidMap[pvid]
	if !ok {
		return
	}
	pv.mdaCount = total
	pv.activeMdaCount = active
	if pv.VgInfo != nil {
		recomputeMdaCounts(pv.VgInfo)
	}
}

// recomputeMdaCounts resums a VgInfo's MDACount/ActiveMDACount from its
// current PV list, called whenever a PV's own counts change or a PV is
// attached to/detached from the VG.
func recomputeMdaCounts(vg *VgInfo) {
	vg.MDACount, vg.ActiveMDACount = 0, 0
	for _, pv := range vg.PVs {
		vg.MDACount += pv.mdaCount
		vg.ActiveMDACount += pv.activeMdaCount
	}
}

// Detach removes pvid's cache entry entirely, detaching it from its
// VgInfo first and garbage-collecting that VgInfo if it was the last PV
// attached. Used when a device is dropped from the cache (matcher Phase
// B/D) or its PVID is about to be rewritten.
func (c *Cache) Detach(pvid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pv, ok := c.pvidMap[pvid]
	if !ok {
		return
	}
	c.detachFromVG(pv)
	delete(c.pvidMap, pvid)
}

// AttachVG implements lvmcache_update_vgname_and_id: moves pv to the
// VgInfo named vgname (creating it if necessary), detaching it from any
// previous VgInfo first and garbage-collecting that VgInfo when it
// drops to zero PVs. An empty vgname means the orphan VG.
func (c *Cache) AttachVG(pvid, vgname, vgid string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pv, ok := c.pvidMap[pvid]
	if !ok {
		pv = &PvInfo{PVID: pvid}
		c.pvidMap[pvid] = pv
	}

	if pv.VgInfo != nil && pv.VgInfo.VgName == vgname {
		if vgid != "" && pv.VgInfo.VgID != vgid {
			c.reindexVgid(pv.VgInfo, vgid)
		}
		return
	}

	c.detachFromVG(pv)

	vg, ok := c.vgnameMap[vgname]
	if !ok {
		vg = &VgInfo{VgName: vgname}
		c.vgnameMap[vgname] = vg
		if vgname == OrphanVGName {
			c.vginfos = append(c.vginfos, vg)
		} else {
			c.vginfos = append([]*VgInfo{vg}, c.vginfos...)
		}
	}
	if vgid != "" {
		c.reindexVgid(vg, vgid)
	}

	vg.PVs = append(vg.PVs, pv)
	pv.VgInfo = vg
	recomputeMdaCounts(vg)
}

func (c *Cache) reindexVgid(vg *VgInfo, vgid string) {
	if vg.VgID != "" {
		delete(c.vgidMap, vg.VgID)
	}
	vg.VgID = vgid
	c.vgidMap[vgid] = vg
}

// detachFromVG removes pv from its current VgInfo (if any) and drops
// that VgInfo's vgname/vgid index entries once it has no PVs left,
// mirroring _drop_vginfo.
func (c *Cache) detachFromVG(pv *PvInfo) {
	vg := pv.VgInfo
	if vg == nil {
		return
	}
	vg.detach(pv)
	pv.VgInfo = nil
	recomputeMdaCounts(vg)
	if len(vg.PVs) == 0 {
		delete(c.vgnameMap, vg.VgName)
		if vg.VgID != "" {
			delete(c.vgidMap, vg.VgID)
		}
		for i, v := range c.vginfos {
			if v == vg {
				c.vginfos = append(c.vginfos[:i], c.vginfos[i+1:]...)
				break
			}
		}
	}
}
