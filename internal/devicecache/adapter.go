package devicecache

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/lvmteam/lvmcore/internal/deviceid"
)

// Adapter wires Cache, a deviceid.Reader, and the MajorNumbers table into
// internal/matcher's System and SerialReader interfaces, so the matcher's
// four phases can run against real devices without importing this
// package and without any OS-level code of their own. lvmcache detachment
// stays the caller's job: lvmcache is keyed by PVID, which Phase B/D
// already hold when they call DropFromCache, so this adapter only needs
// to forget its own Device entry.
type Adapter struct {
	cache  *Cache
	idr    deviceid.Reader
	majors deviceid.MajorNumbers
	candMu sync.Mutex
	cand   []string // memoised Candidates() snapshot, reset by Reset
}

// NewAdapter returns an Adapter backed by c.
func NewAdapter(c *Cache, idr deviceid.Reader, majors deviceid.MajorNumbers) *Adapter {
	return &Adapter{cache: c, idr: idr, majors: majors}
}

// Reset clears the memoised Candidates() snapshot, forcing the next
// call to recompute it from the current Cache contents. Callers do this
// once per devices-file reconciliation run.
func (a *Adapter) Reset() {
	a.candMu.Lock()
	defer a.candMu.Unlock()
	a.cand = nil
}

func (a *Adapter) DevnameExists(devname string) bool {
	_, ok := a.cache.Get(devname)
	return ok
}

func (a *Adapter) ReadID(devname string, idtype deviceid.Type) (string, bool) {
	d, ok := a.cache.Get(devname)
	if !ok {
		return "", false
	}
	for _, id := range d.IDs {
		if id.Type == idtype {
			if id.Absent() {
				return "", false
			}
			return id.Name, true
		}
	}
	id, ok := deviceid.ReadID(a.idr, devname, idtype)
	d.RecordID(idtype, id.Name)
	if !ok {
		return "", false
	}
	return id.Name, true
}

func (a *Adapter) ReadPVID(devname string) (string, bool) {
	d, ok := a.cache.Get(devname)
	if !ok || d.Scan != ScanFound || d.PVID == "" {
		return "", false
	}
	return d.PVID, true
}

// Candidates lists every devname that survived the nodata filter stage
// during Cache.Scan, i.e. every Device the cache currently holds whose
// Scan status is not ScanError. Order is not guaranteed beyond being
// stable across repeated calls within one Reset cycle.
func (a *Adapter) Candidates() []string {
	a.candMu.Lock()
	defer a.candMu.Unlock()
	if a.cand != nil {
		return a.cand
	}
	var out []string
	for _, name := range a.cache.All() {
		d, ok := a.cache.Get(name)
		if ok && d.Scan != ScanError {
			out = append(out, name)
		}
	}
	a.cand = out
	return out
}

// AllDeviceNames is Candidates without the ScanError exclusion, per
// matcher.SerialReader's "enumerate every device" contract.
func (a *Adapter) AllDeviceNames() []string {
	return a.cache.All()
}

func (a *Adapter) ReadSerial(devname string) (string, bool) {
	return a.ReadID(devname, deviceid.SysSerial)
}

// DropFromCache purges devname from the device registry. lvmcache itself
// is keyed by PVID rather than devname, so the matcher's Phase B/D — which
// already hold the PVID being dropped — detach it from lvmcache directly
// via lvmcache.Cache.Detach; this only needs to forget the Device.
func (a *Adapter) DropFromCache(devname string) {
	a.cache.Drop(devname)
	klog.V(3).Infof("devicecache: dropped %s from cache", devname)
}

func (a *Adapter) HasAnyStableID(devname string) bool {
	d, ok := a.cache.Get(devname)
	if !ok {
		return false
	}
	if d.HasAnyStableID() {
		return true
	}
	id, ok := deviceid.ReadPreferredID(a.idr, devname, a.majors)
	if !ok || id.Type == deviceid.Devname {
		return false
	}
	d.RecordID(id.Type, id.Name)
	return true
}

func (a *Adapter) PreferredID(devname string) (string, string) {
	id, _ := deviceid.ReadPreferredID(a.idr, devname, a.majors)
	d, ok := a.cache.Get(devname)
	if ok {
		d.RecordID(id.Type, id.Name)
	}
	return id.Type.String(), id.Name
}
