// Package lvmctx defines Context, the single object threaded as the
// first argument through every public operation in this module (spec.md
// §9's "no module-level globals" rule): the device registry, the VG/PV
// metadata cache, the hints store, and a Diagnostics accumulator
// for the Inconsistency-kind conditions spec.md §7's policy table says
// should downgrade downstream behavior to a safe default rather than
// fail the run.
//
// Grounded on spec.md §4.7's has_duplicate_devs global flag, generalized
// here into a small typed flag set per SPEC_FULL.md's "Supplementary
// type: Diagnostics" note, and on fenio-tns-csi's driver struct, which
// threads its clients and config as fields rather than package globals.
package lvmctx

import (
	"sync"

	"github.com/lvmteam/lvmcore/internal/config"
	"github.com/lvmteam/lvmcore/internal/deviceid"
	"github.com/lvmteam/lvmcore/internal/devicecache"
	"github.com/lvmteam/lvmcore/internal/hints"
	"github.com/lvmteam/lvmcore/internal/lvmcache"
)

// Diagnostics accumulates Inconsistency-kind conditions observed during
// a run: duplicate PVIDs across live devices, duplicate VG names, and
// devices-file hash mismatches detected on read. Downstream
// components (hints, search policy) consult these flags to fall back to
// full, safe-default behavior instead of trusting a shortcut, per
// spec.md §7.
type Diagnostics struct {
	mu                  sync.Mutex
	duplicatePVIDs      bool
	duplicateVGNames    bool
	devicesHashMismatch bool
}

func (d *Diagnostics) FlagDuplicatePVID() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.duplicatePVIDs = true
}

func (d *Diagnostics) FlagDuplicateVGName() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.duplicateVGNames = true
}

func (d *Diagnostics) FlagDevicesHashMismatch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devicesHashMismatch = true
}

// HasDuplicateDevs reports spec.md §4.7's has_duplicate_devs condition:
// true once any duplicate PVID or duplicate VG name has been observed
// this run.
func (d *Diagnostics) HasDuplicateDevs() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duplicatePVIDs || d.duplicateVGNames
}

// NeedsFullRescan reports whether any condition serious enough to force
// a full rescan (rather than trusting the hints file) has been recorded.
func (d *Diagnostics) NeedsFullRescan() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duplicatePVIDs || d.duplicateVGNames || d.devicesHashMismatch
}

// Context is the run-scoped handle every operation in this module takes
// as its first argument. It is not safe to share across unrelated runs:
// construct a fresh one (New) per command invocation.
type Context struct {
	Config   *config.Config
	Devices  *devicecache.Cache
	Adapter  *devicecache.Adapter
	LVMCache *lvmcache.Cache
	Hints    *hints.Store
	Diag     *Diagnostics
}

// New builds a Context from cfg, wiring a fresh device cache, lvmcache,
// and hints store from cfg's derived paths. idr and majors are the
// OS-probing seam and major-number table devicecache.Adapter needs;
// callers in tests typically pass a fake idr.
func New(cfg *config.Config, idr deviceid.Reader, majors deviceid.MajorNumbers) *Context {
	devices := devicecache.New()
	lvc := lvmcache.New(majors)
	return &Context{
		Config:   cfg,
		Devices:  devices,
		Adapter:  devicecache.NewAdapter(devices, idr, majors),
		LVMCache: lvc,
		Hints: &hints.Store{
			Path:        cfg.HintsFilePath(),
			LockPath:    cfg.HintsLockPath(),
			NoHintsPath: cfg.NoHintsFilePath(),
			NewHintsPath: cfg.NewHintsFilePath(),
		},
		Diag: &Diagnostics{},
	}
}
