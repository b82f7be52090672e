package matcher

import "github.com/lvmteam/lvmcore/internal/devicesfile"

// SystemIdentity is the running system's PRODUCT_UUID/HOSTNAME, read from
// /sys and /proc by internal/osdev and compared against a devices file's
// recorded identity to decide refresh_trigger (spec.md §4.3).
type SystemIdentity struct {
	ProductUUID string
	Hostname    string
}

// RunOptions carries the run-wide extras Run/Check/PhaseC need beyond a
// plain entry list: whether a refresh_trigger condition is already known
// (or should be forced regardless of identity), and where to read/write
// the searched_devnames breadcrumb. The zero value reproduces the
// original Run behaviour: no forced refresh, no breadcrumb skip.
type RunOptions struct {
	// RefreshTrigger forces every entry into Phase C's candidate set, per
	// spec.md §4.3/§4.4 Phase C step 1 — set by refreshTriggerFor when the
	// file's recorded PRODUCT_UUID/HOSTNAME no longer matches the running
	// system, or by a caller that already knows the condition holds.
	RefreshTrigger bool
	// BreadcrumbPath is searched_devnames' path. Empty disables the
	// breadcrumb skip-Phase-C optimisation entirely.
	BreadcrumbPath string
}

// refreshTriggerFor reports whether f's recorded identity no longer
// matches current, per spec.md §4.3 ("PRODUCT_UUID/HOSTNAME mismatches
// with the running system set a refresh_trigger flag"). A file recording
// neither field was never identity-stamped and never triggers a refresh
// on this basis alone.
func refreshTriggerFor(f *devicesfile.File, current SystemIdentity) bool {
	switch {
	case f.ProductUUID != "":
		return current.ProductUUID != "" && current.ProductUUID != f.ProductUUID
	case f.Hostname != "":
		return current.Hostname != "" && current.Hostname != f.Hostname
	default:
		return false
	}
}

// applyIdentityRefresh stamps f's recorded identity field with current's
// value, per spec.md §4.4 Phase C step 3 ("rewrite PRODUCT_UUID/HOSTNAME"
// once a refresh_trigger rewrite happens).
func applyIdentityRefresh(f *devicesfile.File, current SystemIdentity) {
	switch {
	case f.ProductUUID != "":
		f.ProductUUID = current.ProductUUID
	case f.Hostname != "":
		f.Hostname = current.Hostname
	}
}
