package filter

import "k8s.io/klog/v2"

// MDDetector abstracts the actual md-superblock probe (original_source's
// dev_is_md, which reads bytes off the device). Kept as an interface so
// MDComponentFilter is unit-testable without a real block device. This
// module has no concrete implementation: the probe itself is out of
// scope for this package per spec.md's "filter chain: only the
// contract" note, and an MDComponentFilter with a nil Detector passes
// every device.
type MDDetector interface {
	// IsMDComponent reports whether devname is a component device of a
	// Linux software RAID (md) array. full requests the more expensive,
	// read-the-superblock check; false requests only a cheap sysfs-based
	// check. ok is false when the detector could not determine an
	// answer (original_source's -EAGAIN "defer, try again after scan"
	// case) — MDComponentFilter treats that as "let it pass for now".
	IsMDComponent(devname string, full bool) (isComponent bool, ok bool)
}

// MDComponentFilter rejects devices that are components of an md array,
// per filter-md.c's _ignore_md: a device already assembled into a RAID
// array should never itself be treated as a standalone PV.
type MDComponentFilter struct {
	Detector MDDetector
	// FullCheck selects the more expensive superblock read used by
	// commands like pvcreate/vgcreate/vgextend (use_full_md_check in the
	// C source); everything else uses the cheap sysfs-based check.
	FullCheck bool

	memo map[string]bool
}

// PassesFilter never reads device contents, so it is safe to call at
// StageNoData as well as StageFull — the detector implementation is
// responsible for honoring that constraint itself.
func (f *MDComponentFilter) PassesFilter(devname string, _ Stage) bool {
	if f.Detector == nil {
		return true
	}
	if f.memo == nil {
		f.memo = make(map[string]bool)
	}
	if cached, ok := f.memo[devname]; ok {
		return !cached
	}

	isComponent, ok := f.Detector.IsMDComponent(devname, f.FullCheck)
	if !ok {
		// Detection deferred (original_source's -EAGAIN): let the
		// device pass for now rather than blocking the scan.
		return true
	}
	f.memo[devname] = isComponent
	if isComponent {
		klog.V(4).Infof("filter: skipping md component device %s", devname)
		return false
	}
	return true
}

// Wipe discards the memoized verdict for devname so the next
// PassesFilter call re-probes it.
func (f *MDComponentFilter) Wipe(devname string) {
	delete(f.memo, devname)
}
