package matcher

import "github.com/lvmteam/lvmcore/internal/devicesfile"

// PhaseBResult is everything Phase B produces for the later phases and
// for the caller's "does this run need a rewrite" decision.
type PhaseBResult struct {
	// Bindings are confirmed (or rewritten-and-still-confirmed) pairings
	// carried forward from Phase A.
	Bindings []Binding
	// NeedSearch holds entry indices that must go through Phase C:
	// entries Phase A never bound, plus DEVNAME entries whose old device
	// no longer carries the entry's PVID and no replacement was found.
	NeedSearch []int
	// CheckSerial holds entry indices queued for Phase D because their
	// SYS_SERIAL binding's PVID didn't match — serial numbers are known
	// to collide, so this is treated as suspicious rather than fatal.
	CheckSerial []int
	// Invalid is set when any stable-type binding's on-disk PVID differed
	// from the entry's recorded PVID and had to be rewritten — the
	// device_ids_invalid condition from spec.md §4.4.
	Invalid bool
	// DeleteEntries holds indices of duplicate PVID-less DEVNAME entries
	// to remove once a sibling entry with the same idname carries a PVID.
	DeleteEntries []int
}

// PhaseB validates Phase A's bindings against the PVIDs label_scan
// populated on each device (spec.md §4.4 Phase B). entries is mutated in
// place: a stable-type mismatch rewrites the entry's PVID, and a
// re-bound DEVNAME entry gets its DevName updated.
func PhaseB(entries []devicesfile.UseEntry, bindings []Binding, sys System) PhaseBResult {
	var res PhaseBResult
	bound := make(map[int]bool, len(bindings))

	for _, b := range bindings {
		bound[b.Entry] = true
		e := &entries[b.Entry]

		if stableIDType(e.IDType) {
			devPVID, ok := sys.ReadPVID(b.DevName)
			if !ok || devPVID != e.PVID {
				if !ok {
					res.NeedSearch = append(res.NeedSearch, b.Entry)
					continue
				}
				if e.IDType == "sys_serial" {
					res.CheckSerial = append(res.CheckSerial, b.Entry)
					continue
				}
				e.PVID = devPVID
				res.Invalid = true
			}
			res.Bindings = append(res.Bindings, b)
			continue
		}

		// DEVNAME entry: PVID is the authority.
		pvid := e.PVID
		if devPVID, ok := sys.ReadPVID(b.DevName); ok && devPVID == pvid {
			res.Bindings = append(res.Bindings, Binding{Entry: b.Entry, DevName: b.DevName})
			continue
		}

		rebound := false
		for _, cand := range sys.Candidates() {
			if cand == b.DevName {
				continue
			}
			if cpvid, ok := sys.ReadPVID(cand); ok && cpvid == pvid {
				e.DevName = cand
				res.Bindings = append(res.Bindings, Binding{Entry: b.Entry, DevName: cand})
				rebound = true
				break
			}
		}
		if !rebound {
			sys.DropFromCache(b.DevName)
			res.NeedSearch = append(res.NeedSearch, b.Entry)
		}
	}

	for i := range entries {
		if !bound[i] {
			res.NeedSearch = append(res.NeedSearch, i)
		}
	}

	res.DeleteEntries = duplicateDevnameEntries(entries)
	return res
}

// duplicateDevnameEntries finds DEVNAME-type entries sharing an IDName
// where one carries a PVID and a sibling doesn't, and returns the
// PVID-less sibling's index for deletion (spec.md §4.4, last Phase B
// bullet).
func duplicateDevnameEntries(entries []devicesfile.UseEntry) []int {
	groups := make(map[string][]int)
	for i, e := range entries {
		if e.IDType != "devname" || e.IDName == "" {
			continue
		}
		groups[e.IDName] = append(groups[e.IDName], i)
	}

	var toDelete []int
	for _, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		hasPVID := false
		for _, i := range idxs {
			if entries[i].PVID != "" {
				hasPVID = true
				break
			}
		}
		if !hasPVID {
			continue
		}
		for _, i := range idxs {
			if entries[i].PVID == "" {
				toDelete = append(toDelete, i)
			}
		}
	}
	return toDelete
}
