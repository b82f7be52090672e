package matcher

import "github.com/lvmteam/lvmcore/internal/devicesfile"

// PhaseA performs the initial match pass (spec.md §4.4 Phase A):
// stable-idtype entries are tried against their recorded devname first
// (the cheap success path), and only on mismatch does it fall back to
// iterating every candidate device, reading the entry's idtype lazily
// (and letting System cache the result). DEVNAME-type entries are
// resolved afterward by simple name lookup; their bindings are marked
// Provisional because a devname match alone doesn't establish identity —
// Phase B confirms it by PVID.
func PhaseA(entries []devicesfile.UseEntry, sys System) []Binding {
	var bindings []Binding
	bound := make(map[int]bool)

	for i, e := range entries {
		if !stableIDType(e.IDType) {
			continue
		}
		idtype, ok := deviceIDType(e.IDType)
		if !ok {
			continue
		}

		if e.DevName != "" && sys.DevnameExists(e.DevName) {
			if name, ok := sys.ReadID(e.DevName, idtype); ok && name == e.IDName {
				bindings = append(bindings, Binding{Entry: i, DevName: e.DevName})
				bound[i] = true
				continue
			}
		}

		for _, cand := range sys.Candidates() {
			if name, ok := sys.ReadID(cand, idtype); ok && name == e.IDName {
				bindings = append(bindings, Binding{Entry: i, DevName: cand})
				bound[i] = true
				break
			}
		}
	}

	for i, e := range entries {
		if bound[i] || stableIDType(e.IDType) {
			continue
		}
		if e.DevName != "" && sys.DevnameExists(e.DevName) {
			bindings = append(bindings, Binding{Entry: i, DevName: e.DevName, Provisional: true})
		}
	}

	return bindings
}
