package matcher

import "github.com/lvmteam/lvmcore/internal/devicesfile"

// SerialReader is the subset of System Phase D needs, plus the one
// capability Phase A/B/C don't: reading a device's serial and PVID even
// when that device isn't a Phase A/B/C candidate (spec.md says this
// enumerates "all system devices ... including devices outside the
// devices file").
type SerialReader interface {
	System
	// AllDeviceNames lists every device known to the system, unfiltered —
	// wider than Candidates(), which is restricted to nodata-filtered
	// devices already considered by earlier phases.
	AllDeviceNames() []string
	// ReadSerial reads a device's sys_serial identifier directly.
	ReadSerial(devname string) (string, bool)
}

// PhaseD resolves entries queued on check_serial (spec.md §4.4 Phase D):
// it enumerates every device whose serial matches the suspect idname,
// reads each one's PVID, and pairs by PVID. When exactly one candidate
// carries the entry's serial but a different PVID, and no other
// candidate matches the entry's original PVID, it accepts the new PVID —
// the device was re-made with the same serial but a fresh PV. Any
// devices pulled into this phase but not ultimately bound are purged
// from lvmcache so the current command doesn't act on stray scan state.
func PhaseD(entries []devicesfile.UseEntry, checkSerial []int, sys SerialReader) []Binding {
	var bindings []Binding

	for _, idx := range checkSerial {
		e := &entries[idx]
		var matches []string
		for _, d := range sys.AllDeviceNames() {
			if serial, ok := sys.ReadSerial(d); ok && serial == e.IDName {
				matches = append(matches, d)
			}
		}

		var bestMatch string
		for _, d := range matches {
			if pvid, ok := sys.ReadPVID(d); ok && pvid == e.PVID {
				bestMatch = d
				break
			}
		}

		if bestMatch == "" && len(matches) == 1 {
			if pvid, ok := sys.ReadPVID(matches[0]); ok {
				e.PVID = pvid
				bestMatch = matches[0]
			}
		}

		for _, d := range matches {
			if d != bestMatch {
				sys.DropFromCache(d)
			}
		}

		if bestMatch != "" {
			e.DevName = bestMatch
			bindings = append(bindings, Binding{Entry: idx, DevName: bestMatch})
		}
	}

	return bindings
}
