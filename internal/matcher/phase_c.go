package matcher

import (
	"context"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"github.com/lvmteam/lvmcore/internal/devicesfile"
)

// PhaseCResult reports what the search pass found.
type PhaseCResult struct {
	Bindings []Binding
	Rewrote  bool
}

// PhaseC implements the search pass (spec.md §4.4 Phase C). targets lists
// entry indices still unbound after Phase B (or, when refreshTrigger is
// set, every entry — a PRODUCT_UUID/HOSTNAME mismatch forces a search
// pass even for entries with a perfectly good stable-id binding).
// alreadyBound excludes devnames Phase A/B already paired to some entry.
//
// limiter throttles the per-candidate label reads — the one intentional
// deliberate-sleep path spec.md calls out, so a devices file with many
// stale unbound entries can't turn every command into a full-speed
// busy-scan of every device in the system.
func PhaseC(ctx context.Context, entries []devicesfile.UseEntry, targets []int, wantedPVIDs map[string]bool, alreadyBound map[string]bool, sys System, policy SearchPolicy, limiter *rate.Limiter) (PhaseCResult, error) {
	var res PhaseCResult
	if policy == SearchNone || len(targets) == 0 {
		return res, nil
	}

	var candidates []string
	for _, d := range sys.Candidates() {
		if alreadyBound[d] {
			continue
		}
		if policy == SearchAuto && sys.HasAnyStableID(d) {
			continue
		}
		candidates = append(candidates, d)
	}

	remaining := make(map[int]bool, len(targets))
	for _, idx := range targets {
		remaining[idx] = true
	}

	for _, cand := range candidates {
		if len(remaining) == 0 {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return res, err
			}
		}
		pvid, ok := sys.ReadPVID(cand)
		if !ok || !wantedPVIDs[pvid] {
			continue
		}
		for idx := range remaining {
			e := &entries[idx]
			if e.PVID != pvid {
				continue
			}
			klog.V(4).Infof("matcher: phase C bound entry %d (pvid %s) to %s", idx, pvid, cand)
			origDevName, origIDType, origIDName := e.DevName, e.IDType, e.IDName
			e.DevName = cand
			if idtype, idname := sys.PreferredID(cand); idtype != "" {
				e.IDType = idtype
				e.IDName = idname
			}
			res.Bindings = append(res.Bindings, Binding{Entry: idx, DevName: cand})
			// Under refreshTrigger a stable-id entry can walk this path
			// purely to be re-confirmed — only a real change (a renamed
			// device, a corrected id) needs a rewrite.
			if e.DevName != origDevName || e.IDType != origIDType || e.IDName != origIDName {
				res.Rewrote = true
			}
			delete(remaining, idx)
			break
		}
	}

	return res, nil
}
