package matcher

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/lvmteam/lvmcore/internal/devicesfile"
)

// Result is the outcome of running all four phases over a devices file's
// entries: which devnames ended up bound, whether anything forces a
// rewrite, and which entries Phase C/D still couldn't resolve.
type Result struct {
	Bound      map[int]string // entry index -> devname
	Rewrite    bool           // Invalid, or anything Phase C/D changed
	Unresolved []int          // entries no phase could bind
	Delete     []int          // duplicate PVID-less DEVNAME entries to drop (Phase B's DeleteEntries)
}

// Run reconciles entries against sys: Phase A's cheap-path-then-iterate
// match, Phase B's PVID validation, Phase C's rate-limited search for
// anything still unbound, and Phase D's serial-collision resolution —
// spec.md §4.4's full four-phase algorithm in the order it specifies.
// entries is mutated in place (PVID/DevName/IDType/IDName corrections),
// matching each phase's own contract. opts.RefreshTrigger forces every
// entry into Phase C's candidate set even when Phase B bound it cleanly
// (spec.md §4.3); opts.BreadcrumbPath, if set, lets an unchanged
// searched_devnames breadcrumb skip Phase C's candidate scan entirely
// for a permanently-absent PV (spec.md §4.4 Phase C step 4).
func Run(ctx context.Context, entries []devicesfile.UseEntry, sys SerialReader, policy SearchPolicy, limiter *rate.Limiter, opts RunOptions) (Result, error) {
	res := Result{Bound: make(map[int]string)}

	aBindings := PhaseA(entries, sys)
	bRes := PhaseB(entries, aBindings, sys)
	res.Rewrite = bRes.Invalid
	res.Delete = bRes.DeleteEntries

	for _, b := range bRes.Bindings {
		res.Bound[b.Entry] = b.DevName
	}

	targets := bRes.NeedSearch
	if opts.RefreshTrigger {
		targets = allIndexes(len(entries))
	}

	if len(targets) > 0 {
		wanted := make(map[string]bool, len(targets))
		for _, idx := range targets {
			wanted[entries[idx].PVID] = true
		}
		alreadyBound := make(map[string]bool, len(res.Bound))
		for _, d := range res.Bound {
			alreadyBound[d] = true
		}
		candidates := searchCandidates(sys, alreadyBound, policy)

		skip := false
		if opts.BreadcrumbPath != "" {
			prior, havePrior, err := ReadBreadcrumb(opts.BreadcrumbPath)
			if err == nil {
				wantedList := stringKeys(wanted)
				skip = ShouldSkipPhaseC(prior, havePrior, wantedList, candidates)
				if !skip {
					_ = WriteBreadcrumb(opts.BreadcrumbPath, Record{
						PVIDs:      ComputeBreadcrumb(wantedList),
						Candidates: ComputeBreadcrumb(candidates),
					})
				}
			}
		}

		if !skip {
			cRes, err := PhaseC(ctx, entries, targets, wanted, alreadyBound, sys, policy, limiter)
			if err != nil {
				return res, err
			}
			if cRes.Rewrote {
				res.Rewrite = true
			}
			for _, b := range cRes.Bindings {
				res.Bound[b.Entry] = b.DevName
			}
		}
	}

	if len(bRes.CheckSerial) > 0 {
		dBindings := PhaseD(entries, bRes.CheckSerial, sys)
		if len(dBindings) > 0 {
			res.Rewrite = true
		}
		for _, b := range dBindings {
			res.Bound[b.Entry] = b.DevName
		}
	}

	for i := range entries {
		if _, ok := res.Bound[i]; !ok {
			res.Unresolved = append(res.Unresolved, i)
		}
	}

	return res, nil
}

// allIndexes returns 0..n-1, used when refreshTrigger forces every entry
// into Phase C's targets regardless of what Phase B already bound.
func allIndexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// searchCandidates mirrors PhaseC's own candidate filtering so the
// breadcrumb can be computed over the same set PhaseC would actually
// scan, without exporting PhaseC's internals.
func searchCandidates(sys System, alreadyBound map[string]bool, policy SearchPolicy) []string {
	var out []string
	for _, d := range sys.Candidates() {
		if alreadyBound[d] {
			continue
		}
		if policy == SearchAuto && sys.HasAnyStableID(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// stringKeys returns m's keys in no particular order.
func stringKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
