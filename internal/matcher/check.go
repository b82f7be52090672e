package matcher

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/lvmteam/lvmcore/internal/devicesfile"
)

// EntryStatus classifies one UseEntry's outcome from a Check run.
type EntryStatus int

const (
	StatusBound EntryStatus = iota
	StatusUnresolved
)

// CheckEntry pairs one UseEntry with the status Check assigned it.
type CheckEntry struct {
	Entry   devicesfile.UseEntry
	Status  EntryStatus
	DevName string // resolved devname, if Status == StatusBound
}

// CheckReport is lvmdevices check/list's structured result: one
// CheckEntry per line in the file, plus whether the file as checked
// needs a rewrite (a stable-id PVID was stale, or a search pass found a
// new home for something) and which indices are stale duplicate DEVNAME
// entries a rewrite should drop.
type CheckReport struct {
	Entries       []CheckEntry
	NeedsRewrite  bool
	DeleteIndexes []int
}

// Check runs Run over f's entries against sys and renders the result as
// a CheckReport, the shape cmd/lvmdevices' check and list subcommands
// render to the user. f.Entries is mutated in place by Run, exactly as
// Run documents. current is the running system's PRODUCT_UUID/HOSTNAME;
// a mismatch against f's recorded identity sets refresh_trigger (spec.md
// §4.3), forcing every entry through Phase C and, once the rewrite
// happens, updating f's recorded identity to current (spec.md §4.4
// Phase C step 3).
func Check(ctx context.Context, f *devicesfile.File, sys SerialReader, policy SearchPolicy, limiter *rate.Limiter, current SystemIdentity, opts RunOptions) (CheckReport, error) {
	identityMismatch := refreshTriggerFor(f, current)
	// opts.RefreshTrigger may already be true for a reason unrelated to
	// identity (e.g. the caller detected a devices-file hash mismatch);
	// either reason forces every entry through Phase C.
	forceSearch := opts.RefreshTrigger || identityMismatch
	opts.RefreshTrigger = forceSearch

	res, err := Run(ctx, f.Entries, sys, policy, limiter, opts)
	if err != nil {
		return CheckReport{}, err
	}

	if identityMismatch {
		applyIdentityRefresh(f, current)
	}
	if forceSearch {
		res.Rewrite = true
	}

	report := CheckReport{NeedsRewrite: res.Rewrite, DeleteIndexes: res.Delete}
	unresolved := make(map[int]bool, len(res.Unresolved))
	for _, i := range res.Unresolved {
		unresolved[i] = true
	}

	for i, e := range f.Entries {
		ce := CheckEntry{Entry: e}
		if dev, ok := res.Bound[i]; ok {
			ce.DevName = dev
			ce.Status = StatusBound
		} else if unresolved[i] {
			ce.Status = StatusUnresolved
		}
		report.Entries = append(report.Entries, ce)
	}
	return report, nil
}
