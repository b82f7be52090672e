package matcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lvmteam/lvmcore/internal/crc32lvm"
)

// Breadcrumb is the (count, hash) pair recorded for one set (the wanted
// PVIDs, or the candidate devnames) in the searched_devnames file.
type Breadcrumb struct {
	Count int
	Hash  uint32
}

// ComputeBreadcrumb hashes a set of strings deterministically regardless
// of the order they're supplied in, so two runs that scan the same
// logical set always produce the same breadcrumb.
func ComputeBreadcrumb(items []string) Breadcrumb {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return Breadcrumb{
		Count: len(sorted),
		Hash:  crc32lvm.Checksum([]byte(strings.Join(sorted, "\n"))),
	}
}

// Record is the full searched_devnames breadcrumb: one Breadcrumb over
// the wanted PVIDs, one over the candidate devnames (spec.md §4.4 Phase
// C step 4).
type Record struct {
	PVIDs      Breadcrumb
	Candidates Breadcrumb
}

// ReadBreadcrumb reads path (typically .../run/lvm/searched_devnames).
// A missing file is not an error — it just means there is no prior
// breadcrumb to compare against, so the next command must run Phase C.
func ReadBreadcrumb(path string) (Record, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var r Record
	_, err = fmt.Sscanf(string(data), "pvids %d %08x\ndevs %d %08x\n",
		&r.PVIDs.Count, &r.PVIDs.Hash, &r.Candidates.Count, &r.Candidates.Hash)
	if err != nil {
		return Record{}, false, nil
	}
	return r, true, nil
}

// WriteBreadcrumb persists r to path, creating its parent directory if
// needed.
func WriteBreadcrumb(path string, r Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data := fmt.Sprintf("pvids %d %08x\ndevs %d %08x\n",
		r.PVIDs.Count, r.PVIDs.Hash, r.Candidates.Count, r.Candidates.Hash)
	return os.WriteFile(path, []byte(data), 0o644)
}

// RemoveBreadcrumb deletes the breadcrumb file. lvmdevices import calls
// it after rewriting the devices file, so a stale breadcrumb never
// suppresses a search that has become necessary. Nothing calls it when
// new devices appear; a changed candidate set changes the recorded
// hash instead, and ShouldSkipPhaseC then no longer matches.
func RemoveBreadcrumb(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// ShouldSkipPhaseC reports whether a prior breadcrumb matches the
// current wanted-PVID and candidate-devname sets closely enough that
// Phase C can be skipped entirely — the scan-reduction optimisation for
// a permanently-absent device.
func ShouldSkipPhaseC(prior Record, havePrior bool, wantedPVIDs, candidates []string) bool {
	if !havePrior {
		return false
	}
	cur := Record{
		PVIDs:      ComputeBreadcrumb(wantedPVIDs),
		Candidates: ComputeBreadcrumb(candidates),
	}
	return cur == prior
}
