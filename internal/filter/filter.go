// Package filter implements the device-filter contract spec.md §6 fixes
// (passes_filter(device, stage) / wipe(device)) plus two concrete,
// secondary filters that exercise it end to end — a regex-list filter
// and an md-component filter — in place of lvm2's full filter cascade,
// which SPEC_FULL.md's §1 note explicitly keeps out of scope.
//
// Grounded on original_source/lib/filters/{filter.c,filter-composite.c,
// filter-md.c} for the contract shape and the two concrete filters.
package filter

import "regexp"

// Stage names the scanning phase a filter call is made from. A filter
// must never read device contents under StageNoData — spec.md §6's
// only hard constraint on the contract.
type Stage string

const (
	StageNoData Stage = "no_data"
	StageFull   Stage = "full"
)

// Filter is the contract every concrete filter and the Composite chain
// satisfy: PassesFilter reports whether dev should still be considered
// at the given stage, Wipe discards any per-device state the filter
// cached (e.g. a memoized md-component verdict) so a later rescan
// re-evaluates from scratch.
type Filter interface {
	PassesFilter(devname string, stage Stage) bool
	Wipe(devname string)
}

// Composite runs a fixed list of filters in order, short-circuiting on
// the first rejection — the _and_p behaviour from filter-composite.c.
type Composite struct {
	Filters []Filter
}

func (c *Composite) PassesFilter(devname string, stage Stage) bool {
	for _, f := range c.Filters {
		if !f.PassesFilter(devname, stage) {
			return false
		}
	}
	return true
}

// Wipe forwards to every member filter, mirroring _wipe's fan-out.
func (c *Composite) Wipe(devname string) {
	for _, f := range c.Filters {
		f.Wipe(devname)
	}
}

// RegexListFilter rejects (or, inverted, accepts) devnames matching any
// of a list of compiled patterns — the shape of lvm2's regex
// accept/reject filter list (devices/filter, devices/global_filter).
// Wipe is a no-op: a regex filter carries no per-device state.
type RegexListFilter struct {
	patterns []*regexp.Regexp
	// Accept, when true, makes a devname pass only if it matches one of
	// the patterns (an allow-list); when false (the default,
	// reject-list mode) a devname fails if it matches any pattern.
	Accept bool
}

// NewRegexListFilter compiles patterns. At the first one that doesn't
// parse as an RE2 regexp it returns a nil filter and that error.
func NewRegexListFilter(patterns []string, accept bool) (*RegexListFilter, error) {
	f := &RegexListFilter{Accept: accept}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

func (f *RegexListFilter) PassesFilter(devname string, _ Stage) bool {
	matched := false
	for _, re := range f.patterns {
		if re.MatchString(devname) {
			matched = true
			break
		}
	}
	if f.Accept {
		return matched
	}
	return !matched
}

func (f *RegexListFilter) Wipe(string) {}

// Patterns returns the filter's compiled pattern sources, in order. The
// hints file's `filter:`/`global_filter:` lines are rendered from the
// configuration strings directly, not from this method.
func (f *RegexListFilter) Patterns() []string {
	out := make([]string, len(f.patterns))
	for i, re := range f.patterns {
		out[i] = re.String()
	}
	return out
}
