package filter

import "testing"

func TestRegexListFilterRejectListSkipsMatchingDevices(t *testing.T) {
	f, err := NewRegexListFilter([]string{`^/dev/loop`, `^/dev/zram`}, false)
	if err != nil {
		t.Fatalf("NewRegexListFilter: %v", err)
	}
	if f.PassesFilter("/dev/loop0", StageNoData) {
		t.Fatal("expected /dev/loop0 to be rejected")
	}
	if !f.PassesFilter("/dev/sda1", StageNoData) {
		t.Fatal("expected /dev/sda1 to pass")
	}
}

func TestRegexListFilterAcceptListOnlyAllowsMatches(t *testing.T) {
	f, err := NewRegexListFilter([]string{`^/dev/sd`}, true)
	if err != nil {
		t.Fatalf("NewRegexListFilter: %v", err)
	}
	if !f.PassesFilter("/dev/sda1", StageNoData) {
		t.Fatal("expected /dev/sda1 to pass an allow-list match")
	}
	if f.PassesFilter("/dev/vda1", StageNoData) {
		t.Fatal("expected /dev/vda1 to fail a non-matching allow-list")
	}
}

func TestRegexListFilterPatternsRoundTrip(t *testing.T) {
	patterns := []string{`^/dev/loop`, `^/dev/zram`}
	f, err := NewRegexListFilter(patterns, false)
	if err != nil {
		t.Fatalf("NewRegexListFilter: %v", err)
	}
	got := f.Patterns()
	if len(got) != 2 || got[0] != patterns[0] || got[1] != patterns[1] {
		t.Fatalf("Patterns() = %v, want %v", got, patterns)
	}
}

type fakeMDDetector struct {
	components map[string]bool // devname -> isComponent
	deferred   map[string]bool // devname -> return !ok
}

func (d *fakeMDDetector) IsMDComponent(devname string, full bool) (bool, bool) {
	if d.deferred[devname] {
		return false, false
	}
	return d.components[devname], true
}

func TestMDComponentFilterRejectsComponents(t *testing.T) {
	f := &MDComponentFilter{Detector: &fakeMDDetector{
		components: map[string]bool{"/dev/sda1": true},
	}}
	if f.PassesFilter("/dev/sda1", StageFull) {
		t.Fatal("expected md component device to be rejected")
	}
	if !f.PassesFilter("/dev/sdb1", StageFull) {
		t.Fatal("expected non-component device to pass")
	}
}

func TestMDComponentFilterDeferredDetectionPassesThrough(t *testing.T) {
	f := &MDComponentFilter{Detector: &fakeMDDetector{
		deferred: map[string]bool{"/dev/sdc1": true},
	}}
	if !f.PassesFilter("/dev/sdc1", StageFull) {
		t.Fatal("expected a deferred (not-yet-determined) verdict to pass for now")
	}
}

func TestMDComponentFilterWipeClearsMemo(t *testing.T) {
	detector := &fakeMDDetector{components: map[string]bool{"/dev/sda1": true}}
	f := &MDComponentFilter{Detector: detector}

	f.PassesFilter("/dev/sda1", StageFull)
	detector.components["/dev/sda1"] = false
	if f.PassesFilter("/dev/sda1", StageFull) {
		t.Fatal("expected the memoized (stale) verdict to still reject before Wipe")
	}

	f.Wipe("/dev/sda1")
	if !f.PassesFilter("/dev/sda1", StageFull) {
		t.Fatal("expected Wipe to force a fresh probe that now passes")
	}
}

func TestCompositeShortCircuitsOnFirstRejection(t *testing.T) {
	reject, _ := NewRegexListFilter([]string{`^/dev/loop`}, false)
	md := &MDComponentFilter{Detector: &fakeMDDetector{components: map[string]bool{"/dev/sdb1": true}}}
	c := &Composite{Filters: []Filter{reject, md}}

	if c.PassesFilter("/dev/loop0", StageNoData) {
		t.Fatal("expected the regex filter to reject /dev/loop0")
	}
	if c.PassesFilter("/dev/sdb1", StageFull) {
		t.Fatal("expected the md filter to reject /dev/sdb1")
	}
	if !c.PassesFilter("/dev/sda1", StageFull) {
		t.Fatal("expected /dev/sda1 to pass both filters")
	}
}

func TestCompositeWipeFansOutToAllFilters(t *testing.T) {
	detector := &fakeMDDetector{components: map[string]bool{"/dev/sda1": true}}
	md := &MDComponentFilter{Detector: detector}
	c := &Composite{Filters: []Filter{md}}

	c.PassesFilter("/dev/sda1", StageFull)
	detector.components["/dev/sda1"] = false
	c.Wipe("/dev/sda1")
	if !c.PassesFilter("/dev/sda1", StageFull) {
		t.Fatal("expected Composite.Wipe to clear the md filter's memo")
	}
}
