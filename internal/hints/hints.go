// Package hints implements the hints file (spec.md component C8): a
// plain-text cache narrowing the device set a command must scan, its
// invalidation rules, and the nohints/newhints side-channel files.
//
// Grounded on original_source/lib/label/hints.c: _read_hint_file's
// line-by-line parse and its version/filter/scan_lvs/devs_hash
// invalidation checks, and its writer's devs_hash computation and
// scan:/devs_hash: line formats.
package hints

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/lvmteam/lvmcore/internal/crc32lvm"
)

// VersionMajor/VersionMinor are the hints-file format version this
// engine writes and the newest major version it can still read.
const (
	VersionMajor = 1
	VersionMinor = 1
)

// orphanVGPlaceholder is written in the vg: field when a PV's vgname is
// unknown or it belongs to the orphan VG (original_source writes "-").
const orphanVGPlaceholder = "-"

// Hint is one device's cached scan result.
type Hint struct {
	Name   string // devname
	PVID   string
	Major  int
	Minor  int
	VgName string // "" if unknown/orphan
}

// File is the decoded content of a hints file plus the context needed
// to decide whether it is still valid for the current command.
type File struct {
	HintsVersionMajor int
	HintsVersionMinor int
	GlobalFilter      string
	Filter            string
	ScanLVs           bool
	DevsHash          uint32
	DevsCount         uint32
	Hints             []Hint
}

// CurrentContext is everything about the running command that a hints
// file must match in order to be trusted, per spec.md §4.8's
// invalidation rule list.
type CurrentContext struct {
	GlobalFilter string
	Filter       string
	ScanLVs      bool
	// DeviceNames is every devname lvm would currently consider,
	// in the same enumeration order the writer used, for recomputing
	// the devs_hash comparison.
	DeviceNames []string
}

// ComputeDevsHash reproduces the writer's cumulative CRC over a devname
// list: a single running CRC-32 fed each devname's bytes in order (not
// sorted — original_source/lib/label/hints.c computes it while
// iterating the live device list in its natural enumeration order, so a
// reader must walk devices the same way to get a matching hash).
func ComputeDevsHash(devnames []string) (hash uint32, count uint32) {
	h := crc32lvm.Initial
	for _, name := range devnames {
		h = crc32lvm.Calc(h, []byte(name))
		count++
	}
	return h, count
}

// Parse reads a hints file body. It does not judge staleness: Valid
// checks the version and the filter/scan_lvs/devs_hash comparisons
// against ctx. A structurally unreadable file (parse error) is reported
// via err; an empty or header-only file is not an error, it simply
// yields zero hints.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "hints_version:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "hints_version:"))
			major, minor, ok := parseDotted(v)
			if !ok {
				return nil, fmt.Errorf("hints: unreadable hints_version %q", v)
			}
			f.HintsVersionMajor, f.HintsVersionMinor = major, minor
		case strings.HasPrefix(line, "global_filter:"):
			f.GlobalFilter = strings.TrimPrefix(line, "global_filter:")
		case strings.HasPrefix(line, "filter:"):
			f.Filter = strings.TrimPrefix(line, "filter:")
		case strings.HasPrefix(line, "scan_lvs:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "scan_lvs:"))
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("hints: unreadable scan_lvs %q", v)
			}
			f.ScanLVs = n != 0
		case strings.HasPrefix(line, "devs_hash:"):
			fields := strings.Fields(strings.TrimPrefix(line, "devs_hash:"))
			if len(fields) != 2 {
				return nil, fmt.Errorf("hints: malformed devs_hash line %q", line)
			}
			hash, err1 := strconv.ParseUint(fields[0], 10, 32)
			count, err2 := strconv.ParseUint(fields[1], 10, 32)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("hints: unreadable devs_hash %q", line)
			}
			f.DevsHash = uint32(hash)
			f.DevsCount = uint32(count)
		case strings.HasPrefix(line, "scan:"):
			h, ok := parseScanLine(line)
			if ok {
				f.Hints = append(f.Hints, h)
			}
		default:
			// unrecognised line prefixes are ignored, per
			// _read_hint_file's fallthrough behaviour.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func parseDotted(s string) (major, minor int, ok bool) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	maj, err1 := strconv.Atoi(parts[0])
	min, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return maj, min, true
}

func parseScanLine(line string) (Hint, bool) {
	fields := strings.Fields(line)
	var h Hint
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, "scan:"):
			h.Name = strings.TrimPrefix(f, "scan:")
		case strings.HasPrefix(f, "pvid:"):
			h.PVID = strings.TrimPrefix(f, "pvid:")
		case strings.HasPrefix(f, "devn:"):
			var maj, min int
			if _, err := fmt.Sscanf(f, "devn:%d:%d", &maj, &min); err == nil {
				h.Major, h.Minor = maj, min
			}
		case strings.HasPrefix(f, "vg:"):
			vg := strings.TrimPrefix(f, "vg:")
			if vg != orphanVGPlaceholder {
				h.VgName = vg
			}
		}
	}
	if h.Name == "" {
		return Hint{}, false
	}
	return h, true
}

// Valid reports whether f can be trusted for the running command given
// ctx, per spec.md §4.8: "a reader rejects the whole file ... when any
// of these differ: major version exceeded; either filter setting
// changed; scan_lvs differs; or the computed hash ... differs."
func (f *File) Valid(ctx CurrentContext) bool {
	if f.HintsVersionMajor > VersionMajor {
		klog.V(4).Infof("hints: rejecting, file major version %d newer than supported %d", f.HintsVersionMajor, VersionMajor)
		return false
	}
	if f.GlobalFilter != ctx.GlobalFilter {
		klog.V(4).Infof("hints: rejecting, global_filter changed")
		return false
	}
	if f.Filter != ctx.Filter {
		klog.V(4).Infof("hints: rejecting, filter changed")
		return false
	}
	if f.ScanLVs != ctx.ScanLVs {
		klog.V(4).Infof("hints: rejecting, scan_lvs changed")
		return false
	}
	hash, count := ComputeDevsHash(ctx.DeviceNames)
	if hash != f.DevsHash || count != f.DevsCount {
		klog.V(4).Infof("hints: rejecting, devs_hash mismatch (have %d/%d, want %d/%d)", f.DevsHash, f.DevsCount, hash, count)
		return false
	}
	return true
}

// Format serialises f back into the on-disk hints-file text form.
func Format(f *File, ctx CurrentContext) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# hints file, do not edit\n")
	fmt.Fprintf(&b, "hints_version:%d.%d\n", VersionMajor, VersionMinor)
	fmt.Fprintf(&b, "global_filter:%s\n", ctx.GlobalFilter)
	fmt.Fprintf(&b, "filter:%s\n", ctx.Filter)
	if ctx.ScanLVs {
		fmt.Fprintf(&b, "scan_lvs:1\n")
	} else {
		fmt.Fprintf(&b, "scan_lvs:0\n")
	}
	for _, h := range f.Hints {
		vg := h.VgName
		if vg == "" {
			vg = orphanVGPlaceholder
		}
		fmt.Fprintf(&b, "scan:%s pvid:%s devn:%d:%d vg:%s\n", h.Name, h.PVID, h.Major, h.Minor, vg)
	}
	hash, count := ComputeDevsHash(ctx.DeviceNames)
	fmt.Fprintf(&b, "devs_hash: %d %d\n", hash, count)
	return b.Bytes()
}

// Empty builds the degenerate hints file spec.md §4.7 says a duplicate-
// PVID resolution forces: a file with the current context's header
// fields but zero scan: lines, so the next command always does a full
// scan instead of trusting partial/ambiguous hints.
func Empty(ctx CurrentContext) []byte {
	return Format(&File{}, ctx)
}
