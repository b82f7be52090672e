package matcher

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/time/rate"

	"github.com/lvmteam/lvmcore/internal/deviceid"
	"github.com/lvmteam/lvmcore/internal/devicesfile"
	"github.com/lvmteam/lvmcore/internal/hints"
	"github.com/lvmteam/lvmcore/internal/lvmcache"
	"github.com/lvmteam/lvmcore/internal/mda"
)

// fakeIDReader is a minimal deviceid.Reader backed by a devname->attrs
// map, enough to drive ReadPreferredID without a real /sys.
type fakeIDReader struct {
	attrs map[string]map[string]string
	major map[string]int
}

func (r fakeIDReader) SysAttr(devname, suffix string) (string, bool) {
	v, ok := r.attrs[devname][suffix]
	return v, ok && v != ""
}
func (r fakeIDReader) VPD83(devname string) ([]byte, bool)            { return nil, false }
func (r fakeIDReader) NVMeDescriptors(devname string) ([]byte, bool)  { return nil, false }
func (r fakeIDReader) Major(devname string) (int, bool) {
	m, ok := r.major[devname]
	return m, ok
}

var _ = Describe("devices-file reconciliation scenarios", func() {
	// S1: a host with no devices file yet imports a single PV, and the
	// resulting bytes round-trip through Parse with a valid HASH.
	Context("S1: fresh create", func() {
		It("produces a devices file that reads back clean", func() {
			f := &devicesfile.File{Version: devicesfile.Version{Major: devicesfile.WriterMajor, Minor: devicesfile.WriterMinor}}
			idr := fakeIDReader{
				attrs: map[string]map[string]string{"/dev/sda": {"wwid": "naa.600508b1"}},
				major: map[string]int{"/dev/sda": 8},
			}

			err := devicesfile.ImportPV(f, "/dev/sda", "pv-fresh", idr, deviceid.MajorNumbers{})
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Entries).To(HaveLen(1))
			Expect(f.Entries[0].PVID).To(Equal("pv-fresh"))

			raw := devicesfile.Format(f)
			reread, err := devicesfile.Parse(strings.NewReader(string(raw)))
			Expect(err).NotTo(HaveOccurred())
			Expect(reread.HashOK).To(BeTrue())
			Expect(reread.Entries).To(HaveLen(1))
			Expect(reread.Entries[0].PVID).To(Equal("pv-fresh"))

			By("rejecting a second import of the same PVID")
			err = devicesfile.ImportPV(f, "/dev/sdb", "pv-fresh", idr, deviceid.MajorNumbers{})
			Expect(err).To(MatchError(devicesfile.ErrAlreadyImported))
		})
	})

	// S2: a stable-ID entry's recorded devname no longer exists, but the
	// same wwid now lives under a different name — Phase A's fallback
	// search must find it without any rewrite of the identifier itself.
	Context("S2: rename detection", func() {
		It("rebinds a stable-ID entry to its device's new name", func() {
			sys := newFakeSystem()
			sys.add("/dev/sdc", "pv-renamed", map[deviceid.Type]string{deviceid.SysWWID: "naa.rename"})

			entries := []devicesfile.UseEntry{
				{IDType: "sys_wwid", IDName: "naa.rename", DevName: "/dev/sda", PVID: "pv-renamed"},
			}

			res, err := Run(context.Background(), entries, sys, SearchNone, rate.NewLimiter(rate.Inf, 1), RunOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Bound[0]).To(Equal("/dev/sdc"))
			Expect(res.Unresolved).To(BeEmpty())
		})
	})

	// S3: a sys_serial entry's on-disk PVID no longer matches, but only
	// one live device carries that serial — Phase D must accept the PV
	// as re-made rather than declaring the entry unresolved, and must
	// drop any other serial-sharing devices it inspected along the way.
	Context("S3: suspicious serial", func() {
		It("accepts the sole serial match's fresh PVID", func() {
			sys := newFakeSystem()
			sys.devices["/dev/sdd"] = &fakeDevice{
				ids:    map[deviceid.Type]string{deviceid.SysSerial: "SN-123"},
				pvid:   "pv-new-on-sdd",
				serial: "SN-123",
			}
			sys.devices["/dev/sde"] = &fakeDevice{
				ids:    map[deviceid.Type]string{deviceid.SysSerial: "SN-999"},
				pvid:   "pv-unrelated",
				serial: "SN-999",
			}

			entries := []devicesfile.UseEntry{
				{IDType: "sys_serial", IDName: "SN-123", DevName: "/dev/sdd", PVID: "pv-stale"},
			}

			res, err := Run(context.Background(), entries, sys, SearchNone, rate.NewLimiter(rate.Inf, 1), RunOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Bound[0]).To(Equal("/dev/sdd"))
			Expect(res.Rewrite).To(BeTrue())
			Expect(entries[0].PVID).To(Equal("pv-new-on-sdd"))
			Expect(sys.dropped).NotTo(HaveKey("/dev/sde"))
		})
	})

	// S4: a metadata record written near the end of its ring must wrap
	// its tail into the area just past the MDA header, and read back
	// byte-identical with a valid checksum.
	Context("S4: circular-buffer wrap", func() {
		It("reads back a record that wraps past the ring's end", func() {
			const areaSize = mda.MdaHeaderSize + 1024
			ring := mda.Ring{Start: 0, Size: areaSize}
			backing := make([]byte, areaSize)

			readAt := func(off int64, buf []byte) (int, error) { return copy(buf, backing[off:]), nil }
			writeAt := func(off int64, buf []byte) (int, error) { return copy(backing[off:], buf), nil }

			payload := []byte(strings.Repeat("vg_metadata_text ", 40))
			// Place the write offset close enough to the ring's end that
			// the payload is forced to wrap.
			wrapOffset := ring.Size - 32
			loc, err := mda.Write(ring, wrapOffset, payload, mda.RawLocn{}, writeAt)
			Expect(err).NotTo(HaveOccurred())

			got, err := mda.Read(ring, loc, readAt)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(payload))

			By("placing the next record via NextRecordStart past the wrapped one")
			next := mda.NextRecordStart(ring, loc.Offset, loc.Size)
			Expect(next).To(BeNumerically(">=", mda.MdaHeaderSize))
			Expect(next).To(BeNumerically("<", ring.Size))
		})
	})

	// S5: a hints file written under one filter setting must be rejected
	// once the running command's filter changes, even though every other
	// field (including the devs_hash) still matches.
	Context("S5: hints invalidation on filter change", func() {
		It("rejects a hints file whose filter no longer matches", func() {
			devnames := []string{"/dev/sda", "/dev/sdb"}
			ctx := hints.CurrentContext{Filter: "a|reject|.*loop.*", DeviceNames: devnames}

			raw := hints.Format(&hints.File{Hints: []hints.Hint{{Name: "/dev/sda", PVID: "pv1", Major: 8, Minor: 0}}}, ctx)
			f, err := hints.Parse(strings.NewReader(string(raw)))
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Valid(ctx)).To(BeTrue())

			changed := ctx
			changed.Filter = "a|reject|.*usb.*"
			Expect(f.Valid(changed)).To(BeFalse())
		})
	})

	// S6: two live devices claim the same PVID. The cache's duplicate
	// policy must pick a winner deterministically (an md-raid major
	// beats a plain one), flag the run sticky, and the degenerate empty
	// hints body is what a write-capable command emits afterward rather
	// than trusting any partial hint set.
	Context("S6: duplicate PVID resolution", func() {
		It("prefers the md-raid device and marks the run as having duplicates", func() {
			const mdMajor = 9
			cache := lvmcache.New(deviceid.MajorNumbers{MD: mdMajor})

			loser := cache.Attach("/dev/sdf", 8, "pv-dup")
			Expect(loser).To(Equal(""))

			loser = cache.Attach("/dev/md0", mdMajor, "pv-dup")
			Expect(loser).To(Equal("/dev/sdf"))
			Expect(cache.HasDuplicateDevs()).To(BeTrue())

			pv, ok := cache.PvInfoByPVID("pv-dup")
			Expect(ok).To(BeTrue())
			Expect(pv.DevName).To(Equal("/dev/md0"))

			By("forcing an empty hints body once duplicates are seen")
			empty := hints.Empty(hints.CurrentContext{})
			reparsed, err := hints.Parse(strings.NewReader(string(empty)))
			Expect(err).NotTo(HaveOccurred())
			Expect(reparsed.Hints).To(BeEmpty())
		})
	})
})
