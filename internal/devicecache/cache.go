package devicecache

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/lvmteam/lvmcore/internal/filter"
	"github.com/lvmteam/lvmcore/internal/label"
	"github.com/lvmteam/lvmcore/internal/mda"
	"github.com/lvmteam/lvmcore/pkg/metrics"
)

// Enumerator lists the device names a scan should consider — the
// equivalent of walking /dev and /sys/block. Kept as an interface so
// Cache.Scan is testable without a real filesystem.
type Enumerator interface {
	DeviceNames() []string
}

// BlockReader opens devname for the bounded reads label scanning needs.
// Implementations typically wrap *os.File.ReadAt via internal/ioretry.
type BlockReader interface {
	ReadAt(devname string, off int64, buf []byte) (int, error)
}

// maxConcurrentScans bounds how many devices are label-scanned at once,
// mirroring the teacher's bounded-worker-pool shape for per-device
// probing (fenio-tns-csi/pkg/driver/node_device.go) rather than firing
// one goroutine per device unconditionally.
const maxConcurrentScans = 16

// Cache is the process-wide device registry: every Device discovered
// this run, keyed by its current devname.
type Cache struct {
	mu      sync.Mutex
	devices map[string]*Device
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{devices: make(map[string]*Device)}
}

// Get returns the cached Device for devname, if any.
func (c *Cache) Get(devname string) (*Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.devices[devname]
	return d, ok
}

// Put inserts or replaces the Device for devname.
func (c *Cache) Put(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices[d.DevName] = d
}

// Drop removes devname from the cache entirely (internal/matcher's
// DropFromCache hook).
func (c *Cache) Drop(devname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.devices, devname)
}

// All returns every cached devname, in no particular order.
func (c *Cache) All() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.devices))
	for name := range c.devices {
		out = append(out, name)
	}
	return out
}

// Scan implements dev_cache_scan: it enumerates devnames, label-scans up
// to maxConcurrentScans of them concurrently, applies f at StageNoData
// to decide which devices are even worth a label read, and populates
// the Cache with a Device per surviving devname (scanned or not).
//
// A scan failure (bad CRC, bad magic, I/O error) on one device never
// aborts the run: it is recorded as ScanError/ScanNoLabel on that
// Device and logged at debug, per spec.md §7's Integrity-kind policy.
func (c *Cache) Scan(ctx context.Context, enum Enumerator, br BlockReader, f filter.Filter) error {
	names := enum.DeviceNames()

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxConcurrentScans)

	for _, name := range names {
		name := name
		if f != nil && !f.PassesFilter(name, filter.StageNoData) {
			klog.V(4).Infof("devicecache: %s excluded by nodata filter", name)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		g.Go(func() error {
			defer func() { <-sem }()
			c.scanOne(name, br)
			return nil
		})
	}
	return g.Wait()
}

func (c *Cache) scanOne(name string, br BlockReader) {
	timer := metrics.NewScanTimer()
	d := &Device{DevName: name, Aliases: []string{name}}

	readAt := func(off int64, buf []byte) (int, error) {
		return br.ReadAt(name, off, buf)
	}

	lbl, err := label.Scan(readAt)
	if err != nil {
		if err == label.ErrNoLabel {
			d.Scan = ScanNoLabel
			timer.Observe(metrics.ScanResultNoLabel)
		} else {
			klog.V(4).Infof("devicecache: %s: label scan error: %v", name, err)
			d.Scan = ScanError
			timer.Observe(metrics.ScanResultError)
		}
		c.Put(d)
		return
	}

	pvHdr, _, err := mda.DecodePvHeader(lbl.PvHeaderBytes())
	if err != nil {
		klog.V(4).Infof("devicecache: %s: pv header decode error: %v", name, err)
		d.Scan = ScanError
		timer.Observe(metrics.ScanResultError)
		c.Put(d)
		return
	}

	d.Scan = ScanFound
	d.PVID = pvidString(pvHdr.PVID)
	d.MDACount, d.ActiveMDACount = countMdas(pvHdr.MetadataAreas, readAt)
	timer.Observe(metrics.ScanResultFound)
	c.Put(d)
}

// countMdas reads each metadata area's header sector and reports how
// many areas the PV declares versus how many are still active (not
// IGNORED, and actually decodable). A header that fails to decode
// counts toward total but not active, the same as an explicitly
// ignored one — either way the area isn't usable for a write.
func countMdas(areas []mda.AreaRef, readAt func(off int64, buf []byte) (int, error)) (total, active int) {
	for _, area := range areas {
		total++
		sec := make([]byte, mda.MdaHeaderSize)
		if _, err := readAt(int64(area.Offset), sec); err != nil {
			continue
		}
		hdr, err := mda.DecodeHeader(sec, area.Offset)
		if err != nil {
			continue
		}
		if !hdr.Live.Ignored() {
			active++
		}
	}
	return total, active
}

// pvidString renders a raw 32-byte PVID field as the text form lvm2
// uses everywhere else (the field is already ASCII hex digits, just
// trimmed of any trailing NUL padding).
func pvidString(raw [32]byte) string {
	n := len(raw)
	for n > 0 && raw[n-1] == 0 {
		n--
	}
	return string(raw[:n])
}
