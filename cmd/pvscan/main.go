// Command pvscan is a thin inspection CLI exercising the device-scan and
// devices-file-matching library end to end, playing the same "manual
// testing surface over a real library" role the teacher's
// tns-csi-driver binary plays for the CSI driver package: it does no
// metadata writing of its own, only scanning, matching, and reporting.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"github.com/lvmteam/lvmcore/internal/config"
	"github.com/lvmteam/lvmcore/internal/devicecache"
	"github.com/lvmteam/lvmcore/internal/devicesfile"
	"github.com/lvmteam/lvmcore/internal/filter"
	"github.com/lvmteam/lvmcore/internal/hints"
	"github.com/lvmteam/lvmcore/internal/lvmctx"
	"github.com/lvmteam/lvmcore/internal/matcher"
	"github.com/lvmteam/lvmcore/internal/osdev"
)

var (
	version = "dev"

	configPath  = flag.String("config", "", "Path to a lvmcore YAML config file (defaults baked in if omitted)")
	devDir      = flag.String("dev-dir", "/dev", "Directory to scan for block devices")
	debug       = flag.Bool("debug", false, "Enable debug logging (equivalent to -v=4)")
	showVersion = flag.Bool("show-version", false, "Show version and exit")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *debug {
		if err := flag.Set("v", "4"); err != nil {
			klog.Warningf("Failed to set verbosity level: %v", err)
		}
	}

	if *showVersion {
		fmt.Printf("pvscan version: %s\n", version)
		fmt.Printf("  Go version: %s\n", runtime.Version())
		fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			klog.Fatalf("pvscan: loading config %s: %v", *configPath, err)
		}
		cfg = loaded
	}

	if err := run(cfg); err != nil {
		klog.Fatalf("pvscan: %v", err)
	}
}

func run(cfg *config.Config) error {
	majors := osdev.ReadMajorNumbers()
	lc := lvmctx.New(cfg, osdev.IDReader{}, majors)

	devFilter, err := buildFilter(cfg)
	if err != nil {
		return fmt.Errorf("building filter: %w", err)
	}

	ctx := context.Background()
	deviceNames := osdev.Enumerator{Root: *devDir}.DeviceNames()
	hintsCtx := buildHintsContext(cfg, deviceNames)

	usedHints := false
	if !lc.Hints.NoHintsActive() && !lc.Hints.NewHintsRequested() {
		if hf, ok, err := lc.Hints.Read(); err != nil {
			klog.Warningf("pvscan: reading hints: %v", err)
		} else if ok && hf.Valid(hintsCtx) {
			for _, h := range hf.Hints {
				lc.Devices.Put(&devicecache.Device{
					DevName: h.Name,
					Major:   h.Major,
					Minor:   h.Minor,
					PVID:    h.PVID,
					VgName:  h.VgName,
					Scan:    devicecache.ScanFound,
				})
			}
			usedHints = true
			klog.V(4).Infof("pvscan: hints file valid, skipping full label scan of %s", *devDir)
		}
	}

	if !usedHints {
		if err := lc.Devices.Scan(ctx, osdev.Enumerator{Root: *devDir}, osdev.BlockReader{}, devFilter); err != nil {
			return fmt.Errorf("scanning %s: %w", *devDir, err)
		}
	}
	lc.Adapter.Reset()

	var found int
	for _, devname := range lc.Devices.All() {
		d, ok := lc.Devices.Get(devname)
		if !ok || d.Scan != devicecache.ScanFound {
			continue
		}
		found++
		major, _ := osdev.IDReader{}.Major(devname)
		if loser := lc.LVMCache.Attach(devname, major, d.PVID); loser != "" {
			lc.Diag.FlagDuplicatePVID()
			winner := devname
			if pv, ok := lc.LVMCache.PvInfoByPVID(d.PVID); ok {
				winner = pv.DevName
			}
			klog.Warningf("pvscan: %s lost duplicate-PVID arbitration to %s for PVID %s", loser, winner, d.PVID)
		}
		lc.LVMCache.SetMdaCounts(d.PVID, d.MDACount, d.ActiveMDACount)
		fmt.Printf("PV %s  PVID %s  MDAs %d/%d active\n", devname, d.PVID, d.ActiveMDACount, d.MDACount)
	}
	klog.Infof("pvscan: scanned %s, found %d PV(s)", *devDir, found)

	if !usedHints {
		writeFreshHints(lc, hintsCtx)
	}

	report, err := checkDevicesFile(ctx, cfg, lc)
	if err != nil {
		klog.Warningf("pvscan: devices file check skipped: %v", err)
		return nil
	}
	if report == nil {
		return nil
	}
	printReport(*report)
	return nil
}

// buildHintsContext renders cfg's filter settings the same way they are
// compared in the hints file's global_filter:/filter: lines.
func buildHintsContext(cfg *config.Config, deviceNames []string) hints.CurrentContext {
	return hints.CurrentContext{
		GlobalFilter: strings.Join(cfg.Devices.GlobalFilter, ","),
		Filter:       strings.Join(cfg.Devices.Filter, ","),
		ScanLVs:      cfg.Devices.ScanLVs,
		DeviceNames:  deviceNames,
	}
}

// writeFreshHints persists what this run's full scan found, so a later
// command with an unchanged device set can skip its own scan (spec.md
// §4.8). A duplicate-PVID resolution this run makes the whole cache
// suspect, so an empty, header-only hints file is written instead —
// forcing the next command back to a full scan rather than trusting a
// partial view (spec.md §4.7).
func writeFreshHints(lc *lvmctx.Context, hctx hints.CurrentContext) {
	if lc.Diag.HasDuplicateDevs() {
		if err := lc.Hints.Write(hints.Empty(hctx)); err != nil {
			klog.Warningf("pvscan: writing empty hints after duplicate-PVID resolution: %v", err)
		}
		return
	}

	var hs []hints.Hint
	for _, devname := range lc.Devices.All() {
		d, ok := lc.Devices.Get(devname)
		if !ok || d.Scan != devicecache.ScanFound {
			continue
		}
		major, minor, _ := osdev.MajorMinor(devname)
		hs = append(hs, hints.Hint{Name: devname, PVID: d.PVID, Major: major, Minor: minor, VgName: d.VgName})
	}
	if err := lc.Hints.Write(hints.Format(&hints.File{Hints: hs}, hctx)); err != nil {
		klog.Warningf("pvscan: writing hints: %v", err)
	}
}

// checkDevicesFile reads the devices file, if any, and runs the matcher
// against the live candidate set, returning nil (not an error) when no
// devices file exists yet — pvscan's job is reporting, not provisioning
// one.
func checkDevicesFile(ctx context.Context, cfg *config.Config, lc *lvmctx.Context) (*matcher.CheckReport, error) {
	store := &devicesfile.Store{
		Path:        cfg.DevicesFilePath(),
		LockPath:    cfg.DevicesFileLockPath(),
		BackupDir:   cfg.DevicesFileBackupDir(),
		BackupLimit: cfg.Devices.BackupLimit,
	}
	f, err := store.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !f.HashOK {
		lc.Diag.FlagDevicesHashMismatch()
		klog.Warningf("pvscan: devices file hash mismatch, file was edited outside lvm")
	}

	limiter := rate.NewLimiter(rate.Limit(1), 1)
	current := osdev.ReadSystemIdentity()
	opts := matcher.RunOptions{
		RefreshTrigger: !f.HashOK,
		BreadcrumbPath: cfg.SearchedDevnamesPath(),
	}
	report, err := matcher.Check(ctx, f, lc.Adapter, cfg.Devices.SearchPolicy(), limiter, current, opts)
	if err != nil {
		return nil, err
	}
	if lc.Diag.HasDuplicateDevs() {
		klog.Warningf("pvscan: duplicate devices detected this run, devices file bindings may be unstable")
	}
	return &report, nil
}

func printReport(report matcher.CheckReport) {
	fmt.Println()
	fmt.Println("Devices file entries:")
	for _, e := range report.Entries {
		switch e.Status {
		case matcher.StatusBound:
			fmt.Printf("  PVID %s  IDTYPE=%s IDNAME=%s  -> %s\n", e.Entry.PVID, e.Entry.IDType, e.Entry.IDName, e.DevName)
		case matcher.StatusUnresolved:
			fmt.Printf("  PVID %s  IDTYPE=%s IDNAME=%s  -> UNRESOLVED\n", e.Entry.PVID, e.Entry.IDType, e.Entry.IDName)
		}
	}
	if report.NeedsRewrite {
		fmt.Println("(devices file is stale; a write-capable command should refresh it)")
	}
}

func buildFilter(cfg *config.Config) (filter.Filter, error) {
	var filters []filter.Filter
	if len(cfg.Devices.GlobalFilter) > 0 {
		f, err := filter.NewRegexListFilter(cfg.Devices.GlobalFilter, false)
		if err != nil {
			return nil, fmt.Errorf("global_filter: %w", err)
		}
		filters = append(filters, f)
	}
	if len(cfg.Devices.Filter) > 0 {
		f, err := filter.NewRegexListFilter(cfg.Devices.Filter, false)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		filters = append(filters, f)
	}
	return &filter.Composite{Filters: filters}, nil
}
