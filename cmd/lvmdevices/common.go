package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/time/rate"

	"github.com/lvmteam/lvmcore/internal/config"
	"github.com/lvmteam/lvmcore/internal/devicesfile"
	"github.com/lvmteam/lvmcore/internal/filter"
	"github.com/lvmteam/lvmcore/internal/lvmctx"
	"github.com/lvmteam/lvmcore/internal/matcher"
	"github.com/lvmteam/lvmcore/internal/osdev"
)

// loadConfig builds a Config from env's flags, preferring --config when
// set over the three directory flags.
func loadConfig(env *cmdEnv) (*config.Config, error) {
	if *env.configPath != "" {
		return config.Load(*env.configPath)
	}
	cfg := config.Default()
	cfg.SystemDir = *env.systemDir
	cfg.LockingDir = *env.lockingDir
	cfg.RunDir = *env.runDir
	return cfg, nil
}

// scanLiveDevices builds an lvmctx.Context and populates its device
// cache from a real /dev scan, via the same internal/osdev probes
// cmd/pvscan uses.
func scanLiveDevices(ctx context.Context, cfg *config.Config) (*lvmctx.Context, error) {
	majors := osdev.ReadMajorNumbers()
	lc := lvmctx.New(cfg, osdev.IDReader{}, majors)

	devFilter, err := buildFilter(cfg)
	if err != nil {
		return nil, fmt.Errorf("building filter: %w", err)
	}
	if err := lc.Devices.Scan(ctx, osdev.Enumerator{Root: "/dev"}, osdev.BlockReader{}, devFilter); err != nil {
		return nil, fmt.Errorf("scanning /dev: %w", err)
	}
	lc.Adapter.Reset()
	return lc, nil
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

// openDevicesFile reads the live devices file via its Store, wrapping a
// missing file as the zero-entry File the caller renders as "no entries".
func openDevicesFile(cfg *config.Config) (*devicesfile.File, *devicesfile.Store, error) {
	store := &devicesfile.Store{
		Path:        cfg.DevicesFilePath(),
		LockPath:    cfg.DevicesFileLockPath(),
		BackupDir:   cfg.DevicesFileBackupDir(),
		BackupLimit: cfg.Devices.BackupLimit,
	}
	f, err := store.Read()
	if err != nil {
		if os.IsNotExist(err) {
			// no file at all is not a hash mismatch — there's nothing to
			// have been edited out from under us.
			return &devicesfile.File{HashOK: true}, store, nil
		}
		return nil, nil, err
	}
	return f, store, nil
}

// runCheck scans live devices and matches them against the devices
// file, returning the structured report list/check both render.
func runCheck(env *cmdEnv) (matcher.CheckReport, error) {
	cfg, err := loadConfig(env)
	if err != nil {
		return matcher.CheckReport{}, fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	lc, err := scanLiveDevices(ctx, cfg)
	if err != nil {
		return matcher.CheckReport{}, err
	}

	f, _, err := openDevicesFile(cfg)
	if err != nil {
		return matcher.CheckReport{}, fmt.Errorf("reading devices file: %w", err)
	}
	if !f.HashOK {
		lc.Diag.FlagDevicesHashMismatch()
	}

	limiter := rate.NewLimiter(rate.Limit(1), 1)
	current := osdev.ReadSystemIdentity()
	opts := matcher.RunOptions{
		RefreshTrigger: !f.HashOK,
		BreadcrumbPath: cfg.SearchedDevnamesPath(),
	}
	return matcher.Check(ctx, f, lc.Adapter, cfg.Devices.SearchPolicy(), limiter, current, opts)
}

// devnameOrDash renders a CheckEntry's resolved devname, or a dash for
// an unresolved one.
func devnameOrDash(e matcher.CheckEntry) string {
	if e.Status == matcher.StatusBound {
		return e.DevName
	}
	return "-"
}
