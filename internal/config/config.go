// Package config loads the typed runtime configuration for the lvm
// core: directory layout, devices-file policy knobs, and filter/scan
// settings, per spec.md §9's design note preferring a typed struct over
// lvm2's stringly-typed config-tree walker.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lvmteam/lvmcore/internal/matcher"
)

// Devices groups the devices-file/filter/scan knobs spec.md §6 lists as
// the read-only environment/configuration contract.
type Devices struct {
	// SearchForDevnames is the devices/search_for_devnames policy:
	// "none", "auto", or "all" (internal/matcher.SearchPolicy).
	SearchForDevnames string `yaml:"search_for_devnames"`
	// BackupLimit is devices/devicesfile_backup_limit: how many rotated
	// backups of the devices file to retain.
	BackupLimit int `yaml:"devicesfile_backup_limit"`
	// GlobalFilter and Filter are rendered regex-list patterns, fed to
	// internal/filter.NewRegexListFilter and compared verbatim in the
	// hints file's global_filter:/filter: lines.
	GlobalFilter []string `yaml:"global_filter"`
	Filter       []string `yaml:"filter"`
	// ScanLVs mirrors scan_lvs: whether to include LV-backed devices
	// (e.g. thin/cache pool members) in the scanned device set.
	ScanLVs bool `yaml:"scan_lvs"`
}

// Config is the complete typed configuration loaded from YAML.
type Config struct {
	SystemDir  string  `yaml:"system_dir"`
	LockingDir string  `yaml:"locking_dir"`
	RunDir     string  `yaml:"run_dir"`
	Devices    Devices `yaml:"devices"`
}

// Default returns the documented defaults, matching lvm2's compiled-in
// defaults for the fields this core consults, so tests and CLIs don't
// need a config file on disk to get sane behavior.
func Default() *Config {
	return &Config{
		SystemDir:  "/etc/lvm",
		LockingDir: "/run/lock/lvm",
		RunDir:     "/run/lvm",
		Devices: Devices{
			SearchForDevnames: "auto",
			BackupLimit:       10,
			ScanLVs:           false,
		},
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default() so any field the file omits keeps its documented default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SearchPolicy parses Devices.SearchForDevnames into
// internal/matcher.SearchPolicy, defaulting to SearchAuto for an
// unrecognised or empty value.
func (d Devices) SearchPolicy() matcher.SearchPolicy {
	switch d.SearchForDevnames {
	case "none":
		return matcher.SearchNone
	case "all":
		return matcher.SearchAll
	default:
		return matcher.SearchAuto
	}
}

// DevicesFilePath and LockPath/BackupDir are the canonical file
// locations derived from SystemDir, per spec.md §6.
func (c *Config) DevicesFilePath() string { return c.SystemDir + "/devices/system.devices" }
func (c *Config) DevicesFileBackupDir() string { return c.SystemDir + "/devices/backup" }
func (c *Config) DevicesFileLockPath() string  { return c.LockingDir + "/D_system.devices" }

func (c *Config) HintsFilePath() string     { return c.RunDir + "/hints" }
func (c *Config) NoHintsFilePath() string   { return c.RunDir + "/nohints" }
func (c *Config) NewHintsFilePath() string  { return c.RunDir + "/newhints" }
func (c *Config) SearchedDevnamesPath() string { return c.RunDir + "/searched_devnames" }
func (c *Config) HintsLockPath() string     { return c.LockingDir + "/P_hints" }
