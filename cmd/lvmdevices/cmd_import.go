package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/lvmteam/lvmcore/internal/devicesfile"
	"github.com/lvmteam/lvmcore/internal/matcher"
	"github.com/lvmteam/lvmcore/internal/osdev"
)

var errImportMissingArgs = errors.New("lvmdevices: import requires --pvid and --devname")

// newImportCmd mirrors vgimportdevices' single-PV add path: given a
// device already known to carry pvid (findable via `lvmdevices list` or
// `pvscan`), add it to the devices file with its preferred identifier.
func newImportCmd(env *cmdEnv) *cobra.Command {
	var pvid, devname string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Add one PV to the devices file by PVID",
		Long: `import adds a single PV already present on the system to the devices
file, choosing its identifier the same way a freshly found device would.

This is the library-level equivalent of vgimportdevices, applied one PV at
a time rather than per whole volume group.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pvid == "" || devname == "" {
				return errImportMissingArgs
			}
			return runImport(env, devname, pvid)
		},
	}

	cmd.Flags().StringVar(&pvid, "pvid", "", "PVID of the physical volume to import")
	cmd.Flags().StringVar(&devname, "devname", "", "Device currently backing that PVID")
	return cmd
}

func runImport(env *cmdEnv, devname, pvid string) error {
	cfg, err := loadConfig(env)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	f, store, err := openDevicesFile(cfg)
	if err != nil {
		return fmt.Errorf("reading devices file: %w", err)
	}

	majors := osdev.ReadMajorNumbers()
	if err := devicesfile.ImportPV(f, devname, pvid, osdev.IDReader{}, majors); err != nil {
		if errors.Is(err, devicesfile.ErrAlreadyImported) {
			fmt.Printf("PVID %s is already present in the devices file\n", pvid)
			return nil
		}
		return fmt.Errorf("importing %s: %w", devname, err)
	}

	// A single CLI invocation has no concurrent writer of its own to race
	// against, so Write (rather than UpdateTry's optimistic-concurrency
	// path) is the right tool here; UpdateTry exists for long-running
	// commands that read the file long before they decide what to write.
	if err := store.Write(f); err != nil {
		return fmt.Errorf("writing devices file: %w", err)
	}
	// the file just changed underneath it, so any prior searched_devnames
	// breadcrumb no longer describes the current wanted/candidate sets.
	if err := matcher.RemoveBreadcrumb(cfg.SearchedDevnamesPath()); err != nil {
		klog.Warningf("lvmdevices: removing stale searched_devnames breadcrumb: %v", err)
	}

	added := f.Entries[len(f.Entries)-1]
	fmt.Printf("Added PVID %s (%s=%s) -> %s\n", pvid, added.IDType, added.IDName, devname)
	return nil
}
