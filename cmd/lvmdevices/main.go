// Command lvmdevices is a thin inspection and maintenance CLI over the
// devices file: list/check render a live reconciliation report, import
// adds a single PV by PVID. It plays the same role kubectl-tns-csi plays
// for the CSI driver — a cobra front end with table/color output
// wired directly onto the library, not a reimplementation of lvm2's own
// command dispatch (out of scope per spec.md's Non-goals).
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		systemDir    string
		lockingDir   string
		runDir       string
		configPath   string
		outputFormat string
	)

	rootCmd := &cobra.Command{
		Use:     "lvmdevices",
		Short:   "Inspect and maintain the lvmcore devices file",
		Version: version,
		Long: `lvmdevices lists, checks, and imports entries in the devices file that
fixes which block devices this lvmcore installation is allowed to consider.

Connection to the installation's on-disk state is configured via:
  - Flags: --system-dir, --locking-dir, --run-dir
  - A YAML config file: --config`,
	}

	rootCmd.PersistentFlags().StringVar(&systemDir, "system-dir", "/etc/lvm", "Configuration/devices-file directory")
	rootCmd.PersistentFlags().StringVar(&lockingDir, "locking-dir", "/run/lock/lvm", "Lock file directory")
	rootCmd.PersistentFlags().StringVar(&runDir, "run-dir", "/run/lvm", "Hints/runtime state directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (overrides the directory flags)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, yaml, json")

	env := &cmdEnv{
		systemDir:    &systemDir,
		lockingDir:   &lockingDir,
		runDir:       &runDir,
		configPath:   &configPath,
		outputFormat: &outputFormat,
	}

	rootCmd.AddCommand(newListCmd(env, false))
	rootCmd.AddCommand(newListCmd(env, true))
	rootCmd.AddCommand(newImportCmd(env))

	return rootCmd
}

// cmdEnv carries the root command's persistent flags through to each
// subcommand, the same pointer-bundle shape newRootCmd uses for
// TrueNAS connection flags in the teacher's kubectl plugin.
type cmdEnv struct {
	systemDir    *string
	lockingDir   *string
	runDir       *string
	configPath   *string
	outputFormat *string
}
