package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lvmteam/lvmcore/internal/matcher"
)

var errUnresolvedEntries = errors.New("lvmdevices: one or more devices file entries did not resolve to a live device")

// entryRow is one devices-file line rendered for table/json/yaml output.
type entryRow struct {
	PVID    string `json:"pvid"    yaml:"pvid"`
	IDType  string `json:"idType"  yaml:"idType"`
	IDName  string `json:"idName"  yaml:"idName"`
	DevName string `json:"devName" yaml:"devName"`
	Status  string `json:"status"  yaml:"status"`
}

func newListCmd(env *cmdEnv, checkMode bool) *cobra.Command {
	use, short := "list", "List devices file entries and their live resolution"
	if checkMode {
		use, short = "check", "Check devices file entries against live devices, failing on unresolved ones"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListOrCheck(env, checkMode)
		},
	}
}

func runListOrCheck(env *cmdEnv, checkMode bool) error {
	report, err := runCheck(env)
	if err != nil {
		return fmt.Errorf("checking devices file: %w", err)
	}

	rows := toRows(report)
	if err := renderRows(rows, *env.outputFormat); err != nil {
		return err
	}

	if checkMode && len(report.Entries) > 0 {
		for _, e := range report.Entries {
			if e.Status == matcher.StatusUnresolved {
				return errUnresolvedEntries
			}
		}
	}
	return nil
}

func toRows(report matcher.CheckReport) []entryRow {
	rows := make([]entryRow, 0, len(report.Entries))
	for _, e := range report.Entries {
		status := "bound"
		if e.Status == matcher.StatusUnresolved {
			status = "unresolved"
		}
		rows = append(rows, entryRow{
			PVID:    e.Entry.PVID,
			IDType:  e.Entry.IDType,
			IDName:  e.Entry.IDName,
			DevName: devnameOrDash(e),
			Status:  status,
		})
	}
	return rows
}

func renderRows(rows []entryRow, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)

	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		return enc.Encode(rows)

	case "table", "":
		t := newStyledTable()
		t.AppendHeader(table.Row{"PVID", "IDTYPE", "IDNAME", "DEVNAME", "STATUS"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.PVID, r.IDType, r.IDName, r.DevName, statusBadge(r.Status)})
		}
		renderTable(t)
		return nil

	default:
		return fmt.Errorf("lvmdevices: unknown output format %q", format)
	}
}

func statusBadge(status string) string {
	switch status {
	case "bound":
		return color.New(color.FgGreen).Sprint("bound")
	case "unresolved":
		return color.New(color.FgRed, color.Bold).Sprint("unresolved")
	default:
		return status
	}
}

// newStyledTable matches the teacher's pre-configured go-pretty table:
// StyleLight base, upper-case left-aligned headers, no outer border, no
// row separators.
func newStyledTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)

	style := table.StyleLight
	style.Options.SeparateRows = false
	style.Options.DrawBorder = false
	style.Options.SeparateColumns = true
	style.Format.Header = text.FormatUpper
	style.Format.HeaderAlign = text.AlignLeft
	t.SetStyle(style)

	return t
}

func renderTable(t table.Writer) {
	t.Render()
}
