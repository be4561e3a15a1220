package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/x/term"
	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/envscan"
	"github.com/ruminaider/ccswitch/internal/tools"
	"github.com/ruminaider/ccswitch/internal/tray"
	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Find shell variables that override profile settings",
}

var (
	envAllFlag  bool
	envJSONFlag bool
	envYesFlag  bool
)

var envScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List environment variables defined outside ccswitch",
	RunE: func(cmd *cobra.Command, args []string) error {
		conflicts, err := scan(cmd.Context())
		if err != nil {
			return err
		}
		if envJSONFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if conflicts == nil {
				conflicts = []envscan.Conflict{}
			}
			return enc.Encode(conflicts)
		}
		printConflicts(conflicts)
		return nil
	},
}

var envCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove conflicting lines from shell files (a backup is kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		conflicts, err := scan(cmd.Context())
		if err != nil {
			return err
		}
		var fileConflicts []envscan.Conflict
		for _, c := range conflicts {
			if c.SourceType == envscan.SourceFile {
				fileConflicts = append(fileConflicts, c)
			}
		}
		if len(fileConflicts) == 0 {
			fmt.Println("No conflicting lines in shell files.")
			return nil
		}
		printConflicts(fileConflicts)

		selected := fileConflicts
		if !envYesFlag {
			if !term.IsTerminal(os.Stdin.Fd()) {
				return fmt.Errorf("refusing to edit shell files without confirmation; pass --yes")
			}
			selected, err = pickConflicts(fileConflicts)
			if err != nil {
				return err
			}
			if len(selected) == 0 {
				fmt.Println("Nothing removed.")
				return nil
			}
		}

		removals, err := svc.RemoveConflicts(selected)
		for _, r := range removals {
			if r.Removed > 0 {
				fmt.Printf("  %s: removed %d line(s), backup at %s\n", r.Path, r.Removed, r.Backup)
			}
			if r.Stale > 0 {
				fmt.Printf("  %s: skipped %d line(s) that changed since the scan\n", r.Path, r.Stale)
			}
		}
		if err != nil {
			return err
		}
		fmt.Println("Open a new shell for the change to take effect.")
		return nil
	},
}

func scan(ctx context.Context) ([]envscan.Conflict, error) {
	if envAllFlag {
		all, err := svc.ScanAllConflicts(ctx)
		if err != nil {
			if len(all) == 0 {
				return nil, err
			}
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		return envscan.Flatten(all), nil
	}
	tool, err := selectedTool()
	if err != nil {
		return nil, err
	}
	conflicts, err := svc.ScanConflicts(ctx, tool)
	if err != nil {
		return nil, err
	}
	return envscan.MergeConflicts(conflicts), nil
}

func printConflicts(conflicts []envscan.Conflict) {
	if len(conflicts) == 0 {
		fmt.Println("No conflicting environment variables found.")
		return
	}
	fmt.Printf("%d conflicting definition(s):\n", len(conflicts))
	for _, c := range conflicts {
		where := c.SourcePath
		if c.SourceType == envscan.SourceFile {
			where = fmt.Sprintf("%s:%d", c.SourcePath, c.LineNumber)
		}
		fmt.Printf("  %s [%s]  %s\n", tray.CheckedStyle.Render(c.VarName), c.Tool, tray.DetailStyle.Render(where))
		fmt.Printf("      %s\n", c.RawLine)
	}
}

func pickConflicts(conflicts []envscan.Conflict) ([]envscan.Conflict, error) {
	options := make([]huh.Option[int], 0, len(conflicts))
	for i, c := range conflicts {
		label := fmt.Sprintf("%s  (%s:%d)", c.VarName, c.SourcePath, c.LineNumber)
		options = append(options, huh.NewOption(label, i).Selected(true))
	}
	var picked []int
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[int]().
				Title("Remove these lines?").
				Description("Each file is backed up to <file>" + envscan.BackupSuffix + " first").
				Options(options...).
				Value(&picked),
		),
	).Run()
	if err != nil {
		return nil, err
	}
	out := make([]envscan.Conflict, 0, len(picked))
	for _, i := range picked {
		out = append(out, conflicts[i])
	}
	return out, nil
}

// warnConflicts prints a hint after a switch when shell files still
// override the new profile. Scan failures are logged, not returned.
func warnConflicts(ctx context.Context, tool tools.Tool) error {
	conflicts, err := svc.ScanConflicts(ctx, tool)
	if err != nil {
		log.Warn().Err(err).Str("tool", tool.String()).Msg("conflict scan failed")
		return nil
	}
	if len(conflicts) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Printf("Warning: %d variable(s) defined outside ccswitch override this profile:\n", len(conflicts))
	for _, c := range envscan.MergeConflicts(conflicts) {
		fmt.Printf("  %s  %s\n", c.VarName, tray.DetailStyle.Render(c.SourcePath))
	}
	fmt.Println("Run `ccswitch env clean` to remove them.")
	return nil
}

func init() {
	for _, c := range []*cobra.Command{envScanCmd, envCleanCmd} {
		c.Flags().BoolVar(&envAllFlag, "all", false, "Scan every tool instead of --tool")
	}
	envScanCmd.Flags().BoolVar(&envJSONFlag, "json", false, "Print conflicts as JSON")
	envCleanCmd.Flags().BoolVarP(&envYesFlag, "yes", "y", false, "Remove every conflicting line without asking")

	envCmd.AddCommand(envScanCmd)
	envCmd.AddCommand(envCleanCmd)
}
