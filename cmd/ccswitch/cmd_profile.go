package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/ruminaider/ccswitch/internal/errs"
	"github.com/ruminaider/ccswitch/internal/presets"
	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/ruminaider/ccswitch/internal/tools"
	"github.com/ruminaider/ccswitch/internal/tray"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage provider profiles",
}

var idStyle = lipgloss.NewStyle().Faint(true)

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles of the selected tool",
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		reg, err := svc.ListProfiles(tool)
		if err != nil {
			return err
		}
		fmt.Println(tray.HeaderStyle.Render(tool.DisplayName()))
		if len(reg.Profiles) == 0 {
			fmt.Println("  No profiles configured. Add one with `ccswitch profile add` or `ccswitch profile preset`.")
			return nil
		}
		for _, p := range reg.Sorted() {
			line := "  " + tray.EntryStyle.Render(p.Name)
			if p.ID == reg.CurrentProfileID {
				line = "* " + tray.CheckedStyle.Render(p.Name)
			}
			fmt.Printf("%s  %s  %s\n", line, tray.DetailStyle.Render(profiles.Summary(p)), idStyle.Render(p.ID))
		}
		return nil
	},
}

var profileCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the active profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		p, ok, err := svc.CurrentProfile(tool)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("No %s profile active.\n", tool.DisplayName())
			return nil
		}
		fmt.Printf("%s: %s (%s)\n", tool.DisplayName(), p.Name, profiles.Summary(p))
		return nil
	},
}

var (
	profileNameFlag     string
	profileWebsiteFlag  string
	profileNotesFlag    string
	profileCategoryFlag string
	profileSettingsFlag string
	profileEnvFlags     []string
)

var profileAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a profile",
	Long: `Add a profile. Settings come from --settings-file (JSON or YAML) and/or
repeated --env KEY=VALUE flags, which are merged into the "env" object.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		p := profiles.Profile{
			Name:       profileNameFlag,
			WebsiteURL: profileWebsiteFlag,
			Notes:      profileNotesFlag,
			Category:   profileCategoryFlag,
		}
		p.SettingsConfig, err = buildSettings(nil)
		if err != nil {
			return err
		}
		stored, err := svc.AddProfile(tool, p)
		if err != nil {
			return err
		}
		fmt.Printf("Added %s profile %q (%s)\n", tool.DisplayName(), stored.Name, stored.ID)
		return nil
	},
}

var profileEditCmd = &cobra.Command{
	Use:   "edit <profile>",
	Short: "Edit a profile; only the given flags change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		p, err := resolveProfile(tool, args[0])
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("name") {
			p.Name = profileNameFlag
		}
		if flags.Changed("website") {
			p.WebsiteURL = profileWebsiteFlag
		}
		if flags.Changed("notes") {
			p.Notes = profileNotesFlag
		}
		if flags.Changed("category") {
			p.Category = profileCategoryFlag
		}
		if flags.Changed("settings-file") || flags.Changed("env") {
			base := p.SettingsConfig
			if flags.Changed("settings-file") {
				base = nil
			}
			if p.SettingsConfig, err = buildSettings(base); err != nil {
				return err
			}
		}
		stored, err := svc.UpdateProfile(cmd.Context(), tool, p)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s profile %q\n", tool.DisplayName(), stored.Name)
		return nil
	},
}

var profileRemoveYes bool

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <profile>",
	Short: "Remove a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		p, err := resolveProfile(tool, args[0])
		if err != nil {
			return err
		}
		ok, err := confirm(profileRemoveYes, fmt.Sprintf("Remove %s profile %q?", tool.DisplayName(), p.Name))
		if err != nil || !ok {
			return err
		}
		if err := svc.RemoveProfile(tool, p.ID); err != nil {
			return err
		}
		fmt.Printf("Removed %q\n", p.Name)
		return nil
	},
}

var profileSwitchCmd = &cobra.Command{
	Use:   "switch <profile>",
	Short: "Make a profile active and rewrite the tool's configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		p, err := resolveProfile(tool, args[0])
		if err != nil {
			return err
		}
		res, err := svc.SwitchProfile(context.WithoutCancel(cmd.Context()), tool, p.ID)
		if err != nil {
			if errs.KindOf(err) == errs.KindDesynchronized {
				return fmt.Errorf("%w\nThe configuration files were written; run `ccswitch profile resync %s` to record it", err, p.ID)
			}
			return err
		}
		fmt.Printf("Switched %s to %q\n", tool.DisplayName(), p.Name)
		for _, f := range res.Files {
			fmt.Printf("  wrote %s\n", f)
		}
		return warnConflicts(cmd.Context(), tool)
	},
}

var profileResyncCmd = &cobra.Command{
	Use:   "resync <profile>",
	Short: "Record a profile as active without rewriting files",
	Long: `Marks a profile as active without touching the tool's configuration files.
Use it after a switch reported that the files were written but the registry
could not be updated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		p, err := resolveProfile(tool, args[0])
		if err != nil {
			return err
		}
		if err := svc.Resync(tool, p.ID); err != nil {
			return err
		}
		fmt.Printf("Recorded %q as the active %s profile\n", p.Name, tool.DisplayName())
		return nil
	},
}

var profileReorderCmd = &cobra.Command{
	Use:   "reorder <profile>...",
	Short: "Set display order; profiles are numbered in the order given",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		reg, err := svc.ListProfiles(tool)
		if err != nil {
			return err
		}
		updates := make([]profiles.SortUpdate, 0, len(args))
		for i, ref := range args {
			id := ref
			if p, err := lookup(reg, ref); err == nil {
				id = p.ID
			}
			updates = append(updates, profiles.SortUpdate{ID: id, SortIndex: i})
		}
		if err := svc.ReorderProfiles(tool, updates); err != nil {
			return err
		}
		fmt.Printf("Reordered %d profile(s)\n", len(updates))
		return nil
	},
}

var profileDuplicateCmd = &cobra.Command{
	Use:   "duplicate <profile>",
	Short: "Copy a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		p, err := resolveProfile(tool, args[0])
		if err != nil {
			return err
		}
		dup, err := svc.DuplicateProfile(tool, p.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Created %q (%s)\n", dup.Name, dup.ID)
		return nil
	},
}

var presetAPIKeyFlag string

var profilePresetCmd = &cobra.Command{
	Use:   "preset [preset]",
	Short: "Add a profile from a built-in preset, or list presets",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			for _, p := range presets.List(tool) {
				fmt.Printf("  %s  %s\n", p.Name, tray.DetailStyle.Render(p.WebsiteURL))
			}
			return nil
		}
		key := presetAPIKeyFlag
		if key == "" && term.IsTerminal(os.Stdin.Fd()) {
			err := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("API key").
						Description("Leave empty to fill it in later with `profile edit --env`").
						EchoMode(huh.EchoModePassword).
						Value(&key),
				),
			).Run()
			if err != nil {
				return err
			}
		}
		p, err := svc.AddFromPreset(tool, args[0], profileNameFlag, strings.TrimSpace(key))
		if err != nil {
			return err
		}
		fmt.Printf("Added %s profile %q from preset %q (%s)\n", tool.DisplayName(), p.Name, args[0], p.ID)
		return nil
	},
}

var profileImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Save the tool's current configuration as a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := selectedTool()
		if err != nil {
			return err
		}
		p, err := svc.ImportCurrent(cmd.Context(), tool, profileNameFlag)
		if err != nil {
			return err
		}
		fmt.Printf("Imported current %s configuration as %q (%s)\n", tool.DisplayName(), p.Name, p.ID)
		return nil
	},
}

// resolveProfile finds a profile by id or, failing that, by unique name.
func resolveProfile(tool tools.Tool, ref string) (profiles.Profile, error) {
	reg, err := svc.ListProfiles(tool)
	if err != nil {
		return profiles.Profile{}, err
	}
	return lookup(reg, ref)
}

func lookup(reg profiles.Registry, ref string) (profiles.Profile, error) {
	if p, ok := reg.Profiles[ref]; ok {
		return p, nil
	}
	matches := reg.FindByName(ref)
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		var names []string
		for _, p := range reg.Sorted() {
			names = append(names, p.Name)
		}
		if len(names) == 0 {
			return profiles.Profile{}, fmt.Errorf("profile %q not found (no profiles configured)", ref)
		}
		return profiles.Profile{}, fmt.Errorf("profile %q not found (available: %s)", ref, strings.Join(names, ", "))
	default:
		var ids []string
		for _, p := range matches {
			ids = append(ids, p.ID)
		}
		return profiles.Profile{}, fmt.Errorf("profile name %q is ambiguous; use an id: %s", ref, strings.Join(ids, ", "))
	}
}

// buildSettings reads --settings-file (YAML, so JSON also parses) into base
// and merges --env pairs into its "env" object.
func buildSettings(base map[string]any) (map[string]any, error) {
	settings := base
	if profileSettingsFlag != "" {
		data, err := os.ReadFile(profileSettingsFlag)
		if err != nil {
			return nil, fmt.Errorf("reading settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("parsing settings file: %w", err)
		}
	}
	if settings == nil {
		settings = map[string]any{}
	}
	if len(profileEnvFlags) > 0 {
		env, ok := settings["env"].(map[string]any)
		if !ok {
			env = map[string]any{}
		}
		for _, kv := range profileEnvFlags {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("invalid --env %q (expected KEY=VALUE)", kv)
			}
			env[k] = v
		}
		settings["env"] = env
	}
	return settings, nil
}

// confirm asks a yes/no question. It returns yes without asking when
// assumeYes is set, and refuses when stdin is not a terminal.
func confirm(assumeYes bool, title string) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !term.IsTerminal(os.Stdin.Fd()) {
		return false, fmt.Errorf("refusing to continue without confirmation; pass --yes")
	}
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Value(&ok),
		),
	).Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func init() {
	for _, c := range []*cobra.Command{profileAddCmd, profileEditCmd} {
		c.Flags().StringVar(&profileNameFlag, "name", "", "Profile name")
		c.Flags().StringVar(&profileWebsiteFlag, "website", "", "Provider website")
		c.Flags().StringVar(&profileNotesFlag, "notes", "", "Free-form notes")
		c.Flags().StringVar(&profileCategoryFlag, "category", "", "Category (official, third_party, custom)")
		c.Flags().StringVar(&profileSettingsFlag, "settings-file", "", "JSON or YAML file holding settingsConfig")
		c.Flags().StringArrayVar(&profileEnvFlags, "env", nil, "Set an env variable (KEY=VALUE, repeatable)")
	}
	profileAddCmd.MarkFlagRequired("name")
	profilePresetCmd.Flags().StringVar(&profileNameFlag, "name", "", "Profile name (defaults to the preset name)")
	profilePresetCmd.Flags().StringVar(&presetAPIKeyFlag, "api-key", "", "API key to store in the profile")
	profileImportCmd.Flags().StringVar(&profileNameFlag, "name", "", "Profile name (default \"default\")")
	profileRemoveCmd.Flags().BoolVarP(&profileRemoveYes, "yes", "y", false, "Do not ask for confirmation")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileCurrentCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileEditCmd)
	profileCmd.AddCommand(profileRemoveCmd)
	profileCmd.AddCommand(profileSwitchCmd)
	profileCmd.AddCommand(profileResyncCmd)
	profileCmd.AddCommand(profileReorderCmd)
	profileCmd.AddCommand(profileDuplicateCmd)
	profileCmd.AddCommand(profilePresetCmd)
	profileCmd.AddCommand(profileImportCmd)
}
