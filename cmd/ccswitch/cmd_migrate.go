package main

import (
	"fmt"

	"github.com/ruminaider/ccswitch/internal/paths"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Convert a legacy config.json into per-tool registries",
	Long: `Converts ~/.cc-switch/config.json into one registry file per tool.

Migration runs automatically before every command; this command runs it
explicitly and reports the outcome. The legacy file is renamed to
config.json.migrated on success and left untouched on failure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		state := svc.MenuState()
		if !state.LegacyPending {
			if state.RegistryExists {
				fmt.Println("Registries already exist; nothing to migrate.")
			} else {
				fmt.Printf("No legacy configuration at %s.\n", paths.LegacyConfigFile())
			}
			return nil
		}

		migrated, err := svc.RunMigration()
		if err != nil {
			return err
		}
		if !migrated {
			fmt.Println("Nothing to migrate.")
			return nil
		}

		fmt.Println("Migrated legacy configuration:")
		for _, ts := range svc.MenuState().Tools {
			if ts.Err != nil {
				fmt.Printf("  %-8s %v\n", ts.Tool, ts.Err)
				continue
			}
			current := "-"
			if ts.CurrentName != "" {
				current = ts.CurrentName
			}
			fmt.Printf("  %-8s %d profile(s), current: %s\n", ts.Tool, ts.Profiles, current)
		}
		return nil
	},
}
