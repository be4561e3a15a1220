package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/commands"
	"github.com/ruminaider/ccswitch/internal/config"
	"github.com/ruminaider/ccswitch/internal/logging"
	"github.com/ruminaider/ccswitch/internal/metrics"
	"github.com/ruminaider/ccswitch/internal/paths"
	"github.com/ruminaider/ccswitch/internal/tools"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	toolFlag     string
	logLevelFlag string

	settings config.Settings
	svc      *commands.Service
)

var rootCmd = &cobra.Command{
	Use:           "ccswitch",
	Short:         "Switch provider profiles for Claude Code, Codex and Gemini CLI",
	Long:          "ccswitch stores named provider profiles per tool and atomically rewrites the tool's configuration files when you switch between them.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		return setup(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return profileListCmd.RunE(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ccswitch %s\n", version)
	},
}

// setup loads settings, initializes logging, wires the service and runs the
// one-shot legacy migration before any command touches the registry.
func setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(paths.EnvFile()); err != nil {
		return err
	}
	s, err := config.Load(paths.SettingsFile())
	if err != nil {
		return err
	}
	if logLevelFlag != "" {
		s.Log.Level = logLevelFlag
	}
	settings = s

	logging.Init(logging.Config{
		Format:    settings.Log.Format,
		Level:     settings.Log.Level,
		Component: "ccswitch",
	})

	svc = commands.New(commands.Options{
		Settings: settings,
		Metrics:  metrics.Default(),
	})

	if cmd == migrateCmd {
		return nil
	}
	migrated, err := svc.RunMigration()
	if err != nil {
		log.Error().Err(err).Msg("legacy configuration could not be migrated; it was left untouched")
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	} else if migrated {
		fmt.Println("Migrated legacy configuration to per-tool registries.")
	}
	return nil
}

// selectedTool parses the --tool flag.
func selectedTool() (tools.Tool, error) {
	return tools.Parse(toolFlag)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&toolFlag, "tool", "t", string(tools.Claude), "Tool to operate on (claude, codex, gemini)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
