package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"
)

// Busy policies for concurrent switch requests on the same tool.
const (
	BusyReject = "reject"
	BusyQueue  = "queue"
)

// Conflict scopes: which profiles contribute managed variable names.
const (
	ScopeAll     = "all"
	ScopeCurrent = "current"
)

// Settings represents ~/.cc-switch/settings.yaml.
type Settings struct {
	Log       LogSettings      `yaml:"log,omitempty"`
	Switch    SwitchSettings   `yaml:"switch,omitempty"`
	Conflicts ConflictSettings `yaml:"conflicts,omitempty"`
	Metrics   MetricsSettings  `yaml:"metrics,omitempty"`
}

// LogSettings controls logger initialization.
type LogSettings struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// SwitchSettings controls the switch engine.
type SwitchSettings struct {
	BusyPolicy string `yaml:"busy_policy,omitempty"`
}

// ConflictSettings controls the environment conflict scanner.
type ConflictSettings struct {
	Scope           string   `yaml:"scope,omitempty"`
	ExtraFiles      []string `yaml:"extra_files,omitempty"`
	Patterns        []string `yaml:"patterns,omitempty"`
	CheckProcessEnv *bool    `yaml:"check_process_env,omitempty"`
}

// MetricsSettings controls the optional Prometheus endpoint of `watch`.
type MetricsSettings struct {
	Listen string `yaml:"listen,omitempty"`
}

// ProcessEnvEnabled reports whether the process environment is checked for
// conflicts. Defaults to true.
func (c ConflictSettings) ProcessEnvEnabled() bool {
	return c.CheckProcessEnv == nil || *c.CheckProcessEnv
}

// Default returns settings with default values.
func Default() Settings {
	return Settings{
		Log:       LogSettings{Level: "info", Format: "auto"},
		Switch:    SwitchSettings{BusyPolicy: BusyReject},
		Conflicts: ConflictSettings{Scope: ScopeAll},
	}
}

// Parse parses settings.yaml bytes, filling unset fields with defaults.
func Parse(data []byte) (Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.normalize(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Marshal serializes Settings to YAML bytes.
func Marshal(s Settings) ([]byte, error) {
	return yaml.Marshal(s)
}

// Load reads settings from path. A missing file yields Default().
// Environment overrides are applied afterwards; see ApplyEnv.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		s, err = Parse(data)
		if err != nil {
			return Settings{}, err
		}
	case os.IsNotExist(err):
	default:
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	if err := ApplyEnv(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadDotEnv loads KEY=VALUE pairs from an optional .env file into the
// process environment without overriding variables that are already set.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays CC_SWITCH_* environment variables on s.
func ApplyEnv(s *Settings) error {
	if v := os.Getenv("CC_SWITCH_LOG_LEVEL"); v != "" {
		s.Log.Level = v
	}
	if v := os.Getenv("CC_SWITCH_LOG_FORMAT"); v != "" {
		s.Log.Format = v
	}
	if v := os.Getenv("CC_SWITCH_BUSY_POLICY"); v != "" {
		s.Switch.BusyPolicy = v
	}
	if v := os.Getenv("CC_SWITCH_CONFLICT_SCOPE"); v != "" {
		s.Conflicts.Scope = v
	}
	if v := os.Getenv("CC_SWITCH_METRICS_LISTEN"); v != "" {
		s.Metrics.Listen = v
	}
	return s.normalize()
}

func (s *Settings) normalize() error {
	s.Switch.BusyPolicy = strings.ToLower(strings.TrimSpace(s.Switch.BusyPolicy))
	switch s.Switch.BusyPolicy {
	case "":
		s.Switch.BusyPolicy = BusyReject
	case BusyReject, BusyQueue:
	default:
		return fmt.Errorf("invalid switch.busy_policy %q (expected %q or %q)", s.Switch.BusyPolicy, BusyReject, BusyQueue)
	}

	s.Conflicts.Scope = strings.ToLower(strings.TrimSpace(s.Conflicts.Scope))
	switch s.Conflicts.Scope {
	case "":
		s.Conflicts.Scope = ScopeAll
	case ScopeAll, ScopeCurrent:
	default:
		return fmt.Errorf("invalid conflicts.scope %q (expected %q or %q)", s.Conflicts.Scope, ScopeAll, ScopeCurrent)
	}
	return nil
}
