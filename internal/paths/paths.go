package paths

import (
	"os"
	"path/filepath"
)

// Environment overrides. AppHomeEnv relocates the ccswitch data directory;
// ToolHomeEnv relocates the home directory used for tool configuration
// targets and shell startup files.
const (
	AppHomeEnv  = "CC_SWITCH_HOME"
	ToolHomeEnv = "CC_SWITCH_TOOL_HOME"
)

func home() string {
	if h := os.Getenv(ToolHomeEnv); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

// Home returns the home directory tool targets and shell files are resolved
// against.
func Home() string {
	return home()
}

// AppDir returns ~/.cc-switch.
func AppDir() string {
	if d := os.Getenv(AppHomeEnv); d != "" {
		return d
	}
	return filepath.Join(home(), ".cc-switch")
}

// RegistryDir returns ~/.cc-switch/providers.
func RegistryDir() string {
	return filepath.Join(AppDir(), "providers")
}

// SettingsFile returns ~/.cc-switch/settings.yaml.
func SettingsFile() string {
	return filepath.Join(AppDir(), "settings.yaml")
}

// EnvFile returns ~/.cc-switch/.env.
func EnvFile() string {
	return filepath.Join(AppDir(), ".env")
}

// LegacyConfigFile returns ~/.cc-switch/config.json, the pre-registry layout.
func LegacyConfigFile() string {
	return filepath.Join(AppDir(), "config.json")
}

// ClaudeDir returns ~/.claude.
func ClaudeDir() string {
	return filepath.Join(home(), ".claude")
}

// CodexDir returns ~/.codex.
func CodexDir() string {
	return filepath.Join(home(), ".codex")
}

// GeminiDir returns ~/.gemini.
func GeminiDir() string {
	return filepath.Join(home(), ".gemini")
}
