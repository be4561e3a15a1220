// Package presets holds the built-in provider templates a new profile can
// start from.
package presets

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/ruminaider/ccswitch/internal/tools"
	"go.yaml.in/yaml/v3"
)

//go:embed presets.yaml
var builtin []byte

// Preset is a provider template.
type Preset struct {
	Name               string         `yaml:"name"`
	WebsiteURL         string         `yaml:"websiteUrl"`
	Category           string         `yaml:"category"`
	APIKeyField        string         `yaml:"apiKeyField"`
	EndpointCandidates []string       `yaml:"endpointCandidates"`
	SettingsConfig     map[string]any `yaml:"settingsConfig"`
}

var catalog map[tools.Tool][]Preset

func init() {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("presets: %v", err))
	}
	catalog = c
}

// Parse reads a preset catalog keyed by tool name.
func Parse(data []byte) (map[tools.Tool][]Preset, error) {
	var raw map[string][]Preset
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing presets: %w", err)
	}
	out := make(map[tools.Tool][]Preset, len(raw))
	for name, list := range raw {
		t, err := tools.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("parsing presets: %w", err)
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
		out[t] = list
	}
	return out, nil
}

// List returns the presets available for tool.
func List(tool tools.Tool) []Preset {
	return append([]Preset(nil), catalog[tool]...)
}

// Get looks a preset up by name (case-insensitive).
func Get(tool tools.Tool, name string) (Preset, bool) {
	for _, p := range catalog[tool] {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Preset{}, false
}

// Names returns the preset names for tool.
func Names(tool tools.Tool) []string {
	var out []string
	for _, p := range catalog[tool] {
		out = append(out, p.Name)
	}
	return out
}

// Profile builds an unsaved profile from the preset. When apiKey is set it
// is stored under the preset's key field: in "auth" for codex and in "env"
// otherwise.
func (p Preset) Profile(tool tools.Tool, name, apiKey string) profiles.Profile {
	if name == "" {
		name = p.Name
	}
	prof := profiles.Profile{
		Name:           name,
		WebsiteURL:     p.WebsiteURL,
		Category:       p.Category,
		SettingsConfig: p.SettingsConfig,
	}
	if len(p.EndpointCandidates) > 0 {
		candidates := make([]any, len(p.EndpointCandidates))
		for i, c := range p.EndpointCandidates {
			candidates[i] = c
		}
		prof.Meta = map[string]any{"endpointCandidates": candidates}
	}
	prof = prof.Clone()
	if prof.SettingsConfig == nil {
		prof.SettingsConfig = map[string]any{}
	}

	if apiKey != "" && p.APIKeyField != "" {
		section := "env"
		if tool == tools.Codex {
			section = "auth"
		}
		m, ok := prof.SettingsConfig[section].(map[string]any)
		if !ok {
			m = map[string]any{}
			prof.SettingsConfig[section] = m
		}
		m[p.APIKeyField] = apiKey
	}
	return prof
}
