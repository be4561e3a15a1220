package profiles

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Profile is a named set of connection/credential settings for one tool.
type Profile struct {
	ID             string         `yaml:"id" json:"id"`
	Name           string         `yaml:"name" json:"name"`
	SettingsConfig map[string]any `yaml:"settingsConfig" json:"settingsConfig"`
	WebsiteURL     string         `yaml:"websiteUrl,omitempty" json:"websiteUrl,omitempty"`
	Notes          string         `yaml:"notes,omitempty" json:"notes,omitempty"`
	Category       string         `yaml:"category,omitempty" json:"category,omitempty"`
	Icon           string         `yaml:"icon,omitempty" json:"icon,omitempty"`
	IconColor      string         `yaml:"iconColor,omitempty" json:"iconColor,omitempty"`
	SortIndex      *int           `yaml:"sortIndex,omitempty" json:"sortIndex,omitempty"`
	Meta           map[string]any `yaml:"meta,omitempty" json:"meta,omitempty"`
	CreatedAt      int64          `yaml:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// Registry is the persisted state of one tool: every profile keyed by id
// plus the current pointer ("" when no profile is active).
type Registry struct {
	Profiles         map[string]Profile `yaml:"profiles"`
	CurrentProfileID string             `yaml:"currentProfileId"`
}

// SortUpdate assigns a new sort index to a profile.
type SortUpdate struct {
	ID        string `yaml:"id" json:"id"`
	SortIndex int    `yaml:"sortIndex" json:"sortIndex"`
}

// IntPtr returns a pointer to i, for SortIndex literals.
func IntPtr(i int) *int {
	return &i
}

// ParseRegistry parses a registry YAML document. An empty document is an
// empty registry.
func ParseRegistry(data []byte) (Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Registry{}, fmt.Errorf("parsing registry: %w", err)
	}
	if r.Profiles == nil {
		r.Profiles = map[string]Profile{}
	}
	for id, p := range r.Profiles {
		if p.ID == "" {
			p.ID = id
			r.Profiles[id] = p
		} else if p.ID != id {
			return Registry{}, fmt.Errorf("parsing registry: profile key %q does not match id %q", id, p.ID)
		}
	}
	if r.CurrentProfileID != "" {
		if _, ok := r.Profiles[r.CurrentProfileID]; !ok {
			// A dangling pointer is treated as "no profile active".
			r.CurrentProfileID = ""
		}
	}
	return r, nil
}

// MarshalRegistry serializes a Registry to YAML bytes.
func MarshalRegistry(r Registry) ([]byte, error) {
	if r.Profiles == nil {
		r.Profiles = map[string]Profile{}
	}
	return yaml.Marshal(r)
}

// Current returns the current profile, if any.
func (r Registry) Current() (Profile, bool) {
	if r.CurrentProfileID == "" {
		return Profile{}, false
	}
	p, ok := r.Profiles[r.CurrentProfileID]
	return p, ok
}

// Sorted returns profiles in display order: profiles with a sort index first
// (ascending), then by creation time, then by name.
func (r Registry) Sorted() []Profile {
	out := make([]Profile, 0, len(r.Profiles))
	for _, p := range r.Profiles {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.SortIndex != nil && b.SortIndex != nil && *a.SortIndex != *b.SortIndex:
			return *a.SortIndex < *b.SortIndex
		case a.SortIndex != nil && b.SortIndex == nil:
			return true
		case a.SortIndex == nil && b.SortIndex != nil:
			return false
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

// FindByName returns profiles whose name matches (case-insensitive).
func (r Registry) FindByName(name string) []Profile {
	var out []Profile
	for _, p := range r.Sorted() {
		if strings.EqualFold(p.Name, name) {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	c := p
	c.SettingsConfig = cloneMap(p.SettingsConfig)
	c.Meta = cloneMap(p.Meta)
	if p.SortIndex != nil {
		c.SortIndex = IntPtr(*p.SortIndex)
	}
	return c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

var baseURLRe = regexp.MustCompile(`base_url\s*=\s*['"]([^'"]+)['"]`)

// Summary returns a one-line description of a profile's endpoint: notes if
// set, else website, else a base URL found in settingsConfig.
func Summary(p Profile) string {
	if n := strings.TrimSpace(p.Notes); n != "" {
		return n
	}
	if p.WebsiteURL != "" {
		return p.WebsiteURL
	}
	if env, ok := p.SettingsConfig["env"].(map[string]any); ok {
		for _, key := range []string{"ANTHROPIC_BASE_URL", "GOOGLE_GEMINI_BASE_URL"} {
			if s, ok := env[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	if text, ok := p.SettingsConfig["config"].(string); ok {
		if m := baseURLRe.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return "no endpoint configured"
}
