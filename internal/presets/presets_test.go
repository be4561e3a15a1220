package presets_test

import (
	"testing"

	"github.com/ruminaider/ccswitch/internal/presets"
	"github.com/ruminaider/ccswitch/internal/targets"
	"github.com/ruminaider/ccswitch/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinPresetsAreValid(t *testing.T) {
	for _, tool := range tools.All() {
		list := presets.List(tool)
		require.NotEmpty(t, list, tool)
		for _, p := range list {
			assert.NoError(t, targets.Validate(tool, p.Profile(tool, "", "key").SettingsConfig), "%s/%s", tool, p.Name)
		}
	}
}

func TestGetIsCaseInsensitive(t *testing.T) {
	p, ok := presets.Get(tools.Gemini, "DEFAULT")
	require.True(t, ok)
	assert.Equal(t, "gemini-3-pro-preview", p.SettingsConfig["env"].(map[string]any)["GEMINI_MODEL"])

	_, ok = presets.Get(tools.Claude, "nope")
	assert.False(t, ok)
	assert.Equal(t, []string{"default"}, presets.Names(tools.Claude))
}

func TestProfileFillsKey(t *testing.T) {
	claude, _ := presets.Get(tools.Claude, "default")
	p := claude.Profile(tools.Claude, "Mine", "sk-abc")
	assert.Equal(t, "Mine", p.Name)
	assert.Equal(t, "https://claude.kun8.vip", p.WebsiteURL)
	env := p.SettingsConfig["env"].(map[string]any)
	assert.Equal(t, "sk-abc", env["ANTHROPIC_AUTH_TOKEN"])
	assert.Equal(t, "https://claude.kun8.vip/api", env["ANTHROPIC_BASE_URL"])
	assert.Equal(t, []any{"https://claude.kun8.vip/api"}, p.Meta["endpointCandidates"])

	// The catalog itself is not modified.
	again, _ := presets.Get(tools.Claude, "default")
	assert.Equal(t, "", again.SettingsConfig["env"].(map[string]any)["ANTHROPIC_AUTH_TOKEN"])

	codex, _ := presets.Get(tools.Codex, "default")
	cp := codex.Profile(tools.Codex, "", "sk-openai")
	assert.Equal(t, "default", cp.Name)
	assert.Equal(t, "sk-openai", cp.SettingsConfig["auth"].(map[string]any)["OPENAI_API_KEY"])
}

func TestParseRejectsUnknownTool(t *testing.T) {
	_, err := presets.Parse([]byte("vim:\n  - name: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}
