package tools_test

import (
	"testing"

	"github.com/ruminaider/ccswitch/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, name := range []string{"claude", "Codex", " gemini "} {
		tool, err := tools.Parse(name)
		require.NoError(t, err, name)
		assert.True(t, tool.Valid())
	}

	_, err := tools.Parse("cursor")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestAll(t *testing.T) {
	assert.Equal(t, []tools.Tool{tools.Claude, tools.Codex, tools.Gemini}, tools.All())
	assert.Equal(t, "Codex", tools.Codex.DisplayName())
}
