package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() profiles.Registry {
	return profiles.Registry{
		Profiles: map[string]profiles.Profile{
			"a1": {ID: "a1", Name: "Work", SortIndex: profiles.IntPtr(0)},
			"b2": {ID: "b2", Name: "Home", SortIndex: profiles.IntPtr(1)},
			"c3": {ID: "c3", Name: "home", SortIndex: profiles.IntPtr(2)},
		},
	}
}

func TestLookup_ByID(t *testing.T) {
	p, err := lookup(testRegistry(), "b2")
	require.NoError(t, err)
	assert.Equal(t, "Home", p.Name)
}

func TestLookup_ByUniqueName(t *testing.T) {
	p, err := lookup(testRegistry(), "work")
	require.NoError(t, err)
	assert.Equal(t, "a1", p.ID)
}

func TestLookup_AmbiguousName(t *testing.T) {
	_, err := lookup(testRegistry(), "HOME")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Contains(t, err.Error(), "b2, c3")
}

func TestLookup_NotFoundListsNames(t *testing.T) {
	_, err := lookup(testRegistry(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: Work, Home, home")

	_, err = lookup(profiles.Registry{}, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no profiles configured")
}

func resetProfileFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		profileSettingsFlag = ""
		profileEnvFlags = nil
	})
}

func TestBuildSettings_EnvPairs(t *testing.T) {
	resetProfileFlags(t)
	profileEnvFlags = []string{"ANTHROPIC_BASE_URL=https://api.example.com", "TOKEN=a=b"}

	got, err := buildSettings(map[string]any{"env": map[string]any{"KEEP": "1"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"KEEP":               "1",
		"ANTHROPIC_BASE_URL": "https://api.example.com",
		"TOKEN":              "a=b",
	}, got["env"])
}

func TestBuildSettings_InvalidEnv(t *testing.T) {
	resetProfileFlags(t)
	profileEnvFlags = []string{"NOEQUALS"}

	_, err := buildSettings(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEY=VALUE")
}

func TestBuildSettings_JSONFile(t *testing.T) {
	resetProfileFlags(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"env": {"ANTHROPIC_AUTH_TOKEN": "sk-1"}, "model": "opus"}`), 0644))
	profileSettingsFlag = path
	profileEnvFlags = []string{"EXTRA=x"}

	got, err := buildSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, "opus", got["model"])
	env := got["env"].(map[string]any)
	assert.Equal(t, "sk-1", env["ANTHROPIC_AUTH_TOKEN"])
	assert.Equal(t, "x", env["EXTRA"])
}

func TestBuildSettings_MissingFile(t *testing.T) {
	resetProfileFlags(t)
	profileSettingsFlag = filepath.Join(t.TempDir(), "nope.yaml")

	_, err := buildSettings(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading settings file")
}

func TestConfirm_AssumeYes(t *testing.T) {
	ok, err := confirm(true, "Remove?")
	require.NoError(t, err)
	assert.True(t, ok)
}
