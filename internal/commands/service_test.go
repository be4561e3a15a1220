package commands_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ruminaider/ccswitch/internal/commands"
	"github.com/ruminaider/ccswitch/internal/config"
	"github.com/ruminaider/ccswitch/internal/envscan"
	"github.com/ruminaider/ccswitch/internal/errs"
	"github.com/ruminaider/ccswitch/internal/events"
	"github.com/ruminaider/ccswitch/internal/fsutil"
	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/ruminaider/ccswitch/internal/targets"
	"github.com/ruminaider/ccswitch/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	home    string
	appDir  string
	layout  targets.Layout
	svc     *commands.Service
	history []events.Event
}

func newService(t *testing.T) *env {
	t.Helper()
	return newServiceWithWriter(t, nil)
}

func newServiceWithWriter(t *testing.T, write fsutil.WriteFunc) *env {
	t.Helper()
	home := t.TempDir()
	e := &env{
		home:   home,
		appDir: filepath.Join(home, ".cc-switch"),
		layout: targets.LayoutAt(home),
	}
	e.svc = commands.New(commands.Options{
		Settings:    config.Default(),
		RegistryDir: filepath.Join(e.appDir, "providers"),
		LegacyFile:  filepath.Join(e.appDir, "config.json"),
		Layout:      &e.layout,
		ShellFiles:  envscan.DefaultFiles(home),
		Environ:     func() []string { return nil },
		WriteFile:   write,
	})
	e.svc.Hub().Subscribe(func(ev events.Event) { e.history = append(e.history, ev) })
	return e
}

func settingsFor(url string) map[string]any {
	return map[string]any{"env": map[string]any{"ANTHROPIC_BASE_URL": url, "ANTHROPIC_AUTH_TOKEN": "tok"}}
}

func TestProfileLifecycleScenario(t *testing.T) {
	e := newService(t)
	ctx := context.Background()

	reg, err := e.svc.ListProfiles(tools.Claude)
	require.NoError(t, err)
	assert.Empty(t, reg.Profiles)

	a, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "A", SettingsConfig: settingsFor("https://a")})
	require.NoError(t, err)
	res, err := e.svc.SwitchProfile(ctx, tools.Claude, a.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied())

	b, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "B", SettingsConfig: settingsFor("https://b")})
	require.NoError(t, err)
	res, err = e.svc.SwitchProfile(ctx, tools.Claude, b.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied())

	reg, err = e.svc.ListProfiles(tools.Claude)
	require.NoError(t, err)
	assert.Equal(t, b.ID, reg.CurrentProfileID)
	assert.Len(t, reg.Profiles, 2)

	require.NoError(t, e.svc.RemoveProfile(tools.Claude, b.ID))
	reg, err = e.svc.ListProfiles(tools.Claude)
	require.NoError(t, err)
	assert.Empty(t, reg.CurrentProfileID)
	assert.Len(t, reg.Profiles, 1)

	assert.Equal(t, []events.Event{
		{Type: events.ProfileSwitched, Tool: tools.Claude, ProfileID: a.ID},
		{Type: events.ProfileSwitched, Tool: tools.Claude, ProfileID: b.ID},
	}, e.history)
}

func TestAddProfileRequiresName(t *testing.T) {
	e := newService(t)
	_, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "  "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestAddProfileIgnoresID(t *testing.T) {
	e := newService(t)
	p, err := e.svc.AddProfile(tools.Gemini, profiles.Profile{ID: "chosen", Name: "G"})
	require.NoError(t, err)
	assert.NotEqual(t, "chosen", p.ID)
	assert.NotZero(t, p.CreatedAt)
}

func TestUpdateCurrentProfileRewritesTarget(t *testing.T) {
	e := newService(t)
	ctx := context.Background()
	a, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "A", SettingsConfig: settingsFor("https://old")})
	require.NoError(t, err)
	_, err = e.svc.SwitchProfile(ctx, tools.Claude, a.ID)
	require.NoError(t, err)

	a.SettingsConfig = settingsFor("https://new")
	_, err = e.svc.UpdateProfile(ctx, tools.Claude, a)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(e.layout.ClaudeDir, "settings.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://new")
}

func TestUpdateCurrentProfileWriteFailureKeepsPreviousRecord(t *testing.T) {
	var failTargets atomic.Bool
	write := func(path string, data []byte, perm os.FileMode) error {
		if failTargets.Load() && strings.HasSuffix(path, "settings.json") {
			return errors.New("read-only file system")
		}
		return fsutil.WriteFileAtomic(path, data, perm)
	}
	e := newServiceWithWriter(t, write)
	ctx := context.Background()

	a, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "A", WebsiteURL: "https://old", SettingsConfig: settingsFor("https://old")})
	require.NoError(t, err)
	_, err = e.svc.SwitchProfile(ctx, tools.Claude, a.ID)
	require.NoError(t, err)

	failTargets.Store(true)
	edited := a
	edited.WebsiteURL = "https://new"
	edited.SettingsConfig = settingsFor("https://new")
	got, err := e.svc.UpdateProfile(ctx, tools.Claude, edited)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrWrite))
	assert.Equal(t, "https://old", got.WebsiteURL)

	cur, ok, err := e.svc.CurrentProfile(tools.Claude)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.ID, cur.ID)
	assert.Equal(t, "https://old", cur.WebsiteURL)
	assert.Equal(t, "https://old", cur.SettingsConfig["env"].(map[string]any)["ANTHROPIC_BASE_URL"])
	assert.Equal(t, a.CreatedAt, cur.CreatedAt)

	data, err := os.ReadFile(filepath.Join(e.layout.ClaudeDir, "settings.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://old")
	assert.NotContains(t, string(data), "https://new")
}

func TestImportCurrentRejectedWhileSwitchInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool
	write := func(path string, data []byte, perm os.FileMode) error {
		if strings.HasSuffix(path, filepath.Join(".claude", "settings.json")) && once.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
		return fsutil.WriteFileAtomic(path, data, perm)
	}
	e := newServiceWithWriter(t, write)
	a, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "A", SettingsConfig: settingsFor("https://a")})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := e.svc.SwitchProfile(context.Background(), tools.Claude, a.ID)
		done <- err
	}()
	<-started

	_, err = e.svc.ImportCurrent(context.Background(), tools.Claude, "live")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrBusy))

	close(release)
	require.NoError(t, <-done)

	reg, err := e.svc.ListProfiles(tools.Claude)
	require.NoError(t, err)
	assert.Len(t, reg.Profiles, 1)
	assert.Equal(t, a.ID, reg.CurrentProfileID)
}

func TestUpdateOtherProfileLeavesTarget(t *testing.T) {
	e := newService(t)
	ctx := context.Background()
	a, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "A", SettingsConfig: settingsFor("https://a")})
	require.NoError(t, err)
	b, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "B", SettingsConfig: settingsFor("https://b")})
	require.NoError(t, err)
	_, err = e.svc.SwitchProfile(ctx, tools.Claude, a.ID)
	require.NoError(t, err)

	b.Name = "B2"
	_, err = e.svc.UpdateProfile(ctx, tools.Claude, b)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(e.layout.ClaudeDir, "settings.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://a")
	assert.Len(t, e.history, 1)
}

func TestUpdateProfileRequiresID(t *testing.T) {
	e := newService(t)
	_, err := e.svc.UpdateProfile(context.Background(), tools.Claude, profiles.Profile{Name: "x"})
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestDuplicateProfileRenumbers(t *testing.T) {
	e := newService(t)
	first, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "first", SortIndex: profiles.IntPtr(0), SettingsConfig: settingsFor("https://1"), Meta: map[string]any{"k": "v"}})
	require.NoError(t, err)
	second, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "second", SortIndex: profiles.IntPtr(1), SettingsConfig: settingsFor("https://2")})
	require.NoError(t, err)

	dup, err := e.svc.DuplicateProfile(tools.Claude, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first copy", dup.Name)
	assert.NotEqual(t, first.ID, dup.ID)
	require.NotNil(t, dup.SortIndex)
	assert.Equal(t, 1, *dup.SortIndex)
	assert.Equal(t, "v", dup.Meta["k"])

	reg, err := e.svc.ListProfiles(tools.Claude)
	require.NoError(t, err)
	assert.Equal(t, 2, *reg.Profiles[second.ID].SortIndex)

	var names []string
	for _, p := range reg.Sorted() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"first", "first copy", "second"}, names)

	_, err = e.svc.DuplicateProfile(tools.Claude, "missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestReorderProfilesIsAllOrNothing(t *testing.T) {
	e := newService(t)
	a, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "A", SortIndex: profiles.IntPtr(5)})
	require.NoError(t, err)

	err = e.svc.ReorderProfiles(tools.Claude, []profiles.SortUpdate{{ID: a.ID, SortIndex: 0}, {ID: "ghost", SortIndex: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrPartialOrdering))

	reg, err := e.svc.ListProfiles(tools.Claude)
	require.NoError(t, err)
	assert.Equal(t, 5, *reg.Profiles[a.ID].SortIndex)
}

func TestAddFromPreset(t *testing.T) {
	e := newService(t)
	p, err := e.svc.AddFromPreset(tools.Gemini, "default", "kun8", "g-key")
	require.NoError(t, err)
	assert.Equal(t, "kun8", p.Name)
	env := p.SettingsConfig["env"].(map[string]any)
	assert.Equal(t, "g-key", env["GEMINI_API_KEY"])

	_, err = e.svc.AddFromPreset(tools.Gemini, "nope", "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Contains(t, err.Error(), "available: default")
}

func TestImportCurrent(t *testing.T) {
	e := newService(t)
	_, err := e.svc.ImportCurrent(context.Background(), tools.Codex, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, os.MkdirAll(e.layout.CodexDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(e.layout.CodexDir, "auth.json"), []byte(`{"OPENAI_API_KEY":"sk-live"}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(e.layout.CodexDir, "config.toml"), []byte("model = \"o3\"\n"), 0644))

	p, err := e.svc.ImportCurrent(context.Background(), tools.Codex, "")
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name)

	cur, ok, err := e.svc.CurrentProfile(tools.Codex)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.ID, cur.ID)
	assert.Equal(t, "sk-live", cur.SettingsConfig["auth"].(map[string]any)["OPENAI_API_KEY"])
	require.Len(t, e.history, 1)
	assert.Equal(t, tools.Codex, e.history[0].Tool)
}

func TestScanAndRemoveConflicts(t *testing.T) {
	e := newService(t)
	_, err := e.svc.AddProfile(tools.Claude, profiles.Profile{Name: "A", SettingsConfig: settingsFor("https://a")})
	require.NoError(t, err)

	rc := filepath.Join(e.home, ".zshrc")
	require.NoError(t, os.WriteFile(rc, []byte("export ANTHROPIC_AUTH_TOKEN=xyz\n"), 0644))

	conflicts, err := e.svc.ScanConflicts(context.Background(), tools.Claude)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "ANTHROPIC_AUTH_TOKEN", conflicts[0].VarName)
	assert.Equal(t, 1, conflicts[0].LineNumber)

	all, err := e.svc.ScanAllConflicts(context.Background())
	require.NoError(t, err)
	assert.Len(t, all[tools.Claude], 1)

	removals, err := e.svc.RemoveConflicts(conflicts)
	require.NoError(t, err)
	require.Len(t, removals, 1)
	assert.Equal(t, 1, removals[0].Removed)

	conflicts, err = e.svc.ScanConflicts(context.Background(), tools.Claude)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestRunMigrationAndMenuState(t *testing.T) {
	e := newService(t)
	state := e.svc.MenuState()
	assert.False(t, state.RegistryExists)
	assert.False(t, state.LegacyPending)
	assert.Len(t, state.Tools, 3)

	require.NoError(t, os.MkdirAll(e.appDir, 0755))
	legacy := `{"providers": {"p1": {"id": "p1", "name": "Legacy", "settingsConfig": {"env": {}}}}, "current": "p1"}`
	require.NoError(t, os.WriteFile(filepath.Join(e.appDir, "config.json"), []byte(legacy), 0644))
	assert.True(t, e.svc.MenuState().LegacyPending)

	done, err := e.svc.RunMigration()
	require.NoError(t, err)
	assert.True(t, done)
	done, err = e.svc.RunMigration()
	require.NoError(t, err)
	assert.False(t, done)

	state = e.svc.MenuState()
	assert.True(t, state.RegistryExists)
	assert.False(t, state.LegacyPending)
	assert.Equal(t, tools.Claude, state.Tools[0].Tool)
	assert.Equal(t, 1, state.Tools[0].Profiles)
	assert.Equal(t, "Legacy", state.Tools[0].CurrentName)
}
