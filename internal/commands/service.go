package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/config"
	"github.com/ruminaider/ccswitch/internal/envscan"
	"github.com/ruminaider/ccswitch/internal/errs"
	"github.com/ruminaider/ccswitch/internal/events"
	"github.com/ruminaider/ccswitch/internal/fsutil"
	"github.com/ruminaider/ccswitch/internal/metrics"
	"github.com/ruminaider/ccswitch/internal/migrate"
	"github.com/ruminaider/ccswitch/internal/paths"
	"github.com/ruminaider/ccswitch/internal/presets"
	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/ruminaider/ccswitch/internal/switcher"
	"github.com/ruminaider/ccswitch/internal/targets"
	"github.com/ruminaider/ccswitch/internal/tools"
)

// Options configures a Service. Zero values fall back to the user's real
// directories.
type Options struct {
	Settings    config.Settings
	RegistryDir string
	LegacyFile  string
	Layout      *targets.Layout
	// ShellFiles overrides the candidate shell files of the conflict scan.
	ShellFiles []string
	Environ    func() []string
	WriteFile  fsutil.WriteFunc
	Hub        *events.Hub
	Metrics    *metrics.Metrics
}

// Service is the request/response surface used by the CLI and any other
// front end. It owns the store, the switch engine, the scanner and the
// migration runner, wired to one notification hub.
type Service struct {
	store     *profiles.Store
	engine    *switcher.Engine
	scanner   *envscan.Scanner
	migrator  *migrate.Runner
	hub       *events.Hub
	layout    targets.Layout
	writeFile fsutil.WriteFunc
}

// New wires a Service.
func New(opts Options) *Service {
	if opts.RegistryDir == "" {
		opts.RegistryDir = paths.RegistryDir()
	}
	if opts.LegacyFile == "" {
		opts.LegacyFile = paths.LegacyConfigFile()
	}
	layout := targets.DefaultLayout()
	if opts.Layout != nil {
		layout = *opts.Layout
	}
	if opts.Hub == nil {
		opts.Hub = events.NewHub()
	}
	if opts.WriteFile == nil {
		opts.WriteFile = fsutil.WriteFileAtomic
	}
	shellFiles := opts.ShellFiles
	if shellFiles == nil {
		shellFiles = envscan.DefaultFiles(paths.Home(), opts.Settings.Conflicts.ExtraFiles...)
	}

	store := profiles.NewStore(opts.RegistryDir, profiles.WithWriteFunc(opts.WriteFile))
	return &Service{
		store: store,
		engine: switcher.New(store, opts.Hub, switcher.Options{
			Layout:     layout,
			BusyPolicy: opts.Settings.Switch.BusyPolicy,
			WriteFile:  opts.WriteFile,
			Metrics:    opts.Metrics,
		}),
		scanner: envscan.New(store, envscan.Options{
			Files:      shellFiles,
			Scope:      opts.Settings.Conflicts.Scope,
			Patterns:   opts.Settings.Conflicts.Patterns,
			ProcessEnv: opts.Settings.Conflicts.ProcessEnvEnabled(),
			Environ:    opts.Environ,
			Metrics:    opts.Metrics,
		}),
		migrator:  migrate.NewRunner(store, opts.LegacyFile),
		hub:       opts.Hub,
		layout:    layout,
		writeFile: opts.WriteFile,
	}
}

// Hub returns the notification hub switch events are published on.
func (s *Service) Hub() *events.Hub {
	return s.hub
}

// Store returns the profile store.
func (s *Service) Store() *profiles.Store {
	return s.store
}

// ListProfiles returns the registry for tool.
func (s *Service) ListProfiles(tool tools.Tool) (profiles.Registry, error) {
	return s.store.List(tool)
}

// AddProfile stores p as a new profile. Any id on p is ignored.
func (s *Service) AddProfile(tool tools.Tool, p profiles.Profile) (profiles.Profile, error) {
	p.ID = ""
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return profiles.Profile{}, &errs.Error{Kind: errs.KindValidation, Tool: tool.String(), Msg: "profile name is required"}
	}
	if p.SettingsConfig == nil {
		p.SettingsConfig = map[string]any{}
	}
	return s.store.Upsert(tool, p)
}

// UpdateProfile replaces an existing profile. When it is the current
// profile the tool's configuration is rewritten to match; if that fails
// before the files change, the previous record is put back so the registry
// keeps describing what is on disk.
func (s *Service) UpdateProfile(ctx context.Context, tool tools.Tool, p profiles.Profile) (profiles.Profile, error) {
	if p.ID == "" {
		return profiles.Profile{}, &errs.Error{Kind: errs.KindValidation, Tool: tool.String(), Msg: "profile id is required"}
	}
	prev, err := s.store.Get(tool, p.ID)
	if err != nil {
		return profiles.Profile{}, err
	}
	stored, err := s.store.Upsert(tool, p)
	if err != nil {
		return profiles.Profile{}, err
	}
	reg, err := s.store.List(tool)
	if err != nil {
		return stored, err
	}
	if reg.CurrentProfileID != stored.ID {
		return stored, nil
	}
	if _, err := s.engine.SwitchTo(ctx, tool, stored.ID); err != nil {
		// Desynchronized means the new files were written and current
		// already names this profile, so the new record matches them.
		if errs.KindOf(err) == errs.KindDesynchronized {
			return stored, fmt.Errorf("applying updated profile: %w", err)
		}
		if _, rerr := s.store.Upsert(tool, prev); rerr != nil {
			log.Error().Err(rerr).Str("tool", tool.String()).Str("id", prev.ID).Msg("restoring profile after failed re-apply")
		}
		return prev, fmt.Errorf("applying updated profile: %w", err)
	}
	return stored, nil
}

// RemoveProfile deletes a profile.
func (s *Service) RemoveProfile(tool tools.Tool, id string) error {
	return s.store.Remove(tool, id)
}

// SwitchProfile makes id the active profile of tool.
func (s *Service) SwitchProfile(ctx context.Context, tool tools.Tool, id string) (switcher.Result, error) {
	return s.engine.SwitchTo(ctx, tool, id)
}

// Resync records id as current without rewriting the tool's files. It
// recovers from a Desynchronized switch.
func (s *Service) Resync(tool tools.Tool, id string) error {
	return s.engine.Resync(tool, id)
}

// ReorderProfiles applies sort index updates atomically.
func (s *Service) ReorderProfiles(tool tools.Tool, updates []profiles.SortUpdate) error {
	return s.store.Reorder(tool, updates)
}

// CurrentProfile returns the active profile of tool, if any.
func (s *Service) CurrentProfile(tool tools.Tool) (profiles.Profile, bool, error) {
	reg, err := s.store.List(tool)
	if err != nil {
		return profiles.Profile{}, false, err
	}
	p, ok := reg.Current()
	return p, ok, nil
}

// DuplicateProfile copies a profile as "<name> copy". When the source has a
// sort index the copy takes the next slot and later profiles shift down.
func (s *Service) DuplicateProfile(tool tools.Tool, id string) (profiles.Profile, error) {
	reg, err := s.store.List(tool)
	if err != nil {
		return profiles.Profile{}, err
	}
	src, ok := reg.Profiles[id]
	if !ok {
		return profiles.Profile{}, &errs.Error{Kind: errs.KindNotFound, Tool: tool.String(), ID: id, Msg: fmt.Sprintf("profile %q not found", id)}
	}

	dup := src.Clone()
	dup.ID = ""
	dup.CreatedAt = 0
	dup.Name = src.Name + " copy"

	if src.SortIndex != nil {
		slot := *src.SortIndex + 1
		var updates []profiles.SortUpdate
		for _, p := range reg.Profiles {
			if p.SortIndex != nil && *p.SortIndex >= slot {
				updates = append(updates, profiles.SortUpdate{ID: p.ID, SortIndex: *p.SortIndex + 1})
			}
		}
		if len(updates) > 0 {
			if err := s.store.Reorder(tool, updates); err != nil {
				return profiles.Profile{}, fmt.Errorf("making room for duplicate: %w", err)
			}
		}
		dup.SortIndex = profiles.IntPtr(slot)
	}
	return s.store.Upsert(tool, dup)
}

// AddFromPreset creates a profile from a built-in preset.
func (s *Service) AddFromPreset(tool tools.Tool, presetName, name, apiKey string) (profiles.Profile, error) {
	preset, ok := presets.Get(tool, presetName)
	if !ok {
		return profiles.Profile{}, &errs.Error{
			Kind: errs.KindNotFound,
			Tool: tool.String(),
			Msg:  fmt.Sprintf("no preset %q (available: %s)", presetName, strings.Join(presets.Names(tool), ", ")),
		}
	}
	return s.AddProfile(tool, preset.Profile(tool, name, apiKey))
}

// ImportCurrent saves the tool's live configuration as a new profile and
// marks it current, since it already matches what is on disk. It holds the
// tool's switch slot so no switch can rewrite the files in between.
func (s *Service) ImportCurrent(ctx context.Context, tool tools.Tool, name string) (profiles.Profile, error) {
	if name == "" {
		name = "default"
	}
	var p profiles.Profile
	_, err := s.engine.Adopt(ctx, tool, func() (string, error) {
		settings, err := targets.Read(s.layout, tool)
		if err != nil {
			return "", fmt.Errorf("reading %s configuration: %w", tool.DisplayName(), err)
		}
		p, err = s.AddProfile(tool, profiles.Profile{Name: name, SettingsConfig: settings})
		if err != nil {
			return "", err
		}
		return p.ID, nil
	})
	return p, err
}

// ScanConflicts reports conflicting definitions for one tool.
func (s *Service) ScanConflicts(ctx context.Context, tool tools.Tool) ([]envscan.Conflict, error) {
	return s.scanner.Scan(ctx, tool)
}

// ScanAllConflicts scans every tool.
func (s *Service) ScanAllConflicts(ctx context.Context) (map[tools.Tool][]envscan.Conflict, error) {
	return s.scanner.ScanAll(ctx)
}

// ShellFiles returns the files the conflict scan reads.
func (s *Service) ShellFiles() []string {
	return s.scanner.Files()
}

// RemoveConflicts deletes the given conflicting lines from their files,
// keeping a backup of each file. Callers must confirm with the user first.
func (s *Service) RemoveConflicts(conflicts []envscan.Conflict) ([]envscan.Removal, error) {
	return envscan.Remove(conflicts, s.writeFile)
}

// RunMigration upgrades a legacy layout. It returns true if a migration
// happened.
func (s *Service) RunMigration() (bool, error) {
	return s.migrator.RunOnce()
}

// ToolState summarizes one tool for menus.
type ToolState struct {
	Tool        tools.Tool
	Profiles    int
	CurrentID   string
	CurrentName string
	Err         error
}

// MenuState holds the detected state used to build menus.
type MenuState struct {
	RegistryExists bool
	LegacyPending  bool
	Tools          []ToolState
}

// MenuState checks the current state for menu rendering. It never fails;
// a tool whose registry cannot be read carries the error.
func (s *Service) MenuState() MenuState {
	state := MenuState{LegacyPending: s.migrator.Needed()}
	for _, t := range tools.All() {
		ts := ToolState{Tool: t}
		if s.store.Exists(t) {
			state.RegistryExists = true
		}
		reg, err := s.store.List(t)
		if err != nil {
			ts.Err = err
			state.Tools = append(state.Tools, ts)
			continue
		}
		ts.Profiles = len(reg.Profiles)
		if p, ok := reg.Current(); ok {
			ts.CurrentID = p.ID
			ts.CurrentName = p.Name
		}
		state.Tools = append(state.Tools, ts)
	}
	return state
}
