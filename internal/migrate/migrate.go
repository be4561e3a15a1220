// Package migrate upgrades the single-file legacy layout
// (~/.cc-switch/config.json) into per-tool registry files.
package migrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/errs"
	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/ruminaider/ccswitch/internal/targets"
	"github.com/ruminaider/ccswitch/internal/tools"
)

// MigratedSuffix is appended to the legacy file once its content lives in
// the registries.
const MigratedSuffix = ".migrated"

// Registries is the subset of the profile store migration writes through.
type Registries interface {
	Exists(tool tools.Tool) bool
	Path(tool tools.Tool) string
	Replace(tool tools.Tool, reg profiles.Registry) error
}

// Runner performs the one-shot migration.
type Runner struct {
	store  Registries
	legacy string
	rename func(oldpath, newpath string) error

	mu sync.Mutex
}

// NewRunner returns a Runner migrating legacyPath into store.
func NewRunner(store Registries, legacyPath string) *Runner {
	return &Runner{store: store, legacy: legacyPath, rename: os.Rename}
}

// legacyManager is one tool's section of the legacy file.
type legacyManager struct {
	Providers map[string]profiles.Profile `json:"providers"`
	Current   string                      `json:"current"`
}

// legacyFile accepts both legacy shapes: v1 is a bare claude manager, v2
// nests one manager per tool under a version marker.
type legacyFile struct {
	Version   int                         `json:"version"`
	Providers map[string]profiles.Profile `json:"providers"`
	Current   string                      `json:"current"`
	Claude    *legacyManager              `json:"claude"`
	Codex     *legacyManager              `json:"codex"`
	Gemini    *legacyManager              `json:"gemini"`
}

// Needed reports whether RunOnce would do any work.
func (r *Runner) Needed() bool {
	if _, err := os.Stat(r.legacy); err != nil {
		return false
	}
	return !r.anyRegistry()
}

func (r *Runner) anyRegistry() bool {
	for _, t := range tools.All() {
		if r.store.Exists(t) {
			return true
		}
	}
	return false
}

// RunOnce migrates the legacy file if present and no registry exists yet.
// It returns true when a migration was performed. On failure the legacy
// file is left untouched, registries written during this run are removed
// and the error is MigrationFailed.
func (r *Runner) RunOnce() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.legacy)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, failed("reading legacy configuration", err)
	}
	if r.anyRegistry() {
		log.Warn().Str("path", r.legacy).Msg("registries already exist; leaving legacy configuration in place")
		return false, nil
	}

	regs, err := Parse(data)
	if err != nil {
		return false, failed("parsing legacy configuration", err)
	}

	var written []tools.Tool
	rollback := func() {
		for _, t := range written {
			if err := os.Remove(r.store.Path(t)); err != nil && !os.IsNotExist(err) {
				log.Error().Err(err).Str("tool", t.String()).Msg("removing partially migrated registry")
			}
		}
	}

	for _, t := range tools.All() {
		reg, ok := regs[t]
		if !ok {
			continue
		}
		if err := r.store.Replace(t, reg); err != nil {
			rollback()
			return false, failed(fmt.Sprintf("writing %s registry", t), err)
		}
		written = append(written, t)
	}

	if err := r.rename(r.legacy, r.legacy+MigratedSuffix); err != nil {
		rollback()
		return false, failed("retiring legacy configuration", err)
	}

	total := 0
	for _, reg := range regs {
		total += len(reg.Profiles)
	}
	log.Info().Int("tools", len(written)).Int("profiles", total).Str("backup", r.legacy+MigratedSuffix).Msg("migrated legacy configuration")
	return true, nil
}

// Parse converts a legacy config.json document into registries. Every
// profile is validated; any problem fails the whole document.
func Parse(data []byte) (map[tools.Tool]profiles.Registry, error) {
	var lf legacyFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&lf); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	managers := map[tools.Tool]*legacyManager{}
	switch {
	case lf.Version >= 2 || lf.Claude != nil || lf.Codex != nil || lf.Gemini != nil:
		if lf.Version > 2 {
			return nil, fmt.Errorf("unsupported legacy version %d", lf.Version)
		}
		managers[tools.Claude] = lf.Claude
		managers[tools.Codex] = lf.Codex
		managers[tools.Gemini] = lf.Gemini
	case lf.Providers != nil:
		managers[tools.Claude] = &legacyManager{Providers: lf.Providers, Current: lf.Current}
	default:
		return nil, errors.New("no providers found")
	}

	out := map[tools.Tool]profiles.Registry{}
	for t, m := range managers {
		if m == nil {
			continue
		}
		reg, err := convert(t, m)
		if err != nil {
			return nil, err
		}
		out[t] = reg
	}
	return out, nil
}

func convert(tool tools.Tool, m *legacyManager) (profiles.Registry, error) {
	reg := profiles.Registry{Profiles: map[string]profiles.Profile{}}
	for key, p := range m.Providers {
		if p.ID == "" {
			p.ID = key
		}
		if p.ID != key {
			return profiles.Registry{}, fmt.Errorf("%s provider key %q does not match id %q", tool, key, p.ID)
		}
		p.SettingsConfig = normalizeNumbers(p.SettingsConfig)
		p.Meta = normalizeNumbers(p.Meta)
		if err := targets.Validate(tool, p.SettingsConfig); err != nil {
			return profiles.Registry{}, fmt.Errorf("%s provider %q: %w", tool, p.Name, err)
		}
		reg.Profiles[p.ID] = p
	}
	if m.Current != "" {
		if _, ok := reg.Profiles[m.Current]; ok {
			reg.CurrentProfileID = m.Current
		} else {
			log.Warn().Str("tool", tool.String()).Str("id", m.Current).Msg("legacy current provider does not exist; migrating with none active")
		}
	}
	return reg, nil
}

// normalizeNumbers turns json.Number values into int64 or float64 so the
// registry YAML holds plain numbers.
func normalizeNumbers(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return m
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		return normalizeNumbers(val)
	case []any:
		for i := range val {
			val[i] = normalizeValue(val[i])
		}
		return val
	default:
		return v
	}
}

func failed(msg string, err error) error {
	return &errs.Error{Kind: errs.KindMigrationFailed, Msg: msg, Err: err}
}
