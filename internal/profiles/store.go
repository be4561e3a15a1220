package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/errs"
	"github.com/ruminaider/ccswitch/internal/fsutil"
	"github.com/ruminaider/ccswitch/internal/targets"
	"github.com/ruminaider/ccswitch/internal/tools"
)

// Store is the durable registry of profiles, one YAML file per tool under
// dir. The files are the source of truth: every call reads the file, and
// every mutation rewrites it atomically before returning.
type Store struct {
	dir string

	validate  func(tools.Tool, map[string]any) error
	writeFile fsutil.WriteFunc
	now       func() time.Time
	newID     func() string

	locks map[tools.Tool]*sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithValidator replaces the settingsConfig validator.
func WithValidator(fn func(tools.Tool, map[string]any) error) Option {
	return func(s *Store) { s.validate = fn }
}

// WithWriteFunc replaces the atomic file writer.
func WithWriteFunc(fn fsutil.WriteFunc) Option {
	return func(s *Store) { s.writeFile = fn }
}

// WithClock replaces the clock used for createdAt.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// WithIDGenerator replaces the profile id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore returns a Store persisting registries under dir.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:       dir,
		validate:  targets.Validate,
		writeFile: fsutil.WriteFileAtomic,
		now:       time.Now,
		newID:     uuid.NewString,
		locks:     make(map[tools.Tool]*sync.RWMutex),
	}
	for _, t := range tools.All() {
		s.locks[t] = &sync.RWMutex{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory holding the registry files.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the registry file for tool.
func (s *Store) Path(tool tools.Tool) string {
	return filepath.Join(s.dir, string(tool)+".yaml")
}

func (s *Store) lock(tool tools.Tool) (*sync.RWMutex, error) {
	l, ok := s.locks[tool]
	if !ok {
		return nil, &errs.Error{Kind: errs.KindValidation, Tool: string(tool), Msg: "unsupported tool"}
	}
	return l, nil
}

// List returns the registry for tool. A missing file is an empty registry.
func (s *Store) List(tool tools.Tool) (Registry, error) {
	l, err := s.lock(tool)
	if err != nil {
		return Registry{}, err
	}
	l.RLock()
	defer l.RUnlock()
	return s.load(tool)
}

// Get returns one profile.
func (s *Store) Get(tool tools.Tool, id string) (Profile, error) {
	reg, err := s.List(tool)
	if err != nil {
		return Profile{}, err
	}
	p, ok := reg.Profiles[id]
	if !ok {
		return Profile{}, notFound(tool, id)
	}
	return p, nil
}

// Exists reports whether the registry file for tool is present on disk.
func (s *Store) Exists(tool tools.Tool) bool {
	_, err := os.Stat(s.Path(tool))
	return err == nil
}

// Upsert inserts p when p.ID is empty (assigning id and createdAt) and
// otherwise replaces the existing record, preserving its createdAt.
func (s *Store) Upsert(tool tools.Tool, p Profile) (Profile, error) {
	if err := s.validate(tool, p.SettingsConfig); err != nil {
		var e *errs.Error
		if errors.As(err, &e) && e.Kind == errs.KindValidation {
			e.ID = p.ID
			return Profile{}, e
		}
		return Profile{}, &errs.Error{Kind: errs.KindValidation, Tool: tool.String(), ID: p.ID, Err: err}
	}

	var stored Profile
	err := s.mutate(tool, func(reg *Registry) error {
		p = p.Clone()
		if p.ID == "" {
			p.ID = s.newID()
			p.CreatedAt = s.now().UnixMilli()
		} else {
			existing, ok := reg.Profiles[p.ID]
			if !ok {
				return notFound(tool, p.ID)
			}
			p.CreatedAt = existing.CreatedAt
		}
		reg.Profiles[p.ID] = p
		stored = p
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	log.Debug().Str("tool", tool.String()).Str("id", stored.ID).Str("name", stored.Name).Msg("profile saved")
	return stored, nil
}

// Remove deletes a profile. If it was current, the registry is left with no
// current profile in the same write.
func (s *Store) Remove(tool tools.Tool, id string) error {
	return s.mutate(tool, func(reg *Registry) error {
		if _, ok := reg.Profiles[id]; !ok {
			return notFound(tool, id)
		}
		delete(reg.Profiles, id)
		if reg.CurrentProfileID == id {
			reg.CurrentProfileID = ""
		}
		return nil
	})
}

// SetCurrent marks id as the current profile. An empty id clears the
// pointer.
func (s *Store) SetCurrent(tool tools.Tool, id string) error {
	return s.mutate(tool, func(reg *Registry) error {
		if id != "" {
			if _, ok := reg.Profiles[id]; !ok {
				return notFound(tool, id)
			}
		}
		reg.CurrentProfileID = id
		return nil
	})
}

// Reorder applies every sort index update or none of them.
func (s *Store) Reorder(tool tools.Tool, updates []SortUpdate) error {
	return s.mutate(tool, func(reg *Registry) error {
		var missing []string
		for _, u := range updates {
			if _, ok := reg.Profiles[u.ID]; !ok {
				missing = append(missing, u.ID)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return &errs.Error{
				Kind:    errs.KindPartialOrdering,
				Tool:    tool.String(),
				Msg:     "reorder references unknown profiles",
				Missing: missing,
			}
		}
		for _, u := range updates {
			p := reg.Profiles[u.ID]
			p.SortIndex = IntPtr(u.SortIndex)
			reg.Profiles[u.ID] = p
		}
		return nil
	})
}

// Replace overwrites the whole registry for tool. Used by migration.
func (s *Store) Replace(tool tools.Tool, reg Registry) error {
	return s.mutate(tool, func(r *Registry) error {
		*r = reg
		if r.Profiles == nil {
			r.Profiles = map[string]Profile{}
		}
		if r.CurrentProfileID != "" {
			if _, ok := r.Profiles[r.CurrentProfileID]; !ok {
				return notFound(tool, r.CurrentProfileID)
			}
		}
		return nil
	})
}

// mutate runs fn on a freshly loaded registry under the tool's write lock
// and persists the result. Nothing is written if fn fails.
func (s *Store) mutate(tool tools.Tool, fn func(*Registry) error) error {
	l, err := s.lock(tool)
	if err != nil {
		return err
	}
	l.Lock()
	defer l.Unlock()

	reg, err := s.load(tool)
	if err != nil {
		return err
	}
	if err := fn(&reg); err != nil {
		return err
	}
	return s.save(tool, reg)
}

func (s *Store) load(tool tools.Tool) (Registry, error) {
	data, err := os.ReadFile(s.Path(tool))
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{Profiles: map[string]Profile{}}, nil
		}
		return Registry{}, &errs.Error{Kind: errs.KindStoreUnavailable, Tool: tool.String(), Msg: "reading registry", Err: err}
	}
	reg, err := ParseRegistry(data)
	if err != nil {
		return Registry{}, &errs.Error{Kind: errs.KindStoreUnavailable, Tool: tool.String(), Err: err}
	}
	return reg, nil
}

func (s *Store) save(tool tools.Tool, reg Registry) error {
	data, err := MarshalRegistry(reg)
	if err != nil {
		return &errs.Error{Kind: errs.KindStoreUnavailable, Tool: tool.String(), Msg: "encoding registry", Err: err}
	}
	if err := s.writeFile(s.Path(tool), data, 0600); err != nil {
		return &errs.Error{Kind: errs.KindStoreUnavailable, Tool: tool.String(), Msg: "persisting registry", Err: err}
	}
	return nil
}

func notFound(tool tools.Tool, id string) error {
	return &errs.Error{Kind: errs.KindNotFound, Tool: tool.String(), ID: id, Msg: fmt.Sprintf("profile %q not found", id)}
}
