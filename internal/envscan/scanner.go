// Package envscan finds shell startup files and process environment
// variables that set the same names a tool's profiles manage. Such a
// variable overrides whatever profile is active, so the user is told where
// it comes from.
package envscan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/config"
	"github.com/ruminaider/ccswitch/internal/metrics"
	"github.com/ruminaider/ccswitch/internal/paths"
	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/ruminaider/ccswitch/internal/targets"
	"github.com/ruminaider/ccswitch/internal/tools"
	"golang.org/x/sync/errgroup"
)

// SourceType tells where a conflicting definition lives.
type SourceType string

const (
	SourceFile   SourceType = "file"
	SourceSystem SourceType = "system"
)

// SharedTool is the Conflict.Tool value for a name managed by more than one
// tool.
const SharedTool = "all"

// ProcessEnvSource is the SourcePath of conflicts found in the process
// environment.
const ProcessEnvSource = "process environment"

// Conflict is one definition of a managed variable outside ccswitch.
type Conflict struct {
	VarName    string     `json:"varName"`
	SourcePath string     `json:"sourcePath"`
	LineNumber int        `json:"lineNumber"`
	RawLine    string     `json:"rawLine"`
	Tool       string     `json:"tool"`
	SourceType SourceType `json:"sourceType"`
}

// Lister reads profile registries.
type Lister interface {
	List(tool tools.Tool) (profiles.Registry, error)
}

// Options configures a Scanner.
type Options struct {
	// Files are the candidate shell files, scanned in order. Nil means
	// DefaultFiles(paths.Home()).
	Files []string
	// Scope is config.ScopeAll (every profile) or config.ScopeCurrent.
	Scope string
	// Patterns are extra wildcard patterns of managed names. A pattern may
	// be bound to one tool with a "tool:" prefix, e.g. "claude:ANTHROPIC_*";
	// an unprefixed pattern applies to every tool.
	Patterns []string
	// ProcessEnv enables checking the process environment.
	ProcessEnv bool
	// Environ returns the process environment; defaults to os.Environ.
	Environ func() []string
	Metrics *metrics.Metrics
}

// Scanner looks for conflicting definitions. It never modifies files; see
// Remove for that.
type Scanner struct {
	store      Lister
	files      []string
	scope      string
	patterns   map[tools.Tool][]string
	processEnv bool
	environ    func() []string
	metrics    *metrics.Metrics
}

// DefaultFiles returns the shell startup files checked, in scan order.
func DefaultFiles(home string, extra ...string) []string {
	files := []string{
		filepath.Join(home, ".bashrc"),
		filepath.Join(home, ".bash_profile"),
		filepath.Join(home, ".zshrc"),
		filepath.Join(home, ".zprofile"),
		filepath.Join(home, ".profile"),
		"/etc/profile",
		"/etc/bashrc",
	}
	seen := map[string]bool{}
	for _, f := range files {
		seen[f] = true
	}
	for _, f := range extra {
		f = expandHome(home, f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		files = append(files, f)
	}
	return files
}

func expandHome(home, p string) string {
	p = strings.TrimSpace(p)
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// New returns a Scanner.
func New(store Lister, opts Options) *Scanner {
	s := &Scanner{
		store:      store,
		files:      opts.Files,
		scope:      opts.Scope,
		patterns:   map[tools.Tool][]string{},
		processEnv: opts.ProcessEnv,
		environ:    opts.Environ,
		metrics:    opts.Metrics,
	}
	if s.scope == "" {
		s.scope = config.ScopeAll
	}
	if s.environ == nil {
		s.environ = os.Environ
	}
	if s.files == nil {
		s.files = DefaultFiles(paths.Home())
	}
	for _, raw := range opts.Patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if prefix, pattern, ok := strings.Cut(raw, ":"); ok {
			if t, err := tools.Parse(prefix); err == nil {
				s.patterns[t] = append(s.patterns[t], pattern)
				continue
			}
		}
		for _, t := range tools.All() {
			s.patterns[t] = append(s.patterns[t], raw)
		}
	}
	return s
}

// Files returns the candidate shell files in scan order.
func (s *Scanner) Files() []string {
	return s.files
}

// managedNames returns the variable names a tool's profiles set. Under
// ScopeCurrent only the current profile counts.
func (s *Scanner) managedNames(tool tools.Tool) (map[string]bool, error) {
	reg, err := s.store.List(tool)
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	add := func(p profiles.Profile) {
		for _, k := range targets.EnvKeys(tool, p.SettingsConfig) {
			names[k] = true
		}
	}
	if s.scope == config.ScopeCurrent {
		if p, ok := reg.Current(); ok {
			add(p)
		}
		return names, nil
	}
	for _, p := range reg.Profiles {
		add(p)
	}
	return names, nil
}

// matcher decides whether a variable name is managed by the scanned tool
// and which Conflict.Tool label it gets.
type matcher struct {
	tool     tools.Tool
	names    map[tools.Tool]map[string]bool
	patterns map[tools.Tool][]string
}

func (m matcher) owners(name string) []tools.Tool {
	var out []tools.Tool
	for _, t := range tools.All() {
		if m.names[t][name] {
			out = append(out, t)
			continue
		}
		for _, p := range m.patterns[t] {
			if wildcard.Match(p, name) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// label returns the Tool field for name, or "" when the scanned tool does
// not manage it.
func (m matcher) label(name string) string {
	owners := m.owners(name)
	managed := false
	for _, t := range owners {
		if t == m.tool {
			managed = true
		}
	}
	switch {
	case !managed:
		return ""
	case len(owners) > 1:
		return SharedTool
	default:
		return m.tool.String()
	}
}

// matcherFor loads the managed names of every tool. Only the scanned tool's
// registry must load; another tool's failure leaves its names empty, which
// only affects the shared label.
func (s *Scanner) matcherFor(tool tools.Tool) (matcher, error) {
	if !tool.Valid() {
		return matcher{}, fmt.Errorf("unsupported tool %q", tool)
	}
	m := matcher{tool: tool, names: map[tools.Tool]map[string]bool{}, patterns: s.patterns}
	for _, t := range tools.All() {
		names, err := s.managedNames(t)
		if err != nil {
			if t == tool {
				return matcher{}, fmt.Errorf("loading %s profiles: %w", t, err)
			}
			log.Warn().Err(err).Str("tool", tool.String()).Str("other", t.String()).Msg("ignoring unreadable registry while labelling conflicts")
			names = map[string]bool{}
		}
		m.names[t] = names
	}
	return m, nil
}

// Scan returns the conflicts for tool ordered by candidate file, then line,
// then process environment entries by name.
func (s *Scanner) Scan(ctx context.Context, tool tools.Tool) ([]Conflict, error) {
	m, err := s.matcherFor(tool)
	if err != nil {
		return nil, err
	}
	if len(m.names[tool]) == 0 && len(m.patterns[tool]) == 0 {
		s.metrics.SetConflicts(tool.String(), 0)
		return nil, nil
	}

	var conflicts []Conflict
	existing, unreadable := 0, 0
	for _, path := range s.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := scanFile(path, m)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			existing++
			unreadable++
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable shell file")
			continue
		}
		existing++
		conflicts = append(conflicts, found...)
	}
	if existing > 0 && unreadable == existing {
		log.Warn().Str("tool", tool.String()).Int("files", existing).Msg("no shell configuration file could be read; conflict scan is incomplete")
	}

	if s.processEnv {
		conflicts = append(conflicts, s.scanEnviron(m)...)
	}

	s.metrics.SetConflicts(tool.String(), len(conflicts))
	log.Debug().Str("tool", tool.String()).Int("conflicts", len(conflicts)).Msg("conflict scan finished")
	return conflicts, nil
}

// ScanAll scans every tool concurrently. A tool whose scan fails is left
// out of the result and its error is joined into the returned error; the
// other tools' conflicts are still returned. Cancellation returns no result.
func (s *Scanner) ScanAll(ctx context.Context) (map[tools.Tool][]Conflict, error) {
	all := tools.All()
	results := make([][]Conflict, len(all))
	failures := make([]error, len(all))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range all {
		i, t := i, t
		g.Go(func() error {
			c, err := s.Scan(gctx, t)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = fmt.Errorf("scanning %s: %w", t, err)
				return nil
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[tools.Tool][]Conflict, len(all))
	for i, t := range all {
		if failures[i] != nil {
			continue
		}
		out[t] = results[i]
	}
	return out, errors.Join(failures...)
}

var (
	// export NAME=, NAME=, declare -x NAME=, typeset -x NAME=, readonly NAME=
	assignRe = regexp.MustCompile(`^\s*(?:(?:export|readonly|declare\s+-\w*x\w*|typeset\s+-\w*x\w*)\s+)?([A-Za-z_][A-Za-z0-9_]*)=`)
	// fish: set -gx NAME value
	fishRe = regexp.MustCompile(`^\s*set\s+(?:-\w+\s+)*?-\w*x\w*\s+(?:-\w+\s+)*([A-Za-z_][A-Za-z0-9_]*)(?:\s|$)`)
	// csh: setenv NAME value
	cshRe = regexp.MustCompile(`^\s*setenv\s+([A-Za-z_][A-Za-z0-9_]*)(?:\s|$)`)
)

// definedName returns the variable a shell line defines, or "".
func definedName(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}
	for _, re := range []*regexp.Regexp{assignRe, fishRe, cshRe} {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

func scanFile(path string, m matcher) ([]Conflict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return scanLines(f, path, m)
}

func scanLines(r io.Reader, path string, m matcher) ([]Conflict, error) {
	var out []Conflict
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		name := definedName(line)
		if name == "" {
			continue
		}
		label := m.label(name)
		if label == "" {
			continue
		}
		out = append(out, Conflict{
			VarName:    name,
			SourcePath: path,
			LineNumber: lineNum,
			RawLine:    line,
			Tool:       label,
			SourceType: SourceFile,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}

func (s *Scanner) scanEnviron(m matcher) []Conflict {
	var out []Conflict
	for _, kv := range s.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		label := m.label(name)
		if label == "" {
			continue
		}
		out = append(out, Conflict{
			VarName:    name,
			SourcePath: ProcessEnvSource,
			RawLine:    name + "=" + mask(value),
			Tool:       label,
			SourceType: SourceSystem,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VarName < out[j].VarName })
	return out
}

// mask hides all but the first four characters of a value.
func mask(v string) string {
	r := []rune(v)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + strings.Repeat("*", 4)
}

// MergeConflicts concatenates lists and drops repeats of the same
// (VarName, SourcePath), keeping the first occurrence.
func MergeConflicts(lists ...[]Conflict) []Conflict {
	type key struct{ name, path string }
	seen := map[key]bool{}
	var out []Conflict
	for _, list := range lists {
		for _, c := range list {
			k := key{c.VarName, c.SourcePath}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, c)
		}
	}
	return out
}

// Flatten merges ScanAll results in tool order.
func Flatten(all map[tools.Tool][]Conflict) []Conflict {
	lists := make([][]Conflict, 0, len(all))
	for _, t := range tools.All() {
		lists = append(lists, all[t])
	}
	return MergeConflicts(lists...)
}
