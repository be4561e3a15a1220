// Package targets knows the shape of each tool's settingsConfig and the
// configuration files the tool itself reads.
//
// A profile owns only the files its settingsConfig renders. Gemini's
// settings.json is written only when the profile carries a "config" object;
// a profile without one leaves the existing settings.json alone, since it
// also holds the user's own Gemini CLI preferences and MCP servers.
package targets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/ruminaider/ccswitch/internal/errs"
	"github.com/ruminaider/ccswitch/internal/paths"
	"github.com/ruminaider/ccswitch/internal/tools"
)

// Layout holds the configuration directories of the managed tools.
type Layout struct {
	ClaudeDir string
	CodexDir  string
	GeminiDir string
}

// DefaultLayout returns the layout rooted at the user's home directory.
func DefaultLayout() Layout {
	return Layout{
		ClaudeDir: paths.ClaudeDir(),
		CodexDir:  paths.CodexDir(),
		GeminiDir: paths.GeminiDir(),
	}
}

// LayoutAt returns the layout rooted at home, as DefaultLayout would for a
// user whose home directory is home.
func LayoutAt(home string) Layout {
	return Layout{
		ClaudeDir: filepath.Join(home, ".claude"),
		CodexDir:  filepath.Join(home, ".codex"),
		GeminiDir: filepath.Join(home, ".gemini"),
	}
}

// File is one rendered configuration file.
type File struct {
	Path string
	Data []byte
	Perm os.FileMode
}

// Payload is the full set of files a switch writes for one tool.
type Payload struct {
	Tool  tools.Tool
	Files []File
}

// Paths returns every file path the tool's configuration may occupy, whether
// or not a particular payload writes it.
func (l Layout) Paths(tool tools.Tool) []string {
	switch tool {
	case tools.Claude:
		return []string{filepath.Join(l.ClaudeDir, "settings.json")}
	case tools.Codex:
		return []string{
			filepath.Join(l.CodexDir, "auth.json"),
			filepath.Join(l.CodexDir, "config.toml"),
		}
	case tools.Gemini:
		return []string{
			filepath.Join(l.GeminiDir, ".env"),
			filepath.Join(l.GeminiDir, "settings.json"),
		}
	}
	return nil
}

// Validate checks that settings is a well-formed settingsConfig for tool.
func Validate(tool tools.Tool, settings map[string]any) error {
	if err := checkShape(tool, settings); err != nil {
		return &errs.Error{Kind: errs.KindValidation, Tool: tool.String(), Msg: err.Error()}
	}
	return nil
}

func checkShape(tool tools.Tool, settings map[string]any) error {
	if settings == nil {
		return fmt.Errorf("settingsConfig must be an object")
	}
	switch tool {
	case tools.Claude:
		if _, err := envMap(settings); err != nil {
			return err
		}
		if _, err := json.Marshal(settings); err != nil {
			return fmt.Errorf("settingsConfig is not JSON-encodable: %v", err)
		}
	case tools.Codex:
		auth, ok := settings["auth"]
		if !ok {
			return fmt.Errorf("codex settingsConfig requires an \"auth\" object")
		}
		if _, ok := auth.(map[string]any); !ok {
			return fmt.Errorf("codex \"auth\" must be an object, got %T", auth)
		}
		if _, err := json.Marshal(auth); err != nil {
			return fmt.Errorf("codex \"auth\" is not JSON-encodable: %v", err)
		}
		if raw, ok := settings["config"]; ok && raw != nil {
			text, ok := raw.(string)
			if !ok {
				return fmt.Errorf("codex \"config\" must be a TOML string, got %T", raw)
			}
			var doc map[string]any
			if err := toml.Unmarshal([]byte(text), &doc); err != nil {
				return fmt.Errorf("codex \"config\" is not valid TOML: %v", err)
			}
		}
	case tools.Gemini:
		if _, err := envMap(settings); err != nil {
			return err
		}
		if raw, ok := settings["config"]; ok && raw != nil {
			if _, ok := raw.(map[string]any); !ok {
				return fmt.Errorf("gemini \"config\" must be an object, got %T", raw)
			}
			if _, err := json.Marshal(raw); err != nil {
				return fmt.Errorf("gemini \"config\" is not JSON-encodable: %v", err)
			}
		}
	default:
		return fmt.Errorf("unsupported tool %q", tool)
	}
	return nil
}

// envMap returns the "env" sub-object as strings. Scalar values are
// formatted; nested values are rejected.
func envMap(settings map[string]any) (map[string]string, error) {
	raw, ok := settings["env"]
	if !ok || raw == nil {
		return map[string]string{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("\"env\" must be an object, got %T", raw)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		case bool, int, int64, float64, uint64:
			out[k] = fmt.Sprint(val)
		default:
			return nil, fmt.Errorf("\"env.%s\" must be a scalar, got %T", k, v)
		}
	}
	return out, nil
}

var envNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EnvKeys returns the environment variable names settings manages for tool,
// sorted. These are the keys of the "env" sub-object; for codex the keys of
// "auth" that are valid variable names are included too, since codex reads
// OPENAI_API_KEY from either place.
func EnvKeys(tool tools.Tool, settings map[string]any) []string {
	seen := map[string]bool{}
	if env, ok := settings["env"].(map[string]any); ok {
		for k := range env {
			if envNameRe.MatchString(k) {
				seen[k] = true
			}
		}
	}
	if tool == tools.Codex {
		if auth, ok := settings["auth"].(map[string]any); ok {
			for k := range auth {
				if envNameRe.MatchString(k) && strings.ToUpper(k) == k {
					seen[k] = true
				}
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render translates settings into the files tool reads. It is pure.
func Render(layout Layout, tool tools.Tool, settings map[string]any) (Payload, error) {
	payload, err := render(layout, tool, settings)
	if err != nil {
		return Payload{}, &errs.Error{Kind: errs.KindRender, Tool: tool.String(), Msg: err.Error()}
	}
	return payload, nil
}

func render(layout Layout, tool tools.Tool, settings map[string]any) (Payload, error) {
	if err := checkShape(tool, settings); err != nil {
		return Payload{}, err
	}
	p := Payload{Tool: tool}
	switch tool {
	case tools.Claude:
		data, err := marshalJSON(settings)
		if err != nil {
			return Payload{}, err
		}
		p.Files = append(p.Files, File{Path: filepath.Join(layout.ClaudeDir, "settings.json"), Data: data, Perm: 0644})

	case tools.Codex:
		auth, err := marshalJSON(settings["auth"])
		if err != nil {
			return Payload{}, err
		}
		text, _ := settings["config"].(string)
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		p.Files = append(p.Files,
			File{Path: filepath.Join(layout.CodexDir, "auth.json"), Data: auth, Perm: 0600},
			File{Path: filepath.Join(layout.CodexDir, "config.toml"), Data: []byte(text), Perm: 0644},
		)

	case tools.Gemini:
		env, err := envMap(settings)
		if err != nil {
			return Payload{}, err
		}
		dotenv, err := godotenv.Marshal(env)
		if err != nil {
			return Payload{}, fmt.Errorf("encoding gemini .env: %v", err)
		}
		if dotenv != "" {
			dotenv += "\n"
		}
		p.Files = append(p.Files, File{Path: filepath.Join(layout.GeminiDir, ".env"), Data: []byte(dotenv), Perm: 0600})
		if cfg, ok := settings["config"].(map[string]any); ok {
			data, err := marshalJSON(cfg)
			if err != nil {
				return Payload{}, err
			}
			p.Files = append(p.Files, File{Path: filepath.Join(layout.GeminiDir, "settings.json"), Data: data, Perm: 0644})
		}
	}
	return p, nil
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding JSON: %v", err)
	}
	return append(data, '\n'), nil
}

// Read loads the tool's live configuration back into settingsConfig shape.
// Missing files contribute nothing; an entirely unconfigured tool returns
// an error wrapping os.ErrNotExist.
func Read(layout Layout, tool tools.Tool) (map[string]any, error) {
	settings := map[string]any{}
	found := false
	switch tool {
	case tools.Claude:
		m, ok, err := readJSONObject(filepath.Join(layout.ClaudeDir, "settings.json"))
		if err != nil {
			return nil, err
		}
		if ok {
			settings, found = m, true
		}

	case tools.Codex:
		auth, ok, err := readJSONObject(filepath.Join(layout.CodexDir, "auth.json"))
		if err != nil {
			return nil, err
		}
		if ok {
			settings["auth"], found = auth, true
		}
		data, err := os.ReadFile(filepath.Join(layout.CodexDir, "config.toml"))
		switch {
		case err == nil:
			settings["config"], found = string(data), true
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading codex config: %w", err)
		}
		if found {
			if _, ok := settings["auth"]; !ok {
				settings["auth"] = map[string]any{}
			}
		}

	case tools.Gemini:
		envPath := filepath.Join(layout.GeminiDir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			env, err := godotenv.Read(envPath)
			if err != nil {
				return nil, fmt.Errorf("reading gemini .env: %w", err)
			}
			envAny := make(map[string]any, len(env))
			for k, v := range env {
				envAny[k] = v
			}
			settings["env"], found = envAny, true
		}
		cfg, ok, err := readJSONObject(filepath.Join(layout.GeminiDir, "settings.json"))
		if err != nil {
			return nil, err
		}
		if ok {
			settings["config"], found = cfg, true
		}

	default:
		return nil, fmt.Errorf("unsupported tool %q", tool)
	}
	if !found {
		return nil, fmt.Errorf("no %s configuration found: %w", tool, os.ErrNotExist)
	}
	return settings, nil
}

func readJSONObject(path string) (map[string]any, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, true, nil
}
