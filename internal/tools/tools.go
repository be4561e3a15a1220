package tools

import (
	"fmt"
	"strings"
)

// Tool identifies one of the external CLI tools whose configuration is
// managed.
type Tool string

const (
	Claude Tool = "claude"
	Codex  Tool = "codex"
	Gemini Tool = "gemini"
)

// All returns every supported tool in display order.
func All() []Tool {
	return []Tool{Claude, Codex, Gemini}
}

// Parse converts a user-supplied name into a Tool.
func Parse(s string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("unknown tool %q (expected one of: claude, codex, gemini)", s)
}

// Valid reports whether t is a supported tool.
func (t Tool) Valid() bool {
	switch t {
	case Claude, Codex, Gemini:
		return true
	}
	return false
}

func (t Tool) String() string {
	return string(t)
}

// DisplayName returns the human-readable tool name.
func (t Tool) DisplayName() string {
	switch t {
	case Claude:
		return "Claude"
	case Codex:
		return "Codex"
	case Gemini:
		return "Gemini"
	}
	return string(t)
}
