package errs_test

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/ruminaider/ccswitch/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	err := errs.New(errs.KindNotFound, "claude", "abc", "profile not found", nil)
	wrapped := fmt.Errorf("switching: %w", err)

	assert.True(t, errors.Is(wrapped, errs.ErrNotFound))
	assert.False(t, errors.Is(wrapped, errs.ErrBusy))
	assert.Equal(t, errs.KindNotFound, errs.KindOf(wrapped))
}

func TestUnwrapReachesCause(t *testing.T) {
	err := &errs.Error{Kind: errs.KindWrite, Tool: "codex", Stage: "writing", Err: fs.ErrPermission}
	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.True(t, errors.Is(err, errs.ErrWrite))
	assert.Equal(t, "writing", errs.StageOf(err))
}

func TestErrorMessage(t *testing.T) {
	err := &errs.Error{
		Kind:    errs.KindPartialOrdering,
		Tool:    "gemini",
		Msg:     "reorder references unknown profiles",
		Missing: []string{"x", "y"},
	}
	assert.Equal(t, "partial_ordering_error [tool=gemini]: reorder references unknown profiles (missing: x, y)", err.Error())
	assert.Equal(t, errs.Kind(""), errs.KindOf(errors.New("plain")))
}
