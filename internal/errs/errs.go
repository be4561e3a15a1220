// Package errs defines the error taxonomy shared by the profile store, the
// switch engine and the migration runner.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindValidation       Kind = "validation_error"
	KindRender           Kind = "render_error"
	KindWrite            Kind = "write_error"
	KindDesynchronized   Kind = "desynchronized"
	KindBusy             Kind = "busy"
	KindPartialOrdering  Kind = "partial_ordering_error"
	KindMigrationFailed  Kind = "migration_failed"
	KindStoreUnavailable Kind = "store_unavailable"
)

// Sentinels for errors.Is matching against a Kind.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrRender           = &Error{Kind: KindRender}
	ErrWrite            = &Error{Kind: KindWrite}
	ErrDesynchronized   = &Error{Kind: KindDesynchronized}
	ErrBusy             = &Error{Kind: KindBusy}
	ErrPartialOrdering  = &Error{Kind: KindPartialOrdering}
	ErrMigrationFailed  = &Error{Kind: KindMigrationFailed}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
)

// Error carries enough context (tool, profile id, stage) to render a
// user-facing message.
type Error struct {
	Kind  Kind
	Tool  string
	ID    string
	Stage string
	// Missing lists the ids a reorder referenced that do not exist.
	Missing []string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Tool != "" {
		fmt.Fprintf(&b, " [tool=%s", e.Tool)
		if e.ID != "" {
			fmt.Fprintf(&b, " id=%s", e.ID)
		}
		if e.Stage != "" {
			fmt.Fprintf(&b, " stage=%s", e.Stage)
		}
		b.WriteString("]")
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (missing: %s)", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so callers can write
// errors.Is(err, errs.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error of the given kind.
func New(kind Kind, tool, id, msg string, err error) *Error {
	return &Error{Kind: kind, Tool: tool, ID: id, Msg: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StageOf returns the failing stage recorded on err, or "".
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
