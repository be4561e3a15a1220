// Package switcher makes a stored profile the active configuration of its
// tool.
//
// A switch moves through Idle -> Validating -> Writing -> Committing and ends
// in Applied or Failed. The store's current pointer only moves after every
// target file has been replaced, so "current" always implies "the tool's
// files match that profile".
package switcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/config"
	"github.com/ruminaider/ccswitch/internal/errs"
	"github.com/ruminaider/ccswitch/internal/events"
	"github.com/ruminaider/ccswitch/internal/fsutil"
	"github.com/ruminaider/ccswitch/internal/metrics"
	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/ruminaider/ccswitch/internal/targets"
	"github.com/ruminaider/ccswitch/internal/tools"
)

// Stage is a state of a switch request.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageValidating Stage = "validating"
	StageWriting    Stage = "writing"
	StageCommitting Stage = "committing"
	StageApplied    Stage = "applied"
	StageFailed     Stage = "failed"
)

// Store is the subset of the profile store the engine needs.
type Store interface {
	Get(tool tools.Tool, id string) (profiles.Profile, error)
	SetCurrent(tool tools.Tool, id string) error
}

// Publisher receives switch events.
type Publisher interface {
	Publish(events.Event)
}

// Result describes a finished switch request.
type Result struct {
	Tool      tools.Tool
	ProfileID string
	// Stage is StageApplied or StageFailed.
	Stage Stage
	// FailedStage is the stage that failed; empty when applied.
	FailedStage Stage
	// Files lists the target files written.
	Files []string
	// CommitAttempts counts SetCurrent calls made in the committing stage.
	CommitAttempts int
}

// Applied reports whether the switch succeeded.
func (r Result) Applied() bool {
	return r.Stage == StageApplied
}

// Options configures an Engine.
type Options struct {
	Layout     targets.Layout
	BusyPolicy string // config.BusyReject (default) or config.BusyQueue
	WriteFile  fsutil.WriteFunc
	Metrics    *metrics.Metrics
	// CommitAttempts bounds SetCurrent retries after a successful write.
	CommitAttempts int
	CommitBackoff  time.Duration
}

// Engine performs switches. It serializes requests per tool; requests for
// different tools run in parallel.
type Engine struct {
	store     Store
	hub       Publisher
	layout    targets.Layout
	policy    string
	writeFile fsutil.WriteFunc
	metrics   *metrics.Metrics
	attempts  int
	backoff   time.Duration

	slots map[tools.Tool]chan struct{}
}

// New returns an Engine.
func New(store Store, hub Publisher, opts Options) *Engine {
	e := &Engine{
		store:     store,
		hub:       hub,
		layout:    opts.Layout,
		policy:    opts.BusyPolicy,
		writeFile: opts.WriteFile,
		metrics:   opts.Metrics,
		attempts:  opts.CommitAttempts,
		backoff:   opts.CommitBackoff,
		slots:     make(map[tools.Tool]chan struct{}),
	}
	if e.policy == "" {
		e.policy = config.BusyReject
	}
	if e.writeFile == nil {
		e.writeFile = fsutil.WriteFileAtomic
	}
	if e.attempts <= 0 {
		e.attempts = 3
	}
	if e.backoff <= 0 {
		e.backoff = 50 * time.Millisecond
	}
	for _, t := range tools.All() {
		e.slots[t] = make(chan struct{}, 1)
	}
	return e
}

func (e *Engine) acquire(ctx context.Context, tool tools.Tool) (func(), error) {
	slot, ok := e.slots[tool]
	if !ok {
		return nil, &errs.Error{Kind: errs.KindValidation, Tool: tool.String(), Msg: "unsupported tool"}
	}
	release := func() { <-slot }

	if e.policy == config.BusyQueue {
		select {
		case slot <- struct{}{}:
			return release, nil
		case <-ctx.Done():
			return nil, &errs.Error{Kind: errs.KindBusy, Tool: tool.String(), Msg: "gave up waiting for switch in flight", Err: ctx.Err()}
		}
	}
	select {
	case slot <- struct{}{}:
		return release, nil
	default:
		return nil, &errs.Error{Kind: errs.KindBusy, Tool: tool.String(), Msg: "a switch is already in flight"}
	}
}

// SwitchTo makes profile id the active configuration of tool. Once the
// writing stage has started the request runs to completion even if ctx is
// cancelled, so no temporary file is left in place of a finished rename.
func (e *Engine) SwitchTo(ctx context.Context, tool tools.Tool, id string) (Result, error) {
	res := Result{Tool: tool, ProfileID: id, Stage: StageIdle}
	logger := log.With().Str("tool", tool.String()).Str("id", id).Logger()

	release, err := e.acquire(ctx, tool)
	if err != nil {
		logger.Debug().Err(err).Msg("switch rejected")
		e.metrics.ObserveSwitch(tool.String(), "busy", "")
		return e.fail(res, StageIdle, err)
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return e.fail(res, StageIdle, err)
	}

	// Validating
	res.Stage = StageValidating
	p, err := e.store.Get(tool, id)
	if err != nil {
		return e.fail(res, StageValidating, err)
	}
	payload, err := targets.Render(e.layout, tool, p.SettingsConfig)
	if err != nil {
		return e.fail(res, StageValidating, err)
	}
	logger.Debug().Int("files", len(payload.Files)).Msg("payload rendered")

	// Writing
	res.Stage = StageWriting
	files, snapshots, err := e.write(payload)
	if err != nil {
		return e.fail(res, StageWriting, &errs.Error{Kind: errs.KindWrite, Tool: tool.String(), ID: id, Err: err})
	}
	res.Files = files

	// Committing
	res.Stage = StageCommitting
	attempts, err := e.commit(tool, id)
	res.CommitAttempts = attempts
	if err != nil {
		// The profile was removed after it was rendered. Current still names
		// the previous profile, so its files go back.
		if errors.Is(err, errs.ErrNotFound) && e.restore(snapshots) {
			return e.fail(res, StageCommitting, err)
		}
		return e.fail(res, StageCommitting, &errs.Error{
			Kind: errs.KindDesynchronized,
			Tool: tool.String(),
			ID:   id,
			Msg:  "tool configuration was written but the current profile could not be recorded",
			Err:  err,
		})
	}

	res.Stage = StageApplied
	e.metrics.ObserveSwitch(tool.String(), string(StageApplied), "")
	logger.Info().Str("name", p.Name).Msg("profile switched")
	if e.hub != nil {
		e.hub.Publish(events.Event{Type: events.ProfileSwitched, Tool: tool, ProfileID: id})
	}
	return res, nil
}

// Resync repeats only the committing stage. It is the recovery for a
// Desynchronized switch: the tool files are already correct.
func (e *Engine) Resync(tool tools.Tool, id string) error {
	_, err := e.Adopt(context.Background(), tool, func() (string, error) {
		return id, nil
	})
	return err
}

// Adopt runs record in the tool's switch slot and commits the profile id it
// returns as current, without writing any tool file. record is for work
// whose result already matches the tool's files, such as importing them as
// a new profile. Busy handling follows the engine's policy.
func (e *Engine) Adopt(ctx context.Context, tool tools.Tool, record func() (string, error)) (string, error) {
	release, err := e.acquire(ctx, tool)
	if err != nil {
		return "", err
	}
	defer release()

	id, err := record()
	if err != nil {
		return "", err
	}
	if _, err := e.commit(tool, id); err != nil {
		return id, err
	}
	log.Info().Str("tool", tool.String()).Str("id", id).Msg("current profile recorded")
	if e.hub != nil {
		e.hub.Publish(events.Event{Type: events.ProfileSwitched, Tool: tool, ProfileID: id})
	}
	return id, nil
}

// write replaces every payload file and returns the snapshots taken
// before. If any write fails, files already replaced by this call are put
// back so the previous configuration stays intact.
func (e *Engine) write(payload targets.Payload) ([]string, []fsutil.Snapshot, error) {
	snapshots := make([]fsutil.Snapshot, 0, len(payload.Files))
	for _, f := range payload.Files {
		snap, err := fsutil.Capture(f.Path)
		if err != nil {
			return nil, nil, err
		}
		snapshots = append(snapshots, snap)
	}

	written := make([]string, 0, len(payload.Files))
	for i, f := range payload.Files {
		if err := e.writeFile(f.Path, f.Data, f.Perm); err != nil {
			e.restore(snapshots[:i])
			return nil, nil, err
		}
		written = append(written, f.Path)
	}
	return written, snapshots, nil
}

// restore puts snapshots back in reverse order. It reports whether every
// file was restored.
func (e *Engine) restore(snapshots []fsutil.Snapshot) bool {
	ok := true
	for i := len(snapshots) - 1; i >= 0; i-- {
		if err := snapshots[i].Restore(e.writeFile); err != nil {
			log.Error().Err(err).Str("path", snapshots[i].Path).Msg("failed to restore previous tool configuration")
			ok = false
		}
	}
	return ok
}

func (e *Engine) commit(tool tools.Tool, id string) (int, error) {
	var err error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		err = e.store.SetCurrent(tool, id)
		if err == nil || errors.Is(err, errs.ErrNotFound) {
			return attempt, err
		}
		log.Warn().Err(err).Str("tool", tool.String()).Int("attempt", attempt).Msg("recording current profile failed")
		if attempt < e.attempts {
			time.Sleep(e.backoff * time.Duration(attempt))
		}
	}
	return e.attempts, err
}

func (e *Engine) fail(res Result, stage Stage, err error) (Result, error) {
	res.Stage = StageFailed
	res.FailedStage = stage

	var ee *errs.Error
	if errors.As(err, &ee) {
		if ee.Stage == "" {
			ee.Stage = string(stage)
		}
		if ee.ID == "" {
			ee.ID = res.ProfileID
		}
		if ee.Tool == "" {
			ee.Tool = res.Tool.String()
		}
	} else {
		err = fmt.Errorf("switch %s/%s failed during %s: %w", res.Tool, res.ProfileID, stage, err)
	}
	if errs.KindOf(err) != errs.KindBusy {
		e.metrics.ObserveSwitch(res.Tool.String(), string(StageFailed), string(stage))
		log.Warn().Err(err).Str("tool", res.Tool.String()).Str("stage", string(stage)).Msg("switch failed")
	}
	return res, err
}
