// Package engine implements the stage gate: the only writer of pipeline
// state. Begin marks a stage in progress; Complete verifies its outputs,
// captures digests, and persists the record atomically. Everything else in
// the tool reads the state the engine writes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kmreade/scrivener/internal/audit"
	"github.com/kmreade/scrivener/internal/checksum"
	"github.com/kmreade/scrivener/internal/citation"
	"github.com/kmreade/scrivener/internal/config"
	"github.com/kmreade/scrivener/internal/logging"
	"github.com/kmreade/scrivener/internal/manuscript"
	"github.com/kmreade/scrivener/internal/pipeline"
	"github.com/kmreade/scrivener/internal/run"
	"github.com/kmreade/scrivener/internal/stage"
	"github.com/kmreade/scrivener/internal/vcs"
)

// Engine executes gate transitions for one run.
type Engine struct {
	def      pipeline.Definition
	registry *stage.Registry
	layout   *manuscript.Layout
	guard    *run.Guard
	cfg      *config.Config
	store    *pipeline.Store
	audit    *audit.Logger
	log      *logging.Logger
	sink     vcs.Sink
	runID    string
	clock    func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock injects a deterministic time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithSink overrides the version-control sink.
func WithSink(sink vcs.Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithLogger attaches the run's file logger.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New builds an engine over an opened run. The audit logger is created
// against the run's audit file; pass options to override the sink or clock.
func New(r *run.Run, def pipeline.Definition, registry *stage.Registry, cfg *config.Config, opts ...Option) (*Engine, error) {
	auditLog, err := audit.New(r.Layout.AuditPath())
	if err != nil {
		return nil, err
	}
	e := &Engine{
		def:      def,
		registry: registry,
		layout:   r.Layout,
		guard:    r.Guard,
		cfg:      cfg,
		store:    pipeline.NewStore(r.Layout.StatePath()),
		audit:    auditLog,
		sink:     vcs.NoopSink{},
		runID:    r.Meta.RunID,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Audit exposes the engine's audit logger for citation validation paths.
func (e *Engine) Audit() *audit.Logger {
	return e.audit
}

// State loads the current pipeline state, initializing it on first use and
// reconciling it with the definition.
func (e *Engine) State() (*pipeline.State, error) {
	if !e.store.Exists() {
		return pipeline.NewState(e.runID, e.def), nil
	}
	state, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	state.Reconcile(e.def)
	return state, nil
}

// Begin marks a stage in progress. Dependencies must already be completed;
// beginning the drafting stage resets citation validation, since new section
// content invalidates every earlier verdict.
func (e *Engine) Begin(ctx context.Context, stageName string) error {
	s, err := e.registry.Get(stageName)
	if err != nil {
		return err
	}
	state, err := e.State()
	if err != nil {
		return err
	}
	record := state.Stage(stageName)
	for _, dep := range e.def.Dependencies(stageName) {
		if state.Stage(dep).Status != pipeline.StatusCompleted {
			return fmt.Errorf("engine: cannot begin %s: dependency %s is %s",
				stageName, dep, state.Stage(dep).Status)
		}
	}
	now := e.clock().UTC()
	record.Status = pipeline.StatusInProgress
	record.StartedAt = &now
	record.CompletedAt = nil
	record.Error = ""
	if stageName == pipeline.StageDrafting {
		// Reset, not a transition: new drafts void all prior verdicts.
		state.CitationStatus = string(citation.StatusUnchecked)
	}
	if err := e.save(state); err != nil {
		return err
	}
	e.logf("stage %s begun (run %s)", stageName, e.runID)
	_ = e.audit.StageTransition(stageName, string(pipeline.StatusInProgress), s.Info().Description)
	return nil
}

// Complete runs the stage's gate checks and records the outcome. On success
// the record gets fresh input and output digests, a dependency rerun
// snapshot, and an incremented rerun counter. On failure only the status,
// error, and timestamps move; the last successful digests stay in place so
// staleness decisions keep their footing.
func (e *Engine) Complete(ctx context.Context, stageName string) error {
	s, err := e.registry.Get(stageName)
	if err != nil {
		return err
	}
	state, err := e.State()
	if err != nil {
		return err
	}
	record := state.Stage(stageName)

	if verr := e.verify(ctx, s); verr != nil {
		now := e.clock().UTC()
		record.Status = pipeline.StatusFailed
		record.CompletedAt = &now
		record.Error = verr.Error()
		if stageName == pipeline.StageAssembly {
			if next, err := citation.Advance(citation.Status(state.CitationStatus), citation.StatusLayer3Failed); err == nil {
				state.CitationStatus = string(next)
			}
		}
		if err := e.save(state); err != nil {
			return err
		}
		e.logf("stage %s failed: %v", stageName, verr)
		_ = e.audit.StageTransition(stageName, string(pipeline.StatusFailed), verr.Error())
		return verr
	}

	if err := e.advanceCitations(state, stageName); err != nil {
		return err
	}

	inputs, err := e.snapshot(s.Inputs(e.layout))
	if err != nil {
		return err
	}
	outputs, err := e.snapshot(s.Outputs(e.layout))
	if err != nil {
		return err
	}
	// Digests only land on a successful completion, so their presence marks
	// this as a re-execution rather than a first completion; the first
	// completion leaves the counter at zero.
	rerun := len(record.Inputs) > 0 || len(record.Outputs) > 0

	now := e.clock().UTC()
	record.Status = pipeline.StatusCompleted
	record.CompletedAt = &now
	record.Error = ""
	record.Inputs = digests(inputs)
	record.Outputs = digests(outputs)
	if rerun {
		record.RerunCount++
	}
	record.DepReruns = map[string]int{}
	for _, dep := range e.def.Dependencies(stageName) {
		record.DepReruns[dep] = state.Stage(dep).RerunCount
	}
	if state.Checksums == nil {
		state.Checksums = map[string]checksum.Entry{}
	}
	for rel, entry := range outputs {
		state.Checksums[rel] = entry
	}
	for rel, entry := range inputs {
		state.Checksums[rel] = entry
	}

	if err := e.save(state); err != nil {
		return err
	}
	e.logf("stage %s completed (rerun %d)", stageName, record.RerunCount)
	_ = e.audit.StageTransition(stageName, string(pipeline.StatusCompleted),
		fmt.Sprintf("rerun_count=%d", record.RerunCount))

	// Snapshot after the state save so the commit includes state.json; the
	// commit reference is then folded back into the record.
	commit, commitErr := e.commit(ctx, stageName)
	if commit != "" {
		record.Commit = commit
		if err := e.save(state); err != nil {
			return err
		}
	}
	return commitErr
}

// verify runs the built-in check, then any configured external command.
func (e *Engine) verify(ctx context.Context, s stage.Stage) error {
	name := s.Info().Name
	env := &stage.Env{Layout: e.layout, Config: e.cfg, Audit: e.audit}
	if err := s.Verify(ctx, env); err != nil {
		return err
	}
	command, ok := e.cfg.VerificationCommand(name)
	if !ok {
		return nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.layout.Dir()
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			detail = err.Error()
		}
		return &stage.VerificationError{Stage: name, Check: "command",
			Err: fmt.Errorf("%s: %s", command, detail)}
	}
	return nil
}

// advanceCitations moves the run's citation status for the stages that own a
// validation layer. An invalid transition is a real gate failure: passing
// layer 3 after a failure requires regenerated drafts, not a retry.
func (e *Engine) advanceCitations(state *pipeline.State, stageName string) error {
	var targets []citation.Status
	switch stageName {
	case pipeline.StageDrafting:
		targets = []citation.Status{citation.StatusLayer1Passed, citation.StatusLayer2Reviewed}
	case pipeline.StageAssembly:
		targets = []citation.Status{citation.StatusLayer3Passed}
	default:
		return nil
	}
	status := citation.Status(state.CitationStatus)
	for _, target := range targets {
		next, err := citation.Advance(status, target)
		if err != nil {
			return fmt.Errorf("engine: %s: %w", stageName, err)
		}
		status = next
	}
	state.CitationStatus = string(status)
	return nil
}

// snapshot digests the given absolute paths and returns entries keyed by
// run-relative path. Every path must sit inside the run boundary.
func (e *Engine) snapshot(paths []string) (map[string]checksum.Entry, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	for _, path := range paths {
		if err := e.guard.Check(path); err != nil {
			return nil, err
		}
	}
	entries, err := checksum.Snapshot(paths)
	if err != nil {
		return nil, err
	}
	out := make(map[string]checksum.Entry, len(entries))
	for path, entry := range entries {
		rel := e.layout.Rel(path)
		entry.Path = rel
		out[rel] = entry
	}
	return out, nil
}

// commit snapshots the run into its local repository when enabled. A safety
// violation propagates; other git failures only cost the commit reference,
// never the completion the orchestrator already earned.
func (e *Engine) commit(ctx context.Context, stageName string) (string, error) {
	if !e.cfg.Git.Enabled || !e.cfg.Git.AutoCommit {
		return "", nil
	}
	id, err := e.sink.Snapshot(ctx, fmt.Sprintf("scrivener: %s completed", stageName))
	if err != nil {
		var safety *vcs.SafetyError
		if errors.As(err, &safety) {
			return "", err
		}
		e.logf("stage %s snapshot failed: %v", stageName, err)
		return "", nil
	}
	return id, nil
}

func (e *Engine) save(state *pipeline.State) error {
	if err := e.guard.Check(e.store.Path()); err != nil {
		return err
	}
	return e.store.Save(state)
}

func (e *Engine) logf(format string, args ...any) {
	if e.log != nil {
		e.log.Printf(format, args...)
	}
}

func digests(entries map[string]checksum.Entry) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]string, len(entries))
	for rel, entry := range entries {
		out[rel] = entry.Digest
	}
	return out
}
