// Package cli wires the scrivener commands. Each command gets its own
// constructor; shared plumbing for opening runs and building the gate engine
// lives here.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kmreade/scrivener/internal/config"
	"github.com/kmreade/scrivener/internal/logging"
	"github.com/kmreade/scrivener/internal/pipeline"
	"github.com/kmreade/scrivener/internal/pipeline/engine"
	"github.com/kmreade/scrivener/internal/pipeline/resolver"
	"github.com/kmreade/scrivener/internal/run"
	"github.com/kmreade/scrivener/internal/stages"
	"github.com/kmreade/scrivener/internal/vcs"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Root string
}

// NewRootCommand creates the scrivener root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "scrivener",
		Short: "Pipeline integrity for staged manuscript generation",
		Long: "scrivener tracks the integrity of a multi-stage manuscript pipeline:\n" +
			"which stages ran against which inputs, what must rerun after an edit,\n" +
			"and whether every citation survived all validation layers.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Root, "root", ".", "runs workspace directory")

	cmd.AddCommand(NewNewCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewRerunSetCommand(opts))
	cmd.AddCommand(NewBeginCommand(opts))
	cmd.AddCommand(NewCompleteCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewArchiveCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewMilestoneCommand(opts))

	return cmd
}

// manager returns the run manager for the workspace root.
func (o *RootOptions) manager() *run.Manager {
	return run.NewManager(o.Root)
}

// openRun resolves a run argument: an exact directory name like paper_v2, or
// a bare target name meaning its latest version.
func (o *RootOptions) openRun(name string) (*run.Run, error) {
	m := o.manager()
	if r, err := m.Open(name); err == nil {
		return r, nil
	}
	r, err := m.Latest(name)
	if err != nil {
		return nil, fmt.Errorf("cli: no run named %s and no versions of target %s", name, name)
	}
	return r, nil
}

// session bundles everything a gate or query command needs for one run.
type session struct {
	run    *run.Run
	cfg    *config.Config
	def    pipeline.Definition
	engine *engine.Engine
	log    *logging.Logger
}

// openSession opens the run, loads its config, and builds the engine with
// the configured version-control sink.
func (o *RootOptions) openSession(name string) (*session, error) {
	r, err := o.openRun(name)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(r.Layout.ConfigPath())
	if err != nil {
		return nil, err
	}
	log, err := logging.New(r.Layout.LogPath())
	if err != nil {
		return nil, err
	}
	def := pipeline.Default()
	var sink vcs.Sink = vcs.NoopSink{}
	if cfg.Git.Enabled && vcs.Available() {
		sink = vcs.NewGitSink(r.Dir, cfg.Git.ForbiddenRemotes)
	}
	eng, err := engine.New(r, def, stages.DefaultRegistry(), cfg,
		engine.WithSink(sink), engine.WithLogger(log))
	if err != nil {
		log.Close()
		return nil, err
	}
	return &session{run: r, cfg: cfg, def: def, engine: eng, log: log}, nil
}

// Close releases session resources.
func (s *session) Close() {
	_ = s.log.Close()
}

// resolver builds the staleness resolver over the session's current state.
func (s *session) resolver() (*resolver.Resolver, *pipeline.State, error) {
	state, err := s.engine.State()
	if err != nil {
		return nil, nil, err
	}
	registry := stages.DefaultRegistry()
	res := resolver.New(s.def, state, s.run.Layout, stages.InputsFor(registry, s.run.Layout))
	return res, state, nil
}

// lock acquires the run's advisory lock and returns the release function.
func (s *session) lock() (func(), error) {
	lock, err := run.Acquire(s.run.Layout.LockPath())
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release() }, nil
}

// splitTarget strips a _vN suffix, returning the bare target name.
func splitTarget(name string) string {
	if idx := strings.LastIndex(name, "_v"); idx > 0 {
		return name[:idx]
	}
	return name
}
