package run

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kmreade/scrivener/internal/config"
	"github.com/kmreade/scrivener/internal/manuscript"
)

// MetaFile holds run metadata inside the state directory.
const MetaFile = "run.json"

// ArchiveDir is where retention moves expired runs, relative to the workspace
// root.
const ArchiveDir = "archive"

var versionPattern = regexp.MustCompile(`^(.+)_v(\d+)$`)

// Meta is the per-run identity record written at creation time.
type Meta struct {
	RunID     string    `json:"run_id"`
	Target    string    `json:"target"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Journal   string    `json:"journal,omitempty"`
	Milestone bool      `json:"milestone"`
}

// Run is an opened run directory with its metadata and guard.
type Run struct {
	Dir    string
	Meta   Meta
	Layout *manuscript.Layout
	Guard  *Guard
}

// Manager creates, opens, and lists versioned runs under one workspace root.
type Manager struct {
	root  string
	clock func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// NewManager returns a manager rooted at the workspace directory.
func NewManager(root string, opts ...Option) *Manager {
	m := &Manager{root: filepath.Clean(root), clock: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the workspace root.
func (m *Manager) Root() string {
	return m.root
}

// NextVersion scans existing run directories for target and returns the next
// free version number, starting at 1.
func (m *Manager) NextVersion(target string) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 1, nil
		}
		return 0, fmt.Errorf("run: read workspace %s: %w", m.root, err)
	}
	highest := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, version, ok := splitVersion(entry.Name())
		if !ok || name != target {
			continue
		}
		if version > highest {
			highest = version
		}
	}
	return highest + 1, nil
}

// Create allocates the next version directory for target, seeds its layout,
// metadata, and default config, and returns the opened run. The directory
// name is always target_vN; a fresh run never reuses an existing directory.
func (m *Manager) Create(target, journal string) (*Run, error) {
	if target == "" {
		return nil, fmt.Errorf("run: target must not be empty")
	}
	version, err := m.NextVersion(target)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(m.root, fmt.Sprintf("%s_v%d", target, version))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("run: create %s: %w", dir, err)
	}
	layout := manuscript.NewLayout(dir)
	if err := layout.Init(); err != nil {
		return nil, fmt.Errorf("run: init layout: %w", err)
	}
	if err := config.Ensure(layout.ConfigPath()); err != nil {
		return nil, err
	}
	meta := Meta{
		RunID:     uuid.NewString(),
		Target:    target,
		Version:   version,
		CreatedAt: m.clock().UTC(),
		Journal:   journal,
	}
	if err := writeMeta(layout, meta); err != nil {
		return nil, err
	}
	guard, err := NewGuard(dir)
	if err != nil {
		return nil, err
	}
	return &Run{Dir: dir, Meta: meta, Layout: layout, Guard: guard}, nil
}

// Open loads an existing run directory.
func (m *Manager) Open(dir string) (*Run, error) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.root, dir)
	}
	layout := manuscript.NewLayout(dir)
	meta, err := readMeta(layout)
	if err != nil {
		return nil, err
	}
	guard, err := NewGuard(dir)
	if err != nil {
		return nil, err
	}
	return &Run{Dir: dir, Meta: meta, Layout: layout, Guard: guard}, nil
}

// Latest opens the highest-versioned run for target.
func (m *Manager) Latest(target string) (*Run, error) {
	runs, err := m.List(target)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run: no runs found for target %s", target)
	}
	return m.Open(runs[len(runs)-1].Dir)
}

// List returns metadata for every run of target, ordered by version. An empty
// target lists all runs, ordered by target then version.
func (m *Manager) List(target string) ([]Run, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("run: read workspace %s: %w", m.root, err)
	}
	var runs []Run
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, _, ok := splitVersion(entry.Name())
		if !ok || (target != "" && name != target) {
			continue
		}
		dir := filepath.Join(m.root, entry.Name())
		layout := manuscript.NewLayout(dir)
		meta, err := readMeta(layout)
		if err != nil {
			// Directories that merely look like runs are skipped, not fatal.
			continue
		}
		runs = append(runs, Run{Dir: dir, Meta: meta, Layout: layout})
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Meta.Target != runs[j].Meta.Target {
			return runs[i].Meta.Target < runs[j].Meta.Target
		}
		return runs[i].Meta.Version < runs[j].Meta.Version
	})
	return runs, nil
}

// MarkMilestone flags the run as exempt from retention archiving.
func (r *Run) MarkMilestone(milestone bool) error {
	r.Meta.Milestone = milestone
	return writeMeta(r.Layout, r.Meta)
}

// Name returns the run's directory basename, target_vN.
func (r *Run) Name() string {
	return filepath.Base(r.Dir)
}

func metaPath(layout *manuscript.Layout) string {
	return filepath.Join(layout.StateDir(), MetaFile)
}

func writeMeta(layout *manuscript.Layout, meta Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("run: encode metadata: %w", err)
	}
	if err := os.MkdirAll(layout.StateDir(), 0o755); err != nil {
		return fmt.Errorf("run: ensure state dir: %w", err)
	}
	if err := os.WriteFile(metaPath(layout), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("run: write metadata: %w", err)
	}
	return nil
}

func readMeta(layout *manuscript.Layout) (Meta, error) {
	data, err := os.ReadFile(metaPath(layout))
	if err != nil {
		return Meta{}, fmt.Errorf("run: read metadata for %s: %w", layout.Dir(), err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("run: parse metadata for %s: %w", layout.Dir(), err)
	}
	return meta, nil
}

func splitVersion(name string) (target string, version int, ok bool) {
	match := versionPattern.FindStringSubmatch(name)
	if match == nil {
		return "", 0, false
	}
	version, err := strconv.Atoi(match[2])
	if err != nil || version < 1 {
		return "", 0, false
	}
	return match[1], version, true
}
