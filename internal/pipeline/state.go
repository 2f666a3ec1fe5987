package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kmreade/scrivener/internal/checksum"
)

// StageStatus is the lifecycle state of one stage within a run.
type StageStatus string

const (
	StatusNotStarted StageStatus = "not_started"
	StatusInProgress StageStatus = "in_progress"
	StatusCompleted  StageStatus = "completed"
	StatusFailed     StageStatus = "failed"
)

// StageRecord is the persisted execution record for one stage.
type StageRecord struct {
	Status       StageStatus       `json:"status"`
	Dependencies []string          `json:"dependencies,omitempty"`
	// Inputs and Outputs hold the digests captured at the last successful
	// completion. A later failure does not overwrite them.
	Inputs  map[string]string `json:"inputs,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty"`
	// DepReruns snapshots each dependency's rerun count at completion time,
	// so a dependency rerun after this stage completed is detectable.
	DepReruns   map[string]int `json:"dep_reruns,omitempty"`
	RerunCount  int            `json:"rerun_count"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Commit      string         `json:"commit,omitempty"`
}

// State is the persisted pipeline state for one run, stored at
// .scrivener/state.json.
type State struct {
	Version        int                     `json:"version"`
	RunID          string                  `json:"run_id"`
	PipelineID     string                  `json:"pipeline_id"`
	UpdatedAt      time.Time               `json:"updated_at"`
	CitationStatus string                  `json:"citation_status"`
	Stages         map[string]*StageRecord `json:"stages"`
	// Checksums is the run-wide table of last-known artifact digests, keyed
	// by run-relative path. Display data only; staleness decisions use the
	// per-stage input digests.
	Checksums map[string]checksum.Entry `json:"checksums,omitempty"`
}

// NewState initializes state for a run against a pipeline definition. Every
// stage starts not_started with its dependency list recorded.
func NewState(runID string, def Definition) *State {
	state := &State{
		Version:        1,
		RunID:          runID,
		PipelineID:     def.ID,
		CitationStatus: "unchecked",
		Stages:         make(map[string]*StageRecord, len(def.Stages)),
	}
	for _, ref := range def.Stages {
		state.Stages[ref.Name] = &StageRecord{
			Status:       StatusNotStarted,
			Dependencies: def.Dependencies(ref.Name),
		}
	}
	return state
}

// Stage returns the record for a stage, creating an empty one for stages the
// definition added after the state file was written.
func (s *State) Stage(name string) *StageRecord {
	if s.Stages == nil {
		s.Stages = map[string]*StageRecord{}
	}
	record, ok := s.Stages[name]
	if !ok {
		record = &StageRecord{Status: StatusNotStarted}
		s.Stages[name] = record
	}
	return record
}

// Reconcile aligns the state with a definition: new stages get fresh records
// and dependency lists are refreshed. Records for removed stages are kept so
// their history survives definition edits.
func (s *State) Reconcile(def Definition) {
	for _, ref := range def.Stages {
		record := s.Stage(ref.Name)
		record.Dependencies = def.Dependencies(ref.Name)
	}
	if s.PipelineID == "" {
		s.PipelineID = def.ID
	}
}

// Store persists pipeline state as JSON with atomic replace semantics.
type Store struct {
	path string
}

// NewStore creates a store for the given state file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (st *Store) Path() string {
	return st.path
}

// Exists reports whether a state file has been written yet.
func (st *Store) Exists() bool {
	_, err := os.Stat(st.path)
	return err == nil
}

// Load reads the state file. A missing file returns (nil, fs.ErrNotExist) so
// callers can distinguish "no run yet" from corruption.
func (st *Store) Load() (*State, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("pipeline: state not initialized at %s: %w", st.path, err)
		}
		return nil, fmt.Errorf("pipeline: read state %s: %w", st.path, err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("pipeline: parse state %s: %w", st.path, err)
	}
	return &state, nil
}

// Save writes the state atomically: serialize to a temp file in the same
// directory, then rename over the old file. A crash mid-write leaves the
// previous state intact.
func (st *Store) Save(state *State) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: encode state: %w", err)
	}
	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pipeline: ensure state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("pipeline: create temp state: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(append(data, '\n'))
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	if writeErr != nil || syncErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("pipeline: write temp state: %w", errors.Join(writeErr, syncErr, closeErr))
	}
	if err := os.Rename(tmpName, st.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("pipeline: replace state: %w", err)
	}
	return nil
}
