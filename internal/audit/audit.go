// Package audit maintains the append-only event log for a run. Every stage
// transition and every citation resolution attempt lands here as one
// self-contained JSON line; events are never mutated or deleted.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind distinguishes the two event families the log records.
type Kind string

const (
	KindStage    Kind = "stage"
	KindCitation Kind = "citation"
)

// Resolution statuses recorded on citation events.
const (
	ResolutionAccepted = "accepted"
	ResolutionRejected = "rejected"
	ResolutionWarned   = "warned"
)

// snippetLimit caps the stored context excerpt.
const snippetLimit = 200

// Event is one immutable audit record.
type Event struct {
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        Kind      `json:"kind"`
	Stage       string    `json:"stage,omitempty"`
	Section     string    `json:"section,omitempty"`
	CitationKey string    `json:"citation_key,omitempty"`
	Context     string    `json:"context,omitempty"`
	Status      string    `json:"status"`
	Detail      string    `json:"detail,omitempty"`
}

// Logger appends events to a JSONL file.
type Logger struct {
	path  string
	mu    sync.Mutex
	clock func() time.Time
}

// Option customizes a Logger.
type Option func(*Logger)

// WithClock injects a deterministic clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Logger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New creates an audit logger writing to path.
func New(path string, opts ...Option) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: ensure dir: %w", err)
	}
	logger := &Logger{path: path, clock: time.Now}
	for _, opt := range opts {
		opt(logger)
	}
	return logger, nil
}

// Path returns the file backing this log.
func (l *Logger) Path() string {
	return l.path
}

// Append stamps and writes one event. The event ID and timestamp are always
// assigned here so no caller can forge or reorder history.
func (l *Logger) Append(event Event) error {
	event.EventID = uuid.NewString()
	event.Timestamp = l.clock().UTC()
	event.Context = clampSnippet(event.Context)
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open log: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	return nil
}

// StageTransition records a stage status change.
func (l *Logger) StageTransition(stage, status, detail string) error {
	return l.Append(Event{
		Kind:   KindStage,
		Stage:  stage,
		Status: status,
		Detail: detail,
	})
}

// CitationResolution records one citation lookup attempt.
func (l *Logger) CitationResolution(stage, section, key, context, status, detail string) error {
	return l.Append(Event{
		Kind:        KindCitation,
		Stage:       stage,
		Section:     section,
		CitationKey: key,
		Context:     context,
		Status:      status,
		Detail:      detail,
	})
}

// Replay streams every event in append order. The callback returning false
// stops the replay early.
func (l *Logger) Replay(fn func(Event) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("audit: open log: %w", err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return fmt.Errorf("audit: corrupt event line: %w", err)
		}
		if !fn(event) {
			return nil
		}
	}
	return scanner.Err()
}

// History returns every event referencing the citation key, oldest first.
func (l *Logger) History(citationKey string) ([]Event, error) {
	var out []Event
	err := l.Replay(func(event Event) bool {
		if event.CitationKey == citationKey {
			out = append(out, event)
		}
		return true
	})
	return out, err
}

// Tail returns up to n of the most recent events.
func (l *Logger) Tail(n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}
	var all []Event
	if err := l.Replay(func(event Event) bool {
		all = append(all, event)
		return true
	}); err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func clampSnippet(context string) string {
	context = strings.TrimSpace(context)
	if len(context) <= snippetLimit {
		return context
	}
	// Back off to a rune boundary so the cut never leaves a broken
	// multi-byte sequence in the record.
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(context[cut]) {
		cut--
	}
	return context[:cut]
}
