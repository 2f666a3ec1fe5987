// Package citation implements the four-layer citation consistency checks:
// entry validation against the evidence store, section-policy review,
// assembly-time completeness, and the audit trail hook. The layers are pure
// functions over immutable snapshots; nothing here mutates artifact files.
package citation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

// Category tags an evidence entry with the kind of source it is.
type Category string

const (
	CategorySeminal   Category = "seminal"
	CategoryReview    Category = "review"
	CategoryRecent    Category = "recent"
	CategoryTool      Category = "tool"
	CategoryProtocol  Category = "protocol"
	CategoryDataset   Category = "dataset"
	CategoryBenchmark Category = "benchmark"
	CategoryUnknown   Category = "unknown"
)

// Entry is one row of the citation-evidence store.
type Entry struct {
	Key      string
	Title    string
	DOI      string
	Year     int
	Category Category
	SourceID string
	Quote    string
}

// Store is an immutable snapshot of the evidence file.
type Store struct {
	entries map[string]Entry
	keys    []string
}

// evidence CSV header columns, in file order.
var evidenceColumns = []string{"citation_key", "title", "doi", "year", "category", "source_id", "quote"}

// LoadStore reads literature_evidence.csv. A missing file yields an empty
// store: the research stage simply has not produced evidence yet.
func LoadStore(path string) (*Store, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Store{entries: map[string]Entry{}}, nil
		}
		return nil, fmt.Errorf("citation: open evidence %s: %w", path, err)
	}
	defer file.Close()
	return parseStore(file)
}

func parseStore(r io.Reader) (*Store, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Store{entries: map[string]Entry{}}, nil
		}
		return nil, fmt.Errorf("citation: read evidence header: %w", err)
	}
	index := map[string]int{}
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index["citation_key"]; !ok {
		return nil, fmt.Errorf("citation: evidence file missing citation_key column")
	}
	store := &Store{entries: map[string]Entry{}}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("citation: read evidence row: %w", err)
		}
		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		key := field("citation_key")
		if key == "" {
			continue
		}
		year, _ := strconv.Atoi(field("year"))
		entry := Entry{
			Key:      key,
			Title:    field("title"),
			DOI:      field("doi"),
			Year:     year,
			Category: Category(strings.ToLower(field("category"))),
			SourceID: field("source_id"),
			Quote:    field("quote"),
		}
		if entry.Category == "" {
			entry.Category = CategoryUnknown
		}
		if _, dup := store.entries[key]; !dup {
			store.keys = append(store.keys, key)
		}
		store.entries[key] = entry
	}
	return store, nil
}

// SaveStore writes entries back out as CSV in key order. Used by tests and
// evidence-import tooling; the validator itself never writes.
func SaveStore(path string, entries []Entry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("citation: create evidence %s: %w", path, err)
	}
	defer file.Close()
	writer := csv.NewWriter(file)
	if err := writer.Write(evidenceColumns); err != nil {
		return fmt.Errorf("citation: write evidence header: %w", err)
	}
	for _, entry := range entries {
		record := []string{
			entry.Key,
			entry.Title,
			entry.DOI,
			strconv.Itoa(entry.Year),
			string(entry.Category),
			entry.SourceID,
			entry.Quote,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("citation: write evidence row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Has reports whether the key exists in the evidence set. O(1).
func (s *Store) Has(key string) bool {
	_, ok := s.entries[key]
	return ok
}

// Get returns the entry for key.
func (s *Store) Get(key string) (Entry, bool) {
	entry, ok := s.entries[key]
	return entry, ok
}

// Keys returns every citation key in file order.
func (s *Store) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of evidence entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// CategoryOf returns the entry's category, inferring one from title and year
// when the evidence row left it untagged.
func (s *Store) CategoryOf(key string, now time.Time) Category {
	entry, ok := s.entries[key]
	if !ok {
		return CategoryUnknown
	}
	if entry.Category != CategoryUnknown && entry.Category != "" {
		return entry.Category
	}
	return inferCategory(entry, now)
}

// inferCategory mirrors the evidence-tagging heuristics: title keywords
// first, then publication age.
func inferCategory(entry Entry, now time.Time) Category {
	title := strings.ToLower(entry.Title)
	contains := func(words ...string) bool {
		for _, word := range words {
			if strings.Contains(title, word) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("software", "tool", "pipeline", "package", "algorithm"):
		return CategoryTool
	case contains("review", "survey", "overview", "perspectives"):
		return CategoryReview
	case contains("protocol", "procedure", "workflow"):
		return CategoryProtocol
	case contains("database", "dataset", "repository", "collection"):
		return CategoryDataset
	case contains("benchmark", "comparison", "evaluation"):
		return CategoryBenchmark
	}
	year := now.Year()
	switch {
	case entry.Year >= year-5 && entry.Year > 0:
		return CategoryRecent
	case entry.Year > 0 && entry.Year < year-10:
		return CategorySeminal
	}
	return CategoryUnknown
}
