package citation

import "sort"

// SectionText is one named section body handed to Collect.
type SectionText struct {
	Name string
	Body string
}

// Record is the per-key usage summary frozen at assembly time: where a key is
// cited and whether the bibliography resolves it. A record with Resolved false
// is an orphaned text reference; a resolved record with no sections is an
// orphaned bibliography entry.
type Record struct {
	Key          string
	Resolved     bool
	SectionsUsed []string
	Contexts     []string
}

// Orphaned reports whether the record is a defect on either side of the
// text-bibliography relation.
func (r Record) Orphaned() bool {
	return !r.Resolved || len(r.SectionsUsed) == 0
}

// Collect builds records over the union of in-text keys and bibliography
// keys, sorted by key. Sections are scanned in the order given; contexts
// parallel SectionsUsed with one excerpt per section of first use.
func Collect(sections []SectionText, bibKeys map[string]struct{}) []Record {
	byKey := map[string]*Record{}
	keep := func(key string) *Record {
		record, ok := byKey[key]
		if !ok {
			_, resolved := bibKeys[key]
			record = &Record{Key: key, Resolved: resolved}
			byKey[key] = record
		}
		return record
	}

	for _, section := range sections {
		for _, key := range KeysInText(section.Body) {
			record := keep(key)
			record.SectionsUsed = append(record.SectionsUsed, section.Name)
			record.Contexts = append(record.Contexts, ContextFor(section.Body, key))
		}
	}
	for key := range bibKeys {
		keep(key)
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		out = append(out, *byKey[key])
	}
	return out
}
