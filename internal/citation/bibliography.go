package citation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"unicode/utf8"
)

// textCitePattern matches [author2024] and [author2024a] style in-text keys.
var textCitePattern = regexp.MustCompile(`\[([a-zA-Z]+\d{4}[a-z]?)\]`)

// bibEntryPattern matches @article{key, @book{key, and friends.
var bibEntryPattern = regexp.MustCompile(`@\w+\{([^,\s]+),`)

// TextKeys extracts the set of citation keys used in a document. A missing
// document yields an empty set.
func TextKeys(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("citation: read %s: %w", path, err)
	}
	return extractKeys(textCitePattern, content), nil
}

// BibKeys extracts the set of entry keys declared in a BibTeX file.
func BibKeys(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("citation: read %s: %w", path, err)
	}
	return extractKeys(bibEntryPattern, content), nil
}

// KeysInText extracts citation keys from an in-memory snippet, preserving
// first-use order. Used at entry validation time before text hits disk.
func KeysInText(content string) []string {
	matches := textCitePattern.FindAllStringSubmatch(content, -1)
	seen := map[string]struct{}{}
	var out []string
	for _, match := range matches {
		key := match[1]
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// ContextFor returns a short excerpt around the first use of key in content,
// for the audit trail.
func ContextFor(content, key string) string {
	loc := textCitePattern.FindAllStringSubmatchIndex(content, -1)
	for _, idx := range loc {
		if content[idx[2]:idx[3]] != key {
			continue
		}
		start := idx[0] - 80
		if start < 0 {
			start = 0
		}
		end := idx[1] + 80
		if end > len(content) {
			end = len(content)
		}
		// Nudge both cuts onto rune boundaries.
		for start < idx[0] && !utf8.RuneStart(content[start]) {
			start++
		}
		for end > idx[1] && end < len(content) && !utf8.RuneStart(content[end]) {
			end--
		}
		return content[start:end]
	}
	return ""
}

func extractKeys(pattern *regexp.Regexp, content []byte) map[string]struct{} {
	matches := pattern.FindAllSubmatch(content, -1)
	out := make(map[string]struct{}, len(matches))
	for _, match := range matches {
		out[string(match[1])] = struct{}{}
	}
	return out
}
