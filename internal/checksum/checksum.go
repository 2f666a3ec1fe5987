// Package checksum computes and compares content digests of run artifacts.
// Every staleness decision in the pipeline bottoms out here.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// MissingDigest is the sentinel recorded for a declared path that does not
// exist. A missing file always compares as changed, forcing a rerun instead
// of an error.
const MissingDigest = "missing"

const digestPrefix = "sha256:"

// Entry captures one artifact's digest plus the stat data used to display it.
type Entry struct {
	Path       string    `json:"path"`
	Digest     string    `json:"digest"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Digest returns the content hash of the file at path. Missing files return
// MissingDigest rather than an error; any other IO failure is surfaced.
func Digest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return MissingDigest, nil
		}
		return "", fmt.Errorf("checksum: open %s: %w", path, err)
	}
	defer file.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("checksum: read %s: %w", path, err)
	}
	return digestPrefix + hex.EncodeToString(hasher.Sum(nil)), nil
}

// Changed reports whether the file's current digest differs from previous.
// An empty previous digest always reads as changed: the caller never
// recorded a completion for this path.
func Changed(path, previous string) (bool, error) {
	if previous == "" {
		return true, nil
	}
	current, err := Digest(path)
	if err != nil {
		return false, err
	}
	return current != previous, nil
}

// Stat returns a full checksum entry for the path. Missing files produce an
// entry carrying MissingDigest with zero size.
func Stat(path string) (Entry, error) {
	digest, err := Digest(path)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Path: path, Digest: digest}
	if digest == MissingDigest {
		return entry, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("checksum: stat %s: %w", path, err)
	}
	entry.Size = info.Size()
	entry.ModifiedAt = info.ModTime().UTC()
	return entry, nil
}

// Snapshot digests every path in declaration order and returns the entries
// keyed by path. Entries are recomputed on every call; nothing is cached.
func Snapshot(paths []string) (map[string]Entry, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	out := make(map[string]Entry, len(paths))
	for _, path := range paths {
		entry, err := Stat(path)
		if err != nil {
			return nil, err
		}
		out[path] = entry
	}
	return out, nil
}
