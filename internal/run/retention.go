package run

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kmreade/scrivener/internal/config"
)

// ArchiveResult describes one run moved to the archive.
type ArchiveResult struct {
	Run     string
	Archive string
	Reason  string
}

// ApplyRetention archives runs of target that fall outside the retention
// policy. The newest KeepLast versions always survive; MaxAgeDays, when set,
// additionally expires older runs by age. Milestone runs are never archived.
// The newest run of a target survives regardless of age. An empty target
// covers the whole workspace, with the policy applied per target so one
// target's runs never crowd another's out of the keep window.
func (m *Manager) ApplyRetention(target string, policy config.RetentionConfig) ([]ArchiveResult, error) {
	runs, err := m.List(target)
	if err != nil {
		return nil, err
	}
	groups := map[string][]Run{}
	var order []string
	for _, r := range runs {
		name := r.Meta.Target
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], r)
	}
	var results []ArchiveResult
	for _, name := range order {
		part, err := m.retainTarget(groups[name], policy)
		results = append(results, part...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// retainTarget applies the policy over one target's version-ordered runs.
func (m *Manager) retainTarget(runs []Run, policy config.RetentionConfig) ([]ArchiveResult, error) {
	now := m.clock().UTC()
	keep := policy.KeepLast
	if keep < 1 {
		keep = 1
	}
	var results []ArchiveResult
	// Everything past the last keep entries is a candidate.
	for i, r := range runs {
		if r.Meta.Milestone {
			continue
		}
		latest := i == len(runs)-1
		reason := ""
		switch {
		case i < len(runs)-keep:
			reason = fmt.Sprintf("beyond keep_last=%d", keep)
		case !latest && policy.MaxAgeDays > 0 && now.Sub(r.Meta.CreatedAt) > time.Duration(policy.MaxAgeDays)*24*time.Hour:
			reason = fmt.Sprintf("older than %d days", policy.MaxAgeDays)
		default:
			continue
		}
		archivePath, err := m.archiveRun(r)
		if err != nil {
			return results, err
		}
		results = append(results, ArchiveResult{Run: r.Name(), Archive: archivePath, Reason: reason})
	}
	return results, nil
}

// archiveRun packs the run directory into archive/<name>.tar.gz and removes
// the original. The tarball is written fully before anything is deleted.
func (m *Manager) archiveRun(r Run) (string, error) {
	archiveDir := filepath.Join(m.root, ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("run: ensure archive dir: %w", err)
	}
	archivePath := filepath.Join(archiveDir, r.Name()+".tar.gz")
	if err := writeTarball(archivePath, r.Dir); err != nil {
		_ = os.Remove(archivePath)
		return "", err
	}
	if err := os.RemoveAll(r.Dir); err != nil {
		return "", fmt.Errorf("run: remove archived run %s: %w", r.Dir, err)
	}
	return archivePath, nil
}

func writeTarball(archivePath, dir string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("run: create archive %s: %w", archivePath, err)
	}
	defer out.Close()
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	base := filepath.Base(dir)
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(base, rel))
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("run: pack %s: %w", dir, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("run: finish tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("run: finish gzip: %w", err)
	}
	return out.Sync()
}
