// Package manuscript defines the run directory structure and file constants.
// Every stage reads and writes artifacts through these paths; the tool's own
// state lives under .scrivener/ inside the same run directory.
package manuscript

import (
	"os"
	"path/filepath"
)

// ScrivenerDir is the tool state directory created inside each run.
const ScrivenerDir = ".scrivener"

// Tool state files within .scrivener/
const (
	FileState  = "state.json"
	FileAudit  = "audit.jsonl"
	FileConfig = "config.yaml"
	FileLock   = "lock"
	LogsDir    = "logs"
)

// Stage output files at the run root.
const (
	FileAnalysis   = "analysis.md"
	FileOutline    = "outline.md"
	FileAssessment = "assessment.md"
	FileGuidelines = "author_guidelines.md"
	FileLiterature = "literature.md"
	FileEvidence   = "literature_evidence.csv"
	FileBib        = "citations.bib"
	FileManuscript = "manuscript.md"
	FileManifest   = "manuscript_manifest.json"
	FileCritique   = "critique.md"
)

// SectionsDir holds the per-section drafts produced by the drafting stage.
const SectionsDir = "sections"

// DefaultSections lists the draft sections in assembly order.
var DefaultSections = []string{
	"abstract",
	"introduction",
	"methods",
	"results",
	"discussion",
	"availability",
}

// Layout resolves artifact paths within one run directory.
type Layout struct {
	runDir string
}

// NewLayout creates a layout rooted at the run directory.
func NewLayout(runDir string) *Layout {
	return &Layout{runDir: filepath.Clean(runDir)}
}

// Dir returns the run directory.
func (l *Layout) Dir() string {
	return l.runDir
}

// StateDir returns the .scrivener directory path.
func (l *Layout) StateDir() string {
	return filepath.Join(l.runDir, ScrivenerDir)
}

// StatePath returns the path to state.json.
func (l *Layout) StatePath() string {
	return filepath.Join(l.StateDir(), FileState)
}

// AuditPath returns the path to the append-only audit log.
func (l *Layout) AuditPath() string {
	return filepath.Join(l.StateDir(), FileAudit)
}

// ConfigPath returns the path to the run's config.yaml.
func (l *Layout) ConfigPath() string {
	return filepath.Join(l.StateDir(), FileConfig)
}

// LockPath returns the advisory lock file path.
func (l *Layout) LockPath() string {
	return filepath.Join(l.StateDir(), FileLock)
}

// LogPath returns the run's tool log file.
func (l *Layout) LogPath() string {
	return filepath.Join(l.StateDir(), LogsDir, "scrivener.log")
}

// AnalysisPath returns the path to analysis.md.
func (l *Layout) AnalysisPath() string {
	return filepath.Join(l.runDir, FileAnalysis)
}

// OutlinePath returns the path to outline.md.
func (l *Layout) OutlinePath() string {
	return filepath.Join(l.runDir, FileOutline)
}

// AssessmentPath returns the path to assessment.md.
func (l *Layout) AssessmentPath() string {
	return filepath.Join(l.runDir, FileAssessment)
}

// GuidelinesPath returns the path to author_guidelines.md.
func (l *Layout) GuidelinesPath() string {
	return filepath.Join(l.runDir, FileGuidelines)
}

// LiteraturePath returns the path to literature.md.
func (l *Layout) LiteraturePath() string {
	return filepath.Join(l.runDir, FileLiterature)
}

// EvidencePath returns the path to literature_evidence.csv.
func (l *Layout) EvidencePath() string {
	return filepath.Join(l.runDir, FileEvidence)
}

// BibPath returns the path to citations.bib.
func (l *Layout) BibPath() string {
	return filepath.Join(l.runDir, FileBib)
}

// SectionsDir returns the sections directory.
func (l *Layout) SectionsDir() string {
	return filepath.Join(l.runDir, SectionsDir)
}

// SectionPath returns the draft path for a named section.
func (l *Layout) SectionPath(section string) string {
	return filepath.Join(l.SectionsDir(), section+".md")
}

// ManuscriptPath returns the assembled manuscript path.
func (l *Layout) ManuscriptPath() string {
	return filepath.Join(l.runDir, FileManuscript)
}

// ManifestPath returns the assembly manifest path.
func (l *Layout) ManifestPath() string {
	return filepath.Join(l.runDir, FileManifest)
}

// CritiquePath returns the review critique path.
func (l *Layout) CritiquePath() string {
	return filepath.Join(l.runDir, FileCritique)
}

// Init creates the directories a fresh run needs.
func (l *Layout) Init() error {
	dirs := []string{
		l.StateDir(),
		filepath.Join(l.StateDir(), LogsDir),
		l.SectionsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Rel returns path relative to the run directory, falling back to the
// original path when it does not share the run prefix.
func (l *Layout) Rel(path string) string {
	rel, err := filepath.Rel(l.runDir, path)
	if err != nil {
		return path
	}
	return rel
}
