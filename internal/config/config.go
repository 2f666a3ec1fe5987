// Package config handles the per-run configuration file stored at
// .scrivener/config.yaml. A default config is seeded when a run is created;
// journal presets overlay the defaults the same way the base file does.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConfigYAML = `# scrivener run configuration
version: 1

manuscript:
  target_journal: bioinformatics
  total_word_limit: 6000

sections:
  abstract:      {min_words: 150, target_words: 200, max_words: 250}
  introduction:  {min_words: 400, target_words: 600, max_words: 800}
  methods:       {min_words: 800, target_words: 1200, max_words: 1600}
  results:       {min_words: 600, target_words: 900, max_words: 1200}
  discussion:    {min_words: 400, target_words: 700, max_words: 1000}
  availability:  {min_words: 50, target_words: 100, max_words: 200}

citations:
  # warn keeps section-policy violations advisory; error makes them block the gate.
  policy_severity: warn
  policies:
    abstract:
      max_citations: 2
      allowed: [seminal]
      reason: abstracts should be self-contained
    introduction:
      allowed: [seminal, review, recent, tool]
      reason: broad background
    methods:
      allowed: [tool, protocol, dataset]
      forbidden: [review]
      reason: cite tools, datasets, and protocols actually used
    results:
      allowed: [recent, benchmark]
      forbidden: [review]
      reason: compare to other studies and benchmarks
    discussion:
      allowed: [seminal, review, recent, tool]
      reason: broad interpretation

retention:
  keep_last: 3
  max_age_days: 0   # 0 disables age-based archiving

git:
  enabled: true
  auto_commit: true
  forbidden_remotes:
    - github.com/kmreade/scrivener
    - scrivener.git

verification:
  # Optional external verification commands per stage; exit 0 = pass.
  commands: {}
`

// SectionLimits declares word-count bounds for one draft section.
type SectionLimits struct {
	MinWords    int `yaml:"min_words"`
	TargetWords int `yaml:"target_words"`
	MaxWords    int `yaml:"max_words"`
}

// ManuscriptConfig captures document-wide settings.
type ManuscriptConfig struct {
	TargetJournal  string `yaml:"target_journal"`
	TotalWordLimit int    `yaml:"total_word_limit"`
}

// PolicyConfig declares the citation categories a section may use.
type PolicyConfig struct {
	MaxCitations int      `yaml:"max_citations,omitempty"`
	Allowed      []string `yaml:"allowed,omitempty"`
	Forbidden    []string `yaml:"forbidden,omitempty"`
	Reason       string   `yaml:"reason,omitempty"`
}

// CitationConfig groups citation-validation settings.
type CitationConfig struct {
	PolicySeverity string                  `yaml:"policy_severity"`
	Policies       map[string]PolicyConfig `yaml:"policies"`
}

// RetentionConfig controls run archiving.
type RetentionConfig struct {
	KeepLast   int `yaml:"keep_last"`
	MaxAgeDays int `yaml:"max_age_days"`
}

// GitConfig controls the version-control sink.
type GitConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AutoCommit       bool     `yaml:"auto_commit"`
	ForbiddenRemotes []string `yaml:"forbidden_remotes"`
}

// VerificationConfig maps stage names to external verification commands.
type VerificationConfig struct {
	Commands map[string]string `yaml:"commands"`
}

// Config models .scrivener/config.yaml.
type Config struct {
	Version      int                      `yaml:"version"`
	Manuscript   ManuscriptConfig         `yaml:"manuscript"`
	Sections     map[string]SectionLimits `yaml:"sections"`
	Citations    CitationConfig           `yaml:"citations"`
	Retention    RetentionConfig          `yaml:"retention"`
	Git          GitConfig                `yaml:"git"`
	Verification VerificationConfig       `yaml:"verification"`
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse defaults: %w", err)
	}
	return &cfg, nil
}

// Ensure writes the default config file if none exists yet.
func Ensure(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: ensure dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write defaults: %w", err)
	}
	return nil
}

// Load reads the config at path, falling back to defaults when it is absent.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default()
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields other packages depend on.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Citations.PolicySeverity)) {
	case "", "warn", "error":
	default:
		return fmt.Errorf("config: citations.policy_severity must be warn or error, got %q", c.Citations.PolicySeverity)
	}
	if c.Retention.KeepLast < 0 {
		return fmt.Errorf("config: retention.keep_last must be >= 0")
	}
	if c.Retention.MaxAgeDays < 0 {
		return fmt.Errorf("config: retention.max_age_days must be >= 0")
	}
	for name, limits := range c.Sections {
		if limits.MinWords < 0 || limits.MaxWords < 0 {
			return fmt.Errorf("config: section %s has negative word limits", name)
		}
		if limits.MaxWords > 0 && limits.MinWords > limits.MaxWords {
			return fmt.Errorf("config: section %s min_words exceeds max_words", name)
		}
	}
	return nil
}

// PolicyStrict reports whether section-policy violations should fail the gate.
func (c *Config) PolicyStrict() bool {
	return strings.EqualFold(strings.TrimSpace(c.Citations.PolicySeverity), "error")
}

// SectionLimitsFor returns the word bounds for a section, if declared.
func (c *Config) SectionLimitsFor(section string) (SectionLimits, bool) {
	limits, ok := c.Sections[strings.ToLower(section)]
	return limits, ok
}

// VerificationCommand returns the external check configured for a stage.
func (c *Config) VerificationCommand(stage string) (string, bool) {
	cmd, ok := c.Verification.Commands[stage]
	cmd = strings.TrimSpace(cmd)
	return cmd, ok && cmd != ""
}
