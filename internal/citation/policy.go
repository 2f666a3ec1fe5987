package citation

import (
	"fmt"
	"strings"
	"time"

	"github.com/kmreade/scrivener/internal/config"
)

// SectionPolicy declares which evidence categories a section may cite.
type SectionPolicy struct {
	Section      string
	MaxCitations int
	Allowed      []Category
	Forbidden    []Category
	Reason       string
}

// PolicyTable maps lowercase section names to their policies.
type PolicyTable map[string]SectionPolicy

// PoliciesFromConfig builds the policy table from run configuration.
// Sections absent from the table are unconstrained.
func PoliciesFromConfig(cfg *config.Config) PolicyTable {
	table := make(PolicyTable, len(cfg.Citations.Policies))
	for name, policy := range cfg.Citations.Policies {
		section := strings.ToLower(strings.TrimSpace(name))
		if section == "" {
			continue
		}
		table[section] = SectionPolicy{
			Section:      section,
			MaxCitations: policy.MaxCitations,
			Allowed:      toCategories(policy.Allowed),
			Forbidden:    toCategories(policy.Forbidden),
			Reason:       policy.Reason,
		}
	}
	return table
}

// Violation is one section-policy warning. Layer 2 findings stay advisory by
// default; the run config can escalate them to gate failures.
type Violation struct {
	Section  string
	Key      string
	Category Category
	Message  string
}

func (v Violation) String() string {
	return v.Message
}

// Review applies the section policy to the citations used in one section and
// returns every violation found. Untagged categories are inferred first, so
// a sloppy evidence file degrades to warnings rather than false rejections.
func (t PolicyTable) Review(section string, keys []string, store *Store, now time.Time) []Violation {
	policy, ok := t[strings.ToLower(strings.TrimSpace(section))]
	if !ok {
		return nil
	}
	var violations []Violation
	if policy.MaxCitations > 0 && len(keys) > policy.MaxCitations {
		violations = append(violations, Violation{
			Section: policy.Section,
			Message: fmt.Sprintf("%s has %d citations but should have <= %d: %s",
				policy.Section, len(keys), policy.MaxCitations, policy.Reason),
		})
	}
	for _, key := range keys {
		if !store.Has(key) {
			continue
		}
		category := store.CategoryOf(key, now)
		if category == CategoryUnknown {
			continue
		}
		if containsCategory(policy.Forbidden, category) {
			violations = append(violations, Violation{
				Section:  policy.Section,
				Key:      key,
				Category: category,
				Message: fmt.Sprintf("citation [%s] is %s, which is not appropriate for %s: %s",
					key, category, policy.Section, policy.Reason),
			})
			continue
		}
		if len(policy.Allowed) > 0 && !containsCategory(policy.Allowed, category) {
			violations = append(violations, Violation{
				Section:  policy.Section,
				Key:      key,
				Category: category,
				Message: fmt.Sprintf("citation [%s] is %s, but %s typically uses: %s",
					key, category, policy.Section, joinCategories(policy.Allowed)),
			})
		}
	}
	return violations
}

func toCategories(names []string) []Category {
	out := make([]Category, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			out = append(out, Category(name))
		}
	}
	return out
}

func containsCategory(set []Category, category Category) bool {
	for _, candidate := range set {
		if candidate == category {
			return true
		}
	}
	return false
}

func joinCategories(set []Category) string {
	parts := make([]string, len(set))
	for i, category := range set {
		parts[i] = string(category)
	}
	return strings.Join(parts, ", ")
}
