// Package rules loads the embedded, per-language rule catalog at startup
// and serves lookup/filter queries to ASTEngine. Grounded on the teacher's
// config-loading style (internal/config's env-driven Load()), adapted to
// loading YAML catalogs embedded at build time instead of environment
// variables.
package rules

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"codeguardpro/internal/domain"
	"codeguardpro/internal/grammar"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

// rawRule mirrors the catalog YAML shape before being lifted to domain.Rule.
type rawRule struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Severity string `yaml:"severity"`
	Query    string `yaml:"query"`
	Message  string `yaml:"message"`
}

// Registry is the compiled-at-startup rule catalog, keyed by language then id.
type Registry struct {
	byLang map[grammar.Language][]domain.Rule
	byID   map[string]domain.Rule
	failed map[string]error
}

// Load reads every embedded catalog file and lifts it into a Registry. A
// catalog file that cannot be read or parsed fails Load; query compilation
// is not checked here but in Validate, called once at startup per spec.md
// §4.4.
func Load() (*Registry, error) {
	files := map[grammar.Language]string{
		grammar.JS:     "catalog/javascript.yaml",
		grammar.TS:     "catalog/typescript.yaml",
		grammar.Python: "catalog/python.yaml",
		grammar.Java:   "catalog/java.yaml",
		grammar.Go:     "catalog/go.yaml",
	}
	r := &Registry{
		byLang: make(map[grammar.Language][]domain.Rule),
		byID:   make(map[string]domain.Rule),
		failed: make(map[string]error),
	}
	for lang, path := range files {
		raws, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("rules: load %s: %w", path, err)
		}
		for _, rr := range raws {
			rule := toRule(rr, lang)
			r.byLang[lang] = append(r.byLang[lang], rule)
			r.byID[rule.ID] = rule
		}
	}

	// TSX is the union of TS queries and TSX-specific extras (spec.md §4.4).
	tsxExtras, err := loadFile("catalog/tsx.yaml")
	if err != nil {
		return nil, fmt.Errorf("rules: load catalog/tsx.yaml: %w", err)
	}
	tsxRules := append([]domain.Rule{}, r.byLang[grammar.TS]...)
	for _, rr := range tsxExtras {
		rule := toRule(rr, grammar.TSX)
		tsxRules = append(tsxRules, rule)
		r.byID[rule.ID] = rule
	}
	r.byLang[grammar.TSX] = tsxRules

	return r, nil
}

func loadFile(path string) ([]rawRule, error) {
	b, err := catalogFS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raws []rawRule
	if err := yaml.Unmarshal(b, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

func toRule(rr rawRule, lang grammar.Language) domain.Rule {
	return domain.Rule{
		ID:            rr.ID,
		Name:          rr.Name,
		Category:      domain.Category(rr.Category),
		Severity:      domain.Severity(rr.Severity),
		Language:      string(lang),
		PatternSource: rr.Query,
		Message:       rr.Message,
		IsActive:      true,
	}
}

// QueryCompiler compiles a rule's PatternSource and reports whether it is
// usable; cmd/codeguard-api supplies the real tree-sitter-backed
// implementation so this package stays independent of the grammar
// registry's lifecycle.
type QueryCompiler func(lang grammar.Language, pattern string) error

// Validate runs compiler against every loaded rule exactly once. A rule
// whose query fails to compile is deactivated and excluded from
// GetQueries, but the startup call never aborts — per spec.md §4.4, "never
// allow a bad query to take down the engine".
func (r *Registry) Validate(compiler QueryCompiler) map[string]error {
	errs := make(map[string]error)
	for lang, rules := range r.byLang {
		for i, rule := range rules {
			if err := compiler(lang, rule.PatternSource); err != nil {
				rules[i].IsActive = false
				r.byID[rule.ID] = rules[i]
				errs[rule.ID] = err
			}
		}
		r.byLang[lang] = rules
	}
	r.failed = errs
	return errs
}

// GetQueries returns the active rules for lang, optionally filtered by
// category and/or explicit rule ids.
func (r *Registry) GetQueries(lang grammar.Language, categories []domain.Category, ids []string) []domain.Rule {
	all := r.byLang[lang]
	idSet := toSet(ids)
	catSet := toCategorySet(categories)

	out := make([]domain.Rule, 0, len(all))
	for _, rule := range all {
		if !rule.IsActive {
			continue
		}
		if len(idSet) > 0 && !idSet[rule.ID] {
			continue
		}
		if len(catSet) > 0 && !catSet[rule.Category] {
			continue
		}
		out = append(out, rule)
	}
	return out
}

func (r *Registry) GetRuleByID(id string) (domain.Rule, bool) {
	rule, ok := r.byID[id]
	return rule, ok
}

func toSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func toCategorySet(cats []domain.Category) map[domain.Category]bool {
	if len(cats) == 0 {
		return nil
	}
	out := make(map[domain.Category]bool, len(cats))
	for _, c := range cats {
		out[c] = true
	}
	return out
}
