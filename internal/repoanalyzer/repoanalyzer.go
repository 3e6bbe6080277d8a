// Package repoanalyzer walks a cloned working tree and normalizes
// ASTEngine/RegexDetector findings into classified domain.Issue values,
// per spec.md §4.9. Grounded on testrunner's tree-walk/skip-list
// discovery, with a deeper walk bound and a classification pass layered
// on top.
package repoanalyzer

import (
	"os"
	"path/filepath"
	"strings"

	"codeguardpro/internal/astengine"
	"codeguardpro/internal/domain"
	"codeguardpro/internal/grammar"
	"codeguardpro/internal/regexdetector"
	"codeguardpro/internal/repoconfig"
)

const maxWalkDepth = 10

var skipDirs = map[string]bool{
	"node_modules": true, ".git": true, "dist": true, "build": true,
	"__pycache__": true, ".venv": true, "venv": true, ".tox": true,
}

var analysisCategories = []domain.Category{
	domain.CategorySecurity, domain.CategoryBestPractice, domain.CategoryStyle,
	domain.CategoryNaming, domain.CategoryPerformance,
}

// Analyzer ties an ASTEngine to the tree walk and classification pipeline.
type Analyzer struct {
	engine *astengine.Engine
}

func New(engine *astengine.Engine) *Analyzer {
	return &Analyzer{engine: engine}
}

// Analyze walks root and returns every classified Issue found.
func (a *Analyzer) Analyze(root string, cfg repoconfig.Config) ([]domain.Issue, error) {
	var issues []domain.Issue
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
			if depth > maxWalkDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if isTestFile(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if cfg.ExcludesPath(rel) {
			return nil
		}
		found, fileErr := a.analyzeFile(path, rel, cfg)
		if fileErr != nil {
			return nil
		}
		issues = append(issues, found...)
		return nil
	})
	return issues, err
}

func isTestFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.Contains(lower, "test") || strings.Contains(lower, "spec") || strings.Contains(lower, "__tests__")
}

func (a *Analyzer) analyzeFile(path, rel string, cfg repoconfig.Config) ([]domain.Issue, error) {
	if _, ok := grammar.LanguageForFile(path); !ok {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	categories := filterDisabled(analysisCategories, cfg)
	result := a.engine.Analyze(content, path, astengine.Options{Categories: categories})

	if len(result.Violations) == 0 && (!result.ASTSupported || result.Error != "") {
		// RegexDetector already returns fully classified Issues (spec.md §4.6),
		// so rule 1 of the classification precedence ("already classified, keep")
		// applies directly — no re-classification needed.
		return regexdetector.Scan(rel, content), nil
	}

	issues := make([]domain.Issue, 0, len(result.Violations))
	for _, v := range result.Violations {
		v.File = rel
		category, _ := a.engine.CategoryForRule(v.RuleID)
		issues = append(issues, Classify(v, category))
	}
	return issues, nil
}

func filterDisabled(cats []domain.Category, cfg repoconfig.Config) []domain.Category {
	out := make([]domain.Category, 0, len(cats))
	for _, c := range cats {
		if !cfg.CategoryDisabled(c) {
			out = append(out, c)
		}
	}
	return out
}

// Classify maps a raw Violation to a typed Issue using spec.md §4.9's
// first-match-wins precedence. category is the originating rule's catalog
// category, if known, and backs rule 6 (style/naming rules classify as
// BugLinting when no earlier message-based rule matched).
func Classify(v domain.Violation, category domain.Category) domain.Issue {
	msg := strings.ToLower(v.Message)
	severity := v.Severity
	if severity == "" {
		severity = domain.SeverityWarning
	}
	source := v.Engine
	if source == "" {
		source = domain.SourceAST
	}

	issue := domain.Issue{
		File: v.File, Line: v.Line, Description: v.Message,
		CodeSnippet: v.Snippet, Severity: severity, Source: source,
	}

	switch {
	case strings.Contains(msg, "syntax"), strings.Contains(msg, "unexpected token"), strings.Contains(msg, "parsing error"):
		issue.BugType = domain.BugSyntax
	case strings.Contains(msg, "import"), strings.Contains(msg, "require"), strings.Contains(msg, "module not found"):
		issue.BugType = domain.BugImport
	case strings.Contains(msg, "type"), strings.Contains(msg, "undefined"), strings.Contains(msg, "null reference"), strings.Contains(msg, "incompatible"):
		issue.BugType = domain.BugTypeError
	case strings.Contains(msg, "indent"), strings.Contains(msg, "whitespace"), strings.Contains(msg, "tab"), strings.Contains(msg, "spacing"):
		issue.BugType = domain.BugIndentation
	case strings.Contains(msg, "lint"), strings.Contains(msg, "naming"), strings.Contains(msg, "convention"), strings.Contains(msg, "unused"):
		issue.BugType = domain.BugLinting
	case category == domain.CategoryStyle || category == domain.CategoryNaming:
		issue.BugType = domain.BugLinting
	default:
		issue.BugType = domain.BugLogic
	}
	return issue
}
