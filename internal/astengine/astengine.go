// Package astengine runs the rule catalog's tree-sitter queries against a
// single file and emits Violations, per spec.md §4.5. Grounded on the
// teacher's per-call resource lifecycle discipline (CredentialBroker's
// single-flighted, always-released transport cache), adapted to
// parse/query/release instead of mint/cache/release.
package astengine

import (
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"codeguardpro/internal/domain"
	"codeguardpro/internal/grammar"
	"codeguardpro/internal/rules"
)

var suppressMarkers = []string{"codeguard-ignore", "noqa", "eslint-disable", "@suppress"}

const maxSnippetLen = 120

// Options narrows the rule set analyzed for one call.
type Options struct {
	Language   grammar.Language
	Categories []domain.Category
	RuleIDs    []string
}

// Result is ASTEngine.Analyze's return contract, including timing fields
// that spec.md §4.5 requires to be populated on every path, including errors.
type Result struct {
	Violations   []domain.Violation
	Language     grammar.Language
	ASTSupported bool
	ParseTimeMs  float64
	QueryTimeMs  float64
	RulesChecked int
	Error        string
}

// Engine ties a grammar.Registry to a rules.Registry.
type Engine struct {
	grammars *grammar.Registry
	catalog  *rules.Registry
}

func New(grammars *grammar.Registry, catalog *rules.Registry) *Engine {
	return &Engine{grammars: grammars, catalog: catalog}
}

// CategoryForRule looks up the category a catalog rule was registered
// under, so callers classifying a Violation can honor spec.md §4.9 rule 6
// (category-based classification) alongside message matching.
func (e *Engine) CategoryForRule(ruleID string) (domain.Category, bool) {
	rule, ok := e.catalog.GetRuleByID(ruleID)
	if !ok {
		return "", false
	}
	return rule.Category, true
}

// Analyze runs every applicable rule's query over source (identified by
// filename for violation reporting) and returns the matched, unsuppressed
// violations.
func (e *Engine) Analyze(source []byte, filename string, opts Options) Result {
	lang := opts.Language
	if lang == "" {
		resolved, ok := grammar.LanguageForFile(filename)
		if !ok {
			return Result{ASTSupported: false}
		}
		lang = resolved
	}

	parseStart := time.Now()
	tree, err := e.grammars.Parse(source, lang)
	parseMs := msSince(parseStart)
	if err != nil {
		return Result{Language: lang, ASTSupported: true, ParseTimeMs: parseMs, Error: err.Error()}
	}
	defer tree.Close()

	ruleSet := e.catalog.GetQueries(lang, opts.Categories, opts.RuleIDs)
	if len(ruleSet) == 0 {
		return Result{Language: lang, ASTSupported: true, ParseTimeMs: parseMs}
	}

	lines := strings.Split(string(source), "\n")
	var violations []domain.Violation
	queryStart := time.Now()
	for _, rule := range ruleSet {
		q, err := e.grammars.NewQuery(rule.PatternSource, lang)
		if err != nil {
			// A single bad query is logged upstream (rules.Registry.Validate)
			// and never aborts the scan of other rules.
			continue
		}
		violations = append(violations, e.runQuery(q, rule, tree, lines, filename)...)
		q.Close()
	}
	queryMs := msSince(queryStart)

	return Result{
		Violations:   violations,
		Language:     lang,
		ASTSupported: true,
		ParseTimeMs:  parseMs,
		QueryTimeMs:  queryMs,
		RulesChecked: len(ruleSet),
	}
}

func (e *Engine) runQuery(q *sitter.Query, rule domain.Rule, tree *grammar.Tree, lines []string, filename string) []domain.Violation {
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, tree.Root())

	var out []domain.Violation
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, tree.Source())
		if len(match.Captures) == 0 {
			continue
		}
		target := captureNode(q, match)
		if target == nil {
			continue
		}
		startRow := int(target.StartPoint().Row)
		if isSuppressed(lines, startRow) {
			continue
		}
		out = append(out, domain.Violation{
			RuleID:    rule.ID,
			File:      filename,
			Line:      startRow + 1,
			Column:    int(target.StartPoint().Column),
			EndLine:   int(target.EndPoint().Row) + 1,
			EndColumn: int(target.EndPoint().Column),
			Snippet:   Snippet(target.Content(tree.Source())),
			LineText:  strings.TrimSpace(lineAt(lines, startRow)),
			Engine:    domain.SourceAST,
			Severity:  rule.Severity,
			Message:   rule.Message,
		})
	}
	return out
}

// captureNode returns the node bound to @target, falling back to the
// match's first capture per spec.md §4.5.
func captureNode(q *sitter.Query, match *sitter.QueryMatch) *sitter.Node {
	if len(match.Captures) == 0 {
		return nil
	}
	for _, c := range match.Captures {
		if q.CaptureNameForId(c.Index) == "target" {
			return c.Node
		}
	}
	return match.Captures[0].Node
}

// isSuppressed checks line (0-indexed) and the immediately preceding line
// for any suppression marker.
func isSuppressed(lines []string, line int) bool {
	if matchesSuppression(lineAt(lines, line)) {
		return true
	}
	return matchesSuppression(lineAt(lines, line-1))
}

func lineAt(lines []string, i int) string {
	if i < 0 || i >= len(lines) {
		return ""
	}
	return lines[i]
}

func matchesSuppression(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range suppressMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Snippet trims s to at most maxSnippetLen runes, per spec.md §4.5.
func Snippet(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxSnippetLen {
		return s
	}
	return string(r[:maxSnippetLen])
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
