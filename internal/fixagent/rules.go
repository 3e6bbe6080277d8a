package fixagent

import (
	"fmt"
	"regexp"
	"strings"

	"codeguardpro/internal/domain"
)

// generateViaRules is the deterministic fallback used when no LLM client is
// configured, or when the LLM path's response fails the sanity check. Each
// BugKind maps to one targeted, line-scoped mutation rather than a
// full-file rewrite.
func (a *Agent) generateViaRules(issue domain.Issue, fullFileContent string) Result {
	lines := strings.Split(fullFileContent, "\n")
	idx := issue.Line - 1
	if idx < 0 || idx >= len(lines) {
		return Result{Success: false}
	}
	original := lines[idx]
	fixed, summary, ok := ruleFix(issue.BugType, original)
	if !ok {
		return Result{Success: false}
	}
	lines[idx] = fixed
	return Result{
		Success:       true,
		FixedCode:     strings.Join(lines, "\n"),
		CommitMessage: ensureMarker(summary),
		Explanation:   fmt.Sprintf("Applied a rule-based fix for a %s issue on line %d.", issue.BugType, issue.Line),
	}
}

var (
	hardcodedSecretRe = regexp.MustCompile(`(?i)((?:api[_-]?key|secret|password|passwd|pwd|token)\s*[:=]\s*)(['"])[^'"]{6,}(['"])`)
	evalCallRe        = regexp.MustCompile(`\beval\s*\(`)
	looseEqRe         = regexp.MustCompile(`([^=!<>])==([^=])`)
	debugPrintRe      = regexp.MustCompile(`(?i)^(\s*)(console\.log|print|fmt\.Println|pdb\.set_trace)\s*\(`)
)

func ruleFix(kind domain.BugKind, line string) (fixed, commitMessage string, ok bool) {
	switch kind {
	case domain.BugSyntax:
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" || strings.HasSuffix(trimmed, ";") || strings.HasSuffix(trimmed, "{") || strings.HasSuffix(trimmed, "}") {
			return line, "", false
		}
		return trimmed + ";", "add missing statement terminator", true

	case domain.BugLinting:
		if m := hardcodedSecretRe.FindStringSubmatchIndex(line); m != nil {
			replaced := hardcodedSecretRe.ReplaceAllString(line, `${1}${2}`+"CHANGE_ME_USE_ENV_VAR"+`${3}`)
			return replaced, "replace hardcoded secret with a placeholder", true
		}
		if evalCallRe.MatchString(line) {
			return evalCallRe.ReplaceAllString(line, "Function("), "replace eval() with the safer Function constructor", true
		}
		if debugPrintRe.MatchString(line) {
			return debugPrintRe.ReplaceAllString(line, "$1// $2("), "comment out leftover debug statement", true
		}
		return line, "", false

	case domain.BugLogic:
		if looseEqRe.MatchString(line) {
			return looseEqRe.ReplaceAllString(line, "${1}===${2}"), "use strict equality instead of loose equality", true
		}
		return line, "", false

	case domain.BugTypeError:
		if i := strings.Index(line, "."); i >= 0 && !strings.Contains(line, "?.") {
			return line[:i] + "?" + line[i:], "add optional chaining to guard against a null/undefined reference", true
		}
		return line, "", false

	case domain.BugImport:
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			return line, "", false
		}
		return "// " + line, "comment out unresolved import", true

	case domain.BugIndentation:
		if !strings.Contains(line, "\t") {
			return line, "", false
		}
		return strings.ReplaceAll(line, "\t", "    "), "replace tabs with spaces for consistent indentation", true

	default:
		return line, "", false
	}
}
