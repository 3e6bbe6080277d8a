// Package prcreator opens the healing pull request and renders its body
// from the current HealSession state. The markdown-building style
// (grouping, status chips, a summary header) is adapted from the
// teacher's release-note renderer (internal/releaseparty/generate.go),
// repointed from "commits since a tag" to "fixes applied this session".
package prcreator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codeguardpro/internal/domain"
	"codeguardpro/internal/forge"
)

type Creator struct {
	client *forge.Client
}

func New(client *forge.Client) *Creator {
	return &Creator{client: client}
}

// CreatePR opens the healing PR from head to base. Called once, the first
// time a fix is successfully applied (spec.md §4.14 OPEN_PR).
func (c *Creator) CreatePR(ctx context.Context, head, base, title string, session *domain.HealSession) (forge.PRInfo, error) {
	body := RenderBody(session)
	return c.client.CreatePR(ctx, head, base, title, body)
}

// UpdatePRBody re-renders and pushes the PR body to reflect the session's
// latest issues/fixes/retry_count/ci_status.
func (c *Creator) UpdatePRBody(ctx context.Context, prNumber int, session *domain.HealSession) error {
	return c.client.UpdatePR(ctx, prNumber, RenderBody(session))
}

// RenderBody builds a markdown PR description: summary counts, a
// grouped-by-file fix list with status chips, and the CI timeline.
func RenderBody(s *domain.HealSession) string {
	var b strings.Builder

	applied, unfixable, skipped, failed := 0, 0, 0, 0
	for _, f := range s.Fixes {
		switch f.Status {
		case domain.FixApplied:
			applied++
		case domain.FixUnfixable:
			unfixable++
		case domain.FixSkipped:
			skipped++
		default:
			failed++
		}
	}

	b.WriteString("## CodeGuard Pro — automated fix summary\n\n")
	b.WriteString(fmt.Sprintf(
		"Found **%d** issue(s) across the scanned tree. %d fix(es) applied, %d unfixable, %d skipped, %d errored. Retry round **%d/%d**.\n\n",
		len(s.Issues), applied, unfixable, skipped, failed, s.RetryCount, domain.MaxRetries,
	))

	b.WriteString("## Fixes by file\n\n")
	byFile := groupFixesByFile(s.Fixes)
	if len(byFile) == 0 {
		b.WriteString("_No fixes applied yet._\n\n")
	} else {
		for _, file := range sortedKeys(byFile) {
			b.WriteString(fmt.Sprintf("### `%s`\n\n", file))
			for _, f := range byFile[file] {
				b.WriteString(fmt.Sprintf("- %s `%s` — %s\n", statusChip(f.Status), f.BugType, firstLine(f.CommitMessage)))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## CI timeline\n\n")
	if len(s.CITimeline) == 0 {
		b.WriteString("_No CI runs observed yet._\n\n")
	} else {
		for _, entry := range s.CITimeline {
			b.WriteString(fmt.Sprintf("- round %d — `%s` — %s\n", entry.Iteration, entry.CommitSHAsub, entry.Status))
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n_This PR is maintained by CodeGuard Pro's autonomous healing loop. It will keep pushing fixes until CI passes or the retry budget is exhausted._\n")
	return b.String()
}

func statusChip(status domain.FixStatus) string {
	switch status {
	case domain.FixApplied:
		return "✅"
	case domain.FixUnfixable:
		return "⛔"
	case domain.FixSkipped:
		return "⏭️"
	case domain.FixCommitFailed:
		return "⚠️"
	default:
		return "❌"
	}
}

func groupFixesByFile(fixes []domain.Fix) map[string][]domain.Fix {
	out := map[string][]domain.Fix{}
	for _, f := range fixes {
		out[f.File] = append(out[f.File], f)
	}
	return out
}

func sortedKeys(m map[string][]domain.Fix) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
