// Package orchestrator implements the Orchestrator FSM that drives one
// healing session end to end, per spec.md §4.14. It is the only component
// that mutates HealSession.Status/RetryCount; every other component
// receives the session by reference for read/append only.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"codeguardpro/internal/branchmgr"
	"codeguardpro/internal/ciagent"
	"codeguardpro/internal/domain"
	"codeguardpro/internal/fixagent"
	"codeguardpro/internal/prcreator"
)

const retryPause = 5 * time.Second

// Deps bundles the components the FSM drives. All are required except
// Logger, which defaults to slog.Default(), and Emit, which defaults to a
// no-op.
type Deps struct {
	Branches *branchmgr.Manager
	Fixes    *fixagent.Agent
	CI       *ciagent.Agent
	PRs      *prcreator.Creator
	Logger   *slog.Logger
	// Emit, if set, is called once per FSM node with that node's progress
	// event. The SSE gateway is the typical subscriber (spec.md §4.16).
	Emit func(domain.ProgressEvent)
}

// Orchestrator runs the healing FSM for one session.
type Orchestrator struct {
	deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Emit == nil {
		deps.Emit = func(domain.ProgressEvent) {}
	}
	return &Orchestrator{deps: deps}
}

// emit reports stage progress via deps.Emit, per spec.md §4.14's "each node
// emits at least one progress event {stage, timestamp, message}".
func (o *Orchestrator) emit(stage, message string) {
	o.deps.Emit(domain.ProgressEvent{Stage: stage, Timestamp: now(), Message: message})
}

// Run drives session from START through UPDATE_PR_AND_END, returning once
// the session reaches a terminal state. session.Issues must already carry
// the precomputed analysis results (RepoAnalyzer + TestRunner output).
func (o *Orchestrator) Run(ctx context.Context, session *domain.HealSession) error {
	session.StartTS = now()
	session.AppendLog("orchestrator: starting healing session")

	// ANALYZE
	o.emit("ANALYZE", fmt.Sprintf("analyzing %d issue(s)", len(session.Issues)))
	if len(session.Issues) == 0 {
		session.CIStatusValue = domain.CIPassed
		session.AppendLog("orchestrator: no issues found, nothing to heal")
		return o.updatePRAndEnd(ctx, session)
	}

	working := session.Issues
	for {
		o.emit("GENERATE_FIXES", fmt.Sprintf("generating fixes for %d issue(s)", len(working)))
		if err := o.generateFixes(ctx, session, working); err != nil {
			return err
		}
		o.emit("APPLY_COMMIT", "applying commits for generated fixes")
		if err := o.applyCommits(ctx, session); err != nil {
			return err
		}
		o.emit("OPEN_PR", "opening or updating healing pull request")
		opened, err := o.openPR(ctx, session)
		if err != nil {
			return err
		}
		if !opened {
			session.CIStatusValue = domain.CISkipped
			session.AppendLog("orchestrator: no fixes applied, skipping CI monitoring")
			return o.updatePRAndEnd(ctx, session)
		}

		o.emit("MONITOR_CI", "waiting for CI checks")
		status, nextIssues, err := o.monitorCI(ctx, session)
		if err != nil {
			return err
		}
		if status == domain.CIPassed || status == domain.CINoCI || status == domain.CISkipped {
			return o.updatePRAndEnd(ctx, session)
		}
		if session.RetryCount >= domain.MaxRetries {
			session.AppendLog("orchestrator: retry budget exhausted")
			return o.updatePRAndEnd(ctx, session)
		}
		working = nextIssues
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryPause):
		}
	}
}

// generateFixes groups issues by file and applies fixes sequentially to an
// evolving in-memory buffer per file, stashing the final buffer as
// pending_commit on the last applied fix for that file.
func (o *Orchestrator) generateFixes(ctx context.Context, session *domain.HealSession, issues []domain.Issue) error {
	byFile := map[string][]domain.Issue{}
	var order []string
	for _, issue := range issues {
		if _, seen := byFile[issue.File]; !seen {
			order = append(order, issue.File)
		}
		byFile[issue.File] = append(byFile[issue.File], issue)
	}
	sort.Strings(order)

	for _, file := range order {
		buffer, err := o.deps.Branches.GetFileContent(ctx, file, session.AIBranch)
		if err != nil {
			o.deps.Logger.Warn("orchestrator: skipping file, content fetch failed", "file", file, "error", err)
			continue
		}
		content := string(buffer)
		lastFix := -1

		for _, issue := range byFile[file] {
			result, err := o.deps.Fixes.GenerateFix(ctx, issue, content)
			fix := domain.Fix{File: file, Line: issue.Line, BugType: issue.BugType}
			if err != nil || !result.Success {
				fix.Status = domain.FixUnfixable
				fix.Explanation = "no automated fix available"
				session.Fixes = append(session.Fixes, fix)
				continue
			}
			content = result.FixedCode
			fix.Status = domain.FixApplied
			fix.CommitMessage = result.CommitMessage
			fix.Explanation = result.Explanation
			session.Fixes = append(session.Fixes, fix)
			lastFix = len(session.Fixes) - 1
		}
		if lastFix >= 0 {
			session.Fixes[lastFix].PendingCommit = &domain.PendingCommit{Content: content}
		}
	}
	return nil
}

// applyCommits commits every fix carrying a pending_commit buffer.
func (o *Orchestrator) applyCommits(ctx context.Context, session *domain.HealSession) error {
	for i := range session.Fixes {
		fix := &session.Fixes[i]
		if fix.PendingCommit == nil {
			continue
		}
		_, err := o.deps.Branches.CommitFile(ctx, session.AIBranch, fix.File, []byte(fix.PendingCommit.Content), fix.CommitMessage)
		if err != nil {
			o.deps.Logger.Error("orchestrator: commit failed", "file", fix.File, "error", err)
			fix.Status = domain.FixCommitFailed
			session.AppendLog(fmt.Sprintf("commit failed for %s: %v", fix.File, err))
		}
	}
	return nil
}

// openPR opens the healing PR the first time a fix has been applied.
// Returns false when nothing was ever applied (spec.md §4.14 OPEN_PR).
func (o *Orchestrator) openPR(ctx context.Context, session *domain.HealSession) (bool, error) {
	anyApplied := false
	for _, f := range session.Fixes {
		if f.Status == domain.FixApplied {
			anyApplied = true
			break
		}
	}
	if !anyApplied {
		return false, nil
	}
	if session.PRNumber != 0 {
		return true, nil
	}

	title := fmt.Sprintf("[AI-AGENT] CodeGuard Pro automated fixes for %s/%s", session.RepoOwner, session.RepoName)
	info, err := o.deps.PRs.CreatePR(ctx, session.AIBranch, session.DefaultBranch, title, session)
	if err != nil {
		return false, fmt.Errorf("orchestrator: open pr: %w", err)
	}
	session.PRNumber = info.Number
	session.PRURL = info.URL
	session.AppendLog(fmt.Sprintf("orchestrator: opened PR #%d", info.Number))
	return true, nil
}

// monitorCI polls CI for the branch tip and turns any failures back into a
// fresh issue set, per spec.md §4.14 MONITOR_CI.
func (o *Orchestrator) monitorCI(ctx context.Context, session *domain.HealSession) (domain.CIStatus, []domain.Issue, error) {
	sha, err := o.deps.Branches.GetLatestCommitSHA(ctx, session.AIBranch)
	if err != nil {
		return "", nil, fmt.Errorf("orchestrator: resolve branch tip: %w", err)
	}

	configured, err := o.deps.CI.HasCIConfigured(ctx, sha)
	if err != nil {
		return "", nil, fmt.Errorf("orchestrator: check ci configured: %w", err)
	}
	if !configured {
		session.CIStatusValue = domain.CINoCI
		session.CITimeline = append(session.CITimeline, domain.CITimelineEntry{
			Iteration: session.RetryCount, Timestamp: now(), Status: domain.CINoCI, CommitSHAsub: shortSHA(sha),
		})
		return domain.CINoCI, nil, nil
	}

	session.RetryCount++
	result, err := o.deps.CI.WaitForChecks(ctx, sha)
	if err != nil {
		return "", nil, fmt.Errorf("orchestrator: wait for checks: %w", err)
	}
	session.CIStatusValue = result.Status
	session.CITimeline = append(session.CITimeline, domain.CITimelineEntry{
		Iteration: session.RetryCount, Timestamp: now(), Status: result.Status, Checks: result.Checks, CommitSHAsub: shortSHA(sha),
	})

	if result.Status != domain.CIFailed {
		return result.Status, nil, nil
	}

	var nextIssues []domain.Issue
	for _, log := range result.FailureLogs {
		if log.File == "" {
			continue
		}
		nextIssues = append(nextIssues, domain.Issue{
			File: log.File, Line: log.Line, Description: log.Message,
			BugType: ciagent.ClassifyFailure(log.Message), Source: domain.SourceCI,
		})
	}
	if len(nextIssues) == 0 {
		// No file-attributed failure logs: fall back to re-trying the prior
		// working set rather than dropping the issue set entirely.
		nextIssues = session.Issues
	}
	session.Issues = nextIssues
	return domain.CIFailed, nextIssues, nil
}

func (o *Orchestrator) updatePRAndEnd(ctx context.Context, session *domain.HealSession) error {
	o.emit("UPDATE_PR_AND_END", "finalizing healing session")
	if session.PRNumber != 0 {
		if err := o.deps.PRs.UpdatePRBody(ctx, session.PRNumber, session); err != nil {
			o.deps.Logger.Error("orchestrator: failed to update pr body", "error", err)
		}
	}
	session.AppendLog("orchestrator: healing session complete")
	return nil
}

func shortSHA(sha string) string {
	if len(sha) <= 7 {
		return sha
	}
	return sha[:7]
}

// now is a seam for deterministic testing.
var now = time.Now
