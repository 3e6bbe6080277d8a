// Package ciagent polls a commit's check runs and combined status until a
// terminal outcome or timeout, per spec.md §4.13. Grounded on the
// teacher's Broker polling idiom (bounded retry + context-aware sleep),
// generalized from a single API call into a multi-poll wait loop.
package ciagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codeguardpro/internal/domain"
	"codeguardpro/internal/forge"
)

const (
	pollInterval = 15 * time.Second
	waitTimeout  = 300 * time.Second
)

var inFlightStatuses = map[string]bool{"queued": true, "in_progress": true}
var failedConclusions = map[string]bool{"failure": true, "timed_out": true, "cancelled": true}

// Agent polls forge.Client for CI state on behalf of one repository.
type Agent struct {
	client *forge.Client
}

func New(client *forge.Client) *Agent {
	return &Agent{client: client}
}

// WaitForChecks polls every 15s until both the check-run list and the
// combined status settle, or until timeout elapses.
func (a *Agent) WaitForChecks(ctx context.Context, sha string) (domain.CIResult, error) {
	deadline := time.Now().Add(waitTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		checks, status, err := a.poll(ctx, sha)
		if err != nil {
			return domain.CIResult{}, fmt.Errorf("ciagent: poll: %w", err)
		}
		if terminal(checks, status) {
			result := summarize(checks, status)
			if result.Status == domain.CIFailed {
				result.FailureLogs = FailureLogsFrom(ctx, a.client, checks, status)
			}
			return result, nil
		}
		if time.Now().After(deadline) {
			return domain.CIResult{
				Status: domain.CIFailed,
				FailureLogs: []domain.FailureLog{
					{Source: "ciagent", Message: "timed out waiting for checks to complete", Level: "error"},
				},
			}, nil
		}
		select {
		case <-ctx.Done():
			return domain.CIResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// HasCIConfigured reports whether any check runs exist for the branch tip.
func (a *Agent) HasCIConfigured(ctx context.Context, sha string) (bool, error) {
	checks, err := a.client.ListChecksForRef(ctx, sha)
	if err != nil {
		return false, fmt.Errorf("ciagent: list checks: %w", err)
	}
	return len(checks) > 0, nil
}

func (a *Agent) poll(ctx context.Context, sha string) ([]forge.CheckRun, []forge.StatusContext, error) {
	checks, err := a.client.ListChecksForRef(ctx, sha)
	if err != nil {
		return nil, nil, err
	}
	statuses, err := a.client.GetCombinedStatusForRef(ctx, sha)
	if err != nil {
		return nil, nil, err
	}
	return checks, statuses, nil
}

func terminal(checks []forge.CheckRun, statuses []forge.StatusContext) bool {
	if len(checks) == 0 && len(statuses) == 0 {
		return false
	}
	for _, c := range checks {
		if inFlightStatuses[c.Status] {
			return false
		}
	}
	for _, s := range statuses {
		if s.State == "pending" {
			return false
		}
	}
	return true
}

func summarize(checks []forge.CheckRun, statuses []forge.StatusContext) domain.CIResult {
	result := domain.CIResult{Status: domain.CIPassed}
	for _, c := range checks {
		result.Checks = append(result.Checks, domain.CICheck{Name: c.Name, Status: c.Conclusion})
		if failedConclusions[c.Conclusion] {
			result.Status = domain.CIFailed
		}
	}
	for _, s := range statuses {
		result.Checks = append(result.Checks, domain.CICheck{Name: s.Context, Status: s.State})
		if s.State == "failure" || s.State == "error" {
			result.Status = domain.CIFailed
		}
	}
	return result
}

// FailureLogsFrom assembles failure_logs for a FAILED result: annotations
// per failed check when available, otherwise a single line naming the check
// and its conclusion (the check's output summary is not fetched), and one
// entry per failed status context.
func FailureLogsFrom(
	ctx context.Context,
	client *forge.Client,
	checks []forge.CheckRun,
	statuses []forge.StatusContext,
) []domain.FailureLog {
	var logs []domain.FailureLog
	for _, c := range checks {
		if c.Conclusion != "failure" && c.Conclusion != "timed_out" && c.Conclusion != "cancelled" {
			continue
		}
		anns, err := client.ListAnnotations(ctx, c.ID)
		if err == nil && len(anns) > 0 {
			for _, a := range anns {
				logs = append(logs, domain.FailureLog{
					Source: c.Name, File: a.Path, Line: a.StartLine, Message: a.Message, Level: a.Level,
				})
			}
			continue
		}
		logs = append(logs, domain.FailureLog{Source: c.Name, Message: fmt.Sprintf("check %q concluded %s", c.Name, c.Conclusion), Level: "error"})
	}
	for _, s := range statuses {
		if s.State != "failure" && s.State != "error" {
			continue
		}
		logs = append(logs, domain.FailureLog{Source: s.Context, Message: fmt.Sprintf("status context %q reported %s", s.Context, s.State), Level: "error"})
	}
	return logs
}

// ClassifyFailure derives a BugKind from a failure log's message, per
// spec.md §4.14's substring table used when MONITOR_CI turns failure_logs
// back into Issues.
func ClassifyFailure(msg string) domain.BugKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "syntax"):
		return domain.BugSyntax
	case strings.Contains(lower, "import"), strings.Contains(lower, "module"):
		return domain.BugImport
	case strings.Contains(lower, "type"), strings.Contains(lower, "undefined"):
		return domain.BugTypeError
	case strings.Contains(lower, "indent"), strings.Contains(lower, "whitespace"):
		return domain.BugIndentation
	case strings.Contains(lower, "lint"):
		return domain.BugLinting
	default:
		return domain.BugLogic
	}
}
