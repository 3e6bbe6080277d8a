// Package webhookintake routes verified GitHub webhook deliveries and runs
// the fast, regex-only inline PR analyzer, per spec.md §4.15. Grounded on
// the teacher's webhook dispatch switch (internal/api/server.go's
// handleGitHubWebhook), generalized from release-event handling to
// pull_request/installation/ping routing plus an inline analysis path.
package webhookintake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v66/github"

	"codeguardpro/internal/domain"
	"codeguardpro/internal/forge"
	"codeguardpro/internal/regexdetector"
	"codeguardpro/internal/repoconfig"
	"codeguardpro/internal/store"
)

// maxReviewComments caps inline review comments per spec.md §4.15/§5.
const maxReviewComments = 20
const maxSummaryComments = 10

// CommitStatusContext identifies CodeGuard Pro's inline check, per spec.md §6.3.
const CommitStatusContext = "CodeGuard Pro / Security Analysis"

var supportedExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".py": true, ".java": true, ".go": true, ".c": true,
}

// Intake dispatches webhook events and drives inline analysis.
type Intake struct {
	broker *forge.Broker
	store  *store.Store
	logger *slog.Logger
}

func New(broker *forge.Broker, st *store.Store, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{broker: broker, store: st, logger: logger}
}

// Handle routes one parsed webhook event by type, per spec.md §4.15.
func (in *Intake) Handle(ctx context.Context, event any) error {
	switch e := event.(type) {
	case *github.PullRequestEvent:
		return in.handlePullRequest(ctx, e)
	case *github.InstallationEvent:
		return in.handleInstallation(ctx, e)
	case *github.PingEvent:
		return nil
	default:
		return nil
	}
}

func (in *Intake) handleInstallation(ctx context.Context, e *github.InstallationEvent) error {
	action := e.GetAction()
	instID := e.GetInstallation().GetID()
	account := e.GetInstallation().GetAccount()

	switch action {
	case "created", "added":
		if instID == 0 {
			return nil
		}
		login, typ := "", ""
		if account != nil {
			login, typ = account.GetLogin(), account.GetType()
		}
		if err := in.store.UpsertInstallation(ctx, instID, login, typ); err != nil {
			return fmt.Errorf("webhookintake: upsert installation: %w", err)
		}
		// Idempotent per (installation id, repo full name): UpsertProject's
		// ON CONFLICT clause means handling the same payload twice leaves the
		// project set unchanged.
		for _, repo := range e.Repositories {
			_, err := in.store.UpsertProject(ctx, store.Project{
				InstallationID: instID,
				RepoFullName:   repo.GetFullName(),
				DefaultBranch:  "main",
				ConfigYAML:     "",
			})
			if err != nil {
				in.logger.Error("webhookintake: upsert project failed", "repo", repo.GetFullName(), "error", err)
			}
		}
		return nil
	case "removed", "deleted":
		in.logger.Info("webhookintake: installation removed", "installation_id", instID)
		return nil
	default:
		return nil
	}
}

func (in *Intake) handlePullRequest(ctx context.Context, e *github.PullRequestEvent) error {
	action := e.GetAction()
	if action != "opened" && action != "synchronize" && action != "reopened" {
		return nil
	}

	repo := e.GetRepo()
	pr := e.GetPullRequest()
	instID := e.GetInstallation().GetID()
	if repo == nil || pr == nil || instID == 0 {
		return nil
	}

	project, err := in.store.GetProject(ctx, instID, repo.GetFullName())
	projectID := project.ID
	if err != nil {
		projectID = 0
	}

	analysisID, err := in.store.CreateAnalysis(ctx, domain.Analysis{
		ProjectID: projectID, CommitHash: pr.GetHead().GetSHA(), PRNumber: pr.GetNumber(), Status: domain.AnalysisPending,
	})
	if err != nil {
		return fmt.Errorf("webhookintake: create analysis: %w", err)
	}

	client, err := in.broker.For(ctx, instID, repo.GetOwner().GetLogin(), repo.GetName())
	if err != nil {
		_ = in.store.UpdateAnalysisStatus(ctx, analysisID, domain.AnalysisFailure)
		return fmt.Errorf("webhookintake: forge client: %w", err)
	}

	go in.runInlineAnalysis(context.Background(), client, analysisID, pr.GetNumber(), pr.GetHead().GetSHA(), repoconfig.Default())
	return nil
}

// runInlineAnalysis implements spec.md §4.15's inline-analysis path: set
// pending status, scan every supported changed file with RegexDetector,
// cap findings at maxReviewComments, and post either a success comment or
// a review.
func (in *Intake) runInlineAnalysis(ctx context.Context, client *forge.Client, analysisID int64, prNumber int, headSHA string, cfg repoconfig.Config) {
	if err := client.CreateCommitStatus(ctx, headSHA, "pending", "Scanning changed files", CommitStatusContext, ""); err != nil {
		in.logger.Warn("webhookintake: set pending status failed", "error", err)
	}

	files, err := client.ListPRFiles(ctx, prNumber)
	if err != nil {
		in.finishFailed(ctx, client, analysisID, headSHA, err)
		return
	}

	var violations []domain.Issue
	for _, f := range files {
		if f.Status == "removed" || !hasSupportedExtension(f.Filename) || cfg.ExcludesPath(f.Filename) {
			continue
		}
		content, err := client.GetFileContent(ctx, f.Filename, headSHA)
		if err != nil {
			in.logger.Warn("webhookintake: fetch file content failed", "file", f.Filename, "error", err)
			continue
		}
		violations = append(violations, regexdetector.Scan(f.Filename, content.Content)...)
		if len(violations) >= maxReviewComments {
			violations = violations[:maxReviewComments]
			break
		}
	}

	persisted := make([]domain.Violation, 0, len(violations))
	for _, v := range violations {
		persisted = append(persisted, domain.Violation{
			RuleID: "regex", File: v.File, Line: v.Line, Message: v.Description, Severity: v.Severity, Engine: v.Source,
		})
	}
	if err := in.store.SaveViolations(ctx, analysisID, persisted); err != nil {
		in.logger.Error("webhookintake: save violations failed", "error", err)
	}

	if len(violations) == 0 {
		if err := client.CreateCommitStatus(ctx, headSHA, "success", "No issues found", CommitStatusContext, ""); err != nil {
			in.logger.Warn("webhookintake: set success status failed", "error", err)
		}
		if err := client.CreateIssueComment(ctx, prNumber, "CodeGuard Pro found no issues in this PR. ✅"); err != nil {
			in.logger.Warn("webhookintake: post success comment failed", "error", err)
		}
		_ = in.store.UpdateAnalysisStatus(ctx, analysisID, domain.AnalysisSuccess)
		return
	}

	description := fmt.Sprintf("%d issue(s) found", len(violations))
	if err := client.CreateCommitStatus(ctx, headSHA, "failure", description, CommitStatusContext, ""); err != nil {
		in.logger.Warn("webhookintake: set failure status failed", "error", err)
	}

	comments := make([]forge.ReviewComment, 0, len(violations))
	for _, v := range violations {
		comments = append(comments, forge.ReviewComment{Path: v.File, Line: v.Line, Body: v.Description})
	}
	if err := client.CreateReview(ctx, prNumber, headSHA, comments, "REQUEST_CHANGES"); err != nil {
		in.logger.Warn("webhookintake: create review failed, falling back to issue comment", "error", err)
		if err := client.CreateIssueComment(ctx, prNumber, summarize(violations)); err != nil {
			in.logger.Error("webhookintake: fallback issue comment failed", "error", err)
		}
	}
	_ = in.store.UpdateAnalysisStatus(ctx, analysisID, domain.AnalysisFailure)
}

func (in *Intake) finishFailed(ctx context.Context, client *forge.Client, analysisID int64, headSHA string, cause error) {
	in.logger.Error("webhookintake: inline analysis failed", "error", cause)
	_ = client.CreateCommitStatus(ctx, headSHA, "error", "Analysis failed", CommitStatusContext, "")
	_ = in.store.UpdateAnalysisStatus(ctx, analysisID, domain.AnalysisFailure)
}

func summarize(violations []domain.Issue) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("CodeGuard Pro found %d issue(s) in this PR:\n\n", len(violations)))
	shown := violations
	more := 0
	if len(shown) > maxSummaryComments {
		more = len(shown) - maxSummaryComments
		shown = shown[:maxSummaryComments]
	}
	for _, v := range shown {
		b.WriteString(fmt.Sprintf("- `%s:%d` — %s\n", v.File, v.Line, v.Description))
	}
	if more > 0 {
		b.WriteString(fmt.Sprintf("\n...and %d more.\n", more))
	}
	return b.String()
}

func hasSupportedExtension(filename string) bool {
	for ext := range supportedExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}
