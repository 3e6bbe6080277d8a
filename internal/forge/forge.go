// Package forge is a thin typed wrapper over the parts of the GitHub REST
// API the healing and inline-analysis flows need: refs, blobs, trees,
// commits, contents, checks, statuses, PRs, reviews, and app installations.
// Every call attaches an installation token via the CredentialBroker and
// retries transient transport failures with exponential backoff, per
// spec.md §4.2.
package forge

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v66/github"

	"codeguardpro/internal/forgeerr"
	"codeguardpro/internal/githubapp"
)

// Client is a per-installation typed GitHub client.
type Client struct {
	gh             *github.Client
	owner, name    string
	installationID int64
}

// Broker mints installation-scoped *Client values.
type Broker struct {
	cred *githubapp.CredentialBroker
}

func NewBroker(cred *githubapp.CredentialBroker) *Broker {
	return &Broker{cred: cred}
}

// For returns a Client authenticated for the given repo's installation.
func (b *Broker) For(ctx context.Context, installationID int64, owner, name string) (*Client, error) {
	gh, err := b.cred.Client(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return &Client{gh: gh, owner: owner, name: name, installationID: installationID}, nil
}

// withRetry retries transient (5xx/transport) failures up to 3 times with
// exponential backoff, and classifies the remaining error into the
// spec.md §7 taxonomy.
func withRetry[T any](ctx context.Context, op string, fn func() (T, *github.Response, error)) (T, error) {
	var zero T
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	bo2 := backoff.WithContext(bo, ctx)

	var result T
	var lastErr error
	retryErr := backoff.Retry(func() error {
		r, resp, err := fn()
		if err == nil {
			result = r
			return nil
		}
		lastErr = classify(op, resp, err)
		var fe *forgeerr.Error
		if errors.As(lastErr, &fe) && fe.Kind == forgeerr.Upstream {
			return lastErr // retryable
		}
		return backoff.Permanent(lastErr)
	}, bo2)
	if retryErr != nil {
		if lastErr != nil {
			return zero, lastErr
		}
		return zero, retryErr
	}
	return result, nil
}

func classify(op string, resp *github.Response, err error) error {
	if resp == nil {
		return forgeerr.Wrap(forgeerr.Upstream, op, err)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return forgeerr.Wrap(forgeerr.NotFound, op, err)
	case http.StatusConflict:
		return forgeerr.Wrap(forgeerr.Conflict, op, err)
	case http.StatusUnauthorized:
		return forgeerr.Wrap(forgeerr.Unauthorized, op, err)
	case http.StatusForbidden:
		return forgeerr.Wrap(forgeerr.Unauthorized, op, err)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return forgeerr.Wrap(forgeerr.Validation, op, err)
	default:
		if resp.StatusCode >= 500 {
			return forgeerr.Wrap(forgeerr.Upstream, op, err)
		}
		return forgeerr.Wrap(forgeerr.Upstream, op, err)
	}
}

// RepoInfo is the subset of repository metadata the core consumes.
type RepoInfo struct {
	DefaultBranch string
	ID            int64
}

func (c *Client) GetRepo(ctx context.Context) (RepoInfo, error) {
	repo, err := withRetry(ctx, "get repo", func() (*github.Repository, *github.Response, error) {
		return c.gh.Repositories.Get(ctx, c.owner, c.name)
	})
	if err != nil {
		return RepoInfo{}, err
	}
	return RepoInfo{DefaultBranch: repo.GetDefaultBranch(), ID: repo.GetID()}, nil
}

// PRFile is one file changed in a pull request.
type PRFile struct {
	Filename string
	Status   string // added|modified|removed|renamed
}

func (c *Client) ListPRFiles(ctx context.Context, pr int) ([]PRFile, error) {
	files, err := withRetry(ctx, "list pr files", func() ([]*github.CommitFile, *github.Response, error) {
		return c.gh.PullRequests.ListFiles(ctx, c.owner, c.name, pr, &github.ListOptions{PerPage: 100})
	})
	if err != nil {
		return nil, err
	}
	out := make([]PRFile, 0, len(files))
	for _, f := range files {
		out = append(out, PRFile{Filename: f.GetFilename(), Status: f.GetStatus()})
	}
	return out, nil
}

// FileContent is a fetched blob's decoded content and blob sha.
type FileContent struct {
	Content []byte
	SHA     string
}

func (c *Client) GetFileContent(ctx context.Context, path, ref string) (FileContent, error) {
	file, err := withRetry(ctx, "get file content", func() (*github.RepositoryContent, *github.Response, error) {
		f, _, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.name, path, &github.RepositoryContentGetOptions{Ref: ref})
		return f, resp, err
	})
	if err != nil {
		return FileContent{}, err
	}
	content, err := file.GetContent()
	if err != nil {
		return FileContent{}, forgeerr.Wrap(forgeerr.Upstream, "decode file content", err)
	}
	return FileContent{Content: []byte(content), SHA: file.GetSHA()}, nil
}

type RefInfo struct {
	SHA string
}

func (c *Client) GetRef(ctx context.Context, ref string) (RefInfo, error) {
	r, err := withRetry(ctx, "get ref", func() (*github.Reference, *github.Response, error) {
		return c.gh.Git.GetRef(ctx, c.owner, c.name, ref)
	})
	if err != nil {
		return RefInfo{}, err
	}
	return RefInfo{SHA: r.GetObject().GetSHA()}, nil
}

func (c *Client) CreateRef(ctx context.Context, ref, sha string) error {
	_, err := withRetry(ctx, "create ref", func() (*github.Reference, *github.Response, error) {
		return c.gh.Git.CreateRef(ctx, c.owner, c.name, &github.Reference{
			Ref:    github.String(ref),
			Object: &github.GitObject{SHA: github.String(sha)},
		})
	})
	return err
}

func (c *Client) DeleteRef(ctx context.Context, ref string) error {
	_, err := withRetry(ctx, "delete ref", func() (*github.Response, *github.Response, error) {
		resp, err := c.gh.Git.DeleteRef(ctx, c.owner, c.name, ref)
		return resp, resp, err
	})
	return err
}

func (c *Client) UpdateRef(ctx context.Context, ref, sha string, force bool) error {
	_, err := withRetry(ctx, "update ref", func() (*github.Reference, *github.Response, error) {
		return c.gh.Git.UpdateRef(ctx, c.owner, c.name, &github.Reference{
			Ref:    github.String(ref),
			Object: &github.GitObject{SHA: github.String(sha)},
		}, force)
	})
	return err
}

type CommitInfo struct {
	SHA     string
	TreeSHA string
}

func (c *Client) GetCommit(ctx context.Context, sha string) (CommitInfo, error) {
	commit, err := withRetry(ctx, "get commit", func() (*github.Commit, *github.Response, error) {
		return c.gh.Git.GetCommit(ctx, c.owner, c.name, sha)
	})
	if err != nil {
		return CommitInfo{}, err
	}
	return CommitInfo{SHA: commit.GetSHA(), TreeSHA: commit.GetTree().GetSHA()}, nil
}

func (c *Client) CreateCommit(ctx context.Context, treeSHA string, parents []string, message string) (CommitInfo, error) {
	parentObjs := make([]*github.Commit, 0, len(parents))
	for _, p := range parents {
		parentObjs = append(parentObjs, &github.Commit{SHA: github.String(p)})
	}
	commit, err := withRetry(ctx, "create commit", func() (*github.Commit, *github.Response, error) {
		return c.gh.Git.CreateCommit(ctx, c.owner, c.name, &github.Commit{
			Message: github.String(message),
			Tree:    &github.Tree{SHA: github.String(treeSHA)},
			Parents: parentObjs,
		}, nil)
	})
	if err != nil {
		return CommitInfo{}, err
	}
	return CommitInfo{SHA: commit.GetSHA(), TreeSHA: commit.GetTree().GetSHA()}, nil
}

func (c *Client) CreateBlob(ctx context.Context, content []byte) (string, error) {
	blob, err := withRetry(ctx, "create blob", func() (*github.Blob, *github.Response, error) {
		return c.gh.Git.CreateBlob(ctx, c.owner, c.name, &github.Blob{
			Content:  github.String(base64.StdEncoding.EncodeToString(content)),
			Encoding: github.String("base64"),
		})
	})
	if err != nil {
		return "", err
	}
	return blob.GetSHA(), nil
}

// TreeEntry is one file to place into a new tree, relative to baseTreeSHA.
type TreeEntry struct {
	Path string
	Mode string // "100644" for regular files
	SHA  string
}

func (c *Client) CreateTree(ctx context.Context, baseTreeSHA string, entries []TreeEntry) (string, error) {
	ghEntries := make([]*github.TreeEntry, 0, len(entries))
	for _, e := range entries {
		mode := e.Mode
		if mode == "" {
			mode = "100644"
		}
		ghEntries = append(ghEntries, &github.TreeEntry{
			Path: github.String(e.Path),
			Mode: github.String(mode),
			Type: github.String("blob"),
			SHA:  github.String(e.SHA),
		})
	}
	tree, err := withRetry(ctx, "create tree", func() (*github.Tree, *github.Response, error) {
		return c.gh.Git.CreateTree(ctx, c.owner, c.name, baseTreeSHA, ghEntries)
	})
	if err != nil {
		return "", err
	}
	return tree.GetSHA(), nil
}

// CreateOrUpdateFile commits a single file directly via the contents API,
// used when a single-file commit is sufficient (spec.md §4.2).
func (c *Client) CreateOrUpdateFile(ctx context.Context, path string, content []byte, branch, message string, priorSHA string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	}
	if priorSHA != "" {
		opts.SHA = github.String(priorSHA)
	}
	result, err := withRetry(ctx, "create or update file", func() (*github.RepositoryContentResponse, *github.Response, error) {
		if priorSHA == "" {
			return c.gh.Repositories.CreateFile(ctx, c.owner, c.name, path, opts)
		}
		return c.gh.Repositories.UpdateFile(ctx, c.owner, c.name, path, opts)
	})
	if err != nil {
		return "", err
	}
	return result.GetCommit().GetSHA(), nil
}

func (c *Client) CreateCommitStatus(ctx context.Context, sha, state, description, context_, targetURL string) error {
	status := &github.RepoStatus{
		State:       github.String(state),
		Description: github.String(description),
		Context:     github.String(context_),
	}
	if targetURL != "" {
		status.TargetURL = github.String(targetURL)
	}
	_, err := withRetry(ctx, "create commit status", func() (*github.RepoStatus, *github.Response, error) {
		return c.gh.Repositories.CreateStatus(ctx, c.owner, c.name, sha, status)
	})
	return err
}

type PRInfo struct {
	Number int
	URL    string
}

func (c *Client) CreatePR(ctx context.Context, head, base, title, body string) (PRInfo, error) {
	pr, err := withRetry(ctx, "create pr", func() (*github.PullRequest, *github.Response, error) {
		return c.gh.PullRequests.Create(ctx, c.owner, c.name, &github.NewPullRequest{
			Title: github.String(title),
			Head:  github.String(head),
			Base:  github.String(base),
			Body:  github.String(body),
		})
	})
	if err != nil {
		return PRInfo{}, err
	}
	return PRInfo{Number: pr.GetNumber(), URL: pr.GetHTMLURL()}, nil
}

func (c *Client) UpdatePR(ctx context.Context, number int, body string) error {
	_, err := withRetry(ctx, "update pr", func() (*github.PullRequest, *github.Response, error) {
		return c.gh.PullRequests.Edit(ctx, c.owner, c.name, number, &github.PullRequest{Body: github.String(body)})
	})
	return err
}

// ReviewComment is one inline comment to attach to a pull request review.
type ReviewComment struct {
	Path string
	Line int
	Body string
}

func (c *Client) CreateReview(ctx context.Context, pr int, commitSHA string, comments []ReviewComment, event string) error {
	ghComments := make([]*github.DraftReviewComment, 0, len(comments))
	for _, cm := range comments {
		line := cm.Line
		ghComments = append(ghComments, &github.DraftReviewComment{
			Path: github.String(cm.Path),
			Line: &line,
			Body: github.String(cm.Body),
		})
	}
	_, err := withRetry(ctx, "create review", func() (*github.PullRequestReview, *github.Response, error) {
		return c.gh.PullRequests.CreateReview(ctx, c.owner, c.name, pr, &github.PullRequestReviewRequest{
			CommitID: github.String(commitSHA),
			Event:    github.String(event),
			Comments: ghComments,
		})
	})
	return err
}

func (c *Client) CreateIssueComment(ctx context.Context, pr int, body string) error {
	_, err := withRetry(ctx, "create issue comment", func() (*github.IssueComment, *github.Response, error) {
		return c.gh.Issues.CreateComment(ctx, c.owner, c.name, pr, &github.IssueComment{Body: github.String(body)})
	})
	return err
}

// CheckRun is a simplified view of a GitHub check run.
type CheckRun struct {
	ID     int64
	Name   string
	Status string
	Conclusion string
}

func (c *Client) ListChecksForRef(ctx context.Context, sha string) ([]CheckRun, error) {
	result, err := withRetry(ctx, "list check runs", func() (*github.ListCheckRunsResults, *github.Response, error) {
		return c.gh.Checks.ListCheckRunsForRef(ctx, c.owner, c.name, sha, nil)
	})
	if err != nil {
		return nil, err
	}
	out := make([]CheckRun, 0, len(result.CheckRuns))
	for _, r := range result.CheckRuns {
		out = append(out, CheckRun{ID: r.GetID(), Name: r.GetName(), Status: r.GetStatus(), Conclusion: r.GetConclusion()})
	}
	return out, nil
}

// Annotation is one file/line diagnostic attached to a check run.
type Annotation struct {
	Path      string
	StartLine int
	Message   string
	Level     string
}

func (c *Client) ListAnnotations(ctx context.Context, checkRunID int64) ([]Annotation, error) {
	anns, err := withRetry(ctx, "list annotations", func() ([]*github.CheckRunAnnotation, *github.Response, error) {
		return c.gh.Checks.ListCheckRunAnnotations(ctx, c.owner, c.name, checkRunID, nil)
	})
	if err != nil {
		return nil, err
	}
	out := make([]Annotation, 0, len(anns))
	for _, a := range anns {
		out = append(out, Annotation{Path: a.GetPath(), StartLine: a.GetStartLine(), Message: a.GetMessage(), Level: a.GetAnnotationLevel()})
	}
	return out, nil
}

// StatusContext is one context entry of a combined commit status.
type StatusContext struct {
	Context string
	State   string
}

func (c *Client) GetCombinedStatusForRef(ctx context.Context, sha string) ([]StatusContext, error) {
	combined, err := withRetry(ctx, "combined status", func() (*github.CombinedStatus, *github.Response, error) {
		return c.gh.Repositories.GetCombinedStatus(ctx, c.owner, c.name, sha, nil)
	})
	if err != nil {
		return nil, err
	}
	out := make([]StatusContext, 0, len(combined.Statuses))
	for _, s := range combined.Statuses {
		out = append(out, StatusContext{Context: s.GetContext(), State: s.GetState()})
	}
	return out, nil
}

// ListInstallation resolves the installation id for owner/name. Used by the
// /heal runner, which is handed a repository URL rather than a webhook
// payload carrying an installation id.
func (b *Broker) ListInstallation(ctx context.Context, appClient *github.Client, owner, name string) (int64, error) {
	inst, err := withRetry(ctx, "get repo installation", func() (*github.Installation, *github.Response, error) {
		return appClient.Apps.FindRepositoryInstallation(ctx, owner, name)
	})
	if err != nil {
		return 0, err
	}
	return inst.GetID(), nil
}
