// Package branchmgr creates and advances the healing branch: ref
// create/reset, single-file commits via the contents API, and batched
// multi-file commits via the tree/blob APIs. Generalizes the teacher's
// internal/githubops (EnsureBranch/UpsertFile/BuildBranchName) to the
// operations spec.md §4.11 names.
package branchmgr

import (
	"context"
	"fmt"
	"strings"

	"codeguardpro/internal/forge"
	"codeguardpro/internal/forgeerr"
)

// Manager operates against one repository's branch namespace.
type Manager struct {
	client *forge.Client
}

func New(client *forge.Client) *Manager {
	return &Manager{client: client}
}

// CreateBranch points refs/heads/name at refs/heads/base's tip, deleting
// and recreating the ref if it already exists so the branch always starts
// reset to base (spec.md §4.11 edge case 8). Returns base's sha.
func (m *Manager) CreateBranch(ctx context.Context, name, base string) (string, error) {
	baseRef, err := m.client.GetRef(ctx, "heads/"+base)
	if err != nil {
		return "", fmt.Errorf("resolve base branch %s: %w", base, err)
	}
	if _, err := m.client.GetRef(ctx, "heads/"+name); err == nil {
		if err := m.client.DeleteRef(ctx, "heads/"+name); err != nil {
			return "", fmt.Errorf("reset existing branch %s: %w", name, err)
		}
	}
	if err := m.client.CreateRef(ctx, "refs/heads/"+name, baseRef.SHA); err != nil {
		return "", err
	}
	return baseRef.SHA, nil
}

// CommitFile writes a single file to branch via the contents API and
// returns the new commit sha.
func (m *Manager) CommitFile(ctx context.Context, branch, path string, content []byte, message string) (string, error) {
	var priorSHA string
	existing, err := m.client.GetFileContent(ctx, path, branch)
	if err == nil {
		priorSHA = existing.SHA
	} else if fe, ok := forgeerr.As(err); !ok || fe.Kind != forgeerr.NotFound {
		return "", err
	}
	return m.client.CreateOrUpdateFile(ctx, path, content, branch, message, priorSHA)
}

// FileWrite is one file to include in a CommitMultipleFiles batch.
type FileWrite struct {
	Path    string
	Content []byte
}

// CommitMultipleFiles builds one blob per file, a tree layered on top of
// the branch tip's tree, and a single commit with the tip as parent, then
// fast-forwards heads/branch to it. Returns the new commit sha.
func (m *Manager) CommitMultipleFiles(ctx context.Context, branch string, files []FileWrite, message string) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("branchmgr: commitMultipleFiles requires at least one file")
	}
	tipRef, err := m.client.GetRef(ctx, "heads/"+branch)
	if err != nil {
		return "", err
	}
	tipCommit, err := m.client.GetCommit(ctx, tipRef.SHA)
	if err != nil {
		return "", err
	}

	entries := make([]forge.TreeEntry, 0, len(files))
	for _, f := range files {
		sha, err := m.client.CreateBlob(ctx, f.Content)
		if err != nil {
			return "", fmt.Errorf("create blob for %s: %w", f.Path, err)
		}
		entries = append(entries, forge.TreeEntry{Path: f.Path, Mode: "100644", SHA: sha})
	}
	treeSHA, err := m.client.CreateTree(ctx, tipCommit.TreeSHA, entries)
	if err != nil {
		return "", err
	}
	commit, err := m.client.CreateCommit(ctx, treeSHA, []string{tipCommit.SHA}, message)
	if err != nil {
		return "", err
	}
	if err := m.client.UpdateRef(ctx, "heads/"+branch, commit.SHA, false); err != nil {
		return "", err
	}
	return commit.SHA, nil
}

func (m *Manager) GetLatestCommitSHA(ctx context.Context, branch string) (string, error) {
	ref, err := m.client.GetRef(ctx, "heads/"+branch)
	if err != nil {
		return "", err
	}
	return ref.SHA, nil
}

func (m *Manager) GetFileContent(ctx context.Context, path, branch string) ([]byte, error) {
	f, err := m.client.GetFileContent(ctx, path, branch)
	if err != nil {
		return nil, err
	}
	return f.Content, nil
}

// BuildBranchName implements spec.md §6.3's deterministic healing branch
// name: sanitize(team) + "_" + sanitize(leader) + "_AI_Fix". Must produce
// byte-identical output to the client-side preview, so it touches nothing
// but the two input strings.
func BuildBranchName(team, leader string) string {
	return sanitize(team) + "_" + sanitize(leader) + "_AI_Fix"
}

// sanitize uppercases, drops every character outside [A-Z0-9 ], collapses
// whitespace runs to a single underscore, and trims, per spec.md §6.3.
func sanitize(value string) string {
	upper := strings.ToUpper(value)
	var kept strings.Builder
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' {
			kept.WriteRune(r)
		}
	}
	fields := strings.Fields(kept.String())
	return strings.Join(fields, "_")
}
