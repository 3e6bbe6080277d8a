package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"codeguardpro/internal/domain"
)

type Installation struct {
	ID             int64
	InstallationID int64
	AccountLogin   string
	AccountType    string
	CreatedAt      time.Time
}

// Project is a monitored repository. ConfigYAML holds the text of the
// repo's .codeguard.yaml override; the installation handler stores it
// empty, and inline analysis does not read it.
type Project struct {
	ID             int64
	InstallationID int64
	RepoFullName   string
	DefaultBranch  string
	ConfigYAML     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *Store) UpsertInstallation(ctx context.Context, installationID int64, accountLogin, accountType string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO installations (installation_id, account_login, account_type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(installation_id) DO UPDATE SET
			account_login=excluded.account_login,
			account_type=excluded.account_type
	`, installationID, accountLogin, accountType, now)
	return err
}

func (s *Store) DeleteInstallation(ctx context.Context, installationID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM installations WHERE installation_id = ?`, installationID)
	return err
}

func (s *Store) UpsertProject(ctx context.Context, p Project) (Project, error) {
	if p.InstallationID == 0 || p.RepoFullName == "" {
		return Project{}, fmt.Errorf("invalid project")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (
			installation_id, repo_full_name, default_branch, config_yaml, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(installation_id, repo_full_name) DO UPDATE SET
			default_branch=excluded.default_branch,
			config_yaml=excluded.config_yaml,
			updated_at=excluded.updated_at
	`, p.InstallationID, p.RepoFullName, p.DefaultBranch, p.ConfigYAML, now, now)
	if err != nil {
		return Project{}, err
	}
	return s.GetProject(ctx, p.InstallationID, p.RepoFullName)
}

func (s *Store) GetProject(ctx context.Context, installationID int64, repoFullName string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, installation_id, repo_full_name, default_branch, config_yaml, created_at, updated_at
		FROM projects
		WHERE installation_id = ? AND repo_full_name = ?
	`, installationID, repoFullName)
	var p Project
	var created, updated string
	if err := row.Scan(&p.ID, &p.InstallationID, &p.RepoFullName, &p.DefaultBranch, &p.ConfigYAML, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return Project{}, sql.ErrNoRows
		}
		return Project{}, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, created)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return p, nil
}

// CreateAnalysis records the start of an inline PR analysis run.
func (s *Store) CreateAnalysis(ctx context.Context, a domain.Analysis) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (project_id, commit_sha, pr_number, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ProjectID, a.CommitHash, a.PRNumber, a.Status, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) UpdateAnalysisStatus(ctx context.Context, analysisID int64, status domain.AnalysisStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE analyses SET status = ? WHERE id = ?`, status, analysisID)
	return err
}

// SaveViolations persists the violations found by one analysis run.
func (s *Store) SaveViolations(ctx context.Context, analysisID int64, violations []domain.Violation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO violations (analysis_id, rule_id, file, line, message)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, v := range violations {
		if _, err := stmt.ExecContext(ctx, analysisID, v.RuleID, v.File, v.Line, v.Message); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListViolations(ctx context.Context, analysisID int64) ([]domain.Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT analysis_id, rule_id, file, line, message FROM violations WHERE analysis_id = ? ORDER BY file, line
	`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Violation
	for rows.Next() {
		var v domain.Violation
		if err := rows.Scan(&v.AnalysisID, &v.RuleID, &v.File, &v.Line, &v.Message); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// HealSessionRow is one row of the heal_sessions table, a persisted
// snapshot of a HealSession. The SSE gateway and the heal-results API
// serve results from the in-memory ssegateway.ResultStore, not from here.
type HealSessionRow struct {
	ID             string
	ProjectID      int64
	InstallationID int64
	RepoFullName   string
	State          string
	RetryCount     int
	PRNumber       int
	PRURL          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *Store) CreateHealSession(ctx context.Context, h HealSessionRow) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heal_sessions (
			id, project_id, installation_id, repo_full_name, state, retry_count, pr_number, pr_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.ProjectID, h.InstallationID, h.RepoFullName, h.State, h.RetryCount, h.PRNumber, h.PRURL, now, now)
	return err
}

func (s *Store) UpdateHealSession(ctx context.Context, id string, state string, retryCount, prNumber int, prURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE heal_sessions SET state = ?, retry_count = ?, pr_number = ?, pr_url = ?, updated_at = ?
		WHERE id = ?
	`, state, retryCount, prNumber, prURL, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (s *Store) GetHealSession(ctx context.Context, id string) (HealSessionRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, installation_id, repo_full_name, state, retry_count, pr_number, pr_url, created_at, updated_at
		FROM heal_sessions WHERE id = ?
	`, id)
	var h HealSessionRow
	var created, updated string
	if err := row.Scan(&h.ID, &h.ProjectID, &h.InstallationID, &h.RepoFullName, &h.State, &h.RetryCount, &h.PRNumber, &h.PRURL, &created, &updated); err != nil {
		return HealSessionRow{}, err
	}
	h.CreatedAt, _ = time.Parse(time.RFC3339, created)
	h.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return h, nil
}

// AppendHealLog appends one append-only log line for a heal session to the
// heal_logs table.
func (s *Store) AppendHealLog(ctx context.Context, sessionID string, line string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heal_logs (session_id, line, created_at) VALUES (?, ?, ?)
	`, sessionID, line, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ListHealLogs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line FROM heal_logs WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

// AppendCITimelineEntry persists one CI poll outcome for a heal session.
func (s *Store) AppendCITimelineEntry(ctx context.Context, sessionID string, entry domain.CITimelineEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ci_timeline (session_id, iteration, status, payload, created_at) VALUES (?, ?, ?, ?, ?)
	`, sessionID, entry.Iteration, entry.Status, string(payload), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ListCITimeline(ctx context.Context, sessionID string) ([]domain.CITimelineEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM ci_timeline WHERE session_id = ? ORDER BY iteration ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CITimelineEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var entry domain.CITimelineEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// SaveFix records one fix attempt tied to a heal session.
func (s *Store) SaveFix(ctx context.Context, sessionID string, attempt int, f domain.Fix) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fixes (session_id, attempt, file, bug_type, status, commit_message, explanation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, attempt, f.File, f.BugType, f.Status, f.CommitMessage, f.Explanation, time.Now().UTC().Format(time.RFC3339))
	return err
}
