package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SelectIssue marks an upstream issue as selected for work. It reports false
// when the issue was already selected.
func (s *Store) SelectIssue(ctx context.Context, issue SelectedIssue) (bool, error) {
	if strings.TrimSpace(issue.OriginSlug) == "" || issue.IssueNumber <= 0 {
		return false, errors.New("select issue: origin slug and issue number are required")
	}
	res, err := s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO selected_issues (origin_slug, issue_number, issue_title, issue_url, selected_at)
         VALUES (?, ?, ?, ?, ?)`,
		issue.OriginSlug, issue.IssueNumber, nullableString(issue.IssueTitle), nullableString(issue.IssueURL), s.timestamp())
	if err != nil {
		return false, fmt.Errorf("select issue %s#%d: %w", issue.OriginSlug, issue.IssueNumber, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// SelectedIssues lists selected issues, oldest first.
func (s *Store) SelectedIssues(ctx context.Context) ([]SelectedIssue, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT origin_slug, issue_number, issue_title, issue_url, selected_at
         FROM selected_issues ORDER BY selected_at, origin_slug, issue_number`)
	if err != nil {
		return nil, fmt.Errorf("query selected issues: %w", err)
	}
	defer rows.Close()

	var out []SelectedIssue
	for rows.Next() {
		var (
			issue      SelectedIssue
			title, url sql.NullString
			selectedAt string
		)
		if err := rows.Scan(&issue.OriginSlug, &issue.IssueNumber, &title, &url, &selectedAt); err != nil {
			return nil, fmt.Errorf("scan selected issue: %w", err)
		}
		issue.IssueTitle = title.String
		issue.IssueURL = url.String
		issue.SelectedAt = mustParseTime(selectedAt)
		out = append(out, issue)
	}
	return out, rows.Err()
}

// SaveAssignment records a fork context issue assigned to the agent.
func (s *Store) SaveAssignment(ctx context.Context, a Assignment) error {
	if strings.TrimSpace(a.OriginSlug) == "" || a.IssueNumber <= 0 {
		return errors.New("save assignment: origin slug and issue number are required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO assignments (origin_slug, repo, issue_number, issue_title, fork_issue_number, fork_issue_url, assigned_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(origin_slug, issue_number) DO UPDATE SET
            repo = excluded.repo,
            issue_title = excluded.issue_title,
            fork_issue_number = excluded.fork_issue_number,
            fork_issue_url = excluded.fork_issue_url`,
		a.OriginSlug, a.Repo, a.IssueNumber, nullableString(a.IssueTitle), a.ForkIssueNumber, a.ForkIssueURL, s.timestamp())
	if err != nil {
		return fmt.Errorf("save assignment %s#%d: %w", a.OriginSlug, a.IssueNumber, err)
	}
	return nil
}

// Assignments lists recorded assignments, newest first.
func (s *Store) Assignments(ctx context.Context) ([]Assignment, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT origin_slug, repo, issue_number, issue_title, fork_issue_number, fork_issue_url, assigned_at
         FROM assignments ORDER BY assigned_at DESC, origin_slug, issue_number`)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var (
			a          Assignment
			title      sql.NullString
			assignedAt string
		)
		if err := rows.Scan(&a.OriginSlug, &a.Repo, &a.IssueNumber, &title, &a.ForkIssueNumber, &a.ForkIssueURL, &assignedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.IssueTitle = title.String
		a.AssignedAt = mustParseTime(assignedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindAssignment returns the assignment for an upstream issue, or nil.
func (s *Store) FindAssignment(ctx context.Context, originSlug string, issueNumber int) (*Assignment, error) {
	all, err := s.Assignments(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].OriginSlug == originSlug && all[i].IssueNumber == issueNumber {
			return &all[i], nil
		}
	}
	return nil, nil
}

// RemoveAssignment deletes the assignment for an upstream issue.
func (s *Store) RemoveAssignment(ctx context.Context, originSlug string, issueNumber int) (bool, error) {
	res, err := s.execWithRetry(ctx,
		"DELETE FROM assignments WHERE origin_slug = ? AND issue_number = ?", originSlug, issueNumber)
	if err != nil {
		return false, fmt.Errorf("remove assignment %s#%d: %w", originSlug, issueNumber, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// SaveReadyToSubmit records a fork branch that is ready to go upstream.
func (s *Store) SaveReadyToSubmit(ctx context.Context, r ReadyToSubmit) error {
	if strings.TrimSpace(r.OriginSlug) == "" || strings.TrimSpace(r.Branch) == "" {
		return errors.New("save ready to submit: origin slug and branch are required")
	}
	base := strings.TrimSpace(r.BaseBranch)
	if base == "" {
		base = "main"
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO ready_to_submit (origin_slug, repo, branch, title, base_branch, merged_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(origin_slug, branch) DO UPDATE SET
            repo = excluded.repo,
            title = excluded.title,
            base_branch = excluded.base_branch,
            merged_at = excluded.merged_at`,
		r.OriginSlug, r.Repo, r.Branch, nullableString(r.Title), base, s.timestamp())
	if err != nil {
		return fmt.Errorf("save ready to submit %s@%s: %w", r.OriginSlug, r.Branch, err)
	}
	return nil
}

// ReadyToSubmit lists branches waiting for upstream submission, newest first.
func (s *Store) ReadyToSubmit(ctx context.Context) ([]ReadyToSubmit, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT origin_slug, repo, branch, title, base_branch, merged_at
         FROM ready_to_submit ORDER BY merged_at DESC, origin_slug, branch`)
	if err != nil {
		return nil, fmt.Errorf("query ready to submit: %w", err)
	}
	defer rows.Close()

	var out []ReadyToSubmit
	for rows.Next() {
		var (
			r        ReadyToSubmit
			title    sql.NullString
			mergedAt string
		)
		if err := rows.Scan(&r.OriginSlug, &r.Repo, &r.Branch, &title, &r.BaseBranch, &mergedAt); err != nil {
			return nil, fmt.Errorf("scan ready to submit: %w", err)
		}
		r.Title = title.String
		r.MergedAt = mustParseTime(mergedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RemoveReadyToSubmit deletes the ready record for originSlug@branch.
func (s *Store) RemoveReadyToSubmit(ctx context.Context, originSlug, branch string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		"DELETE FROM ready_to_submit WHERE origin_slug = ? AND branch = ?", originSlug, branch)
	if err != nil {
		return false, fmt.Errorf("remove ready to submit %s@%s: %w", originSlug, branch, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// SaveSubmittedPR records a newly opened upstream pull request in the open state.
func (s *Store) SaveSubmittedPR(ctx context.Context, originSlug, prURL, title string) (*SubmittedPR, error) {
	prURL = strings.TrimSpace(prURL)
	if prURL == "" {
		return nil, errors.New("save submitted pr: url is required")
	}
	submittedAt := s.now().UTC()
	record := &SubmittedPR{
		OriginSlug:  originSlug,
		PRURL:       prURL,
		PRNumber:    PRNumberFromURL(prURL),
		Title:       title,
		State:       StateOpen,
		SubmittedAt: submittedAt,
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO submitted_prs (pr_url, origin_slug, pr_number, title, state, submitted_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(pr_url) DO UPDATE SET title = excluded.title`,
		record.PRURL, record.OriginSlug, nullableInt(record.PRNumber), nullableString(title), record.State, formatTime(submittedAt))
	if err != nil {
		return nil, fmt.Errorf("save submitted pr %s: %w", prURL, err)
	}
	return record, nil
}

// UpdateSubmittedPR persists polled state for an existing record.
func (s *Store) UpdateSubmittedPR(ctx context.Context, pr SubmittedPR) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE submitted_prs SET state = ?, review_decision = ?, merged_at = ?, closed_at = ?, last_polled_at = ?
         WHERE pr_url = ?`,
		pr.State, nullableString(pr.ReviewDecision), nullableTime(pr.MergedAt), nullableTime(pr.ClosedAt),
		nullableTime(pr.LastPolledAt), pr.PRURL)
	if err != nil {
		return fmt.Errorf("update submitted pr %s: %w", pr.PRURL, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("update submitted pr %s: not found", pr.PRURL)
	}
	return nil
}

// SubmittedPRs lists upstream pull requests in submission order.
func (s *Store) SubmittedPRs(ctx context.Context) ([]SubmittedPR, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT pr_url, origin_slug, pr_number, title, state, review_decision, merged_at, closed_at, last_polled_at, submitted_at
         FROM submitted_prs ORDER BY submitted_at, pr_url`)
	if err != nil {
		return nil, fmt.Errorf("query submitted prs: %w", err)
	}
	defer rows.Close()

	var out []SubmittedPR
	for rows.Next() {
		var (
			pr                 SubmittedPR
			number             sql.NullInt64
			title, decision    sql.NullString
			mergedAt, closedAt sql.NullString
			polledAt           sql.NullString
			submittedAt        string
		)
		if err := rows.Scan(&pr.PRURL, &pr.OriginSlug, &number, &title, &pr.State, &decision,
			&mergedAt, &closedAt, &polledAt, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan submitted pr: %w", err)
		}
		pr.PRNumber = int(number.Int64)
		pr.Title = title.String
		pr.ReviewDecision = decision.String
		pr.MergedAt = parseNullTime(mergedAt)
		pr.ClosedAt = parseNullTime(closedAt)
		pr.LastPolledAt = parseNullTime(polledAt)
		pr.SubmittedAt = mustParseTime(submittedAt)
		out = append(out, pr)
	}
	return out, rows.Err()
}
