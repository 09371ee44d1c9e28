package contrib

import (
	"context"
	"fmt"
	"strings"

	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
	"vibedispatch/internal/logging"
)

// ForkPullRequests lists open pull requests on every fork that has an
// assignment. Agent pull requests that just became ready trigger a one-time
// notification.
func (s *Service) ForkPullRequests(ctx context.Context) ([]github.PullRequest, error) {
	assignments, err := s.ledger.Assignments(ctx)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}
	targets := make([]github.ForkTarget, 0, len(assignments))
	for _, a := range assignments {
		targets = append(targets, github.ForkTarget{Repo: a.Repo, OriginSlug: a.OriginSlug})
	}
	prs, err := s.gh.AllForkPRs(ctx, targets)
	if err != nil {
		return nil, err
	}
	for _, pr := range prs {
		if pr.AgentCompleted == nil || !*pr.AgentCompleted || pr.IsDraft {
			continue
		}
		s.notifyOnce(ctx, fmt.Sprintf("fork-pr-ready:%s#%d", pr.Repo, pr.Number), func() error {
			return s.notifier.NotifyPRReadyForReview(ctx, pr.Repo, pr.Number, pr.Title)
		})
	}
	return prs, nil
}

// ApproveFork approves a pull request on the principal's fork of repo.
func (s *Service) ApproveFork(ctx context.Context, repo string, number int) error {
	slug, err := s.forkSlug(ctx, repo)
	if err != nil {
		return err
	}
	return s.gh.Approve(ctx, slug, number)
}

// MergeFork squash-merges a pull request on the fork and records its branch
// as ready to submit upstream. The branch is read before the merge and kept
// on the fork so it can serve as the upstream head.
func (s *Service) MergeFork(ctx context.Context, repo string, number int, originSlug string) (*ledger.ReadyToSubmit, error) {
	if strings.TrimSpace(repo) == "" || number <= 0 || strings.TrimSpace(originSlug) == "" {
		return nil, fmt.Errorf("merge fork pull request: repo, number, and origin are required")
	}
	slug, err := s.forkSlug(ctx, repo)
	if err != nil {
		return nil, err
	}
	info, err := s.gh.Branches(ctx, slug, number)
	if err != nil {
		s.warn("branch capture failed", "fork_branch_capture_failed", err,
			logging.String(logging.FieldRepo, slug),
			logging.String(logging.FieldImpact, "ready-to-submit record has no branch"))
		info = &github.BranchInfo{}
	}
	if err := s.gh.Merge(ctx, slug, number, github.MergeOptions{DeleteBranch: false}); err != nil {
		return nil, err
	}
	if info.HeadRefName == "" {
		return nil, fmt.Errorf("merged %s#%d but its head branch is unknown", slug, number)
	}
	ready := ledger.ReadyToSubmit{
		OriginSlug: originSlug,
		Repo:       repo,
		Branch:     info.HeadRefName,
		Title:      info.Title,
		BaseBranch: info.BaseRefName,
	}
	if err := s.ledger.SaveReadyToSubmit(ctx, ready); err != nil {
		return nil, err
	}
	if ready.BaseBranch == "" {
		ready.BaseBranch = "main"
	}
	return &ready, nil
}

// ReadyToSubmit lists fork branches waiting for upstream submission.
func (s *Service) ReadyToSubmit(ctx context.Context) ([]ledger.ReadyToSubmit, error) {
	return s.ledger.ReadyToSubmit(ctx)
}

func (s *Service) forkSlug(ctx context.Context, repo string) (string, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return "", fmt.Errorf("fork repository is required")
	}
	if strings.Contains(repo, "/") {
		return repo, nil
	}
	principal, err := s.gh.Owner(ctx)
	if err != nil {
		return "", err
	}
	return principal + "/" + repo, nil
}
