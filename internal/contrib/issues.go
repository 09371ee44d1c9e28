package contrib

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
	"vibedispatch/internal/logging"
	"vibedispatch/internal/recon"
)

const fallbackIssueLimit = 50

// ScoredIssues returns candidate upstream issues, best first. Aggregator
// scores are used when available; otherwise the local watchlist is scored
// with the fallback heuristic. Issues that already have an assignment are
// dropped, and GO-tier issues trigger a one-time notification.
func (s *Service) ScoredIssues(ctx context.Context) ([]recon.ScoredIssue, error) {
	issues, err := s.recon.ScoredIssues(ctx, "")
	if err != nil {
		s.warn("aggregator scores unavailable", "recon_scores_failed", err,
			logging.String(logging.FieldImpact, "scoring the local watchlist heuristically"))
	}
	if len(issues) == 0 {
		issues, err = s.fallbackIssues(ctx)
		if err != nil {
			return nil, err
		}
	}

	assigned, err := s.assignedKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]recon.ScoredIssue, 0, len(issues))
	for _, issue := range issues {
		if _, ok := assigned[assignmentKey(issue.Repo, issue.Number)]; ok {
			continue
		}
		out = append(out, issue)
	}
	recon.SortByScore(out)
	s.notifyGoTier(ctx, out)
	return out, nil
}

func (s *Service) fallbackIssues(ctx context.Context) ([]recon.ScoredIssue, error) {
	watch, err := s.ledger.Watchlist(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	p := pool.NewWithResults[[]recon.ScoredIssue]().WithMaxGoroutines(s.concurrency())
	for _, entry := range watch {
		p.Go(func() []recon.ScoredIssue {
			origin := entry.OriginSlug()
			upstream, err := s.gh.UpstreamIssues(ctx, origin, fallbackIssueLimit)
			if err != nil {
				s.warn("upstream issues unavailable", "upstream_issues_failed", err, logging.String(logging.FieldRepo, origin))
				return nil
			}
			scored := make([]recon.ScoredIssue, 0, len(upstream))
			for _, issue := range upstream {
				labels := github.LabelNames(issue.Labels)
				score := recon.ScoreFallback(recon.FallbackInput{
					Assigned:  len(issue.Assignees) > 0,
					Labels:    labels,
					Comments:  issue.Comments,
					CreatedAt: issue.CreatedAt,
					UpdatedAt: issue.UpdatedAt,
				}, now)
				if score.Tier == recon.TierSkip {
					continue
				}
				scored = append(scored, recon.ScoredIssue{
					ID:               recon.IssueID(origin, issue.Number),
					Repo:             origin,
					Number:           issue.Number,
					Title:            issue.Title,
					URL:              issue.URL,
					Labels:           labels,
					Comments:         issue.Comments,
					CVS:              score.CVS,
					CVSTier:          score.Tier,
					DataCompleteness: score.DataCompleteness,
					CreatedAt:        issue.CreatedAt,
					UpdatedAt:        issue.UpdatedAt,
				})
			}
			return scored
		})
	}
	var out []recon.ScoredIssue
	for _, batch := range p.Wait() {
		out = append(out, batch...)
	}
	return out, nil
}

func (s *Service) notifyGoTier(ctx context.Context, issues []recon.ScoredIssue) {
	for _, issue := range issues {
		if issue.CVS < s.goTierThreshold {
			continue
		}
		key := "go-tier:" + issue.ID
		if issue.ID == "" {
			key = "go-tier:" + recon.IssueID(issue.Repo, issue.Number)
		}
		s.notifyOnce(ctx, key, func() error {
			return s.notifier.NotifyGoTierIssue(ctx, issue.Repo, issue.Number, issue.Title, issue.CVS)
		})
	}
}

// notifyOnce sends at most one notification per key. A failed send releases
// the key so the next pass retries.
func (s *Service) notifyOnce(ctx context.Context, key string, send func() error) {
	first, err := s.ledger.MarkNotified(ctx, key)
	if err != nil {
		s.warn("notification dedup failed", "notify_dedup_failed", err, logging.String("key", key))
		return
	}
	if !first {
		return
	}
	if err := send(); err != nil {
		s.warn("notification failed", "notify_failed", err,
			logging.String("key", key),
			logging.String(logging.FieldImpact, "notification will be retried on the next refresh"))
		if forgetErr := s.ledger.ForgetNotified(ctx, key); forgetErr != nil {
			s.warn("notification dedup release failed", "notify_dedup_failed", forgetErr, logging.String("key", key))
		}
	}
}

// SelectIssue marks an upstream issue as chosen for work and reports false
// when it was already selected.
func (s *Service) SelectIssue(ctx context.Context, issue recon.ScoredIssue) (bool, error) {
	if _, _, err := SplitSlug(issue.Repo); err != nil {
		return false, err
	}
	if issue.Number <= 0 {
		return false, fmt.Errorf("select issue: invalid issue number %d", issue.Number)
	}
	return s.ledger.SelectIssue(ctx, ledger.SelectedIssue{
		OriginSlug:  issue.Repo,
		IssueNumber: issue.Number,
		IssueTitle:  issue.Title,
		IssueURL:    issue.URL,
	})
}

// SelectedIssues lists the issues picked for work.
func (s *Service) SelectedIssues(ctx context.Context) ([]ledger.SelectedIssue, error) {
	return s.ledger.SelectedIssues(ctx)
}

func (s *Service) assignedKeys(ctx context.Context) (map[string]struct{}, error) {
	assignments, err := s.ledger.Assignments(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		keys[assignmentKey(a.OriginSlug, a.IssueNumber)] = struct{}{}
	}
	return keys, nil
}

func assignmentKey(originSlug string, number int) string {
	return fmt.Sprintf("%s#%d", strings.ToLower(originSlug), number)
}
