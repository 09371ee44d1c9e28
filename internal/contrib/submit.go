package contrib

import (
	"context"
	"fmt"
	"strings"

	"vibedispatch/internal/ledger"
	"vibedispatch/internal/logging"
)

const changesRequested = "CHANGES_REQUESTED"

// SubmitRequest opens an upstream pull request from a fork branch. Body
// defaults to UpstreamPRBody.
type SubmitRequest struct {
	OriginSlug string
	Repo       string
	Branch     string
	Title      string
	Body       string
	BaseBranch string
}

// SubmitRequestFor builds a request from a ready-to-submit record.
func SubmitRequestFor(ready ledger.ReadyToSubmit) SubmitRequest {
	return SubmitRequest{
		OriginSlug: ready.OriginSlug,
		Repo:       ready.Repo,
		Branch:     ready.Branch,
		Title:      ready.Title,
		BaseBranch: ready.BaseBranch,
	}
}

// Submit opens the upstream pull request, records it for polling, and drops
// the ready-to-submit record.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*ledger.SubmittedPR, error) {
	if strings.TrimSpace(req.OriginSlug) == "" || strings.TrimSpace(req.Branch) == "" || strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("submit upstream: origin, branch, and title are required")
	}
	principal, err := s.gh.Owner(ctx)
	if err != nil {
		return nil, err
	}
	body := req.Body
	if strings.TrimSpace(body) == "" {
		if _, _, err := SplitSlug(req.OriginSlug); err == nil {
			body = UpstreamPRBody(req.OriginSlug, s.issueNumberFor(ctx, req), req.Title, req.Branch)
		} else {
			body = "Fixes issue in " + req.OriginSlug
		}
	}
	base := req.BaseBranch
	if base == "" {
		base = "main"
	}
	url, err := s.gh.CreatePR(ctx, req.OriginSlug, principal+":"+req.Branch, base, req.Title, body)
	if err != nil {
		return nil, err
	}
	submitted, err := s.ledger.SaveSubmittedPR(ctx, req.OriginSlug, url, req.Title)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.RemoveReadyToSubmit(ctx, req.OriginSlug, req.Branch); err != nil {
		s.warn("ready record cleanup failed", "ready_cleanup_failed", err, logging.String(logging.FieldRepo, req.OriginSlug))
	}
	s.logger.Info("submitted upstream", logging.String(logging.FieldRepo, req.OriginSlug), logging.String("pr_url", url))
	return submitted, nil
}

// issueNumberFor finds the upstream issue behind a fork branch when exactly
// one assignment exists for the fork.
func (s *Service) issueNumberFor(ctx context.Context, req SubmitRequest) int {
	assignments, err := s.ledger.Assignments(ctx)
	if err != nil {
		return 0
	}
	number := 0
	for _, a := range assignments {
		if a.OriginSlug != req.OriginSlug || (req.Repo != "" && a.Repo != req.Repo) {
			continue
		}
		if number != 0 {
			return 0
		}
		number = a.IssueNumber
	}
	return number
}

// Submitted lists the upstream pull requests being tracked.
func (s *Service) Submitted(ctx context.Context) ([]ledger.SubmittedPR, error) {
	return s.ledger.SubmittedPRs(ctx)
}

// PollResult summarizes one polling pass.
type PollResult struct {
	Checked  int
	Changed  int
	Merged   []string
	Feedback []string
	Failed   map[string]string
}

// PollSubmitted refreshes every open submitted pull request. A transition
// into merged sends the merged notification; a new non-empty review
// decision sends the feedback notification.
func (s *Service) PollSubmitted(ctx context.Context) (PollResult, []ledger.SubmittedPR, error) {
	var result PollResult
	prs, err := s.ledger.SubmittedPRs(ctx)
	if err != nil {
		return result, nil, err
	}
	for i := range prs {
		pr := &prs[i]
		if pr.State == ledger.StateMerged || pr.State == ledger.StateClosed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, prs, err
		}
		result.Checked++
		state, err := s.gh.PRState(ctx, pr.PRURL)
		if err != nil {
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}
			result.Failed[pr.PRURL] = err.Error()
			s.warn("submitted pull request poll failed", "poll_failed", err, logging.String("pr_url", pr.PRURL))
			continue
		}

		now := s.now().UTC()
		previousState, previousDecision := pr.State, pr.ReviewDecision
		pr.State = state.State
		pr.ReviewDecision = state.ReviewDecision
		pr.MergedAt = state.MergedAt
		pr.ClosedAt = state.ClosedAt
		pr.LastPolledAt = &now
		if err := s.ledger.UpdateSubmittedPR(ctx, *pr); err != nil {
			return result, prs, err
		}
		if previousState != pr.State || previousDecision != pr.ReviewDecision {
			result.Changed++
		}

		if pr.State == ledger.StateMerged && previousState != ledger.StateMerged {
			result.Merged = append(result.Merged, pr.PRURL)
			if err := s.notifier.NotifyUpstreamMerged(ctx, pr.OriginSlug, pr.PRURL, pr.Title); err != nil {
				s.warn("merged notification failed", "notify_failed", err, logging.String("pr_url", pr.PRURL))
			}
		}
		if pr.ReviewDecision != "" && pr.ReviewDecision != previousDecision {
			result.Feedback = append(result.Feedback, pr.PRURL)
			if err := s.notifier.NotifyUpstreamFeedback(ctx, pr.OriginSlug, pr.PRURL, pr.ReviewDecision); err != nil {
				s.warn("feedback notification failed", "notify_failed", err, logging.String("pr_url", pr.PRURL))
			}
		}
	}
	return result, prs, nil
}

// NeedsAttention reports whether a tracked pull request has requested changes.
func NeedsAttention(pr ledger.SubmittedPR) bool {
	return pr.State == ledger.StateOpen && pr.ReviewDecision == changesRequested
}
