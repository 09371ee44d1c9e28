package contrib

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vibedispatch/internal/ledger"
	"vibedispatch/internal/logging"
	"vibedispatch/internal/recon"
)

// ErrForkTimeout reports that a new fork never became visible.
var ErrForkTimeout = errors.New("fork creation timed out")

// AssignRequest names the upstream issue to hand to the agent.
type AssignRequest struct {
	OriginSlug string
	Number     int
	Title      string
	URL        string
}

// AssignResult describes the fork context issue.
type AssignResult struct {
	ForkIssueURL    string
	ForkIssueNumber int
	AlreadyAssigned bool
}

// ForkAssign forks the upstream repository when needed, opens a context
// issue on the fork, and assigns the agent to it. An issue that already has
// an assignment is returned unchanged.
func (s *Service) ForkAssign(ctx context.Context, req AssignRequest) (*AssignResult, error) {
	owner, repo, err := SplitSlug(req.OriginSlug)
	if err != nil {
		return nil, err
	}
	if req.Number <= 0 || strings.TrimSpace(req.Title) == "" {
		return nil, errors.New("fork and assign: issue number and title are required")
	}
	origin := owner + "/" + repo
	logger := s.logger.With(logging.String(logging.FieldRepo, origin), logging.Int("issue", req.Number))

	existing, err := s.ledger.FindAssignment(ctx, origin, req.Number)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &AssignResult{
			ForkIssueURL:    existing.ForkIssueURL,
			ForkIssueNumber: existing.ForkIssueNumber,
			AlreadyAssigned: true,
		}, nil
	}

	principal, err := s.gh.Owner(ctx)
	if err != nil {
		return nil, err
	}
	exists, err := s.gh.ForkExists(ctx, repo)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.gh.Fork(ctx, origin); err != nil {
			return nil, fmt.Errorf("failed to fork: %w", err)
		}
		logger.Info("fork requested")
	}
	ready, err := s.gh.WaitForFork(ctx, repo, s.forkWaitTimeout(), s.forkPollInterval())
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, ErrForkTimeout
	}
	forkSlug := principal + "/" + repo
	if err := s.gh.SyncFork(ctx, repo); err != nil {
		s.warn("fork sync failed", "fork_sync_failed", err,
			logging.String(logging.FieldRepo, forkSlug),
			logging.String(logging.FieldImpact, "agent works from a possibly stale fork"))
	}

	body := RenderAgentContext(s.agentContext(ctx, req, origin))
	url, number, err := s.gh.CreateIssue(ctx, forkSlug, ForkIssueTitle(origin, req.Number, req.Title), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	if err := s.gh.AssignAgent(ctx, forkSlug, number); err != nil {
		s.warn("agent assignment failed", "assign_agent_failed", err,
			logging.String(logging.FieldRepo, forkSlug),
			logging.String(logging.FieldErrorHint, "assign the agent on the fork issue manually"))
	}

	if err := s.ledger.SaveAssignment(ctx, ledger.Assignment{
		OriginSlug:      origin,
		Repo:            repo,
		IssueNumber:     req.Number,
		IssueTitle:      req.Title,
		ForkIssueNumber: number,
		ForkIssueURL:    url,
	}); err != nil {
		return nil, err
	}

	if err := s.recon.Claim(ctx, origin, recon.IssueID(origin, req.Number), principal, url); err != nil && !errors.Is(err, recon.ErrNotConfigured) {
		s.warn("aggregator claim failed", "recon_claim_failed", err, logging.String(logging.FieldRepo, origin))
	}
	logger.Info("fork issue assigned", logging.String("fork_issue_url", url))
	return &AssignResult{ForkIssueURL: url, ForkIssueNumber: number}, nil
}

func (s *Service) agentContext(ctx context.Context, req AssignRequest, origin string) AgentContext {
	in := AgentContext{
		OriginSlug:      origin,
		Number:          req.Number,
		Title:           req.Title,
		URL:             req.URL,
		MaxContributing: s.settings.ContributingMaxChars,
	}
	if in.MaxContributing <= 0 {
		in.MaxContributing = 3000
	}
	if issue, err := s.gh.UpstreamIssue(ctx, origin, req.Number); err == nil {
		in.Body = issue.Body
		if in.URL == "" {
			in.URL = issue.URL
		}
	} else {
		s.warn("upstream issue body unavailable", "upstream_issue_failed", err, logging.String(logging.FieldRepo, origin))
	}
	dossier, err := s.recon.Dossier(ctx, origin)
	if err != nil {
		s.warn("dossier unavailable", "recon_dossier_failed", err, logging.String(logging.FieldRepo, origin))
	}
	in.Dossier = dossier
	if dossier == nil || strings.TrimSpace(dossier.ContributionRules) == "" {
		if text, err := s.gh.Contributing(ctx, origin); err == nil {
			in.Contributing = text
		}
	}
	return in
}

// Release drops the assignment of an upstream issue and withdraws the
// aggregator claim. The fork issue itself is left in place.
func (s *Service) Release(ctx context.Context, originSlug string, number int) (bool, error) {
	removed, err := s.ledger.RemoveAssignment(ctx, originSlug, number)
	if err != nil {
		return false, err
	}
	if err := s.recon.Unclaim(ctx, originSlug, recon.IssueID(originSlug, number)); err != nil && !errors.Is(err, recon.ErrNotConfigured) {
		s.warn("aggregator unclaim failed", "recon_unclaim_failed", err, logging.String(logging.FieldRepo, originSlug))
	}
	return removed, nil
}

// Assignments lists the fork context issues handed to the agent.
func (s *Service) Assignments(ctx context.Context) ([]ledger.Assignment, error) {
	return s.ledger.Assignments(ctx)
}

func (s *Service) forkWaitTimeout() time.Duration {
	if s.settings.ForkWaitTimeout > 0 {
		return time.Duration(s.settings.ForkWaitTimeout) * time.Second
	}
	return 60 * time.Second
}

func (s *Service) forkPollInterval() time.Duration {
	if s.settings.ForkPollInterval > 0 {
		return time.Duration(s.settings.ForkPollInterval) * time.Second
	}
	return 3 * time.Second
}
