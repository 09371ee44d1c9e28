package pipeline

import (
	"fmt"
	"sort"
	"time"

	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
)

const (
	maintenanceStages = 4
	ossStages         = 5
	approved          = "APPROVED"
)

// mapper turns a snapshot into the items of one family.
type mapper func(a *Aggregator, s Snapshot) []Item

// mappers is the fixed list of pipeline families.
var mappers = []mapper{
	maintenanceMapper,
	ossMapper,
}

// Aggregator derives the unified item list from stage snapshots.
type Aggregator struct {
	agentPattern string
}

// NewAggregator builds an aggregator that recognizes agent authors by pattern.
func NewAggregator(agentPattern string) *Aggregator {
	return &Aggregator{agentPattern: agentPattern}
}

// AgentPattern returns the pattern used to recognize agent identities.
func (a *Aggregator) AgentPattern() string {
	if a == nil || a.agentPattern == "" {
		return DefaultAgentPattern
	}
	return a.agentPattern
}

// Recompute runs every mapper and returns the items in display order.
func (a *Aggregator) Recompute(s Snapshot) []Item {
	var items []Item
	for _, m := range mappers {
		items = append(items, m(a, s)...)
	}
	Sort(items)
	return items
}

// Sort orders items by status rank, then most recently updated, then id.
func Sort(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Status.Rank(), items[j].Status.Rank()
		if ri != rj {
			return ri < rj
		}
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// FilterNeedsReview returns the items that belong in the review queue, in order.
func FilterNeedsReview(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.NeedsReview() {
			out = append(out, item)
		}
	}
	return out
}

// FilterFamily returns the items of one family, in order.
func FilterFamily(items []Item, family Family) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.Family == family {
			out = append(out, item)
		}
	}
	return out
}

func maintenanceMapper(a *Aggregator, s Snapshot) []Item {
	pattern := a.AgentPattern()
	agentRepos := make(map[string]bool)
	for _, pr := range s.PullRequests {
		if matchesAgent(pattern, pr.Author.Login) {
			agentRepos[pr.Repo] = true
		}
	}

	items := make([]Item, 0, len(s.Issues)+len(s.PullRequests))
	for _, issue := range s.Issues {
		status := StatusPending
		if agentRepos[issue.Repo] || hasAgentAssignee(pattern, issue.Assignees) {
			status = StatusProcessing
		}
		items = append(items, Item{
			ID:           IssueID(issue.Repo, issue.Number),
			Family:       FamilyMaintenance,
			Kind:         KindIssue,
			Repo:         issue.Repo,
			Identifier:   fmt.Sprintf("#%d", issue.Number),
			Title:        issue.Title,
			Number:       issue.Number,
			CurrentStage: 3,
			TotalStages:  maintenanceStages,
			Status:       status,
			CreatedAt:    issue.CreatedAt,
			UpdatedAt:    latest(issue.UpdatedAt, issue.CreatedAt),
			Data:         issue,
		})
	}

	for _, pr := range s.PullRequests {
		status := StatusProcessing
		switch {
		case pr.ReviewDecision == approved:
			status = StatusReady
		case ReadyForReview(pattern, pr.Author.Login, pr.IsDraft, pr.AgentCompleted):
			status = StatusWaitingForReview
		}
		items = append(items, Item{
			ID:           PullRequestID(pr.Repo, pr.Number),
			Family:       FamilyMaintenance,
			Kind:         KindPullRequest,
			Repo:         pr.Repo,
			Identifier:   fmt.Sprintf("PR #%d", pr.Number),
			Title:        pr.Title,
			Number:       pr.Number,
			CurrentStage: 4,
			TotalStages:  maintenanceStages,
			Status:       status,
			CreatedAt:    pr.CreatedAt,
			UpdatedAt:    latest(pr.UpdatedAt, pr.CreatedAt),
			Data:         pr,
		})
	}
	return items
}

func ossMapper(_ *Aggregator, s Snapshot) []Item {
	items := make([]Item, 0, len(s.Assignments)+len(s.ForkPullRequests)+len(s.ReadyToSubmit)+len(s.Submitted))

	for _, assignment := range s.Assignments {
		items = append(items, Item{
			ID:           AssignmentID(assignment.OriginSlug, assignment.IssueNumber),
			Family:       FamilyOSS,
			Kind:         KindAssignment,
			Repo:         assignment.OriginSlug,
			Ref:          assignment.Repo,
			Identifier:   fmt.Sprintf("#%d", assignment.IssueNumber),
			Title:        assignment.IssueTitle,
			Number:       assignment.IssueNumber,
			CurrentStage: 3,
			TotalStages:  ossStages,
			Status:       StatusProcessing,
			CreatedAt:    assignment.AssignedAt,
			UpdatedAt:    assignment.AssignedAt,
			Data:         assignment,
		})
	}

	for _, pr := range s.ForkPullRequests {
		status := StatusWaitingForReview
		if pr.ReviewDecision == approved {
			status = StatusReady
		}
		origin := pr.OriginSlug
		if origin == "" {
			origin = pr.Repo
		}
		items = append(items, Item{
			ID:           ForkPullRequestID(pr.Repo, pr.Number),
			Family:       FamilyOSS,
			Kind:         KindForkPullRequest,
			Repo:         origin,
			Ref:          pr.Repo,
			Identifier:   fmt.Sprintf("PR #%d", pr.Number),
			Title:        pr.Title,
			Number:       pr.Number,
			CurrentStage: 4,
			TotalStages:  ossStages,
			Status:       status,
			CreatedAt:    pr.CreatedAt,
			UpdatedAt:    latest(pr.UpdatedAt, pr.CreatedAt),
			Data:         pr,
		})
	}

	for _, ready := range s.ReadyToSubmit {
		items = append(items, Item{
			ID:           SubmitID(ready.OriginSlug, ready.Branch),
			Family:       FamilyOSS,
			Kind:         KindReadyToSubmit,
			Repo:         ready.OriginSlug,
			Ref:          ready.Repo,
			Identifier:   ready.Branch,
			Title:        ready.Title,
			CurrentStage: 5,
			TotalStages:  ossStages,
			Status:       StatusReady,
			CreatedAt:    ready.MergedAt,
			UpdatedAt:    ready.MergedAt,
			Data:         ready,
		})
	}

	for _, submitted := range s.Submitted {
		items = append(items, Item{
			ID:           SubmittedID(submitted.PRURL),
			Family:       FamilyOSS,
			Kind:         KindSubmitted,
			Repo:         submitted.OriginSlug,
			Identifier:   submittedIdentifier(submitted),
			Title:        submitted.Title,
			Number:       submitted.PRNumber,
			CurrentStage: 5,
			TotalStages:  ossStages,
			Status:       submittedStatus(submitted.State),
			CreatedAt:    submitted.SubmittedAt,
			UpdatedAt:    latestPtr(submitted.SubmittedAt, submitted.LastPolledAt),
			Data:         submitted,
		})
	}
	return items
}

func submittedStatus(state string) Status {
	switch state {
	case ledger.StateMerged:
		return StatusCompleted
	case ledger.StateClosed:
		return StatusFailed
	default:
		return StatusProcessing
	}
}

func submittedIdentifier(pr ledger.SubmittedPR) string {
	if pr.PRNumber > 0 {
		return fmt.Sprintf("PR #%d", pr.PRNumber)
	}
	return pr.PRURL
}

func hasAgentAssignee(pattern string, assignees []github.Actor) bool {
	for _, assignee := range assignees {
		if matchesAgent(pattern, assignee.Login) {
			return true
		}
	}
	return false
}

func latest(primary, fallback time.Time) time.Time {
	if primary.IsZero() {
		return fallback
	}
	return primary
}

func latestPtr(base time.Time, candidate *time.Time) time.Time {
	if candidate != nil && candidate.After(base) {
		return *candidate
	}
	return base
}
