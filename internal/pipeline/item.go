package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Family groups items by the pipeline they belong to.
type Family string

const (
	FamilyMaintenance Family = "maintenance"
	FamilyOSS         Family = "oss"
)

// Kind identifies the underlying record type of an item.
type Kind string

const (
	KindIssue           Kind = "issue"
	KindPullRequest     Kind = "pull_request"
	KindAssignment      Kind = "assignment"
	KindForkPullRequest Kind = "fork_pull_request"
	KindReadyToSubmit   Kind = "ready_to_submit"
	KindSubmitted       Kind = "submitted"
)

// Status is the derived lifecycle state of an item.
type Status string

const (
	StatusPending          Status = "pending"
	StatusProcessing       Status = "processing"
	StatusWaitingForReview Status = "waiting_for_review"
	StatusReady            Status = "ready"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// Rank orders statuses for display: items needing a human come first.
func (s Status) Rank() int {
	switch s {
	case StatusWaitingForReview:
		return 0
	case StatusReady:
		return 1
	case StatusProcessing:
		return 2
	case StatusPending:
		return 3
	case StatusCompleted:
		return 4
	case StatusFailed:
		return 5
	default:
		return 6
	}
}

// Item is the uniform view of one record flowing through a pipeline.
//
// Repo is the repository the item belongs to: the repository name for
// maintenance items and the upstream owner/repo for OSS items. Ref names the
// repository the natural key lives in when it differs from Repo, as for fork
// pull requests. Number is the issue or pull request number, zero when the
// item has none. Data holds the underlying record by value.
type Item struct {
	ID           string
	Family       Family
	Kind         Kind
	Repo         string
	Ref          string
	Identifier   string
	Title        string
	Number       int
	CurrentStage int
	TotalStages  int
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Data         any
}

// NeedsReview reports whether the item belongs in the review queue.
func (i Item) NeedsReview() bool {
	if i.Number <= 0 {
		return false
	}
	return i.Status == StatusWaitingForReview || i.Status == StatusReady
}

// RepoRef returns the repository holding the item's natural key.
func (i Item) RepoRef() string {
	if i.Ref != "" {
		return i.Ref
	}
	return i.Repo
}

// QualifiedRef returns RepoRef qualified with principal when it carries no owner.
func (i Item) QualifiedRef(principal string) string {
	ref := i.RepoRef()
	if strings.Contains(ref, "/") || principal == "" {
		return ref
	}
	return principal + "/" + ref
}

// IssueID builds the id of a maintenance issue.
func IssueID(repo string, number int) string {
	return fmt.Sprintf("maintenance:issue:%s#%d", repo, number)
}

// PullRequestID builds the id of a maintenance pull request.
func PullRequestID(repo string, number int) string {
	return fmt.Sprintf("maintenance:pr:%s#%d", repo, number)
}

// AssignmentID builds the id of an OSS fork assignment.
func AssignmentID(originSlug string, issueNumber int) string {
	return fmt.Sprintf("oss:assignment:%s#%d", originSlug, issueNumber)
}

// ForkPullRequestID builds the id of a pull request on the principal's fork.
func ForkPullRequestID(forkRepo string, number int) string {
	return fmt.Sprintf("oss:fork-pr:%s#%d", forkRepo, number)
}

// SubmitID builds the id of a branch ready for upstream submission.
func SubmitID(originSlug, branch string) string {
	return fmt.Sprintf("oss:submit:%s@%s", originSlug, branch)
}

// SubmittedID builds the id of a submitted upstream pull request.
func SubmittedID(prURL string) string {
	return "oss:submitted:" + prURL
}

// ReadyForReview reports whether a pull request awaits a human. Agent-authored
// pull requests are ready only once the agent has signalled completion; any
// other author is ready when the pull request is not a draft.
func ReadyForReview(agentPattern, author string, draft bool, agentCompleted *bool) bool {
	if matchesAgent(agentPattern, author) {
		return agentCompleted != nil && *agentCompleted
	}
	return !draft
}

func matchesAgent(pattern, login string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		pattern = DefaultAgentPattern
	}
	return strings.Contains(strings.ToLower(login), pattern)
}

// DefaultAgentPattern is used when no agent pattern is configured.
const DefaultAgentPattern = "copilot"
