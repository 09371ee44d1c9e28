package github

import (
	"strings"
	"time"
)

// Label is a GitHub issue or pull request label.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Actor is a GitHub user reference.
type Actor struct {
	Login string `json:"login"`
}

// Repo is a repository owned by the principal.
type Repo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

// WorkflowRun is one run of a GitHub Actions workflow.
type WorkflowRun struct {
	DatabaseID   int64     `json:"databaseId"`
	Status       string    `json:"status"`
	Conclusion   string    `json:"conclusion"`
	WorkflowName string    `json:"workflowName"`
	DisplayTitle string    `json:"displayTitle"`
	HeadBranch   string    `json:"headBranch"`
	CreatedAt    time.Time `json:"createdAt"`
	URL          string    `json:"url"`
}

// RepoRun is a repository that has the check installed, with its latest run.
type RepoRun struct {
	Repo
	LastRun             *WorkflowRun `json:"lastRun"`
	CommitsSinceLastRun int          `json:"commitsSinceLastRun"`
}

// Issue is an open issue raised by the check workflow.
type Issue struct {
	Repo      string    `json:"repo"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Labels    []Label   `json:"labels"`
	Assignees []Actor   `json:"assignees"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PullRequest is an open pull request. For fork pull requests Repo names the
// fork repository and OriginSlug the upstream owner/repo.
type PullRequest struct {
	Repo           string    `json:"repo"`
	OriginSlug     string    `json:"originSlug,omitempty"`
	Number         int       `json:"number"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Author         Actor     `json:"author"`
	HeadRefName    string    `json:"headRefName"`
	BaseRefName    string    `json:"baseRefName"`
	IsDraft        bool      `json:"isDraft"`
	ReviewDecision string    `json:"reviewDecision"`
	Labels         []Label   `json:"labels"`
	Additions      int       `json:"additions"`
	Deletions      int       `json:"deletions"`
	ChangedFiles   int       `json:"changedFiles"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	AgentCompleted *bool     `json:"agentCompleted"`
}

// PRFile is one changed file in a pull request.
type PRFile struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// PRDetail is the heavy review payload: metadata, changed files, and diff.
type PRDetail struct {
	PullRequest
	Body      string   `json:"body"`
	State     string   `json:"state"`
	Files     []PRFile `json:"files"`
	Assignees []Actor  `json:"assignees"`
	Diff      string   `json:"diff"`
}

// PRState is the upstream state of a submitted pull request.
type PRState struct {
	State          string     `json:"state"`
	ReviewDecision string     `json:"reviewDecision"`
	MergedAt       *time.Time `json:"mergedAt"`
	ClosedAt       *time.Time `json:"closedAt"`
}

// RepoMeta is the lightweight enrichment shown for watched targets.
type RepoMeta struct {
	Stars           int    `json:"stars"`
	Language        string `json:"language"`
	License         string `json:"license"`
	OpenIssueCount  int    `json:"openIssueCount"`
	HasContributing bool   `json:"hasContributing"`
}

// UpstreamIssue is an issue on a watched upstream repository.
type UpstreamIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Body      string    `json:"body"`
	Labels    []Label   `json:"labels"`
	Assignees []Actor   `json:"assignees"`
	Comments  int       `json:"comments"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasLabel reports whether labels contain name, ignoring case.
func HasLabel(labels []Label, name string) bool {
	for _, label := range labels {
		if strings.EqualFold(strings.TrimSpace(label.Name), name) {
			return true
		}
	}
	return false
}

// LabelNames returns the label names in order.
func LabelNames(labels []Label) []string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.Name)
	}
	return names
}

// SeverityScore ranks check issues by severity label. Lower is more severe.
func SeverityScore(labels []Label) int {
	score := 3
	for _, label := range labels {
		name := strings.ToLower(label.Name)
		switch {
		case strings.Contains(name, "severity:critical"):
			return 0
		case strings.Contains(name, "severity:high"):
			score = min(score, 1)
		case strings.Contains(name, "severity:medium"):
			score = min(score, 2)
		}
	}
	return score
}

// MatchesAgent reports whether login contains pattern, ignoring case.
func MatchesAgent(pattern, login string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	return strings.Contains(strings.ToLower(login), pattern)
}

// HasAgentAssignee reports whether any assignee matches the agent pattern.
func HasAgentAssignee(pattern string, assignees []Actor) bool {
	for _, assignee := range assignees {
		if MatchesAgent(pattern, assignee.Login) {
			return true
		}
	}
	return false
}
