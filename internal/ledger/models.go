package ledger

import (
	"strconv"
	"strings"
	"time"
)

// Submitted pull request states tracked by the poller.
const (
	StateOpen   = "open"
	StateMerged = "merged"
	StateClosed = "closed"
)

// WatchEntry is one repository on the local watchlist.
type WatchEntry struct {
	Owner   string
	Repo    string
	Slug    string
	AddedAt time.Time
}

// OriginSlug returns the owner/repo form used by gh.
func (w WatchEntry) OriginSlug() string {
	return w.Owner + "/" + w.Repo
}

// SelectedIssue is an upstream issue the user picked for work.
type SelectedIssue struct {
	OriginSlug  string
	IssueNumber int
	IssueTitle  string
	IssueURL    string
	SelectedAt  time.Time
}

// Assignment records a context issue created on the fork and assigned to the agent.
type Assignment struct {
	OriginSlug      string
	Repo            string
	IssueNumber     int
	IssueTitle      string
	ForkIssueNumber int
	ForkIssueURL    string
	AssignedAt      time.Time
}

// ReadyToSubmit is a fork branch merged locally and waiting to go upstream.
type ReadyToSubmit struct {
	OriginSlug string
	Repo       string
	Branch     string
	Title      string
	BaseBranch string
	MergedAt   time.Time
}

// SubmittedPR tracks a pull request opened against the upstream repository.
// PRNumber is zero when it could not be parsed from the URL.
type SubmittedPR struct {
	OriginSlug     string
	PRURL          string
	PRNumber       int
	Title          string
	State          string
	ReviewDecision string
	MergedAt       *time.Time
	ClosedAt       *time.Time
	LastPolledAt   *time.Time
	SubmittedAt    time.Time
}

// CacheStats summarizes the response cache.
type CacheStats struct {
	Entries  int
	Expired  int
	Bytes    int64
	OldestAt *time.Time
}

// HyphenSlug converts owner/repo into the owner-repo form used by the aggregator.
func HyphenSlug(originSlug string) string {
	return strings.ReplaceAll(strings.TrimSpace(originSlug), "/", "-")
}

// PRNumberFromURL extracts the trailing pull request number from a GitHub URL.
func PRNumberFromURL(rawURL string) int {
	trimmed := strings.TrimRight(strings.TrimSpace(rawURL), "/")
	idx := strings.LastIndex(trimmed, "/pull/")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(trimmed[idx+len("/pull/"):])
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
