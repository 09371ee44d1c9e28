package pipeline

import (
	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
)

// Snapshot is the stage data the mappers read. Slices are owned by the
// snapshot; mappers never modify them.
type Snapshot struct {
	Issues           []github.Issue
	PullRequests     []github.PullRequest
	Assignments      []ledger.Assignment
	ForkPullRequests []github.PullRequest
	ReadyToSubmit    []ledger.ReadyToSubmit
	Submitted        []ledger.SubmittedPR
}
