package dispatch

import (
	"fmt"

	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
	"vibedispatch/internal/pipeline"
	"vibedispatch/internal/recon"
)

// Selection keys and log labels for each coordinator payload. They reuse the
// pipeline ids so review items and stage rows share one identity.

func repoName(r github.Repo) string { return r.Name }

func runName(r github.RepoRun) string { return r.Name }

func issueID(i github.Issue) string { return pipeline.IssueID(i.Repo, i.Number) }

func issueName(i github.Issue) string { return fmt.Sprintf("%s#%d", i.Repo, i.Number) }

func prID(pr github.PullRequest) string { return pipeline.PullRequestID(pr.Repo, pr.Number) }

func prName(pr github.PullRequest) string { return fmt.Sprintf("%s PR #%d", pr.Repo, pr.Number) }

func forkPRID(pr github.PullRequest) string { return pipeline.ForkPullRequestID(pr.Repo, pr.Number) }

func forkPRName(pr github.PullRequest) string {
	return fmt.Sprintf("%s PR #%d", pr.Repo, pr.Number)
}

func scoredID(i recon.ScoredIssue) string {
	if i.ID != "" {
		return i.ID
	}
	return recon.IssueID(i.Repo, i.Number)
}

func scoredName(i recon.ScoredIssue) string { return fmt.Sprintf("%s#%d", i.Repo, i.Number) }

func readyID(r ledger.ReadyToSubmit) string { return pipeline.SubmitID(r.OriginSlug, r.Branch) }

func readyName(r ledger.ReadyToSubmit) string { return r.OriginSlug + "@" + r.Branch }

func itemID(item pipeline.Item) string { return item.ID }

func itemName(item pipeline.Item) string {
	if item.Identifier != "" {
		return item.Repo + " " + item.Identifier
	}
	return item.Repo
}

func sameRepo(name string) func(github.Repo) bool {
	return func(r github.Repo) bool { return r.Name == name }
}

func samePR(id string, idFor func(github.PullRequest) string) func(github.PullRequest) bool {
	return func(pr github.PullRequest) bool { return idFor(pr) == id }
}
