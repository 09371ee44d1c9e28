package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vibedispatch/internal/batch"
	"vibedispatch/internal/dispatch"
	"vibedispatch/internal/github"
	"vibedispatch/internal/stagestore"
)

const approvedDecision = "APPROVED"

// severityNames is indexed by github.SeverityScore.
var severityNames = []string{"Critical", "High", "Medium", "Low"}

func newMaintenanceCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newBatchCommand(ctx, batchSpec[github.Repo]{
			use:         "install [REPO...]",
			short:       "Install the check workflow into repositories",
			stage:       dispatch.StageNeedsInstall,
			ref:         func(r github.Repo) string { return r.Name },
			slot:        func(s *dispatch.Session) *stagestore.Slot[github.Repo] { return s.NeedsInstall },
			coordinator: func(s *dispatch.Session) *batch.Coordinator[github.Repo] { return s.Install },
			headers:     []string{"Private", "Description"},
			row: func(r github.Repo) []string {
				return []string{yesNo(r.IsPrivate), truncate(r.Description, 60)}
			},
		}),
		newBatchCommand(ctx, batchSpec[github.RepoRun]{
			use:         "update [REPO...]",
			short:       "Update the installed check workflow to the latest template",
			stage:       dispatch.StageInstalled,
			ref:         func(r github.RepoRun) string { return r.Name },
			slot:        func(s *dispatch.Session) *stagestore.Slot[github.RepoRun] { return s.Installed },
			coordinator: func(s *dispatch.Session) *batch.Coordinator[github.RepoRun] { return s.Update },
			headers:     []string{"Last run", "Commits since"},
			row:         repoRunRow,
		}),
		newBatchCommand(ctx, batchSpec[github.RepoRun]{
			use:         "run [REPO...]",
			short:       "Trigger the check workflow",
			stage:       dispatch.StageInstalled,
			ref:         func(r github.RepoRun) string { return r.Name },
			slot:        func(s *dispatch.Session) *stagestore.Slot[github.RepoRun] { return s.Installed },
			coordinator: func(s *dispatch.Session) *batch.Coordinator[github.RepoRun] { return s.Run },
			headers:     []string{"Last run", "Commits since"},
			row:         repoRunRow,
		}),
		newBatchCommand(ctx, batchSpec[github.Issue]{
			use:   "assign [REPO#N...]",
			short: "Assign the coding agent to check issues",
			stage: dispatch.StageIssues,
			ref:   func(i github.Issue) string { return issueRef(i.Repo, i.Number) },
			eligible: func(i github.Issue) bool {
				return i.Number > 0 && !github.HasAgentAssignee(ctx.agentPattern(), i.Assignees)
			},
			slot:        func(s *dispatch.Session) *stagestore.Slot[github.Issue] { return s.Issues },
			coordinator: func(s *dispatch.Session) *batch.Coordinator[github.Issue] { return s.Assign },
			headers:     []string{"Severity", "Title"},
			row: func(i github.Issue) []string {
				return []string{severityNames[github.SeverityScore(i.Labels)], truncate(i.Title, 60)}
			},
		}),
		newBatchCommand(ctx, pullRequestSpec("approve [REPO#N...]", "Approve pull requests",
			func(s *dispatch.Session) *batch.Coordinator[github.PullRequest] { return s.Approve },
			func(pr github.PullRequest) bool { return pr.ReviewDecision != approvedDecision })),
		newBatchCommand(ctx, pullRequestSpec("merge [REPO#N...]", "Squash-merge pull requests",
			func(s *dispatch.Session) *batch.Coordinator[github.PullRequest] { return s.Merge },
			nil)),
	}
}

func pullRequestSpec(use, short string, coordinator func(*dispatch.Session) *batch.Coordinator[github.PullRequest], eligible func(github.PullRequest) bool) batchSpec[github.PullRequest] {
	return batchSpec[github.PullRequest]{
		use:         use,
		short:       short,
		stage:       dispatch.StagePullRequests,
		ref:         func(pr github.PullRequest) string { return issueRef(pr.Repo, pr.Number) },
		eligible:    eligible,
		slot:        func(s *dispatch.Session) *stagestore.Slot[github.PullRequest] { return s.PullRequests },
		coordinator: coordinator,
		headers:     []string{"Author", "Review", "Title"},
		row: func(pr github.PullRequest) []string {
			return []string{pr.Author.Login, displayLabel(pr.ReviewDecision), truncate(pr.Title, 50)}
		},
	}
}

func repoRunRow(r github.RepoRun) []string {
	if r.LastRun == nil {
		return []string{"never", "-"}
	}
	status := r.LastRun.Status
	if r.LastRun.Conclusion != "" {
		status = r.LastRun.Conclusion
	}
	return []string{
		fmt.Sprintf("%s %s", displayLabel(status), formatAge(r.LastRun.CreatedAt, time.Now())),
		strconv.Itoa(r.CommitsSinceLastRun),
	}
}

func issueRef(repo string, number int) string {
	return repo + "#" + strconv.Itoa(number)
}
