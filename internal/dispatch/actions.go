package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vibedispatch/internal/batch"
	"vibedispatch/internal/contrib"
	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
	"vibedispatch/internal/logging"
	"vibedispatch/internal/pipeline"
	"vibedispatch/internal/recon"
	"vibedispatch/internal/stagestore"
)

const approvedDecision = "APPROVED"

func (s *Session) defineCoordinators() error {
	var err error
	if s.Install, err = batch.New(batch.Options[github.Repo]{
		Verb:      "Installed",
		Process:   s.installRepo,
		ItemID:    repoName,
		OnSuccess: func(repo github.Repo, _ batch.Result) { s.NeedsInstall.Remove(sameRepo(repo.Name)) },
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	if s.Update, err = batch.New(batch.Options[github.RepoRun]{
		Verb:    "Updated",
		Process: s.updateRepo,
		ItemID:  runName,
		Sink:    s.sink,
		Logger:  s.logger,
	}); err != nil {
		return err
	}
	if s.Run, err = batch.New(batch.Options[github.RepoRun]{
		Verb:      "Started",
		Process:   s.runRepo,
		ItemID:    runName,
		OnSuccess: func(run github.RepoRun, _ batch.Result) { s.markQueued(run.Name) },
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	if s.Assign, err = batch.New(batch.Options[github.Issue]{
		Verb:      "Assigned",
		Process:   s.assignIssue,
		ItemID:    issueID,
		ItemName:  issueName,
		OnSuccess: func(issue github.Issue, _ batch.Result) { s.markAssigned(issue) },
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	if s.Approve, err = batch.New(batch.Options[github.PullRequest]{
		Verb:      "Approved",
		Process:   s.approvePR,
		ItemID:    prID,
		ItemName:  prName,
		OnSuccess: func(pr github.PullRequest, _ batch.Result) { markApproved(s.PullRequests, prID(pr), prID) },
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	if s.Merge, err = batch.New(batch.Options[github.PullRequest]{
		Verb:      "Merged",
		Process:   s.mergePR,
		ItemID:    prID,
		ItemName:  prName,
		OnSuccess: func(pr github.PullRequest, _ batch.Result) { s.PullRequests.Remove(samePR(prID(pr), prID)) },
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	if s.ReviewApprove, err = batch.New(batch.Options[pipeline.Item]{
		Verb:      "Approved",
		Process:   s.reviewApprove,
		ItemID:    itemID,
		ItemName:  itemName,
		OnSuccess: s.afterReviewApprove,
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	if s.ReviewMerge, err = batch.New(batch.Options[pipeline.Item]{
		Verb:      "Merged",
		Process:   s.reviewMerge,
		ItemID:    itemID,
		ItemName:  itemName,
		OnSuccess: s.afterReviewMerge,
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	if s.contrib == nil {
		return nil
	}

	if s.ForkAssign, err = batch.New(batch.Options[recon.ScoredIssue]{
		Verb:      "Assigned",
		Process:   s.forkAssign,
		ItemID:    scoredID,
		ItemName:  scoredName,
		OnSuccess: s.afterForkAssign,
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	if s.ApproveFork, err = batch.New(batch.Options[github.PullRequest]{
		Verb:      "Approved",
		Process:   s.approveForkPR,
		ItemID:    forkPRID,
		ItemName:  forkPRName,
		OnSuccess: func(pr github.PullRequest, _ batch.Result) { markApproved(s.ForkPullRequests, forkPRID(pr), forkPRID) },
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	if s.MergeFork, err = batch.New(batch.Options[github.PullRequest]{
		Verb:      "Merged",
		Process:   s.mergeForkPR,
		ItemID:    forkPRID,
		ItemName:  forkPRName,
		OnSuccess: func(pr github.PullRequest, _ batch.Result) { s.afterMergeFork(forkPRID(pr)) },
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	if s.Submit, err = batch.New(batch.Options[ledger.ReadyToSubmit]{
		Verb:      "Submitted",
		Process:   s.submit,
		ItemID:    readyID,
		ItemName:  readyName,
		OnSuccess: s.afterSubmit,
		Sink:      s.sink,
		Logger:    s.logger,
	}); err != nil {
		return err
	}
	return nil
}

// Maintenance actions.

func (s *Session) installRepo(ctx context.Context, repo github.Repo) (batch.Result, error) {
	owner, err := s.Principal(ctx)
	if err != nil {
		return batch.Result{}, err
	}
	if err := s.gh.Install(ctx, owner, repo.Name); err != nil {
		return batch.Failed(err), nil
	}
	return batch.Succeeded(""), nil
}

func (s *Session) updateRepo(ctx context.Context, run github.RepoRun) (batch.Result, error) {
	owner, err := s.Principal(ctx)
	if err != nil {
		return batch.Result{}, err
	}
	if err := s.gh.Update(ctx, owner, run.Name, ""); err != nil {
		return batch.Failed(err), nil
	}
	return batch.Succeeded(""), nil
}

func (s *Session) runRepo(ctx context.Context, run github.RepoRun) (batch.Result, error) {
	owner, err := s.Principal(ctx)
	if err != nil {
		return batch.Result{}, err
	}
	if err := s.gh.RunWorkflow(ctx, owner, run.Name); err != nil {
		return batch.Failed(err), nil
	}
	return batch.Succeeded(""), nil
}

func (s *Session) assignIssue(ctx context.Context, issue github.Issue) (batch.Result, error) {
	if issue.Number <= 0 {
		return s.invalid("assign", issueName(issue), "issue has no number"), nil
	}
	slug, err := s.qualify(ctx, issue.Repo)
	if err != nil {
		return batch.Result{}, err
	}
	if err := s.gh.AssignAgent(ctx, slug, issue.Number); err != nil {
		return batch.Failed(err), nil
	}
	return batch.Succeeded(""), nil
}

func (s *Session) approvePR(ctx context.Context, pr github.PullRequest) (batch.Result, error) {
	if pr.Number <= 0 {
		return s.invalid("approve", prName(pr), "pull request has no number"), nil
	}
	slug, err := s.qualify(ctx, pr.Repo)
	if err != nil {
		return batch.Result{}, err
	}
	if err := s.gh.Approve(ctx, slug, pr.Number); err != nil {
		return batch.Failed(err), nil
	}
	return batch.Succeeded(""), nil
}

func (s *Session) mergePR(ctx context.Context, pr github.PullRequest) (batch.Result, error) {
	if pr.Number <= 0 {
		return s.invalid("merge", prName(pr), "pull request has no number"), nil
	}
	slug, err := s.qualify(ctx, pr.Repo)
	if err != nil {
		return batch.Result{}, err
	}
	if err := s.gh.Merge(ctx, slug, pr.Number, github.MergeOptions{DeleteBranch: s.gh.DeleteMergedBranch()}); err != nil {
		return batch.Failed(err), nil
	}
	return batch.Result{Success: true, URL: pr.URL}, nil
}

func (s *Session) markQueued(name string) {
	s.Installed.Patch(func(run github.RepoRun) bool { return run.Name == name }, func(run github.RepoRun) github.RepoRun {
		queued := github.WorkflowRun{Status: "queued", CreatedAt: time.Now().UTC()}
		if run.LastRun != nil {
			queued.WorkflowName = run.LastRun.WorkflowName
		}
		run.LastRun = &queued
		run.CommitsSinceLastRun = 0
		return run
	})
}

func (s *Session) markAssigned(issue github.Issue) {
	login := s.gh.AgentLogin()
	id := issueID(issue)
	s.Issues.Patch(func(i github.Issue) bool { return issueID(i) == id }, func(i github.Issue) github.Issue {
		if !github.HasAgentAssignee(login, i.Assignees) {
			i.Assignees = append(append([]github.Actor(nil), i.Assignees...), github.Actor{Login: login})
		}
		return i
	})
}

func markApproved(slot *stagestore.Slot[github.PullRequest], id string, idFor func(github.PullRequest) string) {
	slot.Patch(samePR(id, idFor), func(pr github.PullRequest) github.PullRequest {
		pr.ReviewDecision = approvedDecision
		return pr
	})
}

// OSS actions.

func (s *Session) forkAssign(ctx context.Context, issue recon.ScoredIssue) (batch.Result, error) {
	if issue.Number <= 0 || issue.Repo == "" {
		return s.invalid("fork-assign", scoredName(issue), "issue has no repository or number"), nil
	}
	result, err := s.contrib.ForkAssign(ctx, contrib.AssignRequest{
		OriginSlug: issue.Repo,
		Number:     issue.Number,
		Title:      issue.Title,
		URL:        issue.URL,
	})
	if err != nil {
		return batch.Failed(err), nil
	}
	message := "fork issue created"
	if result.AlreadyAssigned {
		message = "already assigned"
	}
	return batch.Result{Success: true, Message: message, URL: result.ForkIssueURL}, nil
}

func (s *Session) afterForkAssign(issue recon.ScoredIssue, _ batch.Result) {
	id := scoredID(issue)
	s.ScoredIssues.Remove(func(i recon.ScoredIssue) bool { return scoredID(i) == id })
	refreshFromLedger(s, s.Assignments, StageAssignments, s.contrib.Assignments)
}

func (s *Session) approveForkPR(ctx context.Context, pr github.PullRequest) (batch.Result, error) {
	if pr.Number <= 0 || pr.Repo == "" {
		return s.invalid("approve", forkPRName(pr), "fork pull request has no repository or number"), nil
	}
	if err := s.contrib.ApproveFork(ctx, pr.Repo, pr.Number); err != nil {
		return batch.Failed(err), nil
	}
	return batch.Succeeded(""), nil
}

func (s *Session) mergeForkPR(ctx context.Context, pr github.PullRequest) (batch.Result, error) {
	if pr.Number <= 0 || pr.Repo == "" || pr.OriginSlug == "" {
		return s.invalid("merge", forkPRName(pr), "fork pull request has no repository, number, or origin"), nil
	}
	ready, err := s.contrib.MergeFork(ctx, pr.Repo, pr.Number, pr.OriginSlug)
	if err != nil {
		return batch.Failed(err), nil
	}
	return batch.Succeeded("ready to submit from " + ready.Branch), nil
}

func (s *Session) afterMergeFork(id string) {
	s.ForkPullRequests.Remove(samePR(id, forkPRID))
	refreshFromLedger(s, s.ReadyToSubmit, StageReadyToSubmit, s.contrib.ReadyToSubmit)
}

func (s *Session) submit(ctx context.Context, ready ledger.ReadyToSubmit) (batch.Result, error) {
	if ready.OriginSlug == "" || ready.Branch == "" {
		return s.invalid("submit", readyName(ready), "record has no origin or branch"), nil
	}
	req := contrib.SubmitRequestFor(ready)
	if strings.TrimSpace(req.Title) == "" {
		req.Title = ready.Branch
	}
	submitted, err := s.contrib.Submit(ctx, req)
	if err != nil {
		return batch.Failed(err), nil
	}
	return batch.Result{Success: true, Message: submitted.PRURL, URL: submitted.PRURL}, nil
}

func (s *Session) afterSubmit(ready ledger.ReadyToSubmit, _ batch.Result) {
	id := readyID(ready)
	s.ReadyToSubmit.Remove(func(r ledger.ReadyToSubmit) bool { return readyID(r) == id })
	refreshFromLedger(s, s.Submitted, StageSubmitted, s.contrib.Submitted)
}

// Review queue actions dispatch on the item kind.

func (s *Session) reviewApprove(ctx context.Context, item pipeline.Item) (batch.Result, error) {
	switch item.Kind {
	case pipeline.KindPullRequest:
		pr, ok := item.Data.(github.PullRequest)
		if !ok {
			return s.invalid("approve", item.ID, "unexpected payload"), nil
		}
		return s.approvePR(ctx, pr)
	case pipeline.KindForkPullRequest:
		if s.contrib == nil {
			return s.invalid("approve", item.ID, "contribution pipeline is not configured"), nil
		}
		pr, ok := item.Data.(github.PullRequest)
		if !ok {
			return s.invalid("approve", item.ID, "unexpected payload"), nil
		}
		return s.approveForkPR(ctx, pr)
	default:
		return s.invalid("approve", item.ID, fmt.Sprintf("%s items cannot be approved", item.Kind)), nil
	}
}

func (s *Session) afterReviewApprove(item pipeline.Item, _ batch.Result) {
	switch item.Kind {
	case pipeline.KindPullRequest:
		markApproved(s.PullRequests, item.ID, prID)
	case pipeline.KindForkPullRequest:
		markApproved(s.ForkPullRequests, item.ID, forkPRID)
	}
}

func (s *Session) reviewMerge(ctx context.Context, item pipeline.Item) (batch.Result, error) {
	switch item.Kind {
	case pipeline.KindPullRequest:
		pr, ok := item.Data.(github.PullRequest)
		if !ok {
			return s.invalid("merge", item.ID, "unexpected payload"), nil
		}
		return s.mergePR(ctx, pr)
	case pipeline.KindForkPullRequest:
		if s.contrib == nil {
			return s.invalid("merge", item.ID, "contribution pipeline is not configured"), nil
		}
		pr, ok := item.Data.(github.PullRequest)
		if !ok {
			return s.invalid("merge", item.ID, "unexpected payload"), nil
		}
		return s.mergeForkPR(ctx, pr)
	default:
		return s.invalid("merge", item.ID, fmt.Sprintf("%s items cannot be merged", item.Kind)), nil
	}
}

// afterReviewMerge drops the queue entry before the record so focus stays
// on the position the user was reviewing.
func (s *Session) afterReviewMerge(item pipeline.Item, _ batch.Result) {
	if current, ok := s.navigator.Current(); ok && current.ID == item.ID {
		s.navigator.RemoveCurrent()
	}
	switch item.Kind {
	case pipeline.KindPullRequest:
		s.PullRequests.Remove(samePR(item.ID, prID))
	case pipeline.KindForkPullRequest:
		s.afterMergeFork(item.ID)
	}
}

func (s *Session) invalid(action, name, reason string) batch.Result {
	logging.WarnWithContext(s.logger, "action rejected", "invalid_action_target",
		logging.String(logging.FieldAction, action),
		logging.String(logging.FieldItemID, name),
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "item skipped"),
	)
	return batch.Failedf("%s", reason)
}

func (s *Session) qualify(ctx context.Context, repo string) (string, error) {
	if strings.Contains(repo, "/") {
		return repo, nil
	}
	owner, err := s.Principal(ctx)
	if err != nil {
		return "", err
	}
	return owner + "/" + repo, nil
}
