package pipeline_test

import (
	"testing"
	"time"

	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
	"vibedispatch/internal/pipeline"
)

var base = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func at(hours int) time.Time {
	return base.Add(time.Duration(hours) * time.Hour)
}

func boolPtr(v bool) *bool { return &v }

func TestIssueStatusWithAgentAssignee(t *testing.T) {
	agg := pipeline.NewAggregator("copilot")
	snapshot := pipeline.Snapshot{
		Issues: []github.Issue{
			{Repo: "alpha", Number: 1, Title: "one", UpdatedAt: at(1)},
			{Repo: "beta", Number: 2, Title: "two", UpdatedAt: at(5), Assignees: []github.Actor{{Login: "Copilot"}}},
			{Repo: "gamma", Number: 3, Title: "three", UpdatedAt: at(3)},
		},
	}

	items := agg.Recompute(snapshot)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Status != pipeline.StatusProcessing || items[0].Number != 2 {
		t.Fatalf("expected assigned issue first as processing, got %+v", items[0])
	}
	if items[1].Status != pipeline.StatusPending || items[1].Number != 3 {
		t.Fatalf("expected newer pending issue second, got %+v", items[1])
	}
	if items[2].Status != pipeline.StatusPending || items[2].Number != 1 {
		t.Fatalf("expected older pending issue last, got %+v", items[2])
	}
	for _, item := range items {
		if item.CurrentStage != 3 || item.TotalStages != 4 || item.Family != pipeline.FamilyMaintenance {
			t.Fatalf("unexpected stage data %+v", item)
		}
	}
}

func TestIssueProcessingWhenRepoHasAgentPR(t *testing.T) {
	agg := pipeline.NewAggregator("")
	snapshot := pipeline.Snapshot{
		Issues: []github.Issue{{Repo: "alpha", Number: 1}, {Repo: "beta", Number: 2}},
		PullRequests: []github.PullRequest{
			{Repo: "alpha", Number: 10, Author: github.Actor{Login: "copilot-swe-agent"}, AgentCompleted: boolPtr(false)},
			{Repo: "beta", Number: 11, Author: github.Actor{Login: "octo"}},
		},
	}
	statuses := make(map[string]pipeline.Status)
	for _, item := range agg.Recompute(snapshot) {
		statuses[item.ID] = item.Status
	}
	if got := statuses[pipeline.IssueID("alpha", 1)]; got != pipeline.StatusProcessing {
		t.Fatalf("alpha issue status = %s", got)
	}
	if got := statuses[pipeline.IssueID("beta", 2)]; got != pipeline.StatusPending {
		t.Fatalf("beta issue status = %s", got)
	}
}

func TestPullRequestStatus(t *testing.T) {
	tests := []struct {
		name string
		pr   github.PullRequest
		want pipeline.Status
	}{
		{"approved wins", github.PullRequest{ReviewDecision: "APPROVED", IsDraft: true, Author: github.Actor{Login: "octo"}}, pipeline.StatusReady},
		{"human non draft", github.PullRequest{Author: github.Actor{Login: "octo"}}, pipeline.StatusWaitingForReview},
		{"human draft", github.PullRequest{IsDraft: true, Author: github.Actor{Login: "octo"}}, pipeline.StatusProcessing},
		{"agent still working", github.PullRequest{Author: github.Actor{Login: "Copilot"}, AgentCompleted: boolPtr(false)}, pipeline.StatusProcessing},
		{"agent unknown", github.PullRequest{Author: github.Actor{Login: "Copilot"}}, pipeline.StatusProcessing},
		{"agent done draft", github.PullRequest{IsDraft: true, Author: github.Actor{Login: "Copilot"}, AgentCompleted: boolPtr(true)}, pipeline.StatusWaitingForReview},
	}
	agg := pipeline.NewAggregator("copilot")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.pr.Repo = "alpha"
			tt.pr.Number = 7
			items := agg.Recompute(pipeline.Snapshot{PullRequests: []github.PullRequest{tt.pr}})
			if len(items) != 1 {
				t.Fatalf("expected one item, got %d", len(items))
			}
			if items[0].Status != tt.want {
				t.Fatalf("status = %s, want %s", items[0].Status, tt.want)
			}
			if items[0].CurrentStage != 4 || items[0].Kind != pipeline.KindPullRequest {
				t.Fatalf("unexpected item %+v", items[0])
			}
		})
	}
}

func TestReadyForReviewAsymmetry(t *testing.T) {
	tests := []struct {
		name      string
		author    string
		draft     bool
		completed *bool
		want      bool
	}{
		{"agent non draft not completed", "Copilot", false, boolPtr(false), false},
		{"agent nil flag", "copilot-bot", false, nil, false},
		{"agent completed", "COPILOT", true, boolPtr(true), true},
		{"human draft", "octo", true, nil, false},
		{"human non draft", "octo", false, nil, true},
		{"human ignores flag", "octo", false, boolPtr(false), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pipeline.ReadyForReview("copilot", tt.author, tt.draft, tt.completed); got != tt.want {
				t.Fatalf("ReadyForReview = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOSSItems(t *testing.T) {
	agg := pipeline.NewAggregator("copilot")
	snapshot := pipeline.Snapshot{
		Assignments: []ledger.Assignment{{OriginSlug: "up/tools", Repo: "tools", IssueNumber: 12, AssignedAt: at(1)}},
		ForkPullRequests: []github.PullRequest{
			{Repo: "tools", OriginSlug: "up/tools", Number: 3, CreatedAt: at(2)},
			{Repo: "tools", OriginSlug: "up/tools", Number: 4, ReviewDecision: "APPROVED", CreatedAt: at(3)},
		},
		ReadyToSubmit: []ledger.ReadyToSubmit{{OriginSlug: "up/tools", Repo: "tools", Branch: "copilot/fix-12", MergedAt: at(4)}},
		Submitted: []ledger.SubmittedPR{
			{OriginSlug: "up/tools", PRURL: "https://github.com/up/tools/pull/9", PRNumber: 9, State: "merged", SubmittedAt: at(5)},
			{OriginSlug: "up/tools", PRURL: "https://github.com/up/tools/pull/8", PRNumber: 8, State: "closed", SubmittedAt: at(5)},
			{OriginSlug: "up/tools", PRURL: "https://github.com/up/tools/pull/7", PRNumber: 7, State: "open", SubmittedAt: at(5)},
		},
	}
	items := agg.Recompute(snapshot)
	byID := make(map[string]pipeline.Item)
	for _, item := range items {
		byID[item.ID] = item
		if item.Family != pipeline.FamilyOSS || item.TotalStages != 5 {
			t.Fatalf("unexpected family data %+v", item)
		}
	}

	checks := []struct {
		id     string
		status pipeline.Status
		stage  int
	}{
		{"oss:assignment:up/tools#12", pipeline.StatusProcessing, 3},
		{"oss:fork-pr:tools#3", pipeline.StatusWaitingForReview, 4},
		{"oss:fork-pr:tools#4", pipeline.StatusReady, 4},
		{"oss:submit:up/tools@copilot/fix-12", pipeline.StatusReady, 5},
		{"oss:submitted:https://github.com/up/tools/pull/9", pipeline.StatusCompleted, 5},
		{"oss:submitted:https://github.com/up/tools/pull/8", pipeline.StatusFailed, 5},
		{"oss:submitted:https://github.com/up/tools/pull/7", pipeline.StatusProcessing, 5},
	}
	for _, c := range checks {
		item, ok := byID[c.id]
		if !ok {
			t.Fatalf("missing item %s", c.id)
		}
		if item.Status != c.status || item.CurrentStage != c.stage {
			t.Fatalf("%s: status %s stage %d, want %s %d", c.id, item.Status, item.CurrentStage, c.status, c.stage)
		}
	}

	fork := byID["oss:fork-pr:tools#3"]
	if fork.Repo != "up/tools" || fork.Ref != "tools" || fork.QualifiedRef("me") != "me/tools" {
		t.Fatalf("unexpected fork refs %+v", fork)
	}
	if pr, ok := fork.Data.(github.PullRequest); !ok || pr.OriginSlug != "up/tools" {
		t.Fatalf("expected fork data to carry the full record, got %#v", fork.Data)
	}

	queue := pipeline.FilterNeedsReview(items)
	if len(queue) != 2 {
		t.Fatalf("expected two fork PRs in the review queue, got %d", len(queue))
	}
	if queue[0].ID != "oss:fork-pr:tools#3" {
		t.Fatalf("expected waiting_for_review before ready, got %s", queue[0].ID)
	}
}

func TestOrderingInvariant(t *testing.T) {
	agg := pipeline.NewAggregator("copilot")
	snapshot := pipeline.Snapshot{
		Issues: []github.Issue{
			{Repo: "a", Number: 1, UpdatedAt: at(100)},
			{Repo: "b", Number: 2, UpdatedAt: at(1), Assignees: []github.Actor{{Login: "copilot"}}},
		},
		PullRequests: []github.PullRequest{
			{Repo: "c", Number: 3, UpdatedAt: at(0), ReviewDecision: "APPROVED", Author: github.Actor{Login: "octo"}},
			{Repo: "d", Number: 4, UpdatedAt: at(-50), Author: github.Actor{Login: "octo"}},
			{Repo: "e", Number: 5, UpdatedAt: at(50), IsDraft: true, Author: github.Actor{Login: "octo"}},
		},
		Submitted: []ledger.SubmittedPR{
			{PRURL: "u1", State: "merged", SubmittedAt: at(200)},
			{PRURL: "u2", State: "closed", SubmittedAt: at(300)},
		},
	}
	items := agg.Recompute(snapshot)
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if items[i].Status.Rank() > items[j].Status.Rank() {
				t.Fatalf("item %s (%s) sorted before %s (%s)", items[i].ID, items[i].Status, items[j].ID, items[j].Status)
			}
		}
	}
	if items[0].Status != pipeline.StatusWaitingForReview || items[len(items)-1].Status != pipeline.StatusFailed {
		t.Fatalf("unexpected ends %s .. %s", items[0].Status, items[len(items)-1].Status)
	}
}

func TestTiesBrokenByID(t *testing.T) {
	agg := pipeline.NewAggregator("copilot")
	snapshot := pipeline.Snapshot{
		Issues: []github.Issue{
			{Repo: "zeta", Number: 1, UpdatedAt: at(1)},
			{Repo: "alpha", Number: 1, UpdatedAt: at(1)},
		},
	}
	items := agg.Recompute(snapshot)
	if items[0].Repo != "alpha" || items[1].Repo != "zeta" {
		t.Fatalf("expected id order on equal timestamps, got %s then %s", items[0].ID, items[1].ID)
	}
}

func TestNeedsReviewRequiresNumber(t *testing.T) {
	item := pipeline.Item{Status: pipeline.StatusReady}
	if item.NeedsReview() {
		t.Fatal("item without a number must not need review")
	}
	item.Number = 4
	if !item.NeedsReview() {
		t.Fatal("ready item with a number should need review")
	}
	item.Status = pipeline.StatusProcessing
	if item.NeedsReview() {
		t.Fatal("processing item should not need review")
	}
}
