package github_test

import (
	"context"
	"testing"
	"time"

	"vibedispatch/internal/github"
	"vibedispatch/internal/testsupport"
)

func TestListReposServedFromLedgerCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	exec := newFakeExecutor()
	exec.on("repo list octo", `[{"name":"alpha"}]`)
	client := newClient(t, exec, github.WithCache(store, time.Minute))
	ctx := context.Background()

	for range 3 {
		repos, err := client.ListRepos(ctx)
		if err != nil {
			t.Fatalf("ListRepos: %v", err)
		}
		if len(repos) != 1 || repos[0].Name != "alpha" {
			t.Fatalf("unexpected repos %+v", repos)
		}
	}
	if got := exec.called("repo list"); got != 1 {
		t.Fatalf("expected one gh call, got %d", got)
	}

	client.InvalidateAll(ctx)
	if _, err := client.ListRepos(ctx); err != nil {
		t.Fatalf("ListRepos after invalidate: %v", err)
	}
	if got := exec.called("repo list"); got != 2 {
		t.Fatalf("expected refetch after invalidation, got %d calls", got)
	}
}

func TestMutationInvalidatesRepoCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	exec := newFakeExecutor()
	exec.on("issue list -R octo/alpha", `[]`)
	exec.on("issue edit 3 -R octo/alpha", "")
	client := newClient(t, exec, github.WithCache(store, time.Minute))
	ctx := context.Background()

	if _, err := client.RepoCheckIssues(ctx, "octo", "alpha"); err != nil {
		t.Fatalf("RepoCheckIssues: %v", err)
	}
	if err := client.AssignAgent(ctx, "octo/alpha", 3); err != nil {
		t.Fatalf("AssignAgent: %v", err)
	}
	if _, err := client.RepoCheckIssues(ctx, "octo", "alpha"); err != nil {
		t.Fatalf("RepoCheckIssues: %v", err)
	}
	if got := exec.called("issue list"); got != 2 {
		t.Fatalf("expected assign to invalidate cached issues, got %d list calls", got)
	}
	if exec.called("issue edit 3 -R octo/alpha --add-assignee @Copilot") != 1 {
		t.Fatal("expected agent assignee")
	}
}
