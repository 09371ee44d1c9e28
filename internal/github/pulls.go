package github

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	prListFields   = "number,title,url,author,headRefName,baseRefName,isDraft,reviewDecision,labels,additions,deletions,changedFiles,createdAt,updatedAt"
	prDetailFields = "number,title,url,body,author,headRefName,baseRefName,isDraft,reviewDecision,state,files,assignees,additions,deletions,changedFiles,createdAt,updatedAt"
	wipPrefix      = "[WIP]"
)

// OpenPRs returns open pull requests across the principal's repositories,
// newest first. Pull requests labelled demo are excluded, and agent-authored
// ones carry AgentCompleted.
func (c *Client) OpenPRs(ctx context.Context) ([]PullRequest, error) {
	repos, err := c.ListRepos(ctx)
	if err != nil {
		return nil, err
	}
	owner, err := c.Owner(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(repos))
	for _, repo := range repos {
		names = append(names, repo.Name)
	}
	batches, err := fanOut(ctx, c, "pull-requests", c.capRepos(names), func(ctx context.Context, name string) ([]PullRequest, error) {
		return c.RepoPRs(ctx, owner, name)
	})
	if err != nil {
		return nil, err
	}
	var prs []PullRequest
	for _, batch := range batches {
		prs = append(prs, batch...)
	}
	sortNewestFirst(prs)
	return prs, nil
}

// RepoPRs lists open pull requests for one repository.
func (c *Client) RepoPRs(ctx context.Context, owner, repo string) ([]PullRequest, error) {
	slug := slugFor(owner, repo)
	var listed []PullRequest
	if err := c.runJSON(ctx, repoCacheKey(slug, "prs"), &listed, "pr", "list", "-R", slug, "--json", prListFields); err != nil {
		return nil, fmt.Errorf("list pull requests for %s: %w", slug, err)
	}
	prs := make([]PullRequest, 0, len(listed))
	for _, pr := range listed {
		if HasLabel(pr.Labels, "demo") {
			continue
		}
		pr.Repo = repo
		pr.AgentCompleted = nil
		if MatchesAgent(c.settings.AgentPattern, pr.Author.Login) {
			done := c.agentCompleted(ctx, slug, pr.Number, pr.Title)
			pr.AgentCompleted = &done
		}
		prs = append(prs, pr)
	}
	return prs, nil
}

// ForkPRs lists open pull requests on the principal's fork of repo, tagged
// with the upstream slug they will eventually target.
func (c *Client) ForkPRs(ctx context.Context, repo, originSlug string) ([]PullRequest, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return nil, err
	}
	slug := slugFor(owner, repo)
	var prs []PullRequest
	if err := c.runJSON(ctx, repoCacheKey(slug, "prs"), &prs, "pr", "list", "-R", slug, "--json", prListFields); err != nil {
		return nil, fmt.Errorf("list fork pull requests for %s: %w", slug, err)
	}
	for i := range prs {
		prs[i].Repo = repo
		prs[i].OriginSlug = originSlug
		if MatchesAgent(c.settings.AgentPattern, prs[i].Author.Login) {
			done := c.agentCompleted(ctx, slug, prs[i].Number, prs[i].Title)
			prs[i].AgentCompleted = &done
		}
	}
	return prs, nil
}

// ForkTarget pairs a fork repository name with its upstream slug.
type ForkTarget struct {
	Repo       string
	OriginSlug string
}

// AllForkPRs lists fork pull requests across targets in parallel.
func (c *Client) AllForkPRs(ctx context.Context, targets []ForkTarget) ([]PullRequest, error) {
	byKey := make(map[string]ForkTarget, len(targets))
	keys := make([]string, 0, len(targets))
	for _, target := range targets {
		key := target.OriginSlug + "|" + target.Repo
		if _, seen := byKey[key]; seen {
			continue
		}
		byKey[key] = target
		keys = append(keys, key)
	}
	batches, err := fanOut(ctx, c, "fork-pull-requests", keys, func(ctx context.Context, key string) ([]PullRequest, error) {
		target := byKey[key]
		return c.ForkPRs(ctx, target.Repo, target.OriginSlug)
	})
	if err != nil {
		return nil, err
	}
	var prs []PullRequest
	for _, batch := range batches {
		prs = append(prs, batch...)
	}
	sortNewestFirst(prs)
	return prs, nil
}

// PRDetail fetches the review payload for a pull request, including its diff.
func (c *Client) PRDetail(ctx context.Context, slug string, number int) (*PRDetail, error) {
	var detail PRDetail
	if err := c.runJSON(ctx, "", &detail, "pr", "view", strconv.Itoa(number), "-R", slug, "--json", prDetailFields); err != nil {
		return nil, fmt.Errorf("view pull request %s#%d: %w", slug, number, err)
	}
	detail.Repo = repoName(slug)
	if diff, err := c.run(ctx, "pr", "diff", strconv.Itoa(number), "-R", slug); err == nil {
		detail.Diff = string(diff)
	}
	return &detail, nil
}

// Approve submits an approving review.
func (c *Client) Approve(ctx context.Context, slug string, number int) error {
	if _, err := c.run(ctx, "pr", "review", strconv.Itoa(number), "-R", slug, "--approve", "-b", "Approved"); err != nil {
		return fmt.Errorf("approve %s#%d: %w", slug, number, err)
	}
	c.InvalidateRepo(ctx, slug)
	return nil
}

// MarkReady converts a draft pull request to ready for review.
func (c *Client) MarkReady(ctx context.Context, slug string, number int) error {
	if _, err := c.run(ctx, "pr", "ready", strconv.Itoa(number), "-R", slug); err != nil {
		return fmt.Errorf("mark %s#%d ready: %w", slug, number, err)
	}
	return nil
}

// MergeOptions controls Merge.
type MergeOptions struct {
	DeleteBranch bool
}

// BranchInfo is the branch metadata captured before a merge.
type BranchInfo struct {
	HeadRefName string `json:"headRefName"`
	BaseRefName string `json:"baseRefName"`
	Title       string `json:"title"`
	IsDraft     bool   `json:"isDraft"`
}

// Branches returns the head and base branches of a pull request.
func (c *Client) Branches(ctx context.Context, slug string, number int) (*BranchInfo, error) {
	var info BranchInfo
	if err := c.runJSON(ctx, "", &info, "pr", "view", strconv.Itoa(number), "-R", slug, "--json", "headRefName,baseRefName,title,isDraft"); err != nil {
		return nil, fmt.Errorf("view branches of %s#%d: %w", slug, number, err)
	}
	return &info, nil
}

// Merge squash-merges a pull request, readying drafts first.
func (c *Client) Merge(ctx context.Context, slug string, number int, opts MergeOptions) error {
	info, err := c.Branches(ctx, slug, number)
	if err == nil && info.IsDraft {
		if err := c.MarkReady(ctx, slug, number); err != nil {
			return fmt.Errorf("mark draft ready before merge: %w", err)
		}
	}
	args := []string{"pr", "merge", strconv.Itoa(number), "-R", slug, "--squash"}
	if opts.DeleteBranch {
		args = append(args, "--delete-branch")
	}
	if _, err := c.runWithTimeout(ctx, c.mergeTimeout, args...); err != nil {
		return fmt.Errorf("merge %s#%d: %w", slug, number, err)
	}
	c.InvalidateRepo(ctx, slug)
	return nil
}

// DeleteMergedBranch reports whether maintenance merges delete the head branch.
func (c *Client) DeleteMergedBranch() bool {
	return c.settings.DeleteMergedBranch
}

// CreatePR opens a pull request on slug from head into base and returns its URL.
func (c *Client) CreatePR(ctx context.Context, slug, head, base, title, body string) (string, error) {
	if base == "" {
		base = "main"
	}
	out, err := c.runWithTimeout(ctx, c.mergeTimeout,
		"pr", "create", "-R", slug, "--head", head, "--base", base, "--title", title, "--body", body)
	if err != nil {
		return "", fmt.Errorf("create pull request on %s: %w", slug, err)
	}
	return lastLine(string(out)), nil
}

// PRState reads the upstream state of a pull request by URL.
func (c *Client) PRState(ctx context.Context, url string) (*PRState, error) {
	var state PRState
	if err := c.runJSON(ctx, "", &state, "pr", "view", url, "--json", "state,reviewDecision,mergedAt,closedAt"); err != nil {
		return nil, fmt.Errorf("view %s: %w", url, err)
	}
	state.State = strings.ToLower(state.State)
	return &state, nil
}

// agentCompleted reports whether the agent has finished a pull request: the
// title no longer carries the WIP prefix, or a comment announces completion.
func (c *Client) agentCompleted(ctx context.Context, slug string, number int, title string) bool {
	if !strings.HasPrefix(strings.TrimSpace(title), wipPrefix) {
		return true
	}
	out, err := c.run(ctx, "pr", "view", strconv.Itoa(number), "-R", slug, "--json", "comments")
	if err != nil {
		return false
	}
	var payload struct {
		Comments []struct {
			Body string `json:"body"`
		} `json:"comments"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return false
	}
	for _, comment := range payload.Comments {
		body := strings.ToLower(comment.Body)
		if strings.Contains(body, "completed task") || strings.Contains(body, "completed work") {
			return true
		}
	}
	return false
}

func sortNewestFirst(prs []PullRequest) {
	sort.SliceStable(prs, func(i, j int) bool {
		if !prs[i].CreatedAt.Equal(prs[j].CreatedAt) {
			return prs[i].CreatedAt.After(prs[j].CreatedAt)
		}
		if prs[i].Repo != prs[j].Repo {
			return prs[i].Repo < prs[j].Repo
		}
		return prs[i].Number < prs[j].Number
	})
}

func repoName(slug string) string {
	if idx := strings.LastIndex(slug, "/"); idx >= 0 {
		return slug[idx+1:]
	}
	return slug
}
