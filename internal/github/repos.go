package github

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ListRepos returns the principal's repositories.
func (c *Client) ListRepos(ctx context.Context) ([]Repo, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return nil, err
	}
	limit := c.settings.RepoLimit
	if limit <= 0 {
		limit = 100
	}
	var repos []Repo
	err = c.runJSON(ctx, "gh:"+owner+":repos", &repos,
		"repo", "list", owner, "--limit", strconv.Itoa(limit), "--json", "name,isPrivate,description")
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	return repos, nil
}

// IsInstalled reports whether the check workflow file exists in owner/repo.
func (c *Client) IsInstalled(ctx context.Context, owner, repo string) (bool, error) {
	slug := slugFor(owner, repo)
	var probe struct {
		SHA string `json:"sha"`
	}
	err := c.runJSON(ctx, repoCacheKey(slug, "installed"), &probe,
		"api", "/repos/"+slug+"/contents/"+c.workflowPath())
	if err == nil {
		return probe.SHA != "", nil
	}
	// gh exits non-zero for a missing file.
	if errors.Is(err, ErrCommandFailed) {
		return false, nil
	}
	return false, err
}

// InstalledStatus checks every repo in parallel and returns a name to
// installed map.
func (c *Client) InstalledStatus(ctx context.Context, repos []Repo) (map[string]bool, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return nil, err
	}
	type status struct {
		name      string
		installed bool
	}
	names := make([]string, 0, len(repos))
	for _, repo := range repos {
		names = append(names, repo.Name)
	}
	results, err := fanOut(ctx, c, "installed-status", names, func(ctx context.Context, name string) (status, error) {
		installed, err := c.IsInstalled(ctx, owner, name)
		return status{name: name, installed: installed}, err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(results))
	for _, result := range results {
		out[result.name] = result.installed
	}
	return out, nil
}

// ReposNeedingInstall returns repositories without the check workflow.
func (c *Client) ReposNeedingInstall(ctx context.Context) ([]Repo, error) {
	repos, status, err := c.repoContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Repo, 0, len(repos))
	for _, repo := range repos {
		if !status[repo.Name] {
			out = append(out, repo)
		}
	}
	return out, nil
}

// InstalledRepos returns repositories with the check workflow, each with its
// latest run and the number of commits since that run. Repositories that
// never ran sort first, then by commits since the last run descending.
func (c *Client) InstalledRepos(ctx context.Context) ([]RepoRun, error) {
	repos, err := c.installedRepos(ctx)
	if err != nil {
		return nil, err
	}
	owner, err := c.Owner(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Repo, len(repos))
	names := make([]string, 0, len(repos))
	for _, repo := range repos {
		byName[repo.Name] = repo
		names = append(names, repo.Name)
	}
	runs, err := fanOut(ctx, c, "installed", c.capRepos(names), func(ctx context.Context, name string) (RepoRun, error) {
		return c.repoRunInfo(ctx, owner, byName[name])
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		iNever, jNever := runs[i].LastRun == nil, runs[j].LastRun == nil
		if iNever != jNever {
			return iNever
		}
		if runs[i].CommitsSinceLastRun != runs[j].CommitsSinceLastRun {
			return runs[i].CommitsSinceLastRun > runs[j].CommitsSinceLastRun
		}
		return runs[i].Name < runs[j].Name
	})
	return runs, nil
}

// LatestRun returns the most recent check workflow run, or nil when none.
func (c *Client) LatestRun(ctx context.Context, owner, repo string) (*WorkflowRun, error) {
	slug := slugFor(owner, repo)
	var runs []WorkflowRun
	err := c.runJSON(ctx, repoCacheKey(slug, "runs"), &runs,
		"run", "list", "-R", slug, "-w", c.workflowFile(), "--limit", "1",
		"--json", "databaseId,displayTitle,status,conclusion,createdAt,workflowName,headBranch,url")
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", slug, err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// CommitsSince counts commits on the default branch authored after since.
func (c *Client) CommitsSince(ctx context.Context, owner, repo string, since time.Time) (int, error) {
	slug := slugFor(owner, repo)
	filter := fmt.Sprintf(`[.[] | select(.commit.author.date > "%s")] | length`, since.UTC().Format(time.RFC3339))
	out, err := c.run(ctx, "api", "/repos/"+slug+"/commits", "--jq", filter)
	if err != nil {
		return 0, fmt.Errorf("count commits for %s: %w", slug, err)
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, nil
	}
	return count, nil
}

// RepoExists reports whether slug names a repository visible to gh.
func (c *Client) RepoExists(ctx context.Context, slug string) bool {
	_, err := c.run(ctx, "repo", "view", slug, "--json", "name")
	return err == nil
}

// RepoMeta fetches the lightweight enrichment shown for watched targets.
func (c *Client) RepoMeta(ctx context.Context, slug string) (*RepoMeta, error) {
	var raw struct {
		StargazerCount  int `json:"stargazerCount"`
		PrimaryLanguage *struct {
			Name string `json:"name"`
		} `json:"primaryLanguage"`
		LicenseInfo *struct {
			Name string `json:"name"`
		} `json:"licenseInfo"`
		Issues struct {
			TotalCount int `json:"totalCount"`
		} `json:"issues"`
	}
	err := c.runJSON(ctx, repoCacheKey(slug, "meta"), &raw,
		"repo", "view", slug, "--json", "stargazerCount,primaryLanguage,licenseInfo,issues")
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", slug, err)
	}
	meta := &RepoMeta{
		Stars:          raw.StargazerCount,
		OpenIssueCount: raw.Issues.TotalCount,
	}
	if raw.PrimaryLanguage != nil {
		meta.Language = raw.PrimaryLanguage.Name
	}
	if raw.LicenseInfo != nil {
		meta.License = raw.LicenseInfo.Name
	}
	if _, err := c.run(ctx, "api", "/repos/"+slug+"/contents/CONTRIBUTING.md", "--jq", ".name"); err == nil {
		meta.HasContributing = true
	}
	return meta, nil
}

func (c *Client) repoRunInfo(ctx context.Context, owner string, repo Repo) (RepoRun, error) {
	info := RepoRun{Repo: repo}
	run, err := c.LatestRun(ctx, owner, repo.Name)
	if err != nil {
		return info, err
	}
	info.LastRun = run
	if run != nil && !run.CreatedAt.IsZero() {
		commits, err := c.CommitsSince(ctx, owner, repo.Name, run.CreatedAt)
		if err == nil {
			info.CommitsSinceLastRun = commits
		}
	}
	return info, nil
}

func (c *Client) repoContext(ctx context.Context) ([]Repo, map[string]bool, error) {
	repos, err := c.ListRepos(ctx)
	if err != nil {
		return nil, nil, err
	}
	status, err := c.InstalledStatus(ctx, repos)
	if err != nil {
		return nil, nil, err
	}
	return repos, status, nil
}

func (c *Client) installedRepos(ctx context.Context) ([]Repo, error) {
	repos, status, err := c.repoContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Repo, 0, len(repos))
	for _, repo := range repos {
		if status[repo.Name] {
			out = append(out, repo)
		}
	}
	return out, nil
}

func (c *Client) workflowFile() string {
	if name := strings.TrimSpace(c.settings.CheckWorkflow); name != "" {
		return name
	}
	return "vibecheck.yml"
}

func (c *Client) workflowPath() string {
	return ".github/workflows/" + c.workflowFile()
}
