package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const issueListFields = "number,title,url,labels,assignees,createdAt,updatedAt"

// CheckIssues returns open issues labelled by the check workflow across
// installed repositories, most severe first.
func (c *Client) CheckIssues(ctx context.Context) ([]Issue, error) {
	repos, err := c.installedRepos(ctx)
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
	batches, err := fanOut(ctx, c, "issues", c.capRepos(names), func(ctx context.Context, name string) ([]Issue, error) {
		return c.RepoCheckIssues(ctx, owner, name)
	})
	if err != nil {
		return nil, err
	}
	var issues []Issue
	for _, batch := range batches {
		issues = append(issues, batch...)
	}
	sort.SliceStable(issues, func(i, j int) bool {
		si, sj := SeverityScore(issues[i].Labels), SeverityScore(issues[j].Labels)
		if si != sj {
			return si < sj
		}
		if issues[i].Repo != issues[j].Repo {
			return issues[i].Repo < issues[j].Repo
		}
		return issues[i].Number < issues[j].Number
	})
	return issues, nil
}

// RepoCheckIssues lists check-labelled issues for one repository.
func (c *Client) RepoCheckIssues(ctx context.Context, owner, repo string) ([]Issue, error) {
	slug := slugFor(owner, repo)
	var issues []Issue
	err := c.runJSON(ctx, repoCacheKey(slug, "issues"), &issues,
		"issue", "list", "-R", slug, "--label", c.settings.CheckLabel, "--json", issueListFields)
	if err != nil {
		return nil, fmt.Errorf("list issues for %s: %w", slug, err)
	}
	for i := range issues {
		issues[i].Repo = repo
	}
	return issues, nil
}

// AssignAgent adds the configured agent assignee to an issue.
func (c *Client) AssignAgent(ctx context.Context, slug string, number int) error {
	assignee := strings.TrimSpace(c.settings.AgentAssignee)
	if assignee == "" {
		assignee = "@Copilot"
	}
	if _, err := c.run(ctx, "issue", "edit", strconv.Itoa(number), "-R", slug, "--add-assignee", assignee); err != nil {
		return fmt.Errorf("assign agent to %s#%d: %w", slug, number, err)
	}
	c.InvalidateRepo(ctx, slug)
	return nil
}

// CreateIssue opens an issue and returns its URL and number.
func (c *Client) CreateIssue(ctx context.Context, slug, title, body string) (string, int, error) {
	out, err := c.run(ctx, "issue", "create", "-R", slug, "--title", title, "--body", body)
	if err != nil {
		return "", 0, fmt.Errorf("create issue on %s: %w", slug, err)
	}
	url := lastLine(string(out))
	number, err := numberFromURL(url)
	if err != nil {
		return url, 0, fmt.Errorf("create issue on %s: %w", slug, err)
	}
	c.InvalidateRepo(ctx, slug)
	return url, number, nil
}

// UpstreamIssue fetches one issue with its body.
func (c *Client) UpstreamIssue(ctx context.Context, slug string, number int) (*UpstreamIssue, error) {
	var raw rawUpstreamIssue
	err := c.runJSON(ctx, "", &raw,
		"issue", "view", strconv.Itoa(number), "-R", slug,
		"--json", "number,title,url,body,labels,assignees,comments,createdAt,updatedAt")
	if err != nil {
		return nil, fmt.Errorf("view issue %s#%d: %w", slug, number, err)
	}
	issue := raw.toIssue()
	return &issue, nil
}

// UpstreamIssues lists open issues on an upstream repository.
func (c *Client) UpstreamIssues(ctx context.Context, slug string, limit int) ([]UpstreamIssue, error) {
	if limit <= 0 {
		limit = 50
	}
	var raw []rawUpstreamIssue
	err := c.runJSON(ctx, repoCacheKey(slug, "upstream-issues"), &raw,
		"issue", "list", "-R", slug, "--state", "open", "--limit", strconv.Itoa(limit),
		"--json", "number,title,url,labels,assignees,comments,createdAt,updatedAt")
	if err != nil {
		return nil, fmt.Errorf("list issues for %s: %w", slug, err)
	}
	issues := make([]UpstreamIssue, 0, len(raw))
	for _, item := range raw {
		issues = append(issues, item.toIssue())
	}
	return issues, nil
}

// Contributing returns the decoded CONTRIBUTING.md of slug, or "" when the
// repository has none.
func (c *Client) Contributing(ctx context.Context, slug string) (string, error) {
	out, err := c.run(ctx, "api", "/repos/"+slug+"/contents/CONTRIBUTING.md", "--jq", ".content")
	if err != nil {
		return "", nil
	}
	return decodeContent(string(out))
}

type rawUpstreamIssue struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Body      string     `json:"body"`
	Labels    []Label    `json:"labels"`
	Assignees []Actor    `json:"assignees"`
	Comments  []struct{} `json:"comments"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (r rawUpstreamIssue) toIssue() UpstreamIssue {
	return UpstreamIssue{
		Number:    r.Number,
		Title:     r.Title,
		URL:       r.URL,
		Body:      r.Body,
		Labels:    r.Labels,
		Assignees: r.Assignees,
		Comments:  len(r.Comments),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func decodeContent(encoded string) (string, error) {
	encoded = strings.NewReplacer("\n", "", "\\n", "", "\"", "").Replace(strings.TrimSpace(encoded))
	if encoded == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode content: %w", err)
	}
	return string(data), nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func numberFromURL(url string) (int, error) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	idx := strings.LastIndex(url, "/")
	number, err := strconv.Atoi(url[idx+1:])
	if err != nil || number <= 0 {
		return 0, fmt.Errorf("no number in %q", url)
	}
	return number, nil
}
