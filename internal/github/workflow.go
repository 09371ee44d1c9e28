package github

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"strings"
)

//go:embed vibecheck.yml
var localTemplate string

// LocalTemplate returns the bundled check workflow.
func LocalTemplate() string {
	return localTemplate
}

// Template fetches the latest check workflow from the template repository,
// falling back to the bundled copy. The second return reports whether the
// bundled copy was used.
func (c *Client) Template(ctx context.Context) (string, bool) {
	repo := strings.TrimSpace(c.settings.TemplateRepo)
	if repo == "" {
		return localTemplate, true
	}
	out, err := c.run(ctx, "api", "repos/"+repo+"/contents/examples/"+c.workflowFile(), "--jq", ".content")
	if err != nil {
		return localTemplate, true
	}
	content, err := decodeContent(string(out))
	if err != nil || strings.TrimSpace(content) == "" {
		return localTemplate, true
	}
	return content, false
}

// Install writes the bundled check workflow into owner/repo.
func (c *Client) Install(ctx context.Context, owner, repo string) error {
	slug := slugFor(owner, repo)
	encoded := base64.StdEncoding.EncodeToString([]byte(localTemplate))
	_, err := c.run(ctx, "api", "-X", "PUT", "/repos/"+slug+"/contents/"+c.workflowPath(),
		"-f", "message=Add vibeCheck workflow",
		"-f", "content="+encoded)
	if err != nil {
		return fmt.Errorf("install workflow in %s: %w", slug, err)
	}
	c.InvalidateRepo(ctx, slug)
	return nil
}

// Update replaces an installed check workflow with template, or with the
// latest upstream template when template is empty.
func (c *Client) Update(ctx context.Context, owner, repo, template string) error {
	slug := slugFor(owner, repo)
	out, err := c.run(ctx, "api", "/repos/"+slug+"/contents/"+c.workflowPath(), "--jq", ".sha")
	if err != nil {
		return fmt.Errorf("workflow not installed in %s, use install instead: %w", slug, err)
	}
	sha := strings.TrimSpace(string(out))
	if strings.TrimSpace(template) == "" {
		template, _ = c.Template(ctx)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(template))
	_, err = c.run(ctx, "api", "-X", "PUT", "/repos/"+slug+"/contents/"+c.workflowPath(),
		"-f", "message=Update vibeCheck workflow to latest version",
		"-f", "content="+encoded,
		"-f", "sha="+sha)
	if err != nil {
		return fmt.Errorf("update workflow in %s: %w", slug, err)
	}
	c.InvalidateRepo(ctx, slug)
	return nil
}

// RunWorkflow dispatches the check workflow.
func (c *Client) RunWorkflow(ctx context.Context, owner, repo string) error {
	slug := slugFor(owner, repo)
	if _, err := c.run(ctx, "workflow", "run", c.workflowFile(), "-R", slug); err != nil {
		return fmt.Errorf("run workflow in %s: %w", slug, err)
	}
	c.InvalidateRepo(ctx, slug)
	return nil
}
