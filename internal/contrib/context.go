package contrib

import (
	"fmt"
	"strings"

	"vibedispatch/internal/recon"
)

const noDescription = "*No description provided.*"

// AgentContext is the input to the fork issue body handed to the agent.
type AgentContext struct {
	OriginSlug   string
	Number       int
	Title        string
	URL          string
	Body         string
	Dossier      *recon.Dossier
	Contributing string
	// MaxContributing truncates Contributing; zero keeps all of it.
	MaxContributing int
}

// ForkIssueTitle is the title of the context issue created on the fork.
func ForkIssueTitle(originSlug string, number int, title string) string {
	return fmt.Sprintf("[OSS] Fix %s#%d: %s", originSlug, number, title)
}

// RenderAgentContext builds the markdown body of the fork issue. Dossier
// contribution rules take precedence over CONTRIBUTING.md.
func RenderAgentContext(in AgentContext) string {
	description := in.Body
	if strings.TrimSpace(description) == "" {
		description = noDescription
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Upstream Issue\n")
	fmt.Fprintf(&b, "**Repository:** [%s](https://github.com/%s)\n", in.OriginSlug, in.OriginSlug)
	fmt.Fprintf(&b, "**Issue:** [#%d: %s](%s)\n\n", in.Number, in.Title, in.URL)
	fmt.Fprintf(&b, "### Original Issue Description\n%s\n\n", description)
	b.WriteString("---\n## Instructions\n")
	fmt.Fprintf(&b, "Fix the issue described above. Your changes will be submitted as a PR to `%s`.\n\n", in.OriginSlug)
	b.WriteString("**Important:**\n")
	b.WriteString("- Follow the upstream repo's coding style and conventions\n")
	b.WriteString("- Keep changes minimal and focused\n")
	b.WriteString("- Write clear commit messages\n")
	b.WriteString("- Add tests if the repo has a test suite\n")

	switch {
	case in.Dossier != nil && strings.TrimSpace(in.Dossier.ContributionRules) != "":
		fmt.Fprintf(&b, "\n---\n## Contribution Rules\n%s\n", in.Dossier.ContributionRules)
	case strings.TrimSpace(in.Contributing) != "":
		text := in.Contributing
		if in.MaxContributing > 0 {
			text = truncateRunes(text, in.MaxContributing)
		}
		fmt.Fprintf(&b, "\n---\n## CONTRIBUTING.md\n<details><summary>Expand</summary>\n\n%s\n\n</details>\n", text)
	}

	if in.Dossier != nil && strings.TrimSpace(in.Dossier.SuccessPatterns) != "" {
		fmt.Fprintf(&b, "\n---\n## What Successful PRs Look Like\n%s\n", in.Dossier.SuccessPatterns)
	}
	return b.String()
}

// UpstreamPRBody is the default body of a pull request submitted upstream.
// Without an issue number the related-issue section is omitted.
func UpstreamPRBody(originSlug string, number int, title, branch string) string {
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	if number > 0 {
		fmt.Fprintf(&b, "Fixes %s#%d: %s\n\n", originSlug, number, title)
	} else {
		fmt.Fprintf(&b, "Fixes an issue in %s: %s\n\n", originSlug, title)
	}
	b.WriteString("## Changes\n\n")
	fmt.Fprintf(&b, "This PR addresses the issue described above. Changes were developed on the `%s` branch.\n", branch)
	if number > 0 {
		fmt.Fprintf(&b, "\n## Related Issue\n\n- Closes #%d\n", number)
	}
	return b.String()
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
