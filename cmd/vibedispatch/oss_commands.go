package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vibedispatch/internal/batch"
	"vibedispatch/internal/contrib"
	"vibedispatch/internal/dispatch"
	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
	"vibedispatch/internal/recon"
	"vibedispatch/internal/stagestore"
)

func newOSSCommand(ctx *commandContext) *cobra.Command {
	ossCmd := &cobra.Command{
		Use:   "oss",
		Short: "Open-source contribution pipeline",
	}

	ossCmd.AddCommand(newOSSTargetsCommand(ctx))
	ossCmd.AddCommand(newOSSIssuesCommand(ctx))
	ossCmd.AddCommand(newOSSSelectCommand(ctx))
	ossCmd.AddCommand(newBatchCommand(ctx, batchSpec[recon.ScoredIssue]{
		use:         "fork-assign [OWNER/REPO#N...]",
		short:       "Fork upstream repositories and assign the agent to issues",
		stage:       dispatch.StageScoredIssues,
		ref:         func(i recon.ScoredIssue) string { return issueRef(i.Repo, i.Number) },
		eligible:    func(i recon.ScoredIssue) bool { return i.Number > 0 && i.CVSTier != recon.TierSkip },
		slot:        func(s *dispatch.Session) *stagestore.Slot[recon.ScoredIssue] { return s.ScoredIssues },
		coordinator: func(s *dispatch.Session) *batch.Coordinator[recon.ScoredIssue] { return s.ForkAssign },
		headers:     []string{"Score", "Tier", "Title"},
		row:         scoredIssueRow,
	}))
	ossCmd.AddCommand(newBatchCommand(ctx, forkPullRequestSpec("approve [REPO#N...]", "Approve agent pull requests on forks",
		func(s *dispatch.Session) *batch.Coordinator[github.PullRequest] { return s.ApproveFork },
		func(pr github.PullRequest) bool { return pr.ReviewDecision != approvedDecision })))
	ossCmd.AddCommand(newBatchCommand(ctx, forkPullRequestSpec("merge [REPO#N...]", "Merge fork pull requests and queue them for upstream submission",
		func(s *dispatch.Session) *batch.Coordinator[github.PullRequest] { return s.MergeFork },
		nil)))
	ossCmd.AddCommand(newBatchCommand(ctx, batchSpec[ledger.ReadyToSubmit]{
		use:         "submit [OWNER/REPO@BRANCH...]",
		short:       "Open upstream pull requests from merged fork branches",
		stage:       dispatch.StageReadyToSubmit,
		ref:         func(r ledger.ReadyToSubmit) string { return r.OriginSlug + "@" + r.Branch },
		slot:        func(s *dispatch.Session) *stagestore.Slot[ledger.ReadyToSubmit] { return s.ReadyToSubmit },
		coordinator: func(s *dispatch.Session) *batch.Coordinator[ledger.ReadyToSubmit] { return s.Submit },
		headers:     []string{"Base", "Title", "Merged"},
		row: func(r ledger.ReadyToSubmit) []string {
			return []string{r.BaseBranch, truncate(r.Title, 50), formatAge(r.MergedAt, time.Now())}
		},
	}))
	ossCmd.AddCommand(newOSSPollCommand(ctx))
	ossCmd.AddCommand(newOSSReleaseCommand(ctx))
	ossCmd.AddCommand(newOSSWatchCommand(ctx))

	return ossCmd
}

func forkPullRequestSpec(use, short string, coordinator func(*dispatch.Session) *batch.Coordinator[github.PullRequest], eligible func(github.PullRequest) bool) batchSpec[github.PullRequest] {
	return batchSpec[github.PullRequest]{
		use:         use,
		short:       short,
		stage:       dispatch.StageForkPullRequests,
		ref:         func(pr github.PullRequest) string { return issueRef(pr.Repo, pr.Number) },
		eligible:    eligible,
		slot:        func(s *dispatch.Session) *stagestore.Slot[github.PullRequest] { return s.ForkPullRequests },
		coordinator: coordinator,
		headers:     []string{"Upstream", "Agent done", "Title"},
		row: func(pr github.PullRequest) []string {
			done := pr.AgentCompleted != nil && *pr.AgentCompleted
			return []string{pr.OriginSlug, yesNo(done), truncate(pr.Title, 50)}
		},
	}
}

func scoredIssueRow(i recon.ScoredIssue) []string {
	return []string{strconv.Itoa(i.CVS), displayLabel(i.CVSTier), truncate(i.Title, 50)}
}

func newOSSTargetsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List watched upstream repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *dispatch.Session) error {
				if err := loadStages(cmd, s, dispatch.StageTargets); err != nil {
					return err
				}
				targets := s.Targets.Items()
				if asJSON {
					return writeJSON(cmd, targets)
				}
				if len(targets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No watched repositories; add one with `vibedispatch oss watch add OWNER/REPO`")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTargets(targets))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print targets as JSON")
	return cmd
}

func renderTargets(targets []contrib.Target) string {
	rows := make([][]string, 0, len(targets))
	for _, t := range targets {
		viability, stars, language := "-", "-", "-"
		if t.Health != nil {
			viability = strconv.FormatFloat(t.Health.OverallViability, 'f', 1, 64)
		}
		if t.Meta != nil {
			stars = strconv.Itoa(t.Meta.Stars)
			if t.Meta.Language != "" {
				language = t.Meta.Language
			}
		}
		rows = append(rows, []string{t.OriginSlug(), t.Source, viability, stars, language})
	}
	return renderTable(
		[]string{"Repository", "Source", "Viability", "Stars", "Language"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func newOSSIssuesCommand(ctx *commandContext) *cobra.Command {
	var minScore int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List scored upstream issues, best first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *dispatch.Session) error {
				if err := loadStages(cmd, s, dispatch.StageScoredIssues); err != nil {
					return err
				}
				issues := filterCandidates(s.ScoredIssues.Items(), func(i recon.ScoredIssue) bool { return i.CVS >= minScore })
				if asJSON {
					return writeJSON(cmd, issues)
				}
				if len(issues) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No scored issues")
					return nil
				}
				rows := make([][]string, 0, len(issues))
				for _, i := range issues {
					rows = append(rows, append([]string{issueRef(i.Repo, i.Number)}, scoredIssueRow(i)...))
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Ref", "Score", "Tier", "Title"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&minScore, "min-score", 0, "Hide issues scoring below this value")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print issues as JSON")
	return cmd
}

func newOSSSelectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "select OWNER/REPO#N...",
		Short: "Mark scored issues as picked for work",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLock(func() error {
				a, err := ctx.ensureApp()
				if err != nil {
					return err
				}
				if err := loadStages(cmd, a.session, dispatch.StageScoredIssues); err != nil {
					return err
				}
				matched, err := matchRefs(a.session.ScoredIssues.Items(), func(i recon.ScoredIssue) string { return issueRef(i.Repo, i.Number) }, args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, issue := range matched {
					added, err := a.contrib.SelectIssue(cmd.Context(), issue)
					if err != nil {
						return err
					}
					ref := issueRef(issue.Repo, issue.Number)
					if added {
						fmt.Fprintf(out, "Selected %s\n", ref)
					} else {
						fmt.Fprintf(out, "%s was already selected\n", ref)
					}
				}
				return nil
			})
		},
	}
}

func newOSSPollCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Refresh the upstream state of submitted pull requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLock(func() error {
				return ctx.withSession(func(s *dispatch.Session) error {
					stop := streamSink(cmd.ErrOrStderr(), s.Sink())
					result, err := s.PollSubmitted(cmd.Context())
					stop()
					if err != nil {
						return err
					}
					submitted := s.Submitted.Items()
					if asJSON {
						return writeJSON(cmd, submitted)
					}
					if len(submitted) > 0 {
						fmt.Fprintln(cmd.OutOrStdout(), renderSubmitted(submitted))
					}
					if n := len(result.Failed); n > 0 {
						return fmt.Errorf("%d submitted pull request(s) could not be polled", n)
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print submitted pull requests as JSON")
	return cmd
}

func renderSubmitted(prs []ledger.SubmittedPR) string {
	rows := make([][]string, 0, len(prs))
	now := time.Now()
	for _, pr := range prs {
		attention := ""
		if contrib.NeedsAttention(pr) {
			attention = "!"
		}
		polled := "-"
		if pr.LastPolledAt != nil {
			polled = formatAge(*pr.LastPolledAt, now)
		}
		rows = append(rows, []string{
			attention,
			pr.OriginSlug,
			displayLabel(strings.ToLower(pr.State)),
			displayLabel(strings.ToLower(pr.ReviewDecision)),
			pr.PRURL,
			polled,
		})
	}
	return renderTable([]string{"", "Upstream", "State", "Review", "URL", "Polled"}, rows, nil)
}

func newOSSReleaseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "release OWNER/REPO#N",
		Short: "Drop the local assignment and the aggregator claim for an upstream issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			origin, number, err := parseIssueRef(args[0])
			if err != nil {
				return err
			}
			return ctx.withLock(func() error {
				a, err := ctx.ensureApp()
				if err != nil {
					return err
				}
				removed, err := a.contrib.Release(cmd.Context(), origin, number)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "No assignment for %s\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %s\n", args[0])
				return nil
			})
		},
	}
}

func newOSSWatchCommand(ctx *commandContext) *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the watched upstream repositories",
	}

	watchCmd.AddCommand(&cobra.Command{
		Use:   "add OWNER/REPO",
		Short: "Watch an upstream repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContrib(ctx, func(svc *contrib.Service) error {
				added, err := svc.AddWatch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if added {
					fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already watched\n", args[0])
				}
				return nil
			})
		},
	})
	watchCmd.AddCommand(&cobra.Command{
		Use:   "remove OWNER/REPO|SLUG",
		Short: "Stop watching a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContrib(ctx, func(svc *contrib.Service) error {
				removed, err := svc.RemoveWatch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Stopped watching %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s was not watched\n", args[0])
				}
				return nil
			})
		},
	})
	watchCmd.AddCommand(&cobra.Command{
		Use:   "refresh OWNER/REPO|SLUG",
		Short: "Ask the aggregator to re-scan a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContrib(ctx, func(svc *contrib.Service) error {
				if err := svc.RefreshTarget(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refresh requested for %s\n", args[0])
				return nil
			})
		},
	})

	return watchCmd
}

func withContrib(ctx *commandContext, fn func(*contrib.Service) error) error {
	return ctx.withLock(func() error {
		a, err := ctx.ensureApp()
		if err != nil {
			return err
		}
		return fn(a.contrib)
	})
}

// parseIssueRef splits owner/repo#N.
func parseIssueRef(ref string) (string, int, error) {
	origin, num, ok := strings.Cut(strings.TrimSpace(ref), "#")
	if !ok {
		return "", 0, fmt.Errorf("invalid issue reference %q: expected OWNER/REPO#N", ref)
	}
	if _, _, err := contrib.SplitSlug(origin); err != nil {
		return "", 0, err
	}
	number, err := strconv.Atoi(num)
	if err != nil || number <= 0 {
		return "", 0, fmt.Errorf("invalid issue number in %q", ref)
	}
	return strings.TrimSpace(origin), number, nil
}
