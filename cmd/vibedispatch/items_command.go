package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vibedispatch/internal/dispatch"
	"vibedispatch/internal/pipeline"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var family string
	var needsReview bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "items",
		Short: "Show pipeline items across every stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parseFamily(family)
			if err != nil {
				return err
			}
			return ctx.withSession(func(s *dispatch.Session) error {
				loadErr := loadStages(cmd, s)
				items := s.Items()
				if selected != "" {
					items = pipeline.FilterFamily(items, selected)
				}
				if needsReview {
					items = pipeline.FilterNeedsReview(items)
				}
				if asJSON {
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No items")
				} else {
					fmt.Fprintln(out, renderItems(items, time.Now()))
				}
				fmt.Fprintf(out, "%d item(s), %d waiting for review\n", len(items), s.NeedsReviewCount())
				return loadErr
			})
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "Only show items of one pipeline (maintenance or oss)")
	cmd.Flags().BoolVar(&needsReview, "review", false, "Only show items waiting for review")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print items as JSON")
	return cmd
}

func parseFamily(value string) (pipeline.Family, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case string(pipeline.FamilyMaintenance):
		return pipeline.FamilyMaintenance, nil
	case string(pipeline.FamilyOSS):
		return pipeline.FamilyOSS, nil
	default:
		return "", fmt.Errorf("unknown family %q (expected maintenance or oss)", value)
	}
}

func renderItems(items []pipeline.Item, now time.Time) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			displayLabel(string(item.Status)),
			string(item.Family),
			item.Repo,
			item.Identifier,
			truncate(item.Title, 50),
			fmt.Sprintf("%d/%d", item.CurrentStage, item.TotalStages),
			formatAge(item.UpdatedAt, now),
		})
	}
	return renderTable(
		[]string{"Status", "Family", "Repo", "Ref", "Title", "Stage", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
