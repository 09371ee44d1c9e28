package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vibedispatch/internal/dispatch"
	"vibedispatch/internal/stagestore"
)

func newStagesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var fresh bool

	cmd := &cobra.Command{
		Use:   "stages [KEY...]",
		Short: "Load stages and show their status",
		Long:  "Load the named stages, or every stage when none are named, and show item counts and load errors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fresh {
				a, err := ctx.ensureApp()
				if err != nil {
					return err
				}
				a.gh.InvalidateAll(cmd.Context())
			}
			return ctx.withSession(func(s *dispatch.Session) error {
				loadErr := loadStages(cmd, s, args...)
				statuses := s.Stages()
				if asJSON {
					return writeJSON(cmd, statuses)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderStages(statuses, time.Now()))
				if loadErr != nil {
					return fmt.Errorf("some stages failed to load")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print statuses as JSON")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Drop cached gh responses before loading")
	return cmd
}

// loadStages loads keys, or every stage when keys is empty. Failures are
// already narrated into the sink, so the sink is replayed on stderr.
func loadStages(cmd *cobra.Command, s *dispatch.Session, keys ...string) error {
	stop := streamSink(cmd.ErrOrStderr(), s.Sink())
	defer stop()
	if len(keys) == 0 {
		return s.LoadAll(cmd.Context())
	}
	for _, key := range keys {
		if err := s.Load(cmd.Context(), key); err != nil {
			return err
		}
	}
	return nil
}

func renderStages(statuses []stagestore.SlotStatus, now time.Time) string {
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		state := "ok"
		switch {
		case status.Loading:
			state = "loading"
		case status.Error != "":
			state = truncate(status.Error, 60)
		case status.LastFetchedAt == nil:
			state = "not loaded"
		}
		fetched := "-"
		if status.LastFetchedAt != nil {
			fetched = formatAge(*status.LastFetchedAt, now)
		}
		rows = append(rows, []string{displayLabel(status.Key), strconv.Itoa(status.Count), fetched, state})
	}
	return renderTable([]string{"Stage", "Items", "Fetched", "State"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft, alignLeft}) + "\n"
}
