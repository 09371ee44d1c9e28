package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"vibedispatch/internal/dispatch"
	"vibedispatch/internal/reviewtui"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Walk the review queue and approve or merge one item at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return ctx.withSession(func(s *dispatch.Session) error {
					loadErr := loadStages(cmd, s)
					out := cmd.OutOrStdout()
					queue := s.Navigator().Items()
					if len(queue) == 0 {
						fmt.Fprintln(out, "Nothing waiting for review")
						return loadErr
					}
					fmt.Fprintln(out, renderItems(queue, time.Now()))
					fmt.Fprintf(out, "%d item(s) waiting for review\n", len(queue))
					return loadErr
				})
			}
			return ctx.withLock(func() error {
				return ctx.withSession(func(s *dispatch.Session) error {
					program := tea.NewProgram(
						reviewtui.New(cmd.Context(), s),
						tea.WithAltScreen(),
						tea.WithContext(cmd.Context()),
						tea.WithOutput(cmd.OutOrStdout()),
					)
					_, err := program.Run()
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "Print the review queue instead of opening the interactive view")
	return cmd
}
