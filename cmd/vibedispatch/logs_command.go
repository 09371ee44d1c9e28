package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"vibedispatch/internal/logging"
	"vibedispatch/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var level string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the vibedispatch log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.FileName)
			out := cmd.OutOrStdout()
			result, err := logs.Tail(path, logs.TailOptions{Offset: -1, Limit: lines, MinLevel: level})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, result.Offset, level, 0, func(batch []string) {
				for _, line := range batch {
					fmt.Fprintln(out, line)
				}
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&level, "level", "", "Only show lines at or above this level (debug, info, warn, error)")
	return cmd
}
