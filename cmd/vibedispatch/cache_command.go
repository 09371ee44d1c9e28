package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the gh response cache",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear [PREFIX]",
		Short: "Drop cached gh responses, optionally only keys starting with PREFIX",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			cleared, err := a.ledger.CacheClear(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache entr%s\n", cleared, plural(cleared, "y", "ies"))
			return nil
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache size and age",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			stats, err := a.ledger.CacheStats(cmd.Context())
			if err != nil {
				return err
			}
			oldest := "-"
			if stats.OldestAt != nil {
				oldest = formatAge(*stats.OldestAt, time.Now())
			}
			cfg, _ := ctx.ensureConfig()
			rows := [][]string{
				{"Enabled", yesNo(cfg.Cache.Enabled)},
				{"Entries", strconv.Itoa(stats.Entries)},
				{"Expired", strconv.Itoa(stats.Expired)},
				{"Bytes", strconv.FormatInt(stats.Bytes, 10)},
				{"Oldest", oldest},
				{"Database", a.ledger.Path()},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	})

	return cacheCmd
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
