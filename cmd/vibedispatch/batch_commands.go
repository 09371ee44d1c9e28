package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vibedispatch/internal/batch"
	"vibedispatch/internal/dispatch"
	"vibedispatch/internal/stagestore"
)

// batchSpec describes one action command built on a coordinator.
type batchSpec[T any] struct {
	use   string
	short string
	stage string
	// ref is the user-facing reference matched against arguments.
	ref func(T) string
	// eligible narrows the stage items to valid candidates; nil keeps all.
	eligible    func(T) bool
	slot        func(*dispatch.Session) *stagestore.Slot[T]
	coordinator func(*dispatch.Session) *batch.Coordinator[T]
	headers     []string
	row         func(T) []string
}

func newBatchCommand[T any](ctx *commandContext, spec batchSpec[T]) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   spec.use,
		Short: spec.short,
		Long:  spec.short + ".\n\nWithout arguments or --all the candidates are listed and nothing runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("pass references or --all, not both")
			}
			list := !all && len(args) == 0
			run := func() error {
				return ctx.withSession(func(s *dispatch.Session) error {
					return runBatch(cmd, s, spec, args, all, list)
				})
			}
			if list {
				return run()
			}
			return ctx.withLock(run)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Act on every candidate")
	return cmd
}

func runBatch[T any](cmd *cobra.Command, s *dispatch.Session, spec batchSpec[T], refs []string, all, list bool) error {
	coordinator := spec.coordinator(s)
	if coordinator == nil {
		return fmt.Errorf("%s is unavailable: contribution pipeline is not configured", spec.use)
	}
	if err := loadStages(cmd, s, spec.stage); err != nil {
		return err
	}
	candidates := filterCandidates(spec.slot(s).Items(), spec.eligible)
	out := cmd.OutOrStdout()

	if list {
		if len(candidates) == 0 {
			fmt.Fprintln(out, "No candidates")
			return nil
		}
		rows := make([][]string, 0, len(candidates))
		for _, item := range candidates {
			rows = append(rows, append([]string{spec.ref(item)}, spec.row(item)...))
		}
		fmt.Fprintln(out, renderTable(append([]string{"Ref"}, spec.headers...), rows, nil))
		return nil
	}

	selected := candidates
	if !all {
		matched, err := matchRefs(candidates, spec.ref, refs)
		if err != nil {
			return err
		}
		selected = matched
	}
	if len(selected) == 0 {
		fmt.Fprintln(out, "No candidates")
		return nil
	}
	coordinator.SelectAll(selected)

	stop := streamSink(out, s.Sink())
	summary := coordinator.ProcessSelected(cmd.Context(), selected)
	stop()
	if summary.Canceled {
		return cmd.Context().Err()
	}
	if failed := summary.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d failed", failed, summary.Total)
	}
	return nil
}

func filterCandidates[T any](items []T, eligible func(T) bool) []T {
	if eligible == nil {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if eligible(item) {
			out = append(out, item)
		}
	}
	return out
}

// matchRefs resolves each reference to exactly one candidate, ignoring case.
func matchRefs[T any](candidates []T, ref func(T) string, refs []string) ([]T, error) {
	out := make([]T, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, want := range refs {
		want = strings.TrimSpace(want)
		found := false
		for _, item := range candidates {
			got := ref(item)
			if !strings.EqualFold(got, want) {
				continue
			}
			found = true
			if _, dup := seen[got]; !dup {
				seen[got] = struct{}{}
				out = append(out, item)
			}
			break
		}
		if !found {
			return nil, fmt.Errorf("no candidate matches %q", want)
		}
	}
	return out, nil
}
