package dispatch

import (
	"context"

	"vibedispatch/internal/stagestore"
)

func (s *Session) defineStages() error {
	var err error
	if s.NeedsInstall, err = stagestore.Define(s.store, StageNeedsInstall, stageFetcher(s, StageNeedsInstall, s.gh.ReposNeedingInstall)); err != nil {
		return err
	}
	if s.Installed, err = stagestore.Define(s.store, StageInstalled, stageFetcher(s, StageInstalled, s.gh.InstalledRepos)); err != nil {
		return err
	}
	if s.Issues, err = stagestore.Define(s.store, StageIssues, stageFetcher(s, StageIssues, s.gh.CheckIssues)); err != nil {
		return err
	}
	if s.PullRequests, err = stagestore.Define(s.store, StagePullRequests, stageFetcher(s, StagePullRequests, s.gh.OpenPRs)); err != nil {
		return err
	}
	if s.contrib == nil {
		return nil
	}

	c := s.contrib
	if s.Targets, err = stagestore.Define(s.store, StageTargets, stageFetcher(s, StageTargets, c.Targets)); err != nil {
		return err
	}
	if s.ScoredIssues, err = stagestore.Define(s.store, StageScoredIssues, stageFetcher(s, StageScoredIssues, c.ScoredIssues)); err != nil {
		return err
	}
	if s.Assignments, err = stagestore.Define(s.store, StageAssignments, stageFetcher(s, StageAssignments, c.Assignments)); err != nil {
		return err
	}
	if s.ForkPullRequests, err = stagestore.Define(s.store, StageForkPullRequests, stageFetcher(s, StageForkPullRequests, c.ForkPullRequests)); err != nil {
		return err
	}
	if s.ReadyToSubmit, err = stagestore.Define(s.store, StageReadyToSubmit, stageFetcher(s, StageReadyToSubmit, c.ReadyToSubmit)); err != nil {
		return err
	}
	if s.Submitted, err = stagestore.Define(s.store, StageSubmitted, stageFetcher(s, StageSubmitted, c.Submitted)); err != nil {
		return err
	}
	return nil
}

// stageFetcher adapts an adapter call to the store's fetch contract and
// narrates failures into the sink.
func stageFetcher[T any](s *Session, key string, fetch func(context.Context) ([]T, error)) stagestore.Fetcher[T] {
	return func(ctx context.Context) stagestore.FetchResult[T] {
		items, err := fetch(ctx)
		if err != nil {
			s.sink.Error("Failed to load %s: %v", key, err)
			return stagestore.FetchResult[T]{Error: err.Error()}
		}
		return stagestore.FetchResult[T]{Success: true, Items: items}
	}
}

// refreshFromLedger replaces a ledger-backed stage after a local mutation.
func refreshFromLedger[T any](s *Session, slot *stagestore.Slot[T], key string, list func(context.Context) ([]T, error)) {
	if slot == nil {
		return
	}
	items, err := list(context.Background())
	if err != nil {
		s.sink.Warning("Failed to refresh %s: %v", key, err)
		return
	}
	slot.Replace(items)
}

