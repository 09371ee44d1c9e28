package contrib

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
	"vibedispatch/internal/logging"
	"vibedispatch/internal/recon"
)

// Target sources.
const (
	SourceAggregator = "aggregator"
	SourceLocal      = "local"
)

// Target is a watched upstream repository. Aggregator targets carry Health;
// local targets carry Meta.
type Target struct {
	Slug    string
	Owner   string
	Repo    string
	Source  string
	Health  *recon.Health
	Meta    *github.RepoMeta
	AddedAt time.Time
}

// OriginSlug returns owner/repo, or Slug when the owner is unknown.
func (t Target) OriginSlug() string {
	if t.Owner == "" {
		return t.Slug
	}
	return t.Owner + "/" + t.Repo
}

// Targets lists watched repositories. The aggregator watchlist wins when it
// has entries; otherwise the local watchlist is enriched through gh.
func (s *Service) Targets(ctx context.Context) ([]Target, error) {
	local, err := s.ledger.Watchlist(ctx)
	if err != nil {
		return nil, err
	}
	slugs, err := s.recon.Watchlist(ctx)
	if err != nil {
		s.warn("aggregator watchlist unavailable", "recon_watchlist_failed", err,
			logging.String(logging.FieldImpact, "falling back to the local watchlist"))
	}
	if len(slugs) > 0 {
		return s.aggregatorTargets(ctx, slugs, local), nil
	}
	return s.localTargets(ctx, local), nil
}

func (s *Service) aggregatorTargets(ctx context.Context, slugs []string, local []ledger.WatchEntry) []Target {
	byHyphen := make(map[string]ledger.WatchEntry, len(local))
	for _, entry := range local {
		byHyphen[entry.Slug] = entry
	}
	p := pool.NewWithResults[Target]().WithMaxGoroutines(s.concurrency())
	for _, slug := range slugs {
		p.Go(func() Target {
			target := Target{Slug: slug, Source: SourceAggregator}
			if owner, repo, err := SplitSlug(slug); err == nil {
				target.Owner, target.Repo = owner, repo
			} else if entry, ok := byHyphen[slug]; ok {
				target.Owner, target.Repo, target.AddedAt = entry.Owner, entry.Repo, entry.AddedAt
			} else {
				target.Repo = slug
			}
			health, err := s.recon.Health(ctx, slug)
			if err != nil {
				s.warn("target health unavailable", "recon_health_failed", err, logging.String(logging.FieldRepo, slug))
			}
			target.Health = health
			return target
		})
	}
	targets := p.Wait()
	sortTargets(targets)
	return targets
}

func (s *Service) localTargets(ctx context.Context, local []ledger.WatchEntry) []Target {
	p := pool.NewWithResults[Target]().WithMaxGoroutines(s.concurrency())
	for _, entry := range local {
		p.Go(func() Target {
			target := Target{
				Slug:    entry.Slug,
				Owner:   entry.Owner,
				Repo:    entry.Repo,
				Source:  SourceLocal,
				AddedAt: entry.AddedAt,
			}
			meta, err := s.gh.RepoMeta(ctx, entry.OriginSlug())
			if err != nil {
				s.warn("target metadata unavailable", "repo_meta_failed", err, logging.String(logging.FieldRepo, entry.OriginSlug()))
			}
			target.Meta = meta
			return target
		})
	}
	targets := p.Wait()
	sortTargets(targets)
	return targets
}

func sortTargets(targets []Target) {
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].OriginSlug() < targets[j].OriginSlug()
	})
}

// AddWatch validates owner/repo, confirms the repository exists, and records
// it on the local watchlist and, when configured, the aggregator. It reports
// false when the repository was already watched locally.
func (s *Service) AddWatch(ctx context.Context, slug string) (bool, error) {
	owner, repo, err := SplitSlug(slug)
	if err != nil {
		return false, err
	}
	origin := owner + "/" + repo
	if !s.gh.RepoExists(ctx, origin) {
		return false, fmt.Errorf("repository %s not found", origin)
	}
	added, err := s.ledger.AddWatch(ctx, owner, repo)
	if err != nil {
		return false, err
	}
	if err := s.recon.AddWatch(ctx, origin); err != nil && !errors.Is(err, recon.ErrNotConfigured) {
		s.warn("aggregator watch failed", "recon_watch_failed", err,
			logging.String(logging.FieldRepo, origin),
			logging.String(logging.FieldImpact, "repository is watched locally only"))
	}
	return added, nil
}

// RemoveWatch removes a repository given as owner/repo or as the hyphenated
// slug of a local watchlist entry. Removing an unwatched owner/repo is a
// no-op that reports false.
func (s *Service) RemoveWatch(ctx context.Context, ref string) (bool, error) {
	owner, repo, err := s.resolveWatchRef(ctx, ref)
	if err != nil {
		return false, err
	}
	removed, err := s.ledger.RemoveWatch(ctx, owner, repo)
	if err != nil {
		return false, err
	}
	origin := owner + "/" + repo
	if err := s.recon.RemoveWatch(ctx, origin); err != nil && !errors.Is(err, recon.ErrNotConfigured) {
		s.warn("aggregator unwatch failed", "recon_unwatch_failed", err, logging.String(logging.FieldRepo, origin))
	}
	return removed, nil
}

// RefreshTarget asks the aggregator to re-scrape a repository and drops the
// cached gh responses for it.
func (s *Service) RefreshTarget(ctx context.Context, ref string) error {
	owner, repo, err := s.resolveWatchRef(ctx, ref)
	if err != nil {
		return err
	}
	origin := owner + "/" + repo
	s.gh.InvalidateRepo(ctx, origin)
	return s.recon.Refresh(ctx, origin)
}

func (s *Service) resolveWatchRef(ctx context.Context, ref string) (string, string, error) {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "/") {
		return SplitSlug(ref)
	}
	entry, err := s.ledger.FindWatchBySlug(ctx, ref)
	if err != nil {
		return "", "", err
	}
	if entry == nil {
		return "", "", fmt.Errorf("%q is not on the watchlist", ref)
	}
	return entry.Owner, entry.Repo, nil
}
