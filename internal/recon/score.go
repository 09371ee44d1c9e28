package recon

import (
	"sort"
	"strings"
	"time"
)

// FallbackInput is the subset of issue fields the heuristic scorer reads.
type FallbackInput struct {
	Assigned  bool
	Labels    []string
	Comments  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FallbackScore is the heuristic result used when the aggregator has no data.
type FallbackScore struct {
	CVS              int
	Tier             string
	DataCompleteness string
}

const (
	fallbackBase         = 50
	goodFirstIssueBoost  = 20
	stalePenalty         = 30
	silentPenalty        = 10
	staleAfter           = 90 * 24 * time.Hour
	silentAfter          = 14 * 24 * time.Hour
	partialDataCompleted = "partial"
)

// ScoreFallback scores an issue without aggregator data. Assigned issues are
// skipped outright; a good-first-issue label helps, and stale or silent
// issues are penalized.
func ScoreFallback(in FallbackInput, now time.Time) FallbackScore {
	if in.Assigned {
		return FallbackScore{CVS: 0, Tier: TierSkip, DataCompleteness: partialDataCompleted}
	}
	score := fallbackBase
	for _, label := range in.Labels {
		if strings.EqualFold(strings.TrimSpace(label), "good first issue") {
			score += goodFirstIssueBoost
			break
		}
	}
	if !in.UpdatedAt.IsZero() && now.Sub(in.UpdatedAt) > staleAfter {
		score -= stalePenalty
	}
	if in.Comments == 0 && !in.CreatedAt.IsZero() && now.Sub(in.CreatedAt) > silentAfter {
		score -= silentPenalty
	}
	score = max(0, min(100, score))
	return FallbackScore{CVS: score, Tier: TierFor(score), DataCompleteness: partialDataCompleted}
}

// TierFor maps a score to its tier.
func TierFor(score int) string {
	switch {
	case score >= 80:
		return TierGo
	case score >= 60:
		return TierLikely
	case score >= 40:
		return TierMaybe
	case score >= 20:
		return TierRisky
	default:
		return TierSkip
	}
}

// SortByScore orders issues by score descending, then repo and number.
func SortByScore(issues []ScoredIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].CVS != issues[j].CVS {
			return issues[i].CVS > issues[j].CVS
		}
		if issues[i].Repo != issues[j].Repo {
			return issues[i].Repo < issues[j].Repo
		}
		return issues[i].Number < issues[j].Number
	})
}
