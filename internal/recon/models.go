package recon

import "time"

// Health is the aggregator's viability breakdown for a watched repository.
type Health struct {
	MaintainerHealthScore   float64 `json:"maintainerHealthScore"`
	MergeAccessibilityScore float64 `json:"mergeAccessibilityScore"`
	AvailabilityScore       float64 `json:"availabilityScore"`
	OverallViability        float64 `json:"overallViability"`
}

// ScoredIssue is an upstream issue ranked by contribution viability.
// Repo is the owner/repo slug.
type ScoredIssue struct {
	ID               string    `json:"id"`
	Repo             string    `json:"repo"`
	Number           int       `json:"number"`
	Title            string    `json:"title"`
	URL              string    `json:"url"`
	Labels           []string  `json:"labels"`
	Comments         int       `json:"comments"`
	CVS              int       `json:"cvs"`
	CVSTier          string    `json:"cvsTier"`
	DataCompleteness string    `json:"dataCompleteness"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Dossier is the aggregator's contribution guide for a repository.
type Dossier struct {
	Slug              string            `json:"slug"`
	ContributionRules string            `json:"contributionRules"`
	SuccessPatterns   string            `json:"successPatterns"`
	Sections          map[string]string `json:"sections"`
}

// Score tiers, highest first.
const (
	TierGo     = "go"
	TierLikely = "likely"
	TierMaybe  = "maybe"
	TierRisky  = "risky"
	TierSkip   = "skip"
)
