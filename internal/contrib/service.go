package contrib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vibedispatch/internal/config"
	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
	"vibedispatch/internal/logging"
	"vibedispatch/internal/notifications"
	"vibedispatch/internal/recon"
)

// Service runs the open-source contribution flow: watched targets, scored
// issues, fork-and-assign, fork review, and upstream submission.
type Service struct {
	gh       *github.Client
	recon    *recon.Client
	ledger   *ledger.Store
	notifier notifications.Service

	settings        config.OSS
	goTierThreshold int
	logger          *slog.Logger
	now             func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logging.NewComponentLogger(logger, "contrib")
	}
}

// WithClock overrides the time source used by the fallback scorer.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the contribution service. notifier may be nil.
func NewService(cfg *config.Config, gh *github.Client, rc *recon.Client, store *ledger.Store, notifier notifications.Service, opts ...Option) (*Service, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("contrib service requires config")
	case gh == nil:
		return nil, errors.New("contrib service requires a github client")
	case store == nil:
		return nil, errors.New("contrib service requires a ledger")
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	threshold := cfg.Notifications.GoTierThreshold
	if threshold <= 0 {
		threshold = 85
	}
	svc := &Service{
		gh:              gh,
		recon:           rc,
		ledger:          store,
		notifier:        notifier,
		settings:        cfg.OSS,
		goTierThreshold: threshold,
		logger:          logging.NewComponentLogger(nil, "contrib"),
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Principal returns the gh identity owning the forks.
func (s *Service) Principal(ctx context.Context) (string, error) {
	return s.gh.Owner(ctx)
}

// SplitSlug parses owner/repo. Both parts must be non-empty.
func SplitSlug(slug string) (string, string, error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(slug), "/")
	owner, repo = strings.TrimSpace(owner), strings.TrimSpace(repo)
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q: expected owner/repo", slug)
	}
	return owner, repo, nil
}

func (s *Service) concurrency() int {
	if s.settings.MaxForkConcurrency > 0 {
		return s.settings.MaxForkConcurrency
	}
	return 5
}

func (s *Service) warn(msg, eventType string, err error, attrs ...logging.Attr) {
	attrs = append(attrs, logging.Error(err))
	logging.WarnWithContext(s.logger, msg, eventType, attrs...)
}
