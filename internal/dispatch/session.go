package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"vibedispatch/internal/batch"
	"vibedispatch/internal/contrib"
	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
	"vibedispatch/internal/logging"
	"vibedispatch/internal/pipeline"
	"vibedispatch/internal/recon"
	"vibedispatch/internal/review"
	"vibedispatch/internal/stagestore"
)

// Stage keys.
const (
	StageNeedsInstall     = "needs-install"
	StageInstalled        = "installed"
	StageIssues           = "issues"
	StagePullRequests     = "pull-requests"
	StageTargets          = "targets"
	StageScoredIssues     = "scored-issues"
	StageAssignments      = "assignments"
	StageForkPullRequests = "fork-pull-requests"
	StageReadyToSubmit    = "ready-to-submit"
	StageSubmitted        = "submitted"
)

// Options configures a Session.
type Options struct {
	Maintenance *github.Client
	// Contrib enables the OSS stages when set.
	Contrib *contrib.Service
	// Principal is the gh identity owning maintenance repos and forks. It is
	// resolved through Maintenance when empty.
	Principal    string
	AgentPattern string
	Logger       *slog.Logger
	Sink         *logging.Sink
}

// ReviewDetail is the payload the review queue loads for the focused item.
type ReviewDetail = github.PRDetail

// Session is the context object every command works through: the stage
// store, the derived pipeline items, the review queue, and the batch
// coordinators.
type Session struct {
	gh      *github.Client
	contrib *contrib.Service
	logger  *slog.Logger
	sink    *logging.Sink

	principalMu sync.Mutex
	principal   string

	store      *stagestore.Store
	aggregator *pipeline.Aggregator
	navigator  *review.Navigator[ReviewDetail]

	NeedsInstall *stagestore.Slot[github.Repo]
	Installed    *stagestore.Slot[github.RepoRun]
	Issues       *stagestore.Slot[github.Issue]
	PullRequests *stagestore.Slot[github.PullRequest]

	Targets          *stagestore.Slot[contrib.Target]
	ScoredIssues     *stagestore.Slot[recon.ScoredIssue]
	Assignments      *stagestore.Slot[ledger.Assignment]
	ForkPullRequests *stagestore.Slot[github.PullRequest]
	ReadyToSubmit    *stagestore.Slot[ledger.ReadyToSubmit]
	Submitted        *stagestore.Slot[ledger.SubmittedPR]

	Install       *batch.Coordinator[github.Repo]
	Update        *batch.Coordinator[github.RepoRun]
	Run           *batch.Coordinator[github.RepoRun]
	Assign        *batch.Coordinator[github.Issue]
	Approve       *batch.Coordinator[github.PullRequest]
	Merge         *batch.Coordinator[github.PullRequest]
	ForkAssign    *batch.Coordinator[recon.ScoredIssue]
	ApproveFork   *batch.Coordinator[github.PullRequest]
	MergeFork     *batch.Coordinator[github.PullRequest]
	Submit        *batch.Coordinator[ledger.ReadyToSubmit]
	ReviewApprove *batch.Coordinator[pipeline.Item]
	ReviewMerge   *batch.Coordinator[pipeline.Item]

	itemsMu     sync.Mutex
	items       []pipeline.Item
	unsubscribe func()
}

// New defines every stage and coordinator and starts deriving items from
// store changes.
func New(opts Options) (*Session, error) {
	if opts.Maintenance == nil {
		return nil, errors.New("dispatch session requires a github client")
	}
	if opts.Sink == nil {
		opts.Sink = logging.NewSink(0)
	}
	pattern := opts.AgentPattern
	if pattern == "" {
		pattern = opts.Maintenance.AgentPattern()
	}
	logger := logging.NewComponentLogger(opts.Logger, "dispatch")
	s := &Session{
		gh:         opts.Maintenance,
		contrib:    opts.Contrib,
		logger:     logger,
		sink:       opts.Sink,
		principal:  opts.Principal,
		// Load failures are narrated by stageFetcher; other store warnings
		// reach the sink through the tee.
		store:      stagestore.New(logging.TeeLogger(opts.Logger, logging.NewSinkHandler(opts.Sink, slog.LevelWarn, stagestore.EventLoadFailed))),
		aggregator: pipeline.NewAggregator(pattern),
	}
	s.navigator = review.NewNavigator(s.fetchDetail, opts.Sink, opts.Logger)

	if err := s.defineStages(); err != nil {
		return nil, err
	}
	if err := s.defineCoordinators(); err != nil {
		return nil, err
	}
	s.unsubscribe = s.store.Subscribe(func(string) { s.recompute() })
	return s, nil
}

// Close stops deriving items from store changes.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Sink returns the progress log.
func (s *Session) Sink() *logging.Sink {
	return s.sink
}

// Principal returns the gh identity owning repos and forks.
func (s *Session) Principal(ctx context.Context) (string, error) {
	s.principalMu.Lock()
	defer s.principalMu.Unlock()
	if s.principal != "" {
		return s.principal, nil
	}
	owner, err := s.gh.Owner(ctx)
	if err != nil {
		return "", err
	}
	s.principal = owner
	return owner, nil
}

// HasContrib reports whether the OSS stages are defined.
func (s *Session) HasContrib() bool {
	return s.contrib != nil
}

// Stages returns one status row per stage in definition order.
func (s *Session) Stages() []stagestore.SlotStatus {
	return s.store.Statuses()
}

// LoadAll refreshes every stage concurrently.
func (s *Session) LoadAll(ctx context.Context) error {
	return s.store.LoadAll(ctx)
}

// Load refreshes one stage by key.
func (s *Session) Load(ctx context.Context, key string) error {
	return s.store.Load(ctx, key)
}

// Items returns the pipeline items in display order.
func (s *Session) Items() []pipeline.Item {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	return append([]pipeline.Item(nil), s.items...)
}

// NeedsReviewCount returns how many items wait in the review queue.
func (s *Session) NeedsReviewCount() int {
	return len(pipeline.FilterNeedsReview(s.Items()))
}

// Navigator returns the review queue.
func (s *Session) Navigator() *review.Navigator[ReviewDetail] {
	return s.navigator
}

// LoadCurrentDetails loads the detail payload of the focused review item.
func (s *Session) LoadCurrentDetails(ctx context.Context) bool {
	principal, err := s.Principal(ctx)
	if err != nil {
		s.sink.Error("Failed to resolve GitHub user: %v", err)
		return false
	}
	return s.navigator.LoadCurrentDetails(ctx, principal)
}

// PollSubmitted refreshes the upstream state of submitted pull requests and
// replaces the submitted stage with the result.
func (s *Session) PollSubmitted(ctx context.Context) (contrib.PollResult, error) {
	if s.contrib == nil {
		return contrib.PollResult{}, errors.New("contribution pipeline is not configured")
	}
	result, prs, err := s.contrib.PollSubmitted(ctx)
	if prs != nil {
		s.Submitted.Replace(prs)
	}
	if err != nil {
		return result, err
	}
	if n := len(result.Merged); n > 0 {
		s.sink.Success("%d submitted PR(s) merged upstream", n)
	}
	if n := len(result.Feedback); n > 0 {
		s.sink.Info("%d submitted PR(s) received review feedback", n)
	}
	s.sink.Info("Polled %d submitted PR(s)", result.Checked)
	return result, nil
}

func (s *Session) snapshot() pipeline.Snapshot {
	snap := pipeline.Snapshot{
		Issues:       s.Issues.Items(),
		PullRequests: s.PullRequests.Items(),
	}
	if s.contrib != nil {
		snap.Assignments = s.Assignments.Items()
		snap.ForkPullRequests = s.ForkPullRequests.Items()
		snap.ReadyToSubmit = s.ReadyToSubmit.Items()
		snap.Submitted = s.Submitted.Items()
	}
	return snap
}

// recompute derives items from the current stage data and resyncs the review
// queue. Calls are serialized so the last change always wins.
func (s *Session) recompute() {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	s.items = s.aggregator.Recompute(s.snapshot())
	s.navigator.Sync(pipeline.FilterNeedsReview(s.items))
}

func (s *Session) fetchDetail(ctx context.Context, repoRef string, number int) review.DetailResult[ReviewDetail] {
	detail, err := s.gh.PRDetail(ctx, repoRef, number)
	if err != nil {
		return review.DetailResult[ReviewDetail]{Error: err.Error()}
	}
	return review.DetailResult[ReviewDetail]{Success: true, Record: detail}
}
