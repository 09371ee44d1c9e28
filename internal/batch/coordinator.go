package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"vibedispatch/internal/logging"
)

// Options configures a Coordinator.
type Options[T any] struct {
	// Verb is the past-tense action name used in log lines, e.g. "Installed".
	Verb string
	// Process performs the remote action for one item.
	Process func(ctx context.Context, item T) (Result, error)
	// ItemID returns the selection key of an item.
	ItemID func(item T) string
	// ItemName returns the label used in log lines.
	ItemName func(item T) string
	// OnSuccess applies the local mutation after a successful action.
	OnSuccess func(item T, result Result)
	Sink      *logging.Sink
	Logger    *slog.Logger
}

// Summary reports the outcome of one ProcessSelected run.
type Summary struct {
	BatchID   string
	Verb      string
	Total     int
	Succeeded int
	Failures  map[string]string
	Canceled  bool
}

// Failed returns how many items failed.
func (s Summary) Failed() int {
	return len(s.Failures)
}

// String renders the summary line.
func (s Summary) String() string {
	return fmt.Sprintf("%s %d/%d", s.Verb, s.Succeeded, s.Total)
}

// Coordinator runs one action over a user-selected subset of items, one item
// at a time. Runs on the same coordinator are serialized. Callbacks run
// without the selection lock held, so they may mutate stage data or the
// review queue.
type Coordinator[T any] struct {
	opts   Options[T]
	logger *slog.Logger

	runMu    sync.Mutex
	mu       sync.Mutex
	selected map[string]struct{}
}

// New validates opts and builds a coordinator.
func New[T any](opts Options[T]) (*Coordinator[T], error) {
	switch {
	case opts.Verb == "":
		return nil, errors.New("batch coordinator requires a verb")
	case opts.Process == nil:
		return nil, errors.New("batch coordinator requires a process function")
	case opts.ItemID == nil:
		return nil, errors.New("batch coordinator requires an item id function")
	}
	if opts.ItemName == nil {
		opts.ItemName = opts.ItemID
	}
	return &Coordinator[T]{
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "batch").With(logging.String(logging.FieldAction, opts.Verb)),
		selected: make(map[string]struct{}),
	}, nil
}

// Verb returns the action verb.
func (c *Coordinator[T]) Verb() string {
	return c.opts.Verb
}

// Toggle flips the selection of id and reports whether it is now selected.
func (c *Coordinator[T]) Toggle(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.selected[id]; ok {
		delete(c.selected, id)
		return false
	}
	c.selected[id] = struct{}{}
	return true
}

// SelectAll replaces the selection with exactly the ids of candidates.
func (c *Coordinator[T]) SelectAll(candidates []T) {
	next := make(map[string]struct{}, len(candidates))
	for _, item := range candidates {
		next[c.opts.ItemID(item)] = struct{}{}
	}
	c.mu.Lock()
	c.selected = next
	c.mu.Unlock()
}

// SelectNone clears the selection.
func (c *Coordinator[T]) SelectNone() {
	c.mu.Lock()
	c.selected = make(map[string]struct{})
	c.mu.Unlock()
}

// IsSelected reports whether id is selected.
func (c *Coordinator[T]) IsSelected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selected[id]
	return ok
}

// Selected returns the selected ids in sorted order.
func (c *Coordinator[T]) Selected() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.selected))
	for id := range c.selected {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// ProcessSelected runs the action for every selected candidate in candidate
// order. Failures never stop the run; cancellation stops it before the next
// item and leaves the remaining items selected. An empty selection logs
// nothing and returns a zero summary.
func (c *Coordinator[T]) ProcessSelected(ctx context.Context, candidates []T) Summary {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	targets := c.selectedCandidates(candidates)
	summary := Summary{Verb: c.opts.Verb, Total: len(targets)}
	if len(targets) == 0 {
		return summary
	}
	summary.BatchID = uuid.NewString()
	logger := c.logger.With(logging.String(logging.FieldBatchID, summary.BatchID))
	logger.Info("batch started", logging.Int("items", len(targets)))

	for idx, item := range targets {
		if err := ctx.Err(); err != nil {
			summary.Canceled = true
			remaining := len(targets) - idx
			c.opts.Sink.Warning("%s canceled; %d not attempted", c.opts.Verb, remaining)
			logging.WarnWithContext(logger, "batch canceled", "batch_canceled",
				logging.Int("remaining", remaining),
				logging.Error(err),
				logging.String(logging.FieldImpact, "remaining items stay selected"),
			)
			break
		}
		if ok, errText := c.processOne(ctx, logger, item); ok {
			summary.Succeeded++
		} else {
			if summary.Failures == nil {
				summary.Failures = make(map[string]string)
			}
			summary.Failures[c.opts.ItemID(item)] = errText
		}
	}

	switch {
	case summary.Succeeded == summary.Total:
		c.opts.Sink.Success("%s", summary.String())
	case summary.Succeeded == 0:
		c.opts.Sink.Error("%s", summary.String())
	default:
		c.opts.Sink.Warning("%s", summary.String())
	}
	logger.Info("batch finished",
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed()),
		logging.Int("total", summary.Total),
		logging.Bool("canceled", summary.Canceled),
	)
	return summary
}

// ProcessSingle runs the action for one item with the same per-item contract
// as ProcessSelected and no summary line.
func (c *Coordinator[T]) ProcessSingle(ctx context.Context, item T) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	logger := c.logger.With(logging.String(logging.FieldBatchID, uuid.NewString()))
	ok, _ := c.processOne(ctx, logger, item)
	return ok
}

func (c *Coordinator[T]) selectedCandidates(candidates []T) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.selected))
	seen := make(map[string]struct{}, len(c.selected))
	for _, item := range candidates {
		id := c.opts.ItemID(item)
		if _, ok := c.selected[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item)
	}
	return out
}

func (c *Coordinator[T]) processOne(ctx context.Context, logger *slog.Logger, item T) (bool, string) {
	id := c.opts.ItemID(item)
	name := c.opts.ItemName(item)
	itemLogger := logger.With(logging.String(logging.FieldItemID, id))

	result, err := c.invoke(ctx, item)
	if err == nil && !result.Success {
		err = errors.New(result.errorText())
	}
	if err != nil {
		errText := err.Error()
		c.opts.Sink.Error("%s failed: %s", name, errText)
		itemLogger.Info("item failed", logging.String("reason", errText))
		return false, errText
	}

	c.mu.Lock()
	delete(c.selected, id)
	c.mu.Unlock()

	c.applySuccess(itemLogger, item, result)
	if result.Message != "" {
		c.opts.Sink.Success("%s %s: %s", c.opts.Verb, name, result.Message)
	} else {
		c.opts.Sink.Success("%s %s", c.opts.Verb, name)
	}
	itemLogger.Info("item succeeded", logging.String("url", result.URL))
	return true, ""
}

func (c *Coordinator[T]) invoke(ctx context.Context, item T) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return c.opts.Process(ctx, item)
}

func (c *Coordinator[T]) applySuccess(logger *slog.Logger, item T, result Result) {
	if c.opts.OnSuccess == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("success callback panicked", logging.Any("panic", r))
			c.opts.Sink.Error("%s: local update failed after success", c.opts.ItemName(item))
		}
	}()
	c.opts.OnSuccess(item, result)
}
