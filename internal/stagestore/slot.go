package stagestore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"vibedispatch/internal/logging"
)

// FetchResult is what a stage fetcher hands back to the store.
type FetchResult[T any] struct {
	Success bool
	Items   []T
	Error   string
}

// Fetcher loads the full dataset for one stage.
type Fetcher[T any] func(ctx context.Context) FetchResult[T]

// SlotState is a point-in-time copy of one stage dataset.
type SlotState[T any] struct {
	Items         []T
	Loading       bool
	Error         string
	LastFetchedAt *time.Time
}

// Slot holds one named stage dataset and its load lifecycle.
type Slot[T any] struct {
	store   *Store
	key     string
	fetcher Fetcher[T]

	mu         sync.Mutex
	state      SlotState[T]
	generation uint64
}

// Define creates a slot and registers it with store.
func Define[T any](store *Store, key string, fetcher Fetcher[T]) (*Slot[T], error) {
	key = strings.TrimSpace(key)
	if store == nil {
		return nil, fmt.Errorf("define stage %q: store is nil", key)
	}
	if key == "" {
		return nil, fmt.Errorf("define stage: key is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("define stage %q: fetcher is required", key)
	}
	slot := &Slot[T]{store: store, key: key, fetcher: fetcher}
	if err := store.register(key, slot); err != nil {
		return nil, err
	}
	return slot, nil
}

// Key returns the stage name.
func (s *Slot[T]) Key() string {
	return s.key
}

// Load fetches the stage dataset. On success the items are replaced and the
// fetch time stamped; on failure the error is recorded and prior items are
// kept. When loads overlap, only the most recently started one writes.
func (s *Slot[T]) Load(ctx context.Context) error {
	return s.load(ctx)
}

func (s *Slot[T]) load(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.generation++
	generation := s.generation
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()
	s.store.notify(s.key)

	result := s.fetch(ctx)

	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		s.store.logger.Debug("discarding superseded stage load", logging.String(logging.FieldStage, s.key))
		return nil
	}
	s.state.Loading = false
	var loadErr error
	if result.Success {
		s.state.Items = append([]T(nil), result.Items...)
		fetchedAt := s.store.now().UTC()
		s.state.LastFetchedAt = &fetchedAt
	} else {
		message := strings.TrimSpace(result.Error)
		if message == "" {
			message = "failed to load " + s.key
		}
		s.state.Error = message
		loadErr = &LoadError{Stage: s.key, Message: message}
	}
	count := len(s.state.Items)
	s.mu.Unlock()
	s.store.notify(s.key)

	if loadErr != nil {
		logging.WarnWithContext(s.store.logger, "stage load failed", EventLoadFailed,
			logging.String(logging.FieldStage, s.key),
			logging.Error(loadErr),
			logging.String(logging.FieldErrorHint, "reload the stage once the backend recovers"),
			logging.String(logging.FieldImpact, "previous items remain visible"),
		)
		return loadErr
	}
	s.store.logger.Debug("stage loaded",
		logging.String(logging.FieldStage, s.key),
		logging.Int("count", count),
	)
	return nil
}

func (s *Slot[T]) fetch(ctx context.Context) (result FetchResult[T]) {
	if err := ctx.Err(); err != nil {
		return FetchResult[T]{Error: err.Error()}
	}
	defer func() {
		if r := recover(); r != nil {
			result = FetchResult[T]{Error: fmt.Sprintf("fetch panicked: %v", r)}
		}
	}()
	result = s.fetcher(ctx)
	if err := ctx.Err(); err != nil && result.Success {
		return FetchResult[T]{Error: err.Error()}
	}
	return result
}

// Remove drops every item matching pred and returns how many were removed.
// Calling it again with the same predicate is a no-op.
func (s *Slot[T]) Remove(pred func(T) bool) int {
	if pred == nil {
		return 0
	}
	s.mu.Lock()
	kept := s.state.Items[:0:0]
	removed := 0
	for _, item := range s.state.Items {
		if pred(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed > 0 {
		s.state.Items = kept
	}
	s.mu.Unlock()

	if removed > 0 {
		s.store.notify(s.key)
	}
	return removed
}

// Patch applies update to every item matching pred and returns the number
// patched. A patch that matches nothing is logged as a warning.
func (s *Slot[T]) Patch(pred func(T) bool, update func(T) T) int {
	if pred == nil || update == nil {
		return 0
	}
	s.mu.Lock()
	next := append([]T(nil), s.state.Items...)
	patched := 0
	for i, item := range next {
		if !pred(item) {
			continue
		}
		next[i] = update(item)
		patched++
	}
	if patched > 0 {
		s.state.Items = next
	}
	s.mu.Unlock()

	if patched == 0 {
		logging.WarnWithContext(s.store.logger, "patch matched no items", EventPatchMiss,
			logging.String(logging.FieldStage, s.key),
			logging.String(logging.FieldErrorHint, "reload the stage to pick up remote changes"),
			logging.String(logging.FieldImpact, "local view may lag behind the remote state"),
		)
		return 0
	}
	s.store.notify(s.key)
	return patched
}

// Replace swaps in items produced locally, for example from the ledger.
func (s *Slot[T]) Replace(items []T) {
	s.mu.Lock()
	s.state.Items = append([]T(nil), items...)
	s.state.Error = ""
	fetchedAt := s.store.now().UTC()
	s.state.LastFetchedAt = &fetchedAt
	s.mu.Unlock()
	s.store.notify(s.key)
}

// Snapshot returns a copy of the slot state.
func (s *Slot[T]) Snapshot() SlotState[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := SlotState[T]{
		Items:   append([]T(nil), s.state.Items...),
		Loading: s.state.Loading,
		Error:   s.state.Error,
	}
	if s.state.LastFetchedAt != nil {
		fetchedAt := *s.state.LastFetchedAt
		out.LastFetchedAt = &fetchedAt
	}
	return out
}

// Items returns a copy of the current items.
func (s *Slot[T]) Items() []T {
	return s.Snapshot().Items
}

func (s *Slot[T]) status() SlotStatus {
	snap := s.Snapshot()
	return SlotStatus{
		Key:           s.key,
		Count:         len(snap.Items),
		Loading:       snap.Loading,
		Error:         snap.Error,
		LastFetchedAt: snap.LastFetchedAt,
	}
}
