package stagestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"vibedispatch/internal/logging"
)

// Event types attached to the store's warnings.
const (
	EventLoadFailed = "stage_load_failed"
	EventPatchMiss  = "stage_patch_miss"
)

var (
	// ErrDuplicateStage is returned when a stage key is defined twice.
	ErrDuplicateStage = errors.New("stage already defined")
	// ErrUnknownStage is returned when loading a key that was never defined.
	ErrUnknownStage = errors.New("unknown stage")
)

// LoadError reports a failed stage load. Prior items stay in the slot.
type LoadError struct {
	Stage   string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", e.Stage, e.Message)
}

// SlotStatus is the type-erased view of a slot used for tables and summaries.
type SlotStatus struct {
	Key           string
	Count         int
	Loading       bool
	Error         string
	LastFetchedAt *time.Time
}

type slotHandle interface {
	load(ctx context.Context) error
	status() SlotStatus
}

// Store is the registry of named stage slots. Slots are created with Define
// and never removed for the lifetime of a session.
type Store struct {
	mu    sync.RWMutex
	slots map[string]slotHandle
	order []string

	listenersMu sync.Mutex
	listeners   map[uint64]func(string)
	nextID      uint64

	logger *slog.Logger
	now    func() time.Time
}

// New constructs an empty store.
func New(logger *slog.Logger) *Store {
	return &Store{
		slots:     make(map[string]slotHandle),
		listeners: make(map[uint64]func(string)),
		logger:    logging.NewComponentLogger(logger, "stagestore"),
		now:       time.Now,
	}
}

func (s *Store) register(key string, slot slotHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.slots[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStage, key)
	}
	s.slots[key] = slot
	s.order = append(s.order, key)
	return nil
}

// Load refreshes one stage by key.
func (s *Store) Load(ctx context.Context, key string) error {
	s.mu.RLock()
	slot, ok := s.slots[key]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStage, key)
	}
	return slot.load(ctx)
}

// LoadAll loads every stage concurrently and waits for all of them to settle.
// A failure in one stage never cancels the others; the returned error joins
// every stage failure.
func (s *Store) LoadAll(ctx context.Context) error {
	s.mu.RLock()
	handles := make([]slotHandle, 0, len(s.order))
	for _, key := range s.order {
		handles = append(handles, s.slots[key])
	}
	s.mu.RUnlock()

	errs := make([]error, len(handles))
	var wg conc.WaitGroup
	for i, handle := range handles {
		wg.Go(func() {
			errs[i] = handle.load(ctx)
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Statuses returns one row per stage in definition order.
func (s *Store) Statuses() []SlotStatus {
	s.mu.RLock()
	handles := make([]slotHandle, 0, len(s.order))
	for _, key := range s.order {
		handles = append(handles, s.slots[key])
	}
	s.mu.RUnlock()

	out := make([]SlotStatus, 0, len(handles))
	for _, handle := range handles {
		out = append(out, handle.status())
	}
	return out
}

// Subscribe registers fn to run after any slot changes. fn receives the stage
// key and is always called without store locks held. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(key string)) func() {
	if fn == nil {
		return func() {}
	}
	s.listenersMu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.listenersMu.Unlock()
	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) notify(key string) {
	s.listenersMu.Lock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}
