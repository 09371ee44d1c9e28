package review

import (
	"context"
	"log/slog"
	"sync"

	"vibedispatch/internal/logging"
	"vibedispatch/internal/pipeline"
)

// DetailResult is the outcome of one detail fetch.
type DetailResult[D any] struct {
	Success bool
	Record  *D
	Error   string
}

// DetailFetcher loads the detail payload for the item identified by repoRef
// and number.
type DetailFetcher[D any] func(ctx context.Context, repoRef string, number int) DetailResult[D]

// Details is the detail state of the current item.
type Details[D any] struct {
	ItemID  string
	Record  *D
	Loading bool
	Error   string
}

// Navigator walks the needs-review queue one item at a time and owns the
// detail payload of the focused item.
type Navigator[D any] struct {
	fetch  DetailFetcher[D]
	sink   *logging.Sink
	logger *slog.Logger

	mu      sync.Mutex
	items   []pipeline.Item
	index   int
	details Details[D]
	// token identifies the in-flight fetch; any reset bumps it.
	token  uint64
	cancel context.CancelFunc
}

// NewNavigator builds an empty navigator.
func NewNavigator[D any](fetch DetailFetcher[D], sink *logging.Sink, logger *slog.Logger) *Navigator[D] {
	return &Navigator[D]{
		fetch:  fetch,
		sink:   sink,
		logger: logging.NewComponentLogger(logger, "review"),
	}
}

// SetQueue replaces the queue and focuses the first item. Details survive
// only when the new first item is the item that was current.
func (n *Navigator[D]) SetQueue(items []pipeline.Item) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setQueueLocked(items)
}

func (n *Navigator[D]) setQueueLocked(items []pipeline.Item) {
	prevID := n.currentIDLocked()
	n.items = append([]pipeline.Item(nil), items...)
	n.index = 0
	if len(n.items) == 0 || n.items[0].ID != prevID {
		n.resetDetailsLocked()
	}
}

// Sync reconciles the queue with a freshly recomputed item list. When the
// id set is unchanged the values are refreshed and focus stays on the same
// item. When items were only removed, focus stays on the current item if it
// survived, otherwise the old position is clamped into range. Any other
// change replaces the queue.
func (n *Navigator[D]) Sync(items []pipeline.Item) {
	n.mu.Lock()
	defer n.mu.Unlock()

	old := make(map[string]struct{}, len(n.items))
	for _, item := range n.items {
		old[item.ID] = struct{}{}
	}
	for _, item := range items {
		if _, ok := old[item.ID]; !ok {
			n.setQueueLocked(items)
			return
		}
	}

	currentID := n.currentIDLocked()
	oldIndex := n.index
	n.items = append([]pipeline.Item(nil), items...)
	for idx, item := range n.items {
		if item.ID == currentID {
			n.index = idx
			return
		}
	}
	n.index = clampIndex(oldIndex, len(n.items))
	n.resetDetailsLocked()
}

// Current returns the focused item.
func (n *Navigator[D]) Current() (pipeline.Item, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.items) == 0 {
		return pipeline.Item{}, false
	}
	return n.items[n.index], true
}

// Position returns the zero-based index of the focused item and the queue
// length.
func (n *Navigator[D]) Position() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index, len(n.items)
}

// Items returns a copy of the queue.
func (n *Navigator[D]) Items() []pipeline.Item {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pipeline.Item(nil), n.items...)
}

func (n *Navigator[D]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.items)
}

// Details returns the detail state of the focused item.
func (n *Navigator[D]) Details() Details[D] {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.details
}

// GoToNext moves focus forward and reports whether it moved.
func (n *Navigator[D]) GoToNext() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.index >= len(n.items)-1 {
		return false
	}
	n.index++
	n.resetDetailsLocked()
	return true
}

// GoToPrevious moves focus back and reports whether it moved.
func (n *Navigator[D]) GoToPrevious() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.index == 0 || len(n.items) == 0 {
		return false
	}
	n.index--
	n.resetDetailsLocked()
	return true
}

// RemoveCurrent splices out the focused item and keeps focus on the same
// position, clamped into range.
func (n *Navigator[D]) RemoveCurrent() (pipeline.Item, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.items) == 0 {
		return pipeline.Item{}, false
	}
	removed := n.items[n.index]
	n.items = append(n.items[:n.index:n.index], n.items[n.index+1:]...)
	n.index = clampIndex(n.index, len(n.items))
	n.resetDetailsLocked()
	return removed, true
}

// LoadCurrentDetails fetches the detail payload of the focused item and
// reports whether a payload was stored. A second call for an item that is
// already loading is ignored. Results are dropped when focus moved while the
// fetch was running; moving focus also cancels the fetch context.
func (n *Navigator[D]) LoadCurrentDetails(ctx context.Context, principal string) bool {
	n.mu.Lock()
	if len(n.items) == 0 || n.fetch == nil {
		n.mu.Unlock()
		return false
	}
	item := n.items[n.index]
	if n.details.Loading && n.details.ItemID == item.ID {
		n.mu.Unlock()
		return false
	}
	if item.Number <= 0 {
		n.details.Loading = false
		n.mu.Unlock()
		return false
	}
	n.resetDetailsLocked()
	fetchCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.details = Details[D]{ItemID: item.ID, Loading: true}
	token := n.token
	n.mu.Unlock()

	repoRef := item.QualifiedRef(principal)
	result := n.fetch(fetchCtx, repoRef, item.Number)

	n.mu.Lock()
	defer n.mu.Unlock()
	if token != n.token || n.currentIDLocked() != item.ID {
		n.logger.Debug("discarding stale details", logging.String(logging.FieldItemID, item.ID))
		return false
	}
	cancel()
	n.cancel = nil
	n.details.Loading = false
	if !result.Success || result.Record == nil {
		errText := result.Error
		if errText == "" {
			errText = "no details returned"
		}
		n.details.Error = errText
		n.sink.Error("Failed to load details for %s#%d: %s", repoRef, item.Number, errText)
		return false
	}
	n.details.Record = result.Record
	return true
}

func (n *Navigator[D]) currentIDLocked() string {
	if len(n.items) == 0 {
		return ""
	}
	return n.items[n.index].ID
}

func (n *Navigator[D]) resetDetailsLocked() {
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.token++
	n.details = Details[D]{}
}

func clampIndex(index, length int) int {
	return max(0, min(index, length-1))
}
