package stagestore_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"vibedispatch/internal/logging"
	"vibedispatch/internal/stagestore"
)

type repo struct {
	Name    string
	LastRun string
}

func staticFetcher(items ...repo) stagestore.Fetcher[repo] {
	return func(context.Context) stagestore.FetchResult[repo] {
		return stagestore.FetchResult[repo]{Success: true, Items: items}
	}
}

func failingFetcher(message string) stagestore.Fetcher[repo] {
	return func(context.Context) stagestore.FetchResult[repo] {
		return stagestore.FetchResult[repo]{Error: message}
	}
}

func mustDefine(t *testing.T, store *stagestore.Store, key string, fetcher stagestore.Fetcher[repo]) *stagestore.Slot[repo] {
	t.Helper()
	slot, err := stagestore.Define(store, key, fetcher)
	if err != nil {
		t.Fatalf("Define %s: %v", key, err)
	}
	return slot
}

func TestLoadReplacesItemsAndStampsTime(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	slot := mustDefine(t, store, "installed", staticFetcher(repo{Name: "a"}, repo{Name: "b"}))

	if err := slot.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	snap := slot.Snapshot()
	if len(snap.Items) != 2 || snap.Loading || snap.Error != "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.LastFetchedAt == nil {
		t.Fatal("expected LastFetchedAt to be stamped")
	}
}

func TestLoadFailureKeepsPriorItems(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	succeed := true
	slot := mustDefine(t, store, "issues", func(context.Context) stagestore.FetchResult[repo] {
		if succeed {
			return stagestore.FetchResult[repo]{Success: true, Items: []repo{{Name: "a"}}}
		}
		return stagestore.FetchResult[repo]{Error: "rate limited"}
	})
	if err := slot.Load(context.Background()); err != nil {
		t.Fatalf("first load: %v", err)
	}
	firstFetch := slot.Snapshot().LastFetchedAt

	succeed = false
	err := slot.Load(context.Background())
	var loadErr *stagestore.LoadError
	if !errors.As(err, &loadErr) || loadErr.Stage != "issues" {
		t.Fatalf("expected LoadError for issues, got %v", err)
	}
	snap := slot.Snapshot()
	if len(snap.Items) != 1 || snap.Items[0].Name != "a" {
		t.Fatalf("expected stale items to remain, got %+v", snap.Items)
	}
	if snap.Error != "rate limited" {
		t.Fatalf("expected error text, got %q", snap.Error)
	}
	if !snap.LastFetchedAt.Equal(*firstFetch) {
		t.Fatal("failed load must not restamp LastFetchedAt")
	}
}

func TestLoadRecoversFetcherPanic(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	slot := mustDefine(t, store, "targets", func(context.Context) stagestore.FetchResult[repo] {
		panic("boom")
	})
	if err := slot.Load(context.Background()); err == nil {
		t.Fatal("expected error from panicking fetcher")
	}
	if snap := slot.Snapshot(); !strings.Contains(snap.Error, "boom") || snap.Loading {
		t.Fatalf("unexpected snapshot after panic %+v", snap)
	}
}

func TestLoadWithCanceledContextFails(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	called := false
	slot := mustDefine(t, store, "targets", func(context.Context) stagestore.FetchResult[repo] {
		called = true
		return stagestore.FetchResult[repo]{Success: true}
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := slot.Load(ctx); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if called {
		t.Fatal("fetcher should not run after cancellation")
	}
}

func TestOverlappingLoadsLatestStartedWins(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	calls := 0
	var mu sync.Mutex
	slot := mustDefine(t, store, "pull-requests", func(context.Context) stagestore.FetchResult[repo] {
		mu.Lock()
		calls++
		call := calls
		mu.Unlock()
		if call == 1 {
			started <- struct{}{}
			<-release
			return stagestore.FetchResult[repo]{Success: true, Items: []repo{{Name: "stale"}}}
		}
		return stagestore.FetchResult[repo]{Success: true, Items: []repo{{Name: "fresh"}}}
	})

	done := make(chan error, 1)
	go func() { done <- slot.Load(context.Background()) }()
	<-started
	if err := slot.Load(context.Background()); err != nil {
		t.Fatalf("second load: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first load: %v", err)
	}

	items := slot.Items()
	if len(items) != 1 || items[0].Name != "fresh" {
		t.Fatalf("expected latest load to win, got %+v", items)
	}
}

func TestLoadAllSettlesEveryStage(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	ok := mustDefine(t, store, "installed", staticFetcher(repo{Name: "a"}))
	bad := mustDefine(t, store, "issues", failingFetcher("gh exited 1"))
	slow := mustDefine(t, store, "pull-requests", func(context.Context) stagestore.FetchResult[repo] {
		time.Sleep(10 * time.Millisecond)
		return stagestore.FetchResult[repo]{Success: true, Items: []repo{{Name: "b"}}}
	})

	err := store.LoadAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "issues") {
		t.Fatalf("expected joined error naming issues, got %v", err)
	}
	if len(ok.Items()) != 1 || len(slow.Items()) != 1 {
		t.Fatal("successful stages should load despite a sibling failure")
	}
	if bad.Snapshot().Error == "" {
		t.Fatal("expected failing stage to record an error")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	slot := mustDefine(t, store, "needs-install", staticFetcher(repo{Name: "a"}, repo{Name: "b"}))
	if err := slot.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	isA := func(r repo) bool { return r.Name == "a" }
	if removed := slot.Remove(isA); removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if removed := slot.Remove(isA); removed != 0 {
		t.Fatalf("expected second removal to be a no-op, got %d", removed)
	}
	items := slot.Items()
	if len(items) != 1 || items[0].Name != "b" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestPatchUpdatesMatchesAndWarnsOnMiss(t *testing.T) {
	sink := logging.NewSink(10)
	logger := logging.TeeLogger(logging.NewNop(), logging.NewSinkHandler(sink, slog.LevelWarn))
	store := stagestore.New(logger)
	slot := mustDefine(t, store, "installed", staticFetcher(repo{Name: "a"}, repo{Name: "b"}))
	if err := slot.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	queued := func(r repo) repo { r.LastRun = "queued"; return r }
	if patched := slot.Patch(func(r repo) bool { return r.Name == "b" }, queued); patched != 1 {
		t.Fatalf("expected 1 patched item, got %d", patched)
	}
	if items := slot.Items(); items[1].LastRun != "queued" || items[0].LastRun != "" {
		t.Fatalf("unexpected items after patch %+v", items)
	}
	if sink.Len() != 0 {
		t.Fatalf("matching patch should not warn, got %+v", sink.Entries())
	}

	if patched := slot.Patch(func(r repo) bool { return r.Name == "missing" }, queued); patched != 0 {
		t.Fatalf("expected no matches, got %d", patched)
	}
	entries := sink.Entries()
	if len(entries) != 1 || !strings.Contains(entries[0].Message, "patch matched no items") {
		t.Fatalf("expected a warning for the missed patch, got %+v", entries)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	slot := mustDefine(t, store, "installed", staticFetcher(repo{Name: "a"}))
	if err := slot.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := slot.Snapshot()
	snap.Items[0].Name = "mutated"
	if slot.Items()[0].Name != "a" {
		t.Fatal("snapshot mutation leaked into the slot")
	}
}

func TestReplaceClearsError(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	slot := mustDefine(t, store, "assignments", failingFetcher("offline"))
	_ = slot.Load(context.Background())
	slot.Replace([]repo{{Name: "from-ledger"}})
	snap := slot.Snapshot()
	if snap.Error != "" || len(snap.Items) != 1 || snap.LastFetchedAt == nil {
		t.Fatalf("unexpected snapshot after replace %+v", snap)
	}
}

func TestDefineRejectsDuplicateKeys(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	mustDefine(t, store, "issues", staticFetcher())
	if _, err := stagestore.Define(store, "issues", staticFetcher()); !errors.Is(err, stagestore.ErrDuplicateStage) {
		t.Fatalf("expected ErrDuplicateStage, got %v", err)
	}
}

func TestStoreLoadUnknownStage(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	if err := store.Load(context.Background(), "nope"); !errors.Is(err, stagestore.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}

func TestSubscribeAndStatuses(t *testing.T) {
	store := stagestore.New(logging.NewNop())
	mustDefine(t, store, "installed", staticFetcher(repo{Name: "a"}))
	mustDefine(t, store, "issues", failingFetcher("boom"))

	var mu sync.Mutex
	changed := map[string]int{}
	cancel := store.Subscribe(func(key string) {
		mu.Lock()
		changed[key]++
		mu.Unlock()
	})
	_ = store.LoadAll(context.Background())
	cancel()
	_ = store.Load(context.Background(), "installed")

	mu.Lock()
	if changed["installed"] != 2 || changed["issues"] != 2 {
		t.Fatalf("expected start and finish notifications per stage, got %v", changed)
	}
	mu.Unlock()

	statuses := store.Statuses()
	if len(statuses) != 2 || statuses[0].Key != "installed" || statuses[0].Count != 1 {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
	if statuses[1].Error != "boom" {
		t.Fatalf("expected issues error in status, got %+v", statuses[1])
	}
}
