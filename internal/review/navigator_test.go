package review_test

import (
	"context"
	"sync"
	"testing"

	"vibedispatch/internal/logging"
	"vibedispatch/internal/pipeline"
	"vibedispatch/internal/review"
)

type detail struct {
	Body string
}

func items(ids ...string) []pipeline.Item {
	out := make([]pipeline.Item, 0, len(ids))
	for i, id := range ids {
		out = append(out, pipeline.Item{ID: id, Repo: "alpha", Number: i + 1, Status: pipeline.StatusWaitingForReview})
	}
	return out
}

func staticFetcher(body string) review.DetailFetcher[detail] {
	return func(context.Context, string, int) review.DetailResult[detail] {
		return review.DetailResult[detail]{Success: true, Record: &detail{Body: body}}
	}
}

func currentID(t *testing.T, nav *review.Navigator[detail]) string {
	t.Helper()
	item, ok := nav.Current()
	if !ok {
		t.Fatal("expected a current item")
	}
	return item.ID
}

func TestNavigationSaturatesAtBoundaries(t *testing.T) {
	nav := review.NewNavigator(staticFetcher("x"), nil, nil)
	nav.SetQueue(items("a", "b", "c"))

	if nav.GoToPrevious() {
		t.Fatal("previous at index 0 should not move")
	}
	if !nav.GoToNext() || !nav.GoToNext() {
		t.Fatal("expected two forward moves")
	}
	if nav.GoToNext() {
		t.Fatal("next at the last index should not move")
	}
	if idx, total := nav.Position(); idx != 2 || total != 3 {
		t.Fatalf("Position() = %d/%d", idx, total)
	}
}

func TestNavigationClearsDetails(t *testing.T) {
	nav := review.NewNavigator(staticFetcher("body"), nil, nil)
	nav.SetQueue(items("a", "b"))
	if !nav.LoadCurrentDetails(context.Background(), "octo") {
		t.Fatal("expected details to load")
	}
	if nav.Details().Record == nil {
		t.Fatal("expected a record")
	}
	nav.GoToNext()
	if nav.Details().Record != nil {
		t.Fatal("moving should clear details")
	}
}

func TestRemoveCurrentClamps(t *testing.T) {
	cases := []struct {
		name    string
		ids     []string
		focus   int
		removed string
		wantID  string
		wantLen int
	}{
		{name: "middle keeps position", ids: []string{"a", "b", "c"}, focus: 1, removed: "b", wantID: "c", wantLen: 2},
		{name: "last clamps back", ids: []string{"a", "b", "c"}, focus: 2, removed: "c", wantID: "b", wantLen: 2},
		{name: "first keeps zero", ids: []string{"a", "b"}, focus: 0, removed: "a", wantID: "b", wantLen: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nav := review.NewNavigator(staticFetcher("x"), nil, nil)
			nav.SetQueue(items(tc.ids...))
			for i := 0; i < tc.focus; i++ {
				nav.GoToNext()
			}
			removed, ok := nav.RemoveCurrent()
			if !ok || removed.ID != tc.removed {
				t.Fatalf("RemoveCurrent() = %q, %v", removed.ID, ok)
			}
			if got := currentID(t, nav); got != tc.wantID {
				t.Fatalf("current = %q, want %q", got, tc.wantID)
			}
			if nav.Len() != tc.wantLen {
				t.Fatalf("Len() = %d, want %d", nav.Len(), tc.wantLen)
			}
		})
	}
}

func TestRemoveCurrentEmptiesQueue(t *testing.T) {
	nav := review.NewNavigator(staticFetcher("x"), nil, nil)
	nav.SetQueue(items("a"))
	if _, ok := nav.RemoveCurrent(); !ok {
		t.Fatal("expected removal")
	}
	if _, ok := nav.Current(); ok {
		t.Fatal("queue should be empty")
	}
	if _, ok := nav.RemoveCurrent(); ok {
		t.Fatal("removal from an empty queue should report false")
	}
	if idx, total := nav.Position(); idx != 0 || total != 0 {
		t.Fatalf("Position() = %d/%d", idx, total)
	}
}

func TestSetQueueKeepsDetailsForSameFirstItem(t *testing.T) {
	nav := review.NewNavigator(staticFetcher("body"), nil, nil)
	nav.SetQueue(items("a", "b"))
	nav.LoadCurrentDetails(context.Background(), "octo")

	nav.SetQueue(items("a", "c"))
	if nav.Details().Record == nil {
		t.Fatal("details should survive when item 0 is unchanged")
	}
	nav.SetQueue(items("c", "a"))
	if nav.Details().Record != nil {
		t.Fatal("details should clear when item 0 changes")
	}
}

func TestSyncKeepsFocusWhenIDsUnchanged(t *testing.T) {
	nav := review.NewNavigator(staticFetcher("body"), nil, nil)
	nav.SetQueue(items("a", "b", "c"))
	nav.GoToNext()
	nav.LoadCurrentDetails(context.Background(), "octo")

	reordered := items("c", "a", "b")
	reordered[2].Title = "refreshed"
	nav.Sync(reordered)

	item, _ := nav.Current()
	if item.ID != "b" || item.Title != "refreshed" {
		t.Fatalf("expected refreshed b in focus, got %+v", item)
	}
	if nav.Details().Record == nil {
		t.Fatal("details should survive a refresh")
	}
}

func TestSyncRemovalClampsWhenCurrentGone(t *testing.T) {
	nav := review.NewNavigator(staticFetcher("body"), nil, nil)
	nav.SetQueue(items("a", "b", "c"))
	nav.GoToNext()
	nav.GoToNext()

	nav.Sync(items("a", "b"))
	if got := currentID(t, nav); got != "b" {
		t.Fatalf("current = %q, want b", got)
	}
}

func TestSyncWithNewItemResetsQueue(t *testing.T) {
	nav := review.NewNavigator(staticFetcher("body"), nil, nil)
	nav.SetQueue(items("a", "b"))
	nav.GoToNext()

	nav.Sync(items("a", "b", "z"))
	if idx, _ := nav.Position(); idx != 0 {
		t.Fatalf("expected focus reset to 0, got %d", idx)
	}
}

func TestLoadCurrentDetailsQualifiesRepo(t *testing.T) {
	var gotRef string
	var gotNumber int
	nav := review.NewNavigator(func(_ context.Context, ref string, number int) review.DetailResult[detail] {
		gotRef, gotNumber = ref, number
		return review.DetailResult[detail]{Success: true, Record: &detail{}}
	}, nil, nil)

	queue := []pipeline.Item{
		{ID: "maintenance:pr:alpha#7", Repo: "alpha", Number: 7},
		{ID: "oss:fork-pr:octo/widgets#3", Repo: "up/widgets", Ref: "octo/widgets", Number: 3},
	}
	nav.SetQueue(queue)
	nav.LoadCurrentDetails(context.Background(), "octo")
	if gotRef != "octo/alpha" || gotNumber != 7 {
		t.Fatalf("fetch(%q, %d)", gotRef, gotNumber)
	}
	nav.GoToNext()
	nav.LoadCurrentDetails(context.Background(), "octo")
	if gotRef != "octo/widgets" || gotNumber != 3 {
		t.Fatalf("fetch(%q, %d)", gotRef, gotNumber)
	}
}

func TestLoadCurrentDetailsSkipsItemsWithoutNumber(t *testing.T) {
	called := false
	nav := review.NewNavigator(func(context.Context, string, int) review.DetailResult[detail] {
		called = true
		return review.DetailResult[detail]{Success: true, Record: &detail{}}
	}, nil, nil)
	nav.SetQueue([]pipeline.Item{{ID: "oss:submit:up/widgets@fix", Repo: "up/widgets"}})
	if nav.LoadCurrentDetails(context.Background(), "octo") || called {
		t.Fatal("items without a number should not fetch")
	}
	if nav.Details().Loading {
		t.Fatal("loading should be cleared")
	}
}

func TestLoadCurrentDetailsRecordsFailure(t *testing.T) {
	sink := logging.NewSink(10)
	nav := review.NewNavigator(func(context.Context, string, int) review.DetailResult[detail] {
		return review.DetailResult[detail]{Error: "not found"}
	}, sink, nil)
	nav.SetQueue(items("a"))
	if nav.LoadCurrentDetails(context.Background(), "octo") {
		t.Fatal("expected failure")
	}
	if got := nav.Details().Error; got != "not found" {
		t.Fatalf("Details().Error = %q", got)
	}
	if sink.Len() != 1 {
		t.Fatalf("expected one sink entry, got %d", sink.Len())
	}
}

func TestStaleDetailsAreDiscardedAndCanceled(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	canceled := make(chan struct{})
	nav := review.NewNavigator(func(ctx context.Context, _ string, number int) review.DetailResult[detail] {
		if number == 1 {
			close(started)
			<-ctx.Done()
			close(canceled)
			<-release
		}
		return review.DetailResult[detail]{Success: true, Record: &detail{Body: "late"}}
	}, nil, nil)
	nav.SetQueue(items("a", "b"))

	var wg sync.WaitGroup
	var stored bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		stored = nav.LoadCurrentDetails(context.Background(), "octo")
	}()
	<-started
	if nav.LoadCurrentDetails(context.Background(), "octo") {
		t.Fatal("a second load for the same item should be ignored")
	}
	nav.GoToNext()
	<-canceled
	close(release)
	wg.Wait()

	if stored {
		t.Fatal("stale result should be discarded")
	}
	if nav.Details().Record != nil {
		t.Fatal("stale result should not be stored on the new item")
	}
}
