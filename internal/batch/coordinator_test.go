package batch_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vibedispatch/internal/batch"
	"vibedispatch/internal/logging"
)

type repo struct {
	name string
}

func newCoordinator(t *testing.T, sink *logging.Sink, process func(context.Context, repo) (batch.Result, error), onSuccess func(repo, batch.Result)) *batch.Coordinator[repo] {
	t.Helper()
	coord, err := batch.New(batch.Options[repo]{
		Verb:      "Installed",
		Process:   process,
		ItemID:    func(r repo) string { return r.name },
		OnSuccess: onSuccess,
		Sink:      sink,
	})
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}
	return coord
}

func messages(sink *logging.Sink) []string {
	entries := sink.Entries()
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Message)
	}
	return out
}

func TestNewRequiresVerbProcessAndID(t *testing.T) {
	process := func(context.Context, repo) (batch.Result, error) { return batch.Succeeded(""), nil }
	itemID := func(r repo) string { return r.name }
	cases := []batch.Options[repo]{
		{Process: process, ItemID: itemID},
		{Verb: "Installed", ItemID: itemID},
		{Verb: "Installed", Process: process},
	}
	for i, opts := range cases {
		if _, err := batch.New(opts); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestToggleAndSelectAllReplaceSelection(t *testing.T) {
	coord := newCoordinator(t, nil, func(context.Context, repo) (batch.Result, error) {
		return batch.Succeeded(""), nil
	}, nil)

	if !coord.Toggle("a") {
		t.Fatal("first toggle should select")
	}
	if coord.Toggle("a") {
		t.Fatal("second toggle should deselect")
	}
	coord.Toggle("stale")
	coord.SelectAll([]repo{{name: "b"}, {name: "c"}})
	got := coord.Selected()
	if strings.Join(got, ",") != "b,c" {
		t.Fatalf("SelectAll should replace the selection, got %v", got)
	}
	coord.SelectNone()
	if len(coord.Selected()) != 0 {
		t.Fatalf("SelectNone left %v", coord.Selected())
	}
}

func TestProcessSelectedPartialFailure(t *testing.T) {
	sink := logging.NewSink(50)
	var applied []string
	coord := newCoordinator(t, sink, func(_ context.Context, r repo) (batch.Result, error) {
		switch r.name {
		case "b":
			return batch.Failedf("rate limited"), nil
		case "d":
			return batch.Result{}, errors.New("boom")
		}
		return batch.Succeeded(""), nil
	}, func(r repo, _ batch.Result) {
		applied = append(applied, r.name)
	})

	candidates := []repo{{name: "a"}, {name: "b"}, {name: "c"}, {name: "d"}, {name: "e"}}
	coord.SelectAll(candidates)
	summary := coord.ProcessSelected(context.Background(), candidates)

	if summary.Succeeded != 3 || summary.Total != 5 || summary.Failed() != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.String() != "Installed 3/5" {
		t.Fatalf("unexpected summary line %q", summary.String())
	}
	if summary.BatchID == "" {
		t.Fatal("expected a batch id")
	}
	if strings.Join(applied, ",") != "a,c,e" {
		t.Fatalf("OnSuccess calls = %v", applied)
	}
	if got := strings.Join(coord.Selected(), ","); got != "b,d" {
		t.Fatalf("failed items should stay selected, got %q", got)
	}

	logs := messages(sink)
	if len(logs) != 6 {
		t.Fatalf("expected 5 item lines and a summary, got %v", logs)
	}
	if logs[1] != "b failed: rate limited" {
		t.Fatalf("unexpected failure line %q", logs[1])
	}
	last := sink.Entries()[len(logs)-1]
	if last.Message != "Installed 3/5" || last.Severity != logging.SeverityWarning {
		t.Fatalf("unexpected summary entry %+v", last)
	}
}

func TestProcessSelectedSkipsUnselectedCandidates(t *testing.T) {
	sink := logging.NewSink(50)
	var calls []string
	coord := newCoordinator(t, sink, func(_ context.Context, r repo) (batch.Result, error) {
		calls = append(calls, r.name)
		if r.name == "B" {
			return batch.Failedf("rate limited"), nil
		}
		return batch.Succeeded(""), nil
	}, nil)

	coord.Toggle("A")
	coord.Toggle("B")
	summary := coord.ProcessSelected(context.Background(), []repo{{name: "A"}, {name: "B"}, {name: "C"}})

	if strings.Join(calls, ",") != "A,B" {
		t.Fatalf("unexpected calls %v", calls)
	}
	if summary.String() != "Installed 1/2" {
		t.Fatalf("unexpected summary %q", summary.String())
	}
	want := []string{"Installed A", "B failed: rate limited", "Installed 1/2"}
	if got := messages(sink); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("log = %v, want %v", got, want)
	}
}

func TestProcessSelectedEmptySelectionIsQuiet(t *testing.T) {
	sink := logging.NewSink(10)
	coord := newCoordinator(t, sink, func(context.Context, repo) (batch.Result, error) {
		t.Fatal("process should not run")
		return batch.Result{}, nil
	}, nil)
	summary := coord.ProcessSelected(context.Background(), []repo{{name: "a"}})
	if summary.Total != 0 || sink.Len() != 0 {
		t.Fatalf("expected no work and no log, got %+v and %d entries", summary, sink.Len())
	}
}

func TestProcessSelectedRecoversPanics(t *testing.T) {
	sink := logging.NewSink(10)
	coord := newCoordinator(t, sink, func(_ context.Context, r repo) (batch.Result, error) {
		if r.name == "a" {
			panic("kaboom")
		}
		return batch.Succeeded("done"), nil
	}, nil)
	candidates := []repo{{name: "a"}, {name: "b"}}
	coord.SelectAll(candidates)
	summary := coord.ProcessSelected(context.Background(), candidates)
	if summary.Succeeded != 1 || !strings.Contains(summary.Failures["a"], "kaboom") {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := messages(sink)[1]; got != "Installed b: done" {
		t.Fatalf("unexpected success line %q", got)
	}
}

func TestProcessSelectedStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := logging.NewSink(10)
	coord := newCoordinator(t, sink, func(_ context.Context, r repo) (batch.Result, error) {
		if r.name == "a" {
			cancel()
		}
		return batch.Succeeded(""), nil
	}, nil)
	candidates := []repo{{name: "a"}, {name: "b"}, {name: "c"}}
	coord.SelectAll(candidates)
	summary := coord.ProcessSelected(ctx, candidates)
	if !summary.Canceled || summary.Succeeded != 1 || summary.Total != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := strings.Join(coord.Selected(), ","); got != "b,c" {
		t.Fatalf("unattempted items should stay selected, got %q", got)
	}
}

func TestProcessSingleUsesSameContract(t *testing.T) {
	sink := logging.NewSink(10)
	var applied int
	coord := newCoordinator(t, sink, func(context.Context, repo) (batch.Result, error) {
		return batch.Succeeded(""), nil
	}, func(repo, batch.Result) { applied++ })
	coord.Toggle("a")
	if !coord.ProcessSingle(context.Background(), repo{name: "a"}) {
		t.Fatal("expected success")
	}
	if applied != 1 || coord.IsSelected("a") {
		t.Fatalf("expected deselect and one callback, applied=%d", applied)
	}
	if got := messages(sink); len(got) != 1 || got[0] != "Installed a" {
		t.Fatalf("unexpected log %v", got)
	}
}
