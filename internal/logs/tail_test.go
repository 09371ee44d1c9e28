package logs_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"vibedispatch/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vibedispatch.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	cases := []struct {
		limit int
		want  []string
	}{
		{2, []string{"b", "c"}},
		{5, []string{"a", "b", "c"}},
		{0, nil},
	}
	for _, tc := range cases {
		result, err := logs.Tail(path, logs.TailOptions{Offset: -1, Limit: tc.limit})
		if err != nil {
			t.Fatalf("Tail(limit=%d): %v", tc.limit, err)
		}
		if !slices.Equal(result.Lines, tc.want) {
			t.Fatalf("Tail(limit=%d) = %#v, want %#v", tc.limit, result.Lines, tc.want)
		}
		if result.Offset != 6 {
			t.Fatalf("Tail(limit=%d) offset = %d, want 6", tc.limit, result.Offset)
		}
	}
}

func TestTailFromOffsetLeavesPartialLine(t *testing.T) {
	path := writeLog(t, "first\n")
	appendLog(t, path, "second\nthird")

	result, err := logs.Tail(path, logs.TailOptions{Offset: 6})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if !slices.Equal(result.Lines, []string{"second"}) || result.Offset != 13 {
		t.Fatalf("unexpected result %+v", result)
	}

	appendLog(t, path, "\n")
	result, err = logs.Tail(path, logs.TailOptions{Offset: result.Offset})
	if err != nil {
		t.Fatalf("Tail after completion: %v", err)
	}
	if !slices.Equal(result.Lines, []string{"third"}) {
		t.Fatalf("expected the completed line, got %#v", result.Lines)
	}
}

func TestTailMissingFileAndTruncation(t *testing.T) {
	dir := t.TempDir()
	result, err := logs.Tail(filepath.Join(dir, "absent.log"), logs.TailOptions{Offset: 40})
	if err != nil || result.Offset != 0 || len(result.Lines) != 0 {
		t.Fatalf("missing file: %+v err=%v", result, err)
	}

	path := writeLog(t, "fresh\n")
	result, err = logs.Tail(path, logs.TailOptions{Offset: 500})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if !slices.Equal(result.Lines, []string{"fresh"}) {
		t.Fatalf("expected a truncated file to be reread, got %#v", result.Lines)
	}

	if _, err := logs.Tail(dir, logs.TailOptions{Offset: -1, Limit: 1}); err == nil {
		t.Fatal("expected error for a directory")
	}
}

func TestTailFiltersByLevel(t *testing.T) {
	path := writeLog(t, ""+
		"2026-03-01T00:00:00Z INFO batch started\n"+
		"2026-03-01T00:00:01Z WARN item failed\n"+
		`{"ts":"2026-03-01T00:00:02Z","level":"error","msg":"merge failed"}`+"\n"+
		`{"ts":"2026-03-01T00:00:03Z","level":"debug","msg":"cache hit"}`+"\n"+
		"plain line without level\n")

	result, err := logs.Tail(path, logs.TailOptions{Offset: -1, Limit: 10, MinLevel: "warn"})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	want := []string{
		"2026-03-01T00:00:01Z WARN item failed",
		`{"ts":"2026-03-01T00:00:02Z","level":"error","msg":"merge failed"}`,
		"plain line without level",
	}
	if !slices.Equal(result.Lines, want) {
		t.Fatalf("filtered lines = %#v", result.Lines)
	}
}

func TestLineLevel(t *testing.T) {
	cases := []struct {
		line string
		want slog.Level
		ok   bool
	}{
		{"2026-03-01T00:00:00Z ERROR dispatch: boom", slog.LevelError, true},
		{"2026-03-01T00:00:00Z DEBUG x", slog.LevelDebug, true},
		{`{"level":"warn","msg":"x"}`, slog.LevelWarn, true},
		{`{"msg":"x"}`, 0, false},
		{"no level here", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := logs.LineLevel(tc.line)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("LineLevel(%q) = %v, %v", tc.line, got, ok)
		}
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, 6, "", 10*time.Millisecond, func(lines []string) {
			mu.Lock()
			got = append(got, lines...)
			mu.Unlock()
		})
	}()

	appendLog(t, path, "later\n")
	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("follow did not emit the appended line")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(got, []string{"later"}) {
		t.Fatalf("unexpected lines %#v", got)
	}
}
