package main

import (
	"io"
	"strings"
	"testing"
	"time"

	"vibedispatch/internal/logging"
	"vibedispatch/internal/pipeline"
)

func TestRenderEntryNoColor(t *testing.T) {
	cases := []struct {
		severity logging.Severity
		want     string
	}{
		{logging.SeveritySuccess, "  [OK] done"},
		{logging.SeverityWarning, "  [WARN] done"},
		{logging.SeverityError, "  [ERROR] done"},
		{logging.SeverityInfo, "  [INFO] done"},
	}
	for _, tc := range cases {
		got := renderEntry(logging.Entry{Severity: tc.severity, Message: "done"}, false)
		if got != tc.want {
			t.Fatalf("renderEntry(%s) = %q, want %q", tc.severity, got, tc.want)
		}
	}
}

func TestRenderEntryWithColor(t *testing.T) {
	got := renderEntry(logging.Entry{Severity: logging.SeverityError, Message: "boom"}, true)
	if !strings.HasPrefix(got, ansiRed) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected red line, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("expected non-file writer to disable color")
	}
}

func TestStreamSinkWritesUntilStopped(t *testing.T) {
	sink := logging.NewSink(0)
	var out strings.Builder
	stop := streamSink(&out, sink)
	sink.Success("Installed alpha")
	stop()
	sink.Error("after stop")

	got := out.String()
	requireContains(t, got, "[OK] Installed alpha")
	if strings.Contains(got, "after stop") {
		t.Fatalf("entries after stop should not be written: %q", got)
	}
}

func TestDisplayLabel(t *testing.T) {
	cases := map[string]string{
		"waiting_for_review": "Waiting For Review",
		"needs-install":      "Needs Install",
		"APPROVED":           "Approved",
		"  ":                 "-",
	}
	for in, want := range cases {
		if got := displayLabel(in); got != want {
			t.Fatalf("displayLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer title", 8, "a lon..."},
		{"héllo wörld", 6, "hél..."},
		{"abc", 2, "ab"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.limit); got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "-"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-72 * time.Hour), "3d ago"},
	}
	for _, tc := range cases {
		if got := formatAge(tc.at, now); got != tc.want {
			t.Fatalf("formatAge(%v) = %q, want %q", tc.at, got, tc.want)
		}
	}
}

func TestParseIssueRef(t *testing.T) {
	origin, number, err := parseIssueRef(" fastify/fastify#42 ")
	if err != nil || origin != "fastify/fastify" || number != 42 {
		t.Fatalf("parseIssueRef = %q %d %v", origin, number, err)
	}
	for _, bad := range []string{"fastify/fastify", "fastify#42", "fastify/fastify#x", "fastify/fastify#0"} {
		if _, _, err := parseIssueRef(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestMatchRefs(t *testing.T) {
	candidates := []string{"alpha", "Beta", "gamma"}
	identity := func(s string) string { return s }

	got, err := matchRefs(candidates, identity, []string{"beta", "ALPHA", "Beta"})
	if err != nil {
		t.Fatalf("matchRefs: %v", err)
	}
	if len(got) != 2 || got[0] != "Beta" || got[1] != "alpha" {
		t.Fatalf("unexpected matches %v", got)
	}
	if _, err := matchRefs(candidates, identity, []string{"delta"}); err == nil {
		t.Fatal("expected error for unknown ref")
	}
}

func TestParseFamily(t *testing.T) {
	cases := []struct {
		in      string
		want    pipeline.Family
		wantErr bool
	}{
		{"", "", false},
		{"OSS", pipeline.FamilyOSS, false},
		{" maintenance ", pipeline.FamilyMaintenance, false},
		{"other", "", true},
	}
	for _, tc := range cases {
		got, err := parseFamily(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("parseFamily(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"Ref", "Title"}, [][]string{{"alpha#5"}, {"beta#7", "Bump deps"}}, nil)
	requireContains(t, out, "alpha#5")
	requireContains(t, out, "Bump deps")
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}
