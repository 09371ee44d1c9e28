package recon_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vibedispatch/internal/recon"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]string
}

func newAggregator(t *testing.T, responses map[string]string) (*recon.Client, *[]recordedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path}
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &rec.Body); err != nil {
				t.Errorf("decode request body: %v", err)
			}
		}
		mu.Lock()
		requests = append(requests, rec)
		mu.Unlock()
		if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "VibeDispatch") {
			t.Errorf("unexpected user agent %q", got)
		}
		payload, ok := responses[r.URL.Path]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(srv.Close)
	return recon.New(srv.URL+"/", time.Second, nil), &requests
}

func TestDisabledClientReadsEmptyAndRejectsWrites(t *testing.T) {
	client := recon.New("  ", time.Second, nil)
	if client.Enabled() {
		t.Fatal("expected client without URL to be disabled")
	}
	ctx := context.Background()
	slugs, err := client.Watchlist(ctx)
	if err != nil || len(slugs) != 0 {
		t.Fatalf("Watchlist = %v, %v", slugs, err)
	}
	issues, err := client.ScoredIssues(ctx, "")
	if err != nil || len(issues) != 0 {
		t.Fatalf("ScoredIssues = %v, %v", issues, err)
	}
	if dossier, err := client.Dossier(ctx, "a-b"); err != nil || dossier != nil {
		t.Fatalf("Dossier = %v, %v", dossier, err)
	}
	if err := client.AddWatch(ctx, "a/b"); !errors.Is(err, recon.ErrNotConfigured) {
		t.Fatalf("AddWatch error = %v", err)
	}
	if err := client.Claim(ctx, "a/b", "id", "me", ""); !errors.Is(err, recon.ErrNotConfigured) {
		t.Fatalf("Claim error = %v", err)
	}
}

func TestWatchlistRoundTrip(t *testing.T) {
	client, requests := newAggregator(t, map[string]string{
		"/recon/watchlist":        `{"slugs":["octo-tools","acme-widgets"]}`,
		"/recon/watchlist/add":    `{}`,
		"/recon/watchlist/remove": `{}`,
	})
	ctx := context.Background()

	slugs, err := client.Watchlist(ctx)
	if err != nil {
		t.Fatalf("Watchlist: %v", err)
	}
	if len(slugs) != 2 || slugs[0] != "octo-tools" {
		t.Fatalf("unexpected slugs %v", slugs)
	}
	if err := client.AddWatch(ctx, "octo-new"); err != nil {
		t.Fatalf("AddWatch: %v", err)
	}
	if err := client.RemoveWatch(ctx, "octo-tools"); err != nil {
		t.Fatalf("RemoveWatch: %v", err)
	}

	got := *requests
	if len(got) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(got))
	}
	if got[1].Method != http.MethodPost || got[1].Body["slug"] != "octo-new" {
		t.Fatalf("unexpected add request %+v", got[1])
	}
	if got[2].Path != "/recon/watchlist/remove" || got[2].Body["slug"] != "octo-tools" {
		t.Fatalf("unexpected remove request %+v", got[2])
	}
}

func TestScoredIssuesChoosesEndpoint(t *testing.T) {
	client, _ := newAggregator(t, map[string]string{
		"/recon/all-scored-issues": `[{"id":"github-a-b-1","repo":"a/b","number":1,"cvs":85,"cvsTier":"go"}]`,
		"/recon/a-b/scored-issues": `[{"id":"github-a-b-2","repo":"a/b","number":2,"cvs":41,"cvsTier":"maybe"}]`,
		"/recon/a-b/dossier":       `{"slug":"a-b","contributionRules":"Sign the CLA."}`,
		"/recon/a-b/health":        `{"overallViability":72.5}`,
	})
	ctx := context.Background()

	all, err := client.ScoredIssues(ctx, "")
	if err != nil {
		t.Fatalf("ScoredIssues all: %v", err)
	}
	if len(all) != 1 || all[0].CVSTier != recon.TierGo {
		t.Fatalf("unexpected all issues %+v", all)
	}
	one, err := client.ScoredIssues(ctx, "a-b")
	if err != nil {
		t.Fatalf("ScoredIssues slug: %v", err)
	}
	if len(one) != 1 || one[0].Number != 2 {
		t.Fatalf("unexpected slug issues %+v", one)
	}
	dossier, err := client.Dossier(ctx, "a-b")
	if err != nil || dossier == nil || dossier.ContributionRules != "Sign the CLA." {
		t.Fatalf("Dossier = %+v, %v", dossier, err)
	}
	health, err := client.Health(ctx, "a-b")
	if err != nil || health == nil || health.OverallViability != 72.5 {
		t.Fatalf("Health = %+v, %v", health, err)
	}
}

func TestClaimUsesHyphenatedSlug(t *testing.T) {
	client, requests := newAggregator(t, map[string]string{
		"/recon/octo-tools/claim":   `{}`,
		"/recon/octo-tools/unclaim": `{}`,
	})
	ctx := context.Background()
	id := recon.IssueID("octo/tools", 12)
	if id != "github-octo-tools-12" {
		t.Fatalf("IssueID = %q", id)
	}
	if err := client.Claim(ctx, "octo/tools", id, "me", "https://github.com/me/tools/issues/3"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := client.Unclaim(ctx, "octo/tools", id); err != nil {
		t.Fatalf("Unclaim: %v", err)
	}
	got := *requests
	if got[0].Body["issueId"] != id || got[0].Body["claimedBy"] != "me" || got[0].Body["forkIssueUrl"] == "" {
		t.Fatalf("unexpected claim body %+v", got[0].Body)
	}
	if got[1].Path != "/recon/octo-tools/unclaim" || got[1].Body["issueId"] != id {
		t.Fatalf("unexpected unclaim request %+v", got[1])
	}
}

func TestAggregatorErrorIncludesStatus(t *testing.T) {
	client, _ := newAggregator(t, map[string]string{})
	_, err := client.Watchlist(context.Background())
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in error, got %v", err)
	}
}
