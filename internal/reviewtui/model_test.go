package reviewtui_test

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"vibedispatch/internal/dispatch"
	"vibedispatch/internal/github"
	"vibedispatch/internal/logging"
	"vibedispatch/internal/reviewtui"
	"vibedispatch/internal/testsupport"
)

func newSession(t *testing.T) (*dispatch.Session, *testsupport.FakeGH) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.GitHub.RequestsPerSecond = 0
	fake := testsupport.NewFakeGH()
	client, err := github.New(cfg, github.WithExecutor(fake))
	if err != nil {
		t.Fatalf("github.New: %v", err)
	}
	session, err := dispatch.New(dispatch.Options{Maintenance: client, Sink: logging.NewSink(0)})
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}
	t.Cleanup(session.Close)
	session.PullRequests.Replace([]github.PullRequest{
		{Repo: "alpha", Number: 5, Title: "Tidy docs", Author: github.Actor{Login: "octo"}},
		{Repo: "beta", Number: 7, Title: "Bump deps", Author: github.Actor{Login: "octo"}},
	})
	return session, fake
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send feeds msg to the model and runs any returned command once, feeding
// its message back in.
func send(t *testing.T, m reviewtui.Model, msg tea.Msg) reviewtui.Model {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(reviewtui.Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	if cmd != nil {
		if out := cmd(); out != nil {
			if _, quit := out.(tea.QuitMsg); !quit {
				next, _ = model.Update(out)
				model = next.(reviewtui.Model)
			}
		}
	}
	return model
}

func TestNavigationMovesFocus(t *testing.T) {
	session, _ := newSession(t)
	m := reviewtui.New(context.Background(), session)
	nav := session.Navigator()

	cases := []struct {
		key  tea.KeyMsg
		want int
	}{
		{runes("n"), 1},
		{runes("n"), 1},
		{tea.KeyMsg{Type: tea.KeyLeft}, 0},
		{runes("p"), 0},
		{tea.KeyMsg{Type: tea.KeyRight}, 1},
	}
	for i, tc := range cases {
		m = send(t, m, tc.key)
		if index, _ := nav.Position(); index != tc.want {
			t.Fatalf("step %d: position = %d, want %d", i, index, tc.want)
		}
	}
}

func TestViewShowsFocusedItemAndDetails(t *testing.T) {
	session, fake := newSession(t)
	fake.On("pr view 5 -R octo/alpha", `{"number":5,"title":"Tidy docs","body":"Cleans the README","files":[{"path":"README.md","additions":3,"deletions":1}]}`).
		On("pr diff 5 -R octo/alpha", "+added line\n-removed line\n").
		On("pr view 7 -R octo/beta", `{"number":7,"title":"Bump deps"}`).
		On("pr diff 7 -R octo/beta", "")

	m := reviewtui.New(context.Background(), session)
	m = send(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m = send(t, m, runes("n"))
	m = send(t, m, runes("p"))

	view := m.View()
	for _, want := range []string{"Review queue", "1/2", "alpha PR #5", "Tidy docs", "Cleans the README", "README.md", "+added line"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestMergeRemovesItemFromQueue(t *testing.T) {
	session, fake := newSession(t)
	fake.On("pr merge 5 -R octo/alpha --squash", "").
		On("pr view 7 -R octo/beta", `{"number":7,"title":"Bump deps"}`).
		On("pr diff 7 -R octo/beta", "")

	m := reviewtui.New(context.Background(), session)
	m = send(t, m, runes("m"))

	nav := session.Navigator()
	if nav.Len() != 1 {
		t.Fatalf("expected one item left, got %d", nav.Len())
	}
	current, _ := nav.Current()
	if current.Repo != "beta" {
		t.Fatalf("expected focus on beta, got %+v", current)
	}
	if fake.Called("pr merge 5") != 1 {
		t.Fatalf("expected merge call, calls: %v", fake.Calls())
	}
	if view := m.View(); !strings.Contains(view, "Merged") {
		t.Fatalf("expected merge status in view:\n%s", view)
	}
}

func TestEmptyQueueAndQuit(t *testing.T) {
	session, _ := newSession(t)
	session.PullRequests.Replace(nil)

	m := reviewtui.New(context.Background(), session)
	m = send(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	if view := m.View(); !strings.Contains(view, "Nothing waiting for review") {
		t.Fatalf("unexpected view:\n%s", view)
	}
	if next, _ := m.Update(runes("a")); next == nil {
		t.Fatal("approve on empty queue should keep the model")
	}

	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}
