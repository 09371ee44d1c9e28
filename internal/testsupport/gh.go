package testsupport

import (
	"context"
	"strings"
	"sync"

	"vibedispatch/internal/github"
)

// FakeGH answers gh invocations by the longest registered prefix of the
// space-joined argument list. Unregistered calls fail like a gh error.
type FakeGH struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []string
}

type fakeResponse struct {
	out string
	err error
}

func NewFakeGH() *FakeGH {
	return &FakeGH{responses: make(map[string]fakeResponse)}
}

// On registers stdout for calls starting with prefix.
func (f *FakeGH) On(prefix, out string) *FakeGH {
	f.mu.Lock()
	f.responses[prefix] = fakeResponse{out: out}
	f.mu.Unlock()
	return f
}

// Fail registers a non-zero exit with stderr for calls starting with prefix.
func (f *FakeGH) Fail(prefix, stderr string) *FakeGH {
	f.mu.Lock()
	f.responses[prefix] = fakeResponse{err: &github.CommandError{Args: strings.Fields(prefix), ExitCode: 1, Stderr: stderr}}
	f.mu.Unlock()
	return f
}

func (f *FakeGH) Run(_ context.Context, _ string, args []string) ([]byte, error) {
	joined := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, joined)
	best := ""
	for prefix := range f.responses {
		if strings.HasPrefix(joined, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil, &github.CommandError{Args: args, ExitCode: 1, Stderr: "unexpected call: " + joined}
	}
	resp := f.responses[best]
	return []byte(resp.out), resp.err
}

// Called counts calls starting with prefix.
func (f *FakeGH) Called(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			count++
		}
	}
	return count
}

// Calls returns every recorded invocation.
func (f *FakeGH) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Find returns the first call starting with prefix.
func (f *FakeGH) Find(prefix string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			return call, true
		}
	}
	return "", false
}
