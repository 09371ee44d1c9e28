package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"vibedispatch/internal/logging"
	"vibedispatch/internal/stagestore"
)

const pullRequestScript = `case "$1 $2" in
  "repo list") echo '[{"name":"alpha"}]' ;;
  "pr list") echo '[{"number":5,"title":"Tidy docs","author":{"login":"octo"},"createdAt":"2026-03-01T00:00:00Z","updatedAt":"2026-03-01T00:00:00Z"}]' ;;
  *) echo "unexpected: $*" >&2; exit 1 ;;
esac`

func TestStagesLoadsNamedStage(t *testing.T) {
	env := setupCLITestEnv(t, pullRequestScript)

	out, _, err := runCLI(t, []string{"stages", "pull-requests", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("stages: %v", err)
	}
	var statuses []stagestore.SlotStatus
	if err := json.Unmarshal([]byte(out), &statuses); err != nil {
		t.Fatalf("decode stages output %q: %v", out, err)
	}
	counts := map[string]int{}
	for _, status := range statuses {
		counts[status.Key] = status.Count
	}
	if counts["pull-requests"] != 1 {
		t.Fatalf("expected one pull request, got %+v", statuses)
	}
}

func TestStagesUnknownKeyFails(t *testing.T) {
	env := setupCLITestEnv(t, pullRequestScript)
	if _, _, err := runCLI(t, []string{"stages", "nope"}, env.configPath); err == nil {
		t.Fatal("expected unknown stage to fail")
	}
}

func TestApproveListsCandidatesWithoutArgs(t *testing.T) {
	env := setupCLITestEnv(t, pullRequestScript)

	out, _, err := runCLI(t, []string{"approve"}, env.configPath)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	requireContains(t, out, "alpha#5")
	requireContains(t, out, "Tidy docs")
}

func TestMutatingCommandsRespectLock(t *testing.T) {
	env := setupCLITestEnv(t, pullRequestScript)

	lock := flock.New(env.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: locked=%v err=%v", locked, err)
	}
	defer lock.Unlock()

	_, _, err = runCLI(t, []string{"approve", "alpha#5"}, env.configPath)
	if !errors.Is(err, errLocked) {
		t.Fatalf("expected errLocked, got %v", err)
	}
}

func TestLogsShowsFilteredTail(t *testing.T) {
	env := setupCLITestEnv(t, "")
	content := "2026-03-01T00:00:00Z INFO batch started\n2026-03-01T00:00:01Z ERROR merge failed\n"
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, logging.FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--level", "error"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "batch started") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	requireContains(t, out, "merge failed")
}
