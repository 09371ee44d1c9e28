package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrCommandFailed marks a gh invocation that exited unsuccessfully.
var ErrCommandFailed = errors.New("gh command failed")

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// CommandError carries the stderr of a failed gh invocation.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		detail = fmt.Sprintf("exit status %d", e.ExitCode)
	}
	verb := "gh"
	if len(e.Args) > 0 {
		verb = "gh " + e.Args[0]
		if len(e.Args) > 1 && !strings.HasPrefix(e.Args[1], "-") && !strings.HasPrefix(e.Args[1], "/") {
			verb += " " + e.Args[1]
		}
	}
	return verb + ": " + detail
}

func (e *CommandError) Unwrap() error { return ErrCommandFailed }

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err == nil {
		return output, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, &CommandError{Args: args, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
	}
	return nil, fmt.Errorf("run %s: %w", binary, err)
}
