package batch

import (
	"fmt"
	"strings"
)

// Result is the outcome of one remote action.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(message string) Result {
	return Result{Success: true, Message: strings.TrimSpace(message)}
}

// Failed builds a failed result from err.
func Failed(err error) Result {
	if err == nil {
		return Result{Error: "unknown error"}
	}
	return Result{Error: strings.TrimSpace(err.Error())}
}

// Failedf builds a failed result from a formatted message.
func Failedf(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

func (r Result) errorText() string {
	if text := strings.TrimSpace(r.Error); text != "" {
		return text
	}
	return "unknown error"
}
