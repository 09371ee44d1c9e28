package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"vibedispatch/internal/logging"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const entryIndent = "  "

// renderEntry formats one progress log line.
func renderEntry(entry logging.Entry, colorize bool) string {
	line := fmt.Sprintf("%s[%s] %s", entryIndent, severityLabel(entry.Severity), entry.Message)
	if colorize {
		if color := severityColor(entry.Severity); color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func severityLabel(severity logging.Severity) string {
	switch severity {
	case logging.SeveritySuccess:
		return "OK"
	case logging.SeverityWarning:
		return "WARN"
	case logging.SeverityError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func severityColor(severity logging.Severity) string {
	switch severity {
	case logging.SeveritySuccess:
		return ansiGreen
	case logging.SeverityWarning:
		return ansiYellow
	case logging.SeverityError:
		return ansiRed
	case logging.SeverityInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// streamSink prints every new sink entry to out until the returned stop
// function is called.
func streamSink(out io.Writer, sink *logging.Sink) func() {
	colorize := shouldColorize(out)
	var mu sync.Mutex
	return sink.Subscribe(func(entry logging.Entry) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, renderEntry(entry, colorize))
	})
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
