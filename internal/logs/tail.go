package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"vibedispatch/internal/logging"
)

const (
	maxLineBytes        = 1024 * 1024
	defaultPollInterval = 250 * time.Millisecond
)

// TailOptions selects what Tail reads. A negative Offset means "the last
// Limit lines"; otherwise reading resumes at Offset.
type TailOptions struct {
	Offset int64
	Limit  int
	// MinLevel drops lines below this level. Lines whose level cannot be
	// determined are always kept.
	MinLevel string
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads from the log file at path. A missing file yields no lines and
// offset zero so a later call picks up the file once it exists.
func Tail(path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = readLast(path, opts.Limit, opts.MinLevel)
	} else {
		offset := opts.Offset
		// Truncated or rotated: start over.
		if offset > info.Size() {
			offset = 0
		}
		result, err = readFrom(path, offset, opts.MinLevel)
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, err
	}
	return result, nil
}

// Follow polls path from offset and hands every batch of new lines to emit
// until ctx is done. It returns nil on cancellation.
func Follow(ctx context.Context, path string, offset int64, minLevel string, interval time.Duration, emit func([]string)) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		result, err := Tail(path, TailOptions{Offset: offset, MinLevel: minLevel})
		if err != nil {
			return err
		}
		offset = result.Offset
		if len(result.Lines) > 0 {
			emit(result.Lines)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readLast(path string, limit int, minLevel string) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return TailResult{}, fmt.Errorf("seek log file: %w", err)
		}
		return TailResult{Offset: end}, nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	end, err := scanLines(file, minLevel, func(line string) {
		ring[next] = line
		next = (next + 1) % limit
		count = min(count+1, limit)
	})
	if err != nil {
		return TailResult{}, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := range count {
		lines = append(lines, ring[(start+i)%limit])
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

func readFrom(path string, offset int64, minLevel string) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	end, err := scanLines(file, minLevel, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return TailResult{Offset: offset}, err
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

// scanLines feeds every complete line at or above minLevel to fn and returns
// the offset just past the last complete line. A trailing partial line is
// left for the next read.
func scanLines(file *os.File, minLevel string, fn func(string)) (int64, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	threshold, filter := slog.LevelDebug, strings.TrimSpace(minLevel) != ""
	if filter {
		threshold = logging.ParseLevel(minLevel)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	consumed := start
	for {
		raw, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(raw))
		line := strings.TrimRight(raw, "\r\n")
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes]
		}
		if filter {
			if level, ok := LineLevel(line); ok && level < threshold {
				continue
			}
		}
		fn(line)
	}
}

// LineLevel extracts the level of a console or JSON formatted log line.
func LineLevel(line string) (slog.Level, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}
	if strings.HasPrefix(line, "{") {
		var probe struct {
			Level string `json:"level"`
		}
		if err := json.Unmarshal([]byte(line), &probe); err != nil || probe.Level == "" {
			return 0, false
		}
		return logging.ParseLevel(probe.Level), true
	}
	// Console lines are "<timestamp> <LEVEL> ...".
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return 0, false
	}
	switch fields[1] {
	case "DEBUG", "INFO", "WARN", "ERROR":
		return logging.ParseLevel(fields[1]), true
	}
	return 0, false
}
