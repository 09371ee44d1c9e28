package logging

import (
	"context"
	"log/slog"
	"strings"
)

// sinkHandler mirrors slog records at or above a level into a progress Sink,
// so warnings raised deep in the store surface in the user's progress panel.
type sinkHandler struct {
	sink  *Sink
	level slog.Level
	skip  map[string]struct{}
	attrs []slog.Attr
}

// NewSinkHandler returns a handler that appends records at or above level to
// sink, except records whose event_type is one of skipEvents. It returns
// NoopHandler when sink is nil.
func NewSinkHandler(sink *Sink, level slog.Level, skipEvents ...string) slog.Handler {
	if sink == nil {
		return NoopHandler{}
	}
	skip := make(map[string]struct{}, len(skipEvents))
	for _, event := range skipEvents {
		skip[event] = struct{}{}
	}
	return &sinkHandler{sink: sink, level: level, skip: skip}
}

func (h *sinkHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *sinkHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	message := strings.TrimSpace(record.Message)
	var detail string
	skipped := false
	collect := func(attr slog.Attr) bool {
		switch attr.Key {
		case FieldEventType:
			if _, ok := h.skip[attrString(attr.Value)]; ok {
				skipped = true
			}
		case FieldStage:
			message = attrString(attr.Value) + ": " + message
		case "error":
			detail = attrString(attr.Value)
		}
		return true
	}
	for _, attr := range h.attrs {
		collect(attr)
	}
	record.Attrs(collect)
	if skipped {
		return nil
	}
	if detail != "" {
		message += " (" + detail + ")"
	}
	h.sink.Append(severityForLevel(record.Level), message)
	return nil
}

func (h *sinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next = append(next, h.attrs...)
	next = append(next, attrs...)
	return &sinkHandler{sink: h.sink, level: h.level, skip: h.skip, attrs: next}
}

func (h *sinkHandler) WithGroup(string) slog.Handler {
	return h
}

func severityForLevel(level slog.Level) Severity {
	switch {
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
