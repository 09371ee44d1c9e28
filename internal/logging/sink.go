package logging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Severity classifies a progress entry for the user-facing panel.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Entry is one line of user-visible progress narration.
type Entry struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
}

// Sink is the append-only progress log shared by the store, batch
// coordinators, and review navigator. It is bounded for the lifetime of a
// session: once capacity is reached the oldest entries are evicted, while
// sequence numbers keep increasing.
type Sink struct {
	mu        sync.Mutex
	cond      *sync.Cond
	capacity  int
	buffer    []Entry
	nextSeq   uint64
	listeners map[uint64]func(Entry)
	nextID    uint64
	now       func() time.Time
}

// NewSink constructs a bounded progress sink.
func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = 500
	}
	s := &Sink{
		capacity:  capacity,
		listeners: make(map[uint64]func(Entry)),
		now:       time.Now,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Append records a message and notifies listeners. Listeners run on the
// caller's goroutine after the sink lock is released.
func (s *Sink) Append(severity Severity, message string) Entry {
	if s == nil {
		return Entry{}
	}
	if severity == "" {
		severity = SeverityInfo
	}
	s.mu.Lock()
	s.nextSeq++
	entry := Entry{
		Sequence:  s.nextSeq,
		Timestamp: s.now().UTC(),
		Message:   strings.TrimSpace(message),
		Severity:  severity,
	}
	if len(s.buffer) == s.capacity {
		copy(s.buffer, s.buffer[1:])
		s.buffer = s.buffer[:s.capacity-1]
	}
	s.buffer = append(s.buffer, entry)
	listeners := make([]func(Entry), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(entry)
	}
	return entry
}

func (s *Sink) Info(format string, args ...any) Entry {
	return s.Append(SeverityInfo, fmt.Sprintf(format, args...))
}

func (s *Sink) Success(format string, args ...any) Entry {
	return s.Append(SeveritySuccess, fmt.Sprintf(format, args...))
}

func (s *Sink) Warning(format string, args ...any) Entry {
	return s.Append(SeverityWarning, fmt.Sprintf(format, args...))
}

func (s *Sink) Error(format string, args ...any) Entry {
	return s.Append(SeverityError, fmt.Sprintf(format, args...))
}

// Subscribe registers fn for every future entry and returns a function that
// removes it.
func (s *Sink) Subscribe(fn func(Entry)) func() {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Entries returns every buffered entry in append order.
func (s *Sink) Entries() []Entry {
	entries, _ := s.Tail(0)
	return entries
}

// Tail returns the most recent limit entries without blocking, along with the
// latest sequence number.
func (s *Sink) Tail(limit int) ([]Entry, uint64) {
	if s == nil {
		return nil, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.buffer) {
		limit = len(s.buffer)
	}
	if limit == 0 {
		return nil, s.nextSeq
	}
	out := make([]Entry, limit)
	copy(out, s.buffer[len(s.buffer)-limit:])
	return out, s.nextSeq
}

// Fetch returns entries with sequence greater than since. When wait is true,
// Fetch blocks until at least one entry is available or the context ends.
func (s *Sink) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Entry, uint64, error) {
	if s == nil {
		return nil, since, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}

	stopWake := make(chan struct{})
	defer close(stopWake)
	if wait && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			case <-stopWake:
			}
		}()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		entries := s.afterLocked(since, limit)
		if len(entries) > 0 || !wait {
			return entries, s.nextSeq, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, s.nextSeq, err
		}
		s.cond.Wait()
	}
}

// Len reports how many entries are currently buffered.
func (s *Sink) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

func (s *Sink) afterLocked(since uint64, limit int) []Entry {
	start := len(s.buffer)
	for i, entry := range s.buffer {
		if entry.Sequence > since {
			start = i
			break
		}
	}
	if start == len(s.buffer) {
		return nil
	}
	end := start + limit
	if end > len(s.buffer) {
		end = len(s.buffer)
	}
	out := make([]Entry, end-start)
	copy(out, s.buffer[start:end])
	return out
}
