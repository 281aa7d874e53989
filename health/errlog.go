// Package health aggregates subsystem condition into a single 0-100 score
// with per-component breakdowns, and keeps the bounded in-memory error log
// those scores are derived from.
package health

import (
	"sync"
	"time"
)

// Severity ranks error log entries. Fatal entries force the overall health
// tier down until acknowledged.
type Severity int

const (
	SevInfo Severity = iota
	SevWarning
	SevCritical
	SevFatal
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevCritical:
		return "critical"
	case SevFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Entry is one recorded error event.
type Entry struct {
	At        time.Time `json:"at"`
	Severity  Severity  `json:"-"`
	Level     string    `json:"severity"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

// Log is a bounded ring of error entries. When full, the oldest entry is
// evicted. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
	fatal   bool
}

// NewLog returns a log holding at most capacity entries.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 256
	}
	return &Log{cap: capacity}
}

// Record appends an entry, evicting the oldest if the ring is full. A Fatal
// entry latches the fatal flag until ClearFatal.
func (l *Log) Record(sev Severity, component, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.cap {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.cap-1]
	}
	l.entries = append(l.entries, Entry{
		At:        time.Now(),
		Severity:  sev,
		Level:     sev.String(),
		Component: component,
		Message:   message,
	})
	if sev == SevFatal {
		l.fatal = true
	}
}

// Recent returns up to n entries, newest last. n <= 0 returns everything.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// CountSince tallies entries newer than the cutoff by severity.
func (l *Log) CountSince(window time.Duration) map[Severity]int {
	cutoff := time.Now().Add(-window)
	counts := make(map[Severity]int)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.At.After(cutoff) {
			counts[e.Severity]++
		}
	}
	return counts
}

// FatalSeen reports whether a fatal entry has been recorded and not yet
// acknowledged.
func (l *Log) FatalSeen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fatal
}

// ClearFatal acknowledges the fatal condition.
func (l *Log) ClearFatal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fatal = false
}
