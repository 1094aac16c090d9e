package logger

import (
	"fmt"
	"sync"
	"time"
)

// LogEntry is one decoded log line kept for the interactive view
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Source    string // process name, or "system" for unnamed loggers
	Message   string
}

// LogBuffer is a fixed-capacity ring of log entries. Once full, each Add
// overwrites the oldest entry.
type LogBuffer struct {
	mu    sync.RWMutex
	ring  []LogEntry
	start int // index of the oldest entry
	count int
}

// NewLogBuffer creates a buffer holding at most capacity entries
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogBuffer{ring: make([]LogEntry, capacity)}
}

// Add records an entry stamped with the current time
func (lb *LogBuffer) Add(level, source, message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	entry := LogEntry{Timestamp: time.Now(), Level: level, Source: source, Message: message}
	if lb.count < len(lb.ring) {
		lb.ring[(lb.start+lb.count)%len(lb.ring)] = entry
		lb.count++
		return
	}
	lb.ring[lb.start] = entry
	lb.start = (lb.start + 1) % len(lb.ring)
}

// GetRecent returns up to count of the newest entries, oldest first
func (lb *LogBuffer) GetRecent(count int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	count = min(max(count, 0), lb.count)
	out := make([]LogEntry, count)
	skip := lb.count - count
	for i := range out {
		out[i] = lb.ring[(lb.start+skip+i)%len(lb.ring)]
	}
	return out
}

// GetAll returns every buffered entry, oldest first
func (lb *LogBuffer) GetAll() []LogEntry {
	return lb.GetRecent(lb.Len())
}

// Len returns the number of buffered entries
func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.count
}

// Clear drops every entry
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	clear(lb.ring)
	lb.start, lb.count = 0, 0
}

// FormatLogEntry renders an entry as one line of the log pane
func FormatLogEntry(entry LogEntry) string {
	return fmt.Sprintf("%s %-5s %-10s %s",
		entry.Timestamp.Format("15:04:05.000"),
		entry.Level,
		entry.Source,
		entry.Message,
	)
}
