package server

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Component status values.
const (
	statusOK        = "ok"
	statusError     = "error"
	statusDisabled  = "disabled"
	statusUnchecked = "unchecked"
)

// ComponentStatus is the last known health of a backing component (the data
// store, the MQTT broker, InfluxDB).
type ComponentStatus struct {
	Name        string        `json:"name"`
	Status      string        `json:"status"` // "ok", "error", "disabled", "unchecked"
	Error       string        `json:"error,omitempty"`
	CheckedAt   time.Time     `json:"checked_at"`
	Latency     time.Duration `json:"latency"`
	ConsecFails int           `json:"consec_fails"`
}

// statusTracker holds the latest ComponentStatus per component name.
type statusTracker struct {
	mu   sync.RWMutex
	byID map[string]*ComponentStatus
}

func newStatusTracker() *statusTracker {
	return &statusTracker{byID: make(map[string]*ComponentStatus)}
}

// Set replaces the entry for s.Name.
func (st *statusTracker) Set(s *ComponentStatus) {
	st.mu.Lock()
	st.byID[s.Name] = s
	st.mu.Unlock()
}

// Get returns the entry for name, or nil.
func (st *statusTracker) Get(name string) *ComponentStatus {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.byID[name]
}

// All returns copies of every entry ordered by name.
func (st *statusTracker) All() []ComponentStatus {
	st.mu.RLock()
	out := make([]ComponentStatus, 0, len(st.byID))
	for _, c := range st.byID {
		out = append(out, *c)
	}
	st.mu.RUnlock()

	slices.SortFunc(out, func(a, b ComponentStatus) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// ActivityEvent represents a single entry in the activity log.
type ActivityEvent struct {
	Time    time.Time `json:"time"`
	Source  string    `json:"source"`
	Type    string    `json:"type"` // "info", "success", "error", "warning"
	Message string    `json:"message"`
}

// activityLog is a fixed-size ring of recent events, safe for concurrent
// use. seq counts every Add and lets pollers detect changes cheaply.
type activityLog struct {
	mu    sync.RWMutex
	ring  []ActivityEvent
	next  int // slot the next event is written to
	count int
	seq   int64
}

func newActivityLog(capacity int) *activityLog {
	return &activityLog{ring: make([]ActivityEvent, max(capacity, 1))}
}

// Add records e, overwriting the oldest event when full.
func (al *activityLog) Add(e ActivityEvent) {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.ring[al.next] = e
	al.next = (al.next + 1) % len(al.ring)
	al.count = min(al.count+1, len(al.ring))
	al.seq++
}

// Recent returns up to n events, newest first.
func (al *activityLog) Recent(n int) []ActivityEvent {
	al.mu.RLock()
	defer al.mu.RUnlock()

	n = min(max(n, 0), al.count)
	out := make([]ActivityEvent, n)
	for i := range out {
		out[i] = al.ring[(al.next-1-i+len(al.ring))%len(al.ring)]
	}
	return out
}

// Seq returns the number of events ever added.
func (al *activityLog) Seq() int64 {
	al.mu.RLock()
	defer al.mu.RUnlock()
	return al.seq
}

// Logf adds an event stamped with the current time. The format is used
// verbatim when no args are given.
func (al *activityLog) Logf(source, eventType, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	al.Add(ActivityEvent{
		Time:    time.Now().UTC(),
		Source:  source,
		Type:    eventType,
		Message: msg,
	})
}
