// Package events publishes compliance change notifications.
//
// Every successful mutation in the compliance service produces an Event.
// The MQTT publisher sends it as JSON to {prefix}/events/{type}; other
// systems (SIEM forwarders, chat bots) subscribe there instead of polling
// the API.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Type names the kind of change an Event describes.
type Type string

const (
	ApplicationStatusChanged Type = "application_status_changed"
	DeviceOwnerChanged       Type = "device_owner_changed"
	FileAdded                Type = "file_added"
	FileRemoved              Type = "file_removed"
)

// Event is one published change.
type Event struct {
	Type      Type      `json:"type"`
	EntityID  string    `json:"entityId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// StatusChange is the Data of an ApplicationStatusChanged event.
type StatusChange struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Payload encodes the event as the JSON message body.
func (e Event) Payload() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return b, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// Noop discards every event. It is used when MQTT is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) HealthCheck(context.Context) error    { return ErrDisabled }
func (Noop) Close() error                         { return nil }

// Offline stands in for a publisher that failed to connect at startup.
// Publish fails with ErrNotConnected and HealthCheck reports Err.
type Offline struct{ Err error }

func (Offline) Publish(context.Context, Event) error { return ErrNotConnected }
func (o Offline) HealthCheck(context.Context) error  { return o.Err }
func (Offline) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// Err, when set, is returned from Publish instead of recording.
	Err error
}

// Publish records ev.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

// HealthCheck always succeeds.
func (r *Recorder) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
