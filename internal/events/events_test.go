package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/SkoposLabs/csm/internal/config"
)

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"event default prefix", Topics{}.Event(FileAdded), "csm/events/file_added"},
		{"event custom prefix", Topics{Prefix: "acme/csm"}.Event(ApplicationStatusChanged), "acme/csm/events/application_status_changed"},
		{"all events", Topics{}.AllEvents(), "csm/events/+"},
		{"system status", Topics{Prefix: "fleet"}.SystemStatus(), "fleet/system/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestEventPayload(t *testing.T) {
	ev := Event{
		Type:      ApplicationStatusChanged,
		EntityID:  "app-4",
		Timestamp: time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC),
		Data:      StatusChange{Name: "Unknown Crypto Miner", From: "unidentified", To: "whitelisted"},
	}

	payload, err := ev.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}

	var decoded struct {
		Type      string       `json:"type"`
		EntityID  string       `json:"entityId"`
		Timestamp time.Time    `json:"timestamp"`
		Data      StatusChange `json:"data"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Type != "application_status_changed" || decoded.EntityID != "app-4" {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Data.To != "whitelisted" || decoded.Data.From != "unidentified" {
		t.Errorf("data = %+v, want unidentified -> whitelisted", decoded.Data)
	}
}

func TestStatusPayload(t *testing.T) {
	var online map[string]string
	if err := json.Unmarshal([]byte(statusPayload("csm-1", "online", "")), &online); err != nil {
		t.Fatalf("online payload: %v", err)
	}
	if online["status"] != "online" || online["client_id"] != "csm-1" {
		t.Errorf("online payload = %v", online)
	}
	if _, ok := online["reason"]; ok {
		t.Error("online payload should not carry a reason")
	}

	var offline map[string]string
	if err := json.Unmarshal([]byte(statusPayload("csm-1", "offline", "graceful_shutdown")), &offline); err != nil {
		t.Fatalf("offline payload: %v", err)
	}
	if offline["reason"] != "graceful_shutdown" {
		t.Errorf("offline reason = %q", offline["reason"])
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.MQTTConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestMQTTPublisher_NotConnected(t *testing.T) {
	p := newPublisher(config.MQTTConfig{
		Enabled: true,
		Broker:  config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883, ClientID: "csm-test"},
		QoS:     1,
	})

	err := p.Publish(context.Background(), Event{Type: FileAdded, EntityID: "f1"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := p.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestMQTTPublisher_CancelledContext(t *testing.T) {
	p := newPublisher(config.MQTTConfig{Enabled: true, Broker: config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Publish(ctx, Event{Type: FileRemoved}); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()

	_ = r.Publish(ctx, Event{Type: FileAdded, EntityID: "a"})
	_ = r.Publish(ctx, Event{Type: FileRemoved, EntityID: "a"})

	got := r.Events()
	if len(got) != 2 || got[0].Type != FileAdded || got[1].Type != FileRemoved {
		t.Fatalf("Events() = %+v", got)
	}

	r.Err = ErrPublishFailed
	if err := r.Publish(ctx, Event{Type: FileAdded}); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
	if len(r.Events()) != 2 {
		t.Error("failed publish should not be recorded")
	}
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	if err := p.Publish(context.Background(), Event{Type: FileAdded}); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := p.HealthCheck(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("HealthCheck() error = %v, want ErrDisabled", err)
	}
}
