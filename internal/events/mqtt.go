package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SkoposLabs/csm/internal/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxPayloadSize           = 1 << 20
)

// MQTTPublisher sends events to an MQTT broker using paho.
//
// The broker holds a retained {prefix}/system/status message: "online" after
// connect, "offline" on Close, and an LWT "offline" if the process dies.
type MQTTPublisher struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	connected bool
	mu        sync.RWMutex
}

// Connect dials the broker and returns a ready publisher.
func Connect(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	p := newPublisher(cfg)
	token := p.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return p, nil
}

// newPublisher builds the client without connecting.
func newPublisher(cfg config.MQTTConfig) *MQTTPublisher {
	p := &MQTTPublisher{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
	}

	opts := buildClientOptions(cfg)
	opts.SetWill(p.topics.SystemStatus(), statusPayload(cfg.Broker.ClientID, "offline", "unexpected_disconnect"), 1, true)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		p.mu.Lock()
		p.connected = true
		p.mu.Unlock()
		c.Publish(p.topics.SystemStatus(), byte(cfg.QoS), true, statusPayload(cfg.Broker.ClientID, "online", ""))
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, _ error) {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
	})

	p.client = pahomqtt.NewClient(opts)
	return p
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

func statusPayload(clientID, status, reason string) string {
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`,
			status, clientID, time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`,
		status, clientID, reason, time.Now().UTC().Format(time.RFC3339))
}

// Publish sends ev to its event topic. Events are not retained.
func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := ev.Payload()
	if err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !p.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(p.topics.Event(ev.Type), byte(p.cfg.QoS), false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// HealthCheck reports whether the broker connection is up.
func (p *MQTTPublisher) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !p.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client.IsConnected()
}

// Close publishes the graceful offline status and disconnects.
func (p *MQTTPublisher) Close() error {
	if p.client == nil {
		return nil
	}
	if p.IsConnected() {
		token := p.client.Publish(p.topics.SystemStatus(), byte(p.cfg.QoS), true,
			statusPayload(p.cfg.Broker.ClientID, "offline", "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}
	p.client.Disconnect(defaultDisconnectQuiesce)

	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}
