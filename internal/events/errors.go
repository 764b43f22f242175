package events

import "errors"

// Sentinel errors for event publishing. Use errors.Is to check them.
var (
	// ErrNotConnected is returned when publishing on a disconnected client.
	ErrNotConnected = errors.New("events: mqtt client not connected")

	// ErrConnectionFailed is returned when the initial broker connection fails.
	ErrConnectionFailed = errors.New("events: mqtt connection failed")

	// ErrPublishFailed is returned when a publish is not acknowledged.
	ErrPublishFailed = errors.New("events: publish failed")

	// ErrDisabled is returned by Connect when MQTT is turned off in config.
	ErrDisabled = errors.New("events: mqtt disabled in configuration")
)
