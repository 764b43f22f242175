package events

import "fmt"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "csm"

// Topics builds csm MQTT topic names under a prefix.
//
//	Topics{Prefix: "csm"}.Event(FileAdded) // "csm/events/file_added"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Event returns the topic for one event type.
func (t Topics) Event(typ Type) string {
	return fmt.Sprintf("%s/events/%s", t.prefix(), typ)
}

// AllEvents returns a subscription pattern matching every event topic.
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/events/+", t.prefix())
}

// SystemStatus returns the retained online/offline status topic.
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}
