// Package mqtt connects the controller to the broker: raw input
// subscriptions, operator commands, output sinks, sensor readings and
// system lifecycle events.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"
)

// Handler receives one inbound message.
type Handler func(topic string, payload []byte)

// Publisher publishes to the broker.
type Publisher interface {
	// Publish sends payload to topic. While disconnected the message is
	// buffered and replayed on reconnect.
	Publish(topic string, payload []byte, retained bool) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error
}

// Client is the full broker connection.
type Client interface {
	Publisher

	// Subscribe registers handler for filter. Subscriptions survive reconnects.
	Subscribe(filter string, handler Handler) error

	// IsConnected reports whether the connection is active.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Operator command names, the last level of {prefix}/command/{name}.
const (
	CommandManualMode          = "manualMode"
	CommandTemporaryManualMode = "temporaryManualMode"
	CommandTemporaryBoostMode  = "temporaryBoostMode"
	CommandManualPower         = "manualPower"
)

// Commands lists every accepted command name.
var Commands = []string{
	CommandManualMode,
	CommandTemporaryManualMode,
	CommandTemporaryBoostMode,
	CommandManualPower,
}

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	return strings.TrimSuffix(t.Prefix, "/") + "/" + strings.Join(parts, "/")
}

// System is the lifecycle topic, also used for the last will.
func (t Topics) System() string { return t.join("system") }

// Command is the topic operators publish a command to.
func (t Topics) Command(name string) string { return t.join("command", name) }

// Commands is the wildcard filter for every command.
func (t Topics) Commands() string { return t.join("command", "+") }

// State is the retained echo of a mode flag.
func (t Topics) State(name string) string { return t.join("state", name) }

// Current carries a power reading in watts.
func (t Topics) Current(name string) string { return t.join("current", name) }

// Gpio carries a debounced digital input.
func (t Topics) Gpio(name string) string { return t.join("gpio", name) }

// CO2 carries the MH-Z19C concentration in ppm.
func (t Topics) CO2() string { return t.join("sensor", "co2") }

// CO2Temperature carries the MH-Z19C internal temperature.
func (t Topics) CO2Temperature() string { return t.join("sensor", "co2_temp") }

// OneWire carries a DS18B20 temperature.
func (t Topics) OneWire(id string) string { return t.join("w1", id) }

// ParseCommand returns the command name if topic is a known command topic.
func (t Topics) ParseCommand(topic string) (string, bool) {
	prefix := t.join("command", "")
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(topic, prefix)
	for _, c := range Commands {
		if c == name {
			return name, true
		}
	}
	return "", false
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// TopicMatches reports whether topic matches filter, honouring the + and #
// wildcards.
func TopicMatches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, part := range f {
		if part == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
