// Package mqtt carries device frames over an MQTT broker. Frames to the
// server are published on the device's up topic, frames from the server
// arrive on its down topic, and lifecycle events go to a retained system
// topic.
package mqtt

import (
	"encoding/hex"
	"encoding/json"
	"time"
)

// TopicPrefix is the root under which every device publishes.
const TopicPrefix = "supla/devices"

// System event names.
const (
	EventOnline  = "ONLINE"
	EventOffline = "OFFLINE"
	EventStatus  = "STATUS"
)

// Topics holds the per-device topic names.
type Topics struct {
	Up     string
	Down   string
	System string
}

// TopicsFor derives a device's topics from its GUID.
func TopicsFor(guid [16]byte) Topics {
	base := TopicPrefix + "/" + hex.EncodeToString(guid[:])
	return Topics{
		Up:     base + "/up",
		Down:   base + "/down",
		System: base + "/system",
	}
}

// ClientID is the MQTT client identifier used by a device.
func ClientID(guid [16]byte) string {
	return "supla-" + hex.EncodeToString(guid[:])
}

// SystemEvent represents a device lifecycle event.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "ONLINE", "OFFLINE", "STATUS"
	Reason     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// SystemPayload represents the MQTT message payload for system events.
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
