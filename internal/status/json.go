package status

import (
	"encoding/hex"
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event           string        `json:"event,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	Code            int           `json:"code"`
	CodeName        string        `json:"code_name"`
	Message         string        `json:"message"`
	Session         string        `json:"session"`
	Registered      bool          `json:"registered"`
	ActivityTimeout int           `json:"activity_timeout"`
	UptimeSeconds   int64         `json:"uptime_seconds"`
	StartTime       string        `json:"start_time"`
	Timestamp       string        `json:"timestamp"`
	MQTT            MQTTStatus    `json:"mqtt"`
	Counts          CountsJSON    `json:"value_counts"`
	Channels        []ChannelJSON `json:"channels"`
	Shutters        []ShutterJSON `json:"shutters,omitempty"`
	Network         *NetworkJSON  `json:"network,omitempty"`
	Config          ConfigJSON    `json:"config"`
}

// MQTTStatus reports broker connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Server    string `json:"server"`
}

// CountsJSON is the JSON representation of dispatch counters.
type CountsJSON struct {
	Sent       int `json:"sent"`
	Suppressed int `json:"suppressed"`
	Failed     int `json:"failed"`
}

// ChannelJSON is the JSON representation of one channel.
type ChannelJSON struct {
	Number int    `json:"number"`
	Type   string `json:"type"`
	Value  string `json:"value"`
}

// ShutterJSON is the JSON representation of one shutter.
type ShutterJSON struct {
	Channel    int    `json:"channel"`
	Percent    int8   `json:"percent"`
	Calibrated bool   `json:"calibrated"`
	Moving     string `json:"moving"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of device config.
type ConfigJSON struct {
	Name            string `json:"name"`
	Server          string `json:"server"`
	Port            int    `json:"port"`
	LocationID      int    `json:"location_id"`
	ActivityTimeout int    `json:"activity_timeout"`
	LoopMs          int64  `json:"loop_ms"`
	TimerMs         int64  `json:"timer_ms"`
	HTTPPort        string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	session := snap.Session
	if session == "" {
		session = "UNKNOWN"
	}

	inner := StatusInner{
		Code:            int(snap.Code),
		CodeName:        snap.Code.String(),
		Message:         snap.Message,
		Session:         session,
		Registered:      snap.Registered,
		ActivityTimeout: snap.ActivityTimeout,
		UptimeSeconds:   int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:       snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:       snap.Now.UTC().Format(time.RFC3339),
		MQTT:            MQTTStatus{Connected: snap.MQTTConnected, Server: snap.Config.Server},
		Counts: CountsJSON{
			Sent:       snap.Counts.Sent,
			Suppressed: snap.Counts.Suppressed,
			Failed:     snap.Counts.Failed,
		},
		Channels: make([]ChannelJSON, 0, len(snap.Channels)),
		Config: ConfigJSON{
			Name:            snap.Config.Name,
			Server:          snap.Config.Server,
			Port:            snap.Config.Port,
			LocationID:      snap.Config.LocationID,
			ActivityTimeout: snap.Config.ActivityTimeout,
			LoopMs:          snap.Config.LoopMs,
			TimerMs:         snap.Config.TimerMs,
			HTTPPort:        snap.Config.HTTPPort,
		},
	}
	for _, c := range snap.Channels {
		inner.Channels = append(inner.Channels, ChannelJSON{
			Number: c.Number,
			Type:   c.Type.String(),
			Value:  hex.EncodeToString(c.Value[:]),
		})
	}
	for _, s := range snap.Shutters {
		inner.Shutters = append(inner.Shutters, ShutterJSON{
			Channel:    s.Channel,
			Percent:    s.Percent,
			Calibrated: s.Calibrated,
			Moving:     s.Moving,
		})
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatCompact returns the same document as FormatJSON on a single line.
func FormatCompact(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
