// Package status provides a thread-safe status tracker for the device.
// It receives status transitions from the session and is read by the HTTP
// handlers.
package status

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains device configuration for display.
type Config struct {
	Name            string
	Server          string
	Port            int
	LocationID      int
	ActivityTimeout int
	LoopMs          int64
	TimerMs         int64
	HTTPPort        string
}

// ShutterInfo is the display state of one roller shutter.
type ShutterInfo struct {
	Channel    int
	Percent    int8 // -1 when uncalibrated
	Calibrated bool
	Moving     string
}

// Counts are the value-change dispatch counters.
type Counts struct {
	Sent       int
	Suppressed int
	Failed     int
}

// Snapshot is a point-in-time view of device state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Code            Code
	Message         string
	Transitions     int
	Session         string
	Registered      bool
	ActivityTimeout int
	Channels        []channel.Channel
	Shutters        []ShutterInfo
	Counts          Counts
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the device started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable device state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Status records a status transition. Repeats of the current status are
// counted but not logged.
func (t *Tracker) Status(code Code, msg string) {
	t.mu.Lock()
	changed := code != t.snap.Code || msg != t.snap.Message
	t.snap.Code = code
	t.snap.Message = msg
	t.snap.Transitions++
	t.mu.Unlock()

	if changed {
		log.Printf("status: %s (%d) %s", code, int(code), msg)
	}
}

// UpdateSession sets the session state.
func (t *Tracker) UpdateSession(state string, registered bool, activityTimeout int) {
	t.mu.Lock()
	t.snap.Session = state
	t.snap.Registered = registered
	t.snap.ActivityTimeout = activityTimeout
	t.mu.Unlock()
}

// UpdateChannels replaces the channel and shutter views. Both slices are
// copied.
func (t *Tracker) UpdateChannels(chs []channel.Channel, shutters []ShutterInfo) {
	c := append([]channel.Channel(nil), chs...)
	s := append([]ShutterInfo(nil), shutters...)
	t.mu.Lock()
	t.snap.Channels = c
	t.snap.Shutters = s
	t.mu.Unlock()
}

// UpdateCounts sets the dispatch counters.
func (t *Tracker) UpdateCounts(c Counts) {
	t.mu.Lock()
	t.snap.Counts = c
	t.mu.Unlock()
}

// SetMQTTConnected sets the broker connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the device state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
