// Package dimmer drives dimmer and RGB LED channels.
package dimmer

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
)

// RGBW is the state of a dimmer or RGB controller.
type RGBW struct {
	Red             uint8
	Green           uint8
	Blue            uint8
	ColorBrightness uint8
	Brightness      uint8
}

// Default is the state assumed before a driver reports one.
var Default = RGBW{Green: 0xFF}

// FromValue unpacks a channel value: brightness, color brightness, blue,
// green, red in bytes 0 to 4.
func FromValue(v channel.Value) RGBW {
	return RGBW{
		Brightness:      v[0],
		ColorBrightness: v[1],
		Blue:            v[2],
		Green:           v[3],
		Red:             v[4],
	}
}

// Value packs c into a channel value.
func (c RGBW) Value() channel.Value {
	var v channel.Value
	v[0] = c.Brightness
	v[1] = c.ColorBrightness
	v[2] = c.Blue
	v[3] = c.Green
	v[4] = c.Red
	return v
}

// Driver applies and reports the output of a channel.
type Driver interface {
	SetRGBW(channel int, c RGBW) error
	RGBW(channel int) (RGBW, error)
}

// Controller connects one channel to its driver.
type Controller struct {
	n      int
	store  *channel.Store
	driver Driver
	notify channel.Notifier
}

// New creates the controller for channel n.
func New(n int, store *channel.Store, d Driver, notify channel.Notifier) *Controller {
	return &Controller{n: n, store: store, driver: d, notify: notify}
}

// Begin loads the driver's current output into the channel value.
func (c *Controller) Begin() {
	c.store.SetValue(c.n, c.readback().Value())
}

func (c *Controller) readback() RGBW {
	if c.driver == nil {
		return Default
	}
	rgbw, err := c.driver.RGBW(c.n)
	if err != nil {
		log.Printf("dimmer %d: read: %v", c.n, err)
		return Default
	}
	return rgbw
}

// Set applies a value received from the server and reports what the driver
// actually shows.
func (c *Controller) Set(v channel.Value) {
	if c.driver == nil {
		return
	}
	if err := c.driver.SetRGBW(c.n, FromValue(v)); err != nil {
		log.Printf("dimmer %d: set: %v", c.n, err)
		return
	}
	c.notify.Notify(c.n, c.readback().Value())
}

// Poll has nothing to do per tick; dimmers change only on command.
func (c *Controller) Poll(now time.Time, elapsed time.Duration) {}

// MemDriver keeps channel state in memory. It backs channels with no
// hardware attached and serves as the test double.
type MemDriver struct {
	mu     sync.Mutex
	state  map[int]RGBW
	SetErr error
	// Sets records every applied state.
	Sets []RGBW
}

// NewMemDriver creates an empty MemDriver.
func NewMemDriver() *MemDriver {
	return &MemDriver{state: make(map[int]RGBW)}
}

func (m *MemDriver) SetRGBW(ch int, c RGBW) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.state[ch] = c
	m.Sets = append(m.Sets, c)
	return nil
}

func (m *MemDriver) RGBW(ch int) (RGBW, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state[ch]
	if !ok {
		return Default, nil
	}
	return c, nil
}
