// Package relay implements the relay, push-button and binary-sensor state
// machines. All waiting is expressed as countdowns decremented by the elapsed
// time handed in by the scheduler; nothing here blocks.
package relay

import (
	"log"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/gpio"
	"github.com/sweeney/supla-device/internal/storage"
)

const (
	// BistablePulse is how long a bistable relay coil is energised.
	BistablePulse = 500 * time.Millisecond
	// VerifyCooldown is the quiet time after a bistable feedback change.
	VerifyCooldown = 200 * time.Millisecond
	// ButtonDebounce is the minimum spacing of accepted button transitions.
	ButtonDebounce = 100 * time.Millisecond
	// SensorSettle suppresses repeated binary-sensor events in one bounce burst.
	SensorSettle = 100 * time.Millisecond
)

// Controller owns the relay-class channels of a device.
type Controller struct {
	store   *channel.Store
	io      *gpio.Facade
	notify  channel.Notifier
	persist storage.Store
}

// New creates a Controller. persist may be nil.
func New(store *channel.Store, io *gpio.Facade, notify channel.Notifier, persist storage.Store) *Controller {
	return &Controller{
		store:   store,
		io:      io,
		notify:  notify,
		persist: persist,
	}
}

// SetValue switches relay channel n off (0) or on (1). A positive duration
// arms the on-duration countdown.
func (c *Controller) SetValue(n int, value int8, duration time.Duration) {
	c.setValue(n, value, duration, true)
}

// Switch toggles relay channel n based on its current pin level and returns
// the new state.
func (c *Controller) Switch(n int, duration time.Duration) bool {
	pin := c.store.Pin(n)
	if pin == nil {
		return false
	}
	on := !c.io.IsActive(n, pin.Pin1)
	var v int8
	if on {
		v = 1
	}
	c.SetValue(n, v, duration)
	return on
}

func (c *Controller) setValue(n int, value int8, duration time.Duration, emit bool) {
	ch := c.store.Channel(n)
	pin := c.store.Pin(n)
	if ch == nil || ch.Type != channel.TypeRelay {
		return
	}

	if pin.Bistable {
		// A pulse toggles the latch, so only pulse when the feedback pin
		// disagrees with the request and no pulse is in flight.
		if pin.BiTimeLeft > 0 || c.io.Level(n, pin.Pin2) == gpio.Level(value) {
			value = -1
		} else {
			value = 1
			pin.BiTimeLeft = BistablePulse
		}
	}

	success := false

	switch value {
	case 0:
		pin.TimeLeft = 0
		if pin.Pin1 != gpio.NoPin {
			c.io.SetActive(n, pin.Pin1, false)
			success = !c.io.IsActive(n, pin.Pin1)
		}
		if pin.Pin2 != gpio.NoPin && !pin.Bistable && !pin.Pin2Input {
			c.io.SetActive(n, pin.Pin2, false)
			if !success {
				success = !c.io.IsActive(n, pin.Pin2)
			}
		}
	case 1:
		// Two-pin relays release the second coil before energising the first.
		if pin.Pin2 != gpio.NoPin && !pin.Bistable && !pin.Pin2Input {
			c.io.SetActive(n, pin.Pin2, false)
		}
		if pin.Pin1 != gpio.NoPin {
			c.io.SetActive(n, pin.Pin1, true)
			success = c.io.IsActive(n, pin.Pin1)
			if duration > 0 {
				pin.TimeLeft = duration
			}
		}
	}

	if pin.Bistable {
		// The feedback sampler reports the outcome.
		success = false
	}

	if value >= 0 && pin.Flag == channel.FlagRestore && c.persist != nil {
		on := value == 1
		if stored, ok := c.persist.ReadRelayState(n); !ok || stored != on {
			if err := c.persist.SaveRelayState(n, on); err != nil {
				log.Printf("relay %d: save state: %v", n, err)
			}
		}
	}

	if !success {
		return
	}
	if emit {
		c.notify.Notify(n, channel.ByteValue(value))
	} else {
		c.store.SetValue(n, channel.ByteValue(value))
	}
}

// pollTimers advances the pulse, on-duration and feedback timers of channel n.
func (c *Controller) pollTimers(n int, elapsed time.Duration) {
	ch := c.store.Channel(n)
	pin := c.store.Pin(n)

	if channel.Countdown(&pin.BiTimeLeft, elapsed) {
		c.io.SetActive(n, pin.Pin1, false)
	}

	if channel.Countdown(&pin.TimeLeft, elapsed) && ch.Type == channel.TypeRelay {
		c.SetValue(n, 0, 0)
	}

	if ch.Type != channel.TypeRelay || !pin.Bistable {
		return
	}

	if pin.VerifyCooldown > elapsed {
		pin.VerifyCooldown -= elapsed
		return
	}
	pin.VerifyCooldown = 0

	l := c.io.Level(n, pin.Pin2)
	if l != pin.LastLevel {
		pin.LastLevel = l
		pin.VerifyCooldown = VerifyCooldown
		var v int8
		if l == gpio.High {
			v = 1
		}
		c.notify.Notify(n, channel.ByteValue(v))
	}
}

// pollButton runs the first-tick bootstrap, then debounces the button on pin2.
func (c *Controller) pollButton(n int, now time.Time) {
	pin := c.store.Pin(n)
	l := c.io.Level(n, pin.Pin2)

	if !pin.Started {
		c.bootstrap(n)
		pin.NextCheck = now
		pin.Started = true
		pin.LastLevel = l
		return
	}

	if l != pin.LastLevel && pin.Pin2 != gpio.NoPin && now.Sub(pin.NextCheck) >= ButtonDebounce {
		if l == gpio.Low {
			c.Switch(n, pin.Duration)
		} else if pin.ButtonType == channel.ButtonBistable {
			c.Switch(n, 0)
		}
		pin.NextCheck = now
	}
	pin.LastLevel = l
}

// bootstrap restores the persisted relay state, or adopts the level the relay
// pin is already at. Neither emits an upstream event.
func (c *Controller) bootstrap(n int) {
	pin := c.store.Pin(n)

	if pin.Flag == channel.FlagRestore && c.persist != nil {
		if on, ok := c.persist.ReadRelayState(n); ok {
			var v int8
			if on {
				v = 1
			}
			c.setValue(n, v, 0, false)
			return
		}
	}

	if pin.Pin1 == gpio.NoPin {
		return
	}
	var v int8
	if c.io.IsActive(n, pin.Pin1) {
		v = 1
	}
	c.setValue(n, v, 0, false)
}

// pollSensor tracks a binary sensor on pin1.
func (c *Controller) pollSensor(n int, elapsed time.Duration) {
	pin := c.store.Pin(n)
	channel.Countdown(&pin.TimeLeft, elapsed)

	l := c.io.Level(n, pin.Pin1)
	if l == pin.LastLevel {
		return
	}
	pin.LastLevel = l

	v := channel.ByteValue(int8(l))
	if pin.TimeLeft > 0 {
		c.store.SetValue(n, v)
		return
	}
	pin.TimeLeft = SensorSettle
	c.notify.Notify(n, v)
}
