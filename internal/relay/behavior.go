package relay

import "time"

// Relay is the behavior of a plain or bistable relay channel.
type Relay struct {
	c *Controller
	n int
}

// Poll advances the relay timers.
func (r Relay) Poll(now time.Time, elapsed time.Duration) {
	r.c.pollTimers(r.n, elapsed)
}

// Button is the behavior of a relay switched by a local push-button.
type Button struct {
	c *Controller
	n int
}

// Poll advances the relay timers and samples the button.
func (b Button) Poll(now time.Time, elapsed time.Duration) {
	b.c.pollTimers(b.n, elapsed)
	b.c.pollButton(b.n, now)
}

// Sensor is the behavior of a binary (normally-open) sensor.
type Sensor struct {
	c *Controller
	n int
}

// Poll samples the sensor pin.
func (s Sensor) Poll(now time.Time, elapsed time.Duration) {
	s.c.pollSensor(s.n, elapsed)
}

// RelayBehavior returns the behavior of relay channel n.
func (c *Controller) RelayBehavior(n int) Relay { return Relay{c: c, n: n} }

// ButtonBehavior returns the behavior of button-backed relay channel n.
func (c *Controller) ButtonBehavior(n int) Button { return Button{c: c, n: n} }

// SensorBehavior returns the behavior of binary sensor channel n.
func (c *Controller) SensorBehavior(n int) Sensor { return Sensor{c: c, n: n} }
