package gpio

import "log"

// Facade is the channel-aware view of a Driver. Active/inactive helpers apply
// the channel's polarity inversion; Level and Write are raw.
type Facade struct {
	driver   Driver
	inverter Inverter
}

// NewFacade wraps driver. inv may be nil when no channel is inverted.
func NewFacade(driver Driver, inv Inverter) *Facade {
	return &Facade{driver: driver, inverter: inv}
}

// Driver returns the underlying driver.
func (f *Facade) Driver() Driver {
	return f.driver
}

func (f *Facade) inverted(channel int) bool {
	return f.inverter != nil && f.inverter.Inverted(channel)
}

// ActiveLevel returns the raw level that means "on" for channel.
func (f *Facade) ActiveLevel(channel int) Level {
	if f.inverted(channel) {
		return Low
	}
	return High
}

// Level returns the raw level of pin. Unbound pins and read errors read as Low.
func (f *Facade) Level(channel, pin int) Level {
	if pin < 0 {
		return Low
	}
	l, err := f.driver.Read(pin)
	if err != nil {
		log.Printf("gpio: channel %d: read pin %d: %v", channel, pin, err)
		return Low
	}
	return l
}

// Write drives pin to the raw level.
func (f *Facade) Write(channel, pin int, level Level) {
	if pin < 0 {
		return
	}
	if err := f.driver.Write(pin, level); err != nil {
		log.Printf("gpio: channel %d: write pin %d: %v", channel, pin, err)
	}
}

// IsActive reports whether pin is at the channel's active level.
func (f *Facade) IsActive(channel, pin int) bool {
	if pin < 0 {
		return false
	}
	return f.Level(channel, pin) == f.ActiveLevel(channel)
}

// SetActive drives pin to the channel's active or inactive level.
func (f *Facade) SetActive(channel, pin int, active bool) {
	l := f.ActiveLevel(channel)
	if !active {
		l = l.Not()
	}
	f.Write(channel, pin, l)
}

// Input configures pin as an input. Unbound pins are ignored.
func (f *Facade) Input(pin int, pull Pull) error {
	if pin < 0 {
		return nil
	}
	return f.driver.Input(pin, pull)
}

// Output configures pin as an output. Unbound pins are ignored.
func (f *Facade) Output(pin int, initial Level) error {
	if pin < 0 {
		return nil
	}
	return f.driver.Output(pin, initial)
}
