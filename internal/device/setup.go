package device

import (
	"fmt"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/dimmer"
	"github.com/sweeney/supla-device/internal/dispatch"
	"github.com/sweeney/supla-device/internal/gpio"
	"github.com/sweeney/supla-device/internal/sensor"
	"github.com/sweeney/supla-device/internal/shutter"
	"github.com/sweeney/supla-device/internal/status"
)

// Initial readings published before a driver has answered.
const (
	NoTemperature = -275.0
	NoHumidity    = -1.0
	NoReading     = -1.0
)

// inactive is the raw level that keeps an output off.
func inactive(activeLow bool) gpio.Level {
	if activeLow {
		return gpio.High
	}
	return gpio.Low
}

func (d *Device) add(typ channel.Type, funcs channel.Func, pin channel.PinState) (int, error) {
	if d.initialized() {
		return -1, ErrAlreadyInitialized
	}
	n, err := d.store.Add(typ, funcs, pin)
	if err != nil {
		d.status(status.ChannelLimitExceeded, "Channel limit exceeded")
		return -1, err
	}
	return n, nil
}

// reserve checks that another channel fits before any pin is configured.
func (d *Device) reserve() error {
	if d.initialized() {
		return ErrAlreadyInitialized
	}
	if d.store.Len() >= d.store.Capacity() {
		d.status(status.ChannelLimitExceeded, "Channel limit exceeded")
		return channel.ErrLimitExceeded
	}
	return nil
}

func (d *Device) output(pin int, level gpio.Level) error {
	if pin == gpio.NoPin {
		return nil
	}
	if err := d.io.Output(pin, level); err != nil {
		return fmt.Errorf("device: output pin %d: %w", pin, err)
	}
	return nil
}

func (d *Device) input(pin int, pull gpio.Pull) error {
	if pin == gpio.NoPin {
		return nil
	}
	if err := d.io.Input(pin, pull); err != nil {
		return fmt.Errorf("device: input pin %d: %w", pin, err)
	}
	return nil
}

// AddRelay adds a relay on pin1. A second output pin is released before
// pin1 is energised; for a bistable relay pin2 is the feedback input
// instead. Bistable needs both pins.
func (d *Device) AddRelay(pin1, pin2 int, activeLow, bistable bool, funcs channel.Func) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pin1 == gpio.NoPin || pin2 == gpio.NoPin {
		bistable = false
	}
	if err := d.reserve(); err != nil {
		return -1, err
	}
	if err := d.output(pin1, inactive(activeLow)); err != nil {
		return -1, err
	}
	if bistable {
		if err := d.input(pin2, gpio.PullNone); err != nil {
			return -1, err
		}
	} else if err := d.output(pin2, inactive(activeLow)); err != nil {
		return -1, err
	}

	n, err := d.add(channel.TypeRelay, funcs, channel.PinState{
		Pin1:     pin1,
		Pin2:     pin2,
		Inverted: activeLow,
		Bistable: bistable,
	})
	if err != nil {
		return -1, err
	}

	pin := d.store.Pin(n)
	var v int8
	switch {
	case bistable:
		pin.LastLevel = d.io.Level(n, pin2)
		if pin.LastLevel == gpio.High {
			v = 1
		}
	default:
		pin.LastLevel = d.io.Level(n, pin1)
		if pin1 != gpio.NoPin && d.io.IsActive(n, pin1) {
			v = 1
		} else if pin2 != gpio.NoPin && d.io.IsActive(n, pin2) {
			v = 2
		}
	}
	d.store.SetValue(n, channel.ByteValue(v))
	d.behaviors = append(d.behaviors, d.relays.RelayBehavior(n))
	return n, nil
}

// AddRelayButton adds a relay on relayPin switched by a push-button on
// buttonPin. With the restore flag the relay starts in its persisted state.
// duration is the on-time applied when the button switches the relay on.
func (d *Device) AddRelayButton(relayPin, buttonPin int, bt channel.ButtonType, flag channel.RelayFlag, activeLow bool, duration time.Duration, funcs channel.Func) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.reserve(); err != nil {
		return -1, err
	}

	initial := inactive(activeLow)
	if flag == channel.FlagRestore && d.persist != nil {
		if on, ok := d.persist.ReadRelayState(d.store.Len()); ok && on {
			initial = initial.Not()
		}
	}
	if err := d.output(relayPin, initial); err != nil {
		return -1, err
	}
	if err := d.input(buttonPin, gpio.PullUp); err != nil {
		return -1, err
	}

	n, err := d.add(channel.TypeRelay, funcs, channel.PinState{
		Pin1:       relayPin,
		Pin2:       buttonPin,
		Inverted:   activeLow,
		Pin2Input:  true,
		ButtonType: bt,
		Flag:       flag,
		Duration:   duration,
	})
	if err != nil {
		return -1, err
	}
	d.store.Pin(n).LastLevel = d.io.Level(n, relayPin)
	d.behaviors = append(d.behaviors, d.relays.ButtonBehavior(n))
	return n, nil
}

// AddRollerShutterRelays adds a roller shutter driven by a down relay and an
// up relay. Its value is unknown (-1) until Begin loads the position.
func (d *Device) AddRollerShutterRelays(down, up int, activeLow bool) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.reserve(); err != nil {
		return -1, err
	}
	if err := d.output(down, inactive(activeLow)); err != nil {
		return -1, err
	}
	if err := d.output(up, inactive(activeLow)); err != nil {
		return -1, err
	}

	n, err := d.add(channel.TypeRelay, channel.FuncRollerShutter, channel.PinState{
		Pin1:     down,
		Pin2:     up,
		Inverted: activeLow,
	})
	if err != nil {
		return -1, err
	}
	d.store.SetValue(n, channel.ByteValue(-1))

	s := shutter.New(n, d.store, d.io, d.dispatch, d.persist, d.now)
	d.shutters = append(d.shutters, s)
	d.behaviors = append(d.behaviors, s)
	return n, nil
}

// SetRollerShutterButtons binds up and down push-buttons to shutter channel
// n. Either pin may be gpio.NoPin.
func (d *Device) SetRollerShutterButtons(n, up, down int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.Shutter(n)
	if s == nil {
		return fmt.Errorf("%w: %d is not a roller shutter", ErrUnknownChannel, n)
	}
	if err := d.input(up, gpio.PullUp); err != nil {
		return err
	}
	if err := d.input(down, gpio.PullUp); err != nil {
		return err
	}
	s.SetButtons(up, down)
	return nil
}

// AddSensorNO adds a normally-open binary sensor on pin.
func (d *Device) AddSensorNO(pin int, pullUp bool) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.reserve(); err != nil {
		return -1, err
	}
	pull := gpio.PullNone
	if pullUp {
		pull = gpio.PullUp
	}
	if err := d.input(pin, pull); err != nil {
		return -1, err
	}

	n, err := d.add(channel.TypeSensorNO, 0, channel.PinState{Pin1: pin, Pin2: gpio.NoPin})
	if err != nil {
		return -1, err
	}
	l := d.io.Level(n, pin)
	d.store.Pin(n).LastLevel = l
	d.store.SetValue(n, channel.ByteValue(int8(l)))
	d.behaviors = append(d.behaviors, d.relays.SensorBehavior(n))
	return n, nil
}

// AddThermometer adds a single-value measuring channel of the given type:
// DS18B20, pressure, weight, wind or rain. r may be nil, in which case the
// channel keeps its initial value.
func (d *Device) AddThermometer(typ channel.Type, r sensor.Reader) (int, error) {
	switch typ {
	case channel.TypeThermometerDS18B20, channel.TypePressureSensor, channel.TypeWeightSensor,
		channel.TypeWindSensor, channel.TypeRainSensor:
	default:
		return -1, fmt.Errorf("device: %s is not a single-value sensor", typ)
	}
	initial := NoReading
	if typ == channel.TypeThermometerDS18B20 {
		initial = NoTemperature
	}
	return d.addSingle(typ, r, initial)
}

// AddDistanceSensor adds a distance channel polled every second.
func (d *Device) AddDistanceSensor(r sensor.Reader) (int, error) {
	return d.addSingle(channel.TypeDistanceSensor, r, NoReading)
}

func (d *Device) addSingle(typ channel.Type, r sensor.Reader, initial float64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.add(typ, 0, channel.PinState{Pin1: gpio.NoPin, Pin2: gpio.NoPin})
	if err != nil {
		return -1, err
	}
	d.sensorStagger(n)
	d.store.Pin(n).Last1 = initial
	d.store.SetValue(n, dispatch.EncodeDouble(initial))

	s := sensor.NewSingle(n, d.store, r, d.dispatch)
	d.behaviors = append(d.behaviors, s)
	d.begins = append(d.begins, s.Begin)
	return n, nil
}

// AddTempHumidity adds a temperature+humidity channel: DHT11, DHT22 or
// AM2302.
func (d *Device) AddTempHumidity(typ channel.Type, r sensor.PairReader) (int, error) {
	switch typ {
	case channel.TypeDHT11, channel.TypeDHT22, channel.TypeAM2302:
	default:
		return -1, fmt.Errorf("device: %s is not a temperature and humidity sensor", typ)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.add(typ, 0, channel.PinState{Pin1: gpio.NoPin, Pin2: gpio.NoPin})
	if err != nil {
		return -1, err
	}
	d.sensorStagger(n)
	pin := d.store.Pin(n)
	pin.Last1, pin.Last2 = NoTemperature, NoHumidity
	d.store.SetValue(n, dispatch.EncodeTempHumidity(NoTemperature, NoHumidity))

	s := sensor.NewPair(n, d.store, r, d.dispatch)
	d.behaviors = append(d.behaviors, s)
	d.begins = append(d.begins, s.Begin)
	return n, nil
}

// AddRGBW adds a dimmer, RGB or dimmer+RGB channel backed by drv. A nil drv
// keeps the state in memory.
func (d *Device) AddRGBW(typ channel.Type, drv dimmer.Driver) (int, error) {
	switch typ {
	case channel.TypeDimmer, channel.TypeRGBLEDController, channel.TypeDimmerAndRGBLED:
	default:
		return -1, fmt.Errorf("device: %s is not a dimmer", typ)
	}
	if drv == nil {
		drv = dimmer.NewMemDriver()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.add(typ, 0, channel.PinState{Pin1: gpio.NoPin, Pin2: gpio.NoPin})
	if err != nil {
		return -1, err
	}
	c := dimmer.New(n, d.store, drv, d.dispatch)
	c.Begin()
	d.dimmers[n] = c
	d.behaviors = append(d.behaviors, c)
	return n, nil
}
