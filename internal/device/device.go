// Package device assembles channels, controllers and the session into one
// scheduler. Setup happens through the Add methods and Begin; afterwards
// Iterate is called on every tick and OnTimer from the high-frequency timer.
package device

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/dimmer"
	"github.com/sweeney/supla-device/internal/dispatch"
	"github.com/sweeney/supla-device/internal/gpio"
	"github.com/sweeney/supla-device/internal/relay"
	"github.com/sweeney/supla-device/internal/sensor"
	"github.com/sweeney/supla-device/internal/session"
	"github.com/sweeney/supla-device/internal/shutter"
	"github.com/sweeney/supla-device/internal/status"
	"github.com/sweeney/supla-device/internal/storage"
)

// Setup errors. None of them is returned once the device is running.
var (
	ErrAlreadyInitialized = errors.New("device: already initialized")
	ErrInvalidGUID        = errors.New("device: invalid GUID")
	ErrUnknownServer      = errors.New("device: unknown server address")
	ErrUnknownLocation    = errors.New("device: unknown location ID")
	ErrNoTransport        = errors.New("device: transport not assigned")
	ErrUnknownChannel     = errors.New("device: unknown channel")
)

const (
	// DefaultName is registered when the identity carries no name.
	DefaultName = "SUPLA-GO"
	// DefaultSoftVer is registered when the identity carries no version.
	DefaultSoftVer = "2.0.0"
)

// Identity is what the device registers with.
type Identity struct {
	GUID             [session.GUIDSize]byte
	Server           string
	Port             int
	LocationID       int
	LocationPassword string
	Name             string
	SoftVer          string
	// ActivityTimeout is the desired activity timeout in seconds.
	ActivityTimeout int
}

// Options configure a Device. Driver is required; the rest may be zero.
type Options struct {
	Capacity int
	Driver   gpio.Driver
	Persist  storage.Store
	Sink     status.Sink
	Now      func() time.Time
}

// Device owns every channel and drives them from Iterate and OnTimer. mu
// serializes everything except OnTimer, which only touches the shutters'
// own interlock locks and so keeps running while Iterate waits on I/O.
type Device struct {
	mu      sync.Mutex
	armed   atomic.Bool
	now     func() time.Time
	sink    status.Sink
	persist storage.Store

	store    *channel.Store
	io       *gpio.Facade
	dispatch *dispatch.Dispatcher
	relays   *relay.Controller

	behaviors []channel.Behavior
	shutters  []*shutter.Shutter
	dimmers   map[int]*dimmer.Controller
	begins    []func()

	session     *session.Machine
	identity    Identity
	lastIterate time.Time
}

// New creates an uninitialised device.
func New(o Options) *Device {
	if o.Capacity <= 0 {
		o.Capacity = channel.DefaultCapacity
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	d := &Device{
		now:     o.Now,
		sink:    o.Sink,
		persist: o.Persist,
		store:   channel.NewStore(o.Capacity),
		dimmers: make(map[int]*dimmer.Controller),
	}
	d.io = gpio.NewFacade(o.Driver, d.store)
	d.dispatch = dispatch.New(d.store, d)
	d.relays = relay.New(d.store, d.io, d.dispatch, o.Persist)
	return d
}

func (d *Device) status(code status.Code, msg string) {
	if d.sink != nil {
		d.sink.Status(code, msg)
	}
}

// Registered reports whether the session is registered. Together with
// SendValueChanged it makes the device the dispatcher's sender.
func (d *Device) Registered() bool {
	return d.session != nil && d.session.Registered()
}

// SendValueChanged forwards a value to the session.
func (d *Device) SendValueChanged(number int, v channel.Value) error {
	if d.session == nil {
		return session.ErrNotRegistered
	}
	return d.session.SendValueChanged(number, v)
}

// Channels returns a copy of the channel table.
func (d *Device) Channels() []channel.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.Snapshot(nil)
}

// Shutter returns the controller of shutter channel n, or nil.
func (d *Device) Shutter(n int) *shutter.Shutter {
	for _, s := range d.shutters {
		if s.Number() == n {
			return s
		}
	}
	return nil
}

// Session returns the session machine; nil before Begin.
func (d *Device) Session() *session.Machine {
	return d.session
}

// Counts returns the dispatcher counters.
func (d *Device) Counts() dispatch.Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatch.Counts()
}

func (d *Device) initialized() bool {
	if d.session != nil {
		d.status(status.AlreadyInitialized, "Device is already initialized")
		return true
	}
	return false
}

// Begin validates the identity, loads persisted state and makes the device
// ready to iterate. It refuses to run twice.
func (d *Device) Begin(id Identity, t session.Transport) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized() {
		return ErrAlreadyInitialized
	}
	if t == nil {
		d.status(status.CallbacksNotAssigned, "Callbacks not assigned!")
		return ErrNoTransport
	}
	if id.GUID == ([session.GUIDSize]byte{}) {
		d.status(status.InvalidGUID, "Invalid GUID")
		return ErrInvalidGUID
	}
	if id.Server == "" {
		d.status(status.UnknownServerAddress, "Unknown server address")
		return ErrUnknownServer
	}
	if id.LocationID == 0 {
		d.status(status.UnknownLocationID, "Unknown LocationID")
		return ErrUnknownLocation
	}
	if id.Name == "" {
		id.Name = DefaultName
	}
	if id.SoftVer == "" {
		id.SoftVer = DefaultSoftVer
	}
	d.identity = id

	for _, s := range d.shutters {
		d.store.SetValue(s.Number(), channel.ByteValue(s.Begin()))
	}
	for _, b := range d.begins {
		b()
	}

	d.session = session.New(session.Config{
		Server:          id.Server,
		Port:            id.Port,
		ActivityTimeout: id.ActivityTimeout,
	}, t, d.sink, session.Hooks{
		Registration: d.registration,
		Registering:  d.store.ResetStarted,
		Command:      d.command,
	}, d.now)
	d.lastIterate = d.now()
	d.armed.Store(true)

	d.status(status.Initialized, "Device initialized")
	log.Printf("device: %s initialized with %d channels (%d shutters)", id.Name, d.store.Len(), len(d.shutters))
	return nil
}

func (d *Device) registration() session.Registration {
	return session.Registration{
		GUID:             d.identity.GUID,
		LocationID:       d.identity.LocationID,
		LocationPassword: d.identity.LocationPassword,
		Name:             d.identity.Name,
		SoftVer:          d.identity.SoftVer,
		Channels:         d.store.Snapshot(nil),
	}
}

// Iterate runs one scheduler tick: every channel behavior is polled with the
// time elapsed since the previous tick, then the session advances. It does
// nothing before Begin.
func (d *Device) Iterate() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return
	}

	now := d.now()
	elapsed := now.Sub(d.lastIterate)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > 0 {
		for _, b := range d.behaviors {
			b.Poll(now, elapsed)
		}
		d.lastIterate = now
	}

	d.session.Iterate()
}

// OnTimer executes due interlock slots. It is called from the
// high-frequency timer and does nothing else. The shutter list is fixed once
// Begin has run.
func (d *Device) OnTimer() {
	if !d.armed.Load() {
		return
	}
	now := d.now()
	for _, s := range d.shutters {
		s.ExecutePending(now)
	}
}

// command routes a set-value command to the controller owning the channel.
// Runs inside Iterate.
func (d *Device) command(cmd session.SetValue) {
	ch := d.store.Channel(cmd.Channel)
	if ch == nil {
		log.Printf("device: command for unknown channel %d", cmd.Channel)
		return
	}

	switch ch.Type {
	case channel.TypeRelay:
		if ch.IsShutter() {
			if s := d.Shutter(cmd.Channel); s != nil {
				s.HandleCommand(d.now(), cmd.Value.Byte(), cmd.DurationMS)
			}
			return
		}
		d.relays.SetValue(cmd.Channel, cmd.Value.Byte(), time.Duration(cmd.DurationMS)*time.Millisecond)
	case channel.TypeDimmer, channel.TypeRGBLEDController, channel.TypeDimmerAndRGBLED:
		if c, ok := d.dimmers[cmd.Channel]; ok {
			c.Set(cmd.Value)
		}
	default:
		log.Printf("device: channel %d (%s) takes no commands", cmd.Channel, ch.Type)
	}
}

// RelayOn switches relay channel n on for an optional duration.
func (d *Device) RelayOn(n int, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relays.SetValue(n, 1, duration)
}

// RelayOff switches relay channel n off.
func (d *Device) RelayOff(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relays.SetValue(n, 0, 0)
}

// RelaySwitch toggles relay channel n and returns the new state.
func (d *Device) RelaySwitch(n int, duration time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.relays.Switch(n, duration)
}

// RollerShutter runs fn against shutter channel n under the device lock.
func (d *Device) RollerShutter(n int, fn func(s *shutter.Shutter)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.Shutter(n)
	if s == nil {
		return fmt.Errorf("%w: %d is not a roller shutter", ErrUnknownChannel, n)
	}
	fn(s)
	return nil
}

// Status fills the tracker with the current session, channel and counter
// state.
func (d *Device) Status(t *status.Tracker) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		t.UpdateSession(d.session.State().String(), d.session.Registered(), d.session.ActivityTimeout())
	}
	shutters := make([]status.ShutterInfo, 0, len(d.shutters))
	for _, s := range d.shutters {
		shutters = append(shutters, status.ShutterInfo{
			Channel:    s.Number(),
			Percent:    int8(s.Percent()),
			Calibrated: s.Calibrated(),
			Moving:     s.Moving().String(),
		})
	}
	t.UpdateChannels(d.store.Snapshot(nil), shutters)
	c := d.dispatch.Counts()
	t.UpdateCounts(status.Counts{Sent: c.Sent, Suppressed: c.Suppressed, Failed: c.Failed})
}

// sensorStagger spreads the first reads of measuring channels.
func (d *Device) sensorStagger(n int) {
	d.store.Pin(n).TimeLeft = sensor.Stagger(n)
}
