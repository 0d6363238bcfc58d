// Package shutter controls roller shutters driven by a pair of relays: pin1
// runs the motor down (closing), pin2 runs it up (opening). Position is not
// sensed; it is estimated from run time and the calibrated full travel times.
package shutter

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/gpio"
	"github.com/sweeney/supla-device/internal/storage"
)

// Position bounds, in hundredths of a percent biased by +100.
const (
	PositionOpen   = 100
	PositionClosed = 10100
	// Uncalibrated is stored when the position is unknown. Any value outside
	// [PositionOpen, PositionClosed] means the same.
	Uncalibrated = -1
)

const (
	// StopDelay is the minimum run time before a stop executes.
	StopDelay = 500 * time.Millisecond
	// StartDelay is the minimum off time before a start executes.
	StartDelay = 1000 * time.Millisecond
	// StallTimeout stops a motor that has run continuously for too long.
	StallTimeout = 10 * time.Minute
	// ButtonDebounce is the minimum spacing of accepted button transitions.
	ButtonDebounce = 50 * time.Millisecond
	// ReportInterval paces position reports and persistence.
	ReportInterval = time.Second
)

// Motor is a requested relay state.
type Motor int8

const (
	Off Motor = iota
	Up
	Down
)

func (m Motor) String() string {
	switch m {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	default:
		return "OFF"
	}
}

// Direction is the travel direction chosen by a task.
type Direction int8

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
)

// Task is an in-flight move-to-percent request.
type Task struct {
	Active    bool
	Percent   int
	Direction Direction
}

// slot is a scheduled relay change. A stop slot may carry the start that
// follows it when the motor is being reversed.
type slot struct {
	active bool
	at     time.Time
	value  Motor
	then   Motor
}

type button struct {
	pin       int
	level     gpio.Level
	changedAt time.Time
}

// Shutter is the state of one roller shutter channel.
type Shutter struct {
	n       int
	pin     *channel.PinState
	io      *gpio.Facade
	notify  channel.Notifier
	persist storage.Store
	now     func() time.Time

	position int
	settings storage.ShutterSettings
	upTime   time.Duration
	downTime time.Duration
	task     Task

	// il guards the interlock slots. It is the only lock OnTimer takes and
	// is never held across I/O other than the relay writes.
	il        sync.Mutex
	stop      slot
	start     slot
	startedAt time.Time
	stoppedAt time.Time

	up   button
	down button

	dirty        bool
	lastReported int
	tick         time.Time
	lastIterate  time.Time
}

// New creates the controller for shutter channel n. persist may be nil.
func New(n int, store *channel.Store, io *gpio.Facade, notify channel.Notifier, persist storage.Store, now func() time.Time) *Shutter {
	return &Shutter{
		n:            n,
		pin:          store.Pin(n),
		io:           io,
		notify:       notify,
		persist:      persist,
		now:          now,
		position:     Uncalibrated,
		lastReported: Uncalibrated,
		up:           button{pin: gpio.NoPin, level: gpio.High},
		down:         button{pin: gpio.NoPin, level: gpio.High},
	}
}

// Number returns the channel number.
func (s *Shutter) Number() int {
	return s.n
}

// SetButtons binds the up and down push-buttons. Buttons idle HIGH and act
// on release.
func (s *Shutter) SetButtons(up, down int) {
	s.up = button{pin: up, level: gpio.High}
	s.down = button{pin: down, level: gpio.High}
}

// Buttons returns the bound button pins.
func (s *Shutter) Buttons() (up, down int) {
	return s.up.pin, s.down.pin
}

// Begin loads the persisted travel times and position and returns the
// percent to publish as the channel's initial value.
func (s *Shutter) Begin() int8 {
	if s.persist != nil {
		if st, ok := s.persist.LoadShutterSettings(s.n); ok {
			s.settings = st
		}
		if p, ok := s.persist.LoadShutterPosition(s.n); ok {
			s.position = p
		}
	}
	s.lastReported = s.position
	return int8(s.Percent())
}

// Calibrated reports whether the position is known.
func (s *Shutter) Calibrated() bool {
	return s.position >= PositionOpen && s.position <= PositionClosed
}

// Position returns the biased position.
func (s *Shutter) Position() int {
	return s.position
}

// Percent returns the closing percent, or -1 when uncalibrated.
func (s *Shutter) Percent() int {
	if !s.Calibrated() {
		return -1
	}
	return (s.position - PositionOpen) / 100
}

// Settings returns the configured travel times.
func (s *Shutter) Settings() storage.ShutterSettings {
	return s.settings
}

// Task returns the current task.
func (s *Shutter) Task() Task {
	return s.task
}

// MotorIsOn reports whether either relay is energised.
func (s *Shutter) MotorIsOn() bool {
	return s.io.IsActive(s.n, s.pin.Pin1) || s.io.IsActive(s.n, s.pin.Pin2)
}

// Moving returns the direction the relays are currently driving.
func (s *Shutter) Moving() Motor {
	switch {
	case s.io.IsActive(s.n, s.pin.Pin1):
		return Down
	case s.io.IsActive(s.n, s.pin.Pin2):
		return Up
	default:
		return Off
	}
}

// Reveal cancels any task and opens the shutter.
func (s *Shutter) Reveal() {
	s.command(s.now(), Up)
}

// Shut cancels any task and closes the shutter.
func (s *Shutter) Shut() {
	s.command(s.now(), Down)
}

// Stop cancels any task and stops the motor.
func (s *Shutter) Stop() {
	s.command(s.now(), Off)
}

func (s *Shutter) command(now time.Time, m Motor) {
	s.CancelTask()
	s.RequestMotor(now, m)
}

// AddTask starts a move to percent, clamped to [0, 100].
func (s *Shutter) AddTask(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.task = Task{Active: true, Percent: percent, Direction: DirectionNone}
}

// CancelTask drops the current task.
func (s *Shutter) CancelTask() {
	s.task = Task{}
}

// HandleCommand applies a set-value command. The low 16 bits of times carry
// the full closing time and the high 16 bits the full opening time, both in
// units of 100 ms. Values 10..110 move to percent value-10; 1 closes, 2 opens
// and anything else stops.
func (s *Shutter) HandleCommand(now time.Time, value int8, times int32) {
	ct := time.Duration(uint32(times)&0xffff) * 100 * time.Millisecond
	ot := time.Duration((uint32(times)>>16)&0xffff) * 100 * time.Millisecond

	if ct != s.settings.FullClosing || ot != s.settings.FullOpening {
		s.settings = storage.ShutterSettings{FullOpening: ot, FullClosing: ct}
		s.position = Uncalibrated
		s.saveSettings()
		s.dirty = true
	}

	switch {
	case value >= 10 && value <= 110:
		s.AddTask(int(value) - 10)
	case value == 1:
		s.command(now, Down)
	case value == 2:
		s.command(now, Up)
	default:
		s.command(now, Off)
	}
}

// Poll runs one iteration of the controller.
func (s *Shutter) Poll(now time.Time, elapsed time.Duration) {
	s.Tick(now)
}

func (s *Shutter) buttonReleased(b *button, now time.Time) bool {
	if b.pin == gpio.NoPin {
		return false
	}
	l := s.io.Level(s.n, b.pin)
	if l == b.level || now.Sub(b.changedAt) < ButtonDebounce {
		return false
	}
	b.level = l
	b.changedAt = now
	return l == gpio.High
}

// processButtons runs after task processing, so a button release always
// overrides a task evaluated in the same tick.
func (s *Shutter) processButtons(now time.Time) {
	switch {
	case s.buttonReleased(&s.up, now):
		if s.MotorIsOn() {
			s.command(now, Off)
		} else {
			s.command(now, Up)
		}
	case s.buttonReleased(&s.down, now):
		if s.MotorIsOn() {
			s.command(now, Off)
		} else {
			s.command(now, Down)
		}
	}
}

func (s *Shutter) savePosition() {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveShutterPosition(s.n, s.position); err != nil {
		log.Printf("shutter %d: save position: %v", s.n, err)
	}
}

func (s *Shutter) saveSettings() {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveShutterSettings(s.n, s.settings); err != nil {
		log.Printf("shutter %d: save settings: %v", s.n, err)
	}
}
