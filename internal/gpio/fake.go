package gpio

import (
	"errors"
	"sync"
)

// FakeDriver is a test double holding line levels in memory.
type FakeDriver struct {
	mu sync.Mutex

	// Levels holds the current level of every touched pin.
	Levels map[int]Level

	// Writes records every Write call in order.
	Writes []Write

	// Pulls records the bias of pins configured as input.
	Pulls map[int]Pull

	// Outputs records pins configured as output.
	Outputs map[int]bool

	// ReadError, if set, will be returned by Read().
	ReadError error

	// Closed tracks if Close was called.
	Closed bool
}

// Write is a single recorded write.
type Write struct {
	Pin   int
	Level Level
}

// NewFakeDriver creates a FakeDriver with all pins Low.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Levels:  make(map[int]Level),
		Pulls:   make(map[int]Pull),
		Outputs: make(map[int]bool),
	}
}

// Input records the pin bias. Pull-up inputs idle High.
func (f *FakeDriver) Input(pin int, pull Pull) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pulls[pin] = pull
	if pull == PullUp {
		if _, ok := f.Levels[pin]; !ok {
			f.Levels[pin] = High
		}
	}
	return nil
}

// Output records the pin as output and sets its level.
func (f *FakeDriver) Output(pin int, initial Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outputs[pin] = true
	f.Levels[pin] = initial
	return nil
}

// Read returns the stored level.
func (f *FakeDriver) Read(pin int) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	return f.Levels[pin], nil
}

// Write stores the level and records the call.
func (f *FakeDriver) Write(pin int, level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return errors.New("driver closed")
	}
	f.Levels[pin] = level
	f.Writes = append(f.Writes, Write{Pin: pin, Level: level})
	return nil
}

// Set changes a pin level from the outside, as wiring or a user would.
func (f *FakeDriver) Set(pin int, level Level) {
	f.mu.Lock()
	f.Levels[pin] = level
	f.mu.Unlock()
}

// Get returns the stored level without going through Read.
func (f *FakeDriver) Get(pin int) Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Levels[pin]
}

// ResetWrites clears the recorded writes.
func (f *FakeDriver) ResetWrites() {
	f.mu.Lock()
	f.Writes = nil
	f.mu.Unlock()
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
