package channel

import (
	"errors"
	"fmt"
)

// DefaultCapacity is the maximum number of channels a device may register.
const DefaultCapacity = 32

// ErrLimitExceeded is returned when the store is full.
var ErrLimitExceeded = errors.New("channel limit exceeded")

// Store holds channels and their pin state in fixed-capacity tables. The
// backing arrays are allocated once; Add never reallocates them.
type Store struct {
	channels []Channel
	pins     []PinState
}

// NewStore allocates a store for up to capacity channels.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		channels: make([]Channel, 0, capacity),
		pins:     make([]PinState, 0, capacity),
	}
}

// Add registers a channel and returns its number.
func (s *Store) Add(typ Type, funcs Func, pin PinState) (int, error) {
	if len(s.channels) == cap(s.channels) {
		return -1, fmt.Errorf("add %s channel: %w", typ, ErrLimitExceeded)
	}
	n := len(s.channels)
	s.channels = append(s.channels, Channel{Number: n, Type: typ, FuncList: funcs})
	s.pins = append(s.pins, pin)
	return n, nil
}

// Len returns the number of registered channels.
func (s *Store) Len() int {
	return len(s.channels)
}

// Capacity returns the maximum number of channels.
func (s *Store) Capacity() int {
	return cap(s.channels)
}

// Channel returns the channel with the given number, or nil.
func (s *Store) Channel(n int) *Channel {
	if n < 0 || n >= len(s.channels) {
		return nil
	}
	return &s.channels[n]
}

// Pin returns the pin state of the given channel, or nil.
func (s *Store) Pin(n int) *PinState {
	if n < 0 || n >= len(s.pins) {
		return nil
	}
	return &s.pins[n]
}

// Channels returns the channel table. Callers must not append to it.
func (s *Store) Channels() []Channel {
	return s.channels
}

// SetValue replaces the value buffer of channel n.
func (s *Store) SetValue(n int, v Value) {
	if c := s.Channel(n); c != nil {
		c.Value = v
	}
}

// Inverted reports whether channel n uses active-low lines.
func (s *Store) Inverted(n int) bool {
	p := s.Pin(n)
	return p != nil && p.Inverted
}

// ResetStarted clears the bootstrap marker of every channel so restore logic
// runs again on the next tick.
func (s *Store) ResetStarted() {
	for i := range s.pins {
		s.pins[i].Started = false
	}
}

// Snapshot copies the channel table into dst and returns it.
func (s *Store) Snapshot(dst []Channel) []Channel {
	return append(dst[:0], s.channels...)
}
