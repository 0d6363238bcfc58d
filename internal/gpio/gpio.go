// Package gpio provides digital line access with hardware abstraction.
// The real driver uses the Linux GPIO character device.
// The fake driver allows testing without hardware.
package gpio

// Level is the raw electrical level of a line.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

// NoPin marks an unused pin binding.
const NoPin = -1

// Pull selects the bias applied to an input line.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Driver reads and writes raw line levels.
type Driver interface {
	// Input configures pin as an input with the given bias.
	Input(pin int, pull Pull) error

	// Output configures pin as an output driven to initial.
	Output(pin int, initial Level) error

	// Read returns the raw level of pin.
	Read(pin int) (Level, error)

	// Write drives pin to level.
	Write(pin int, level Level) error

	// Close releases GPIO resources.
	Close() error
}

// Inverter reports whether a channel's lines are active-low.
type Inverter interface {
	Inverted(channel int) bool
}

// Not returns the opposite level.
func (l Level) Not() Level {
	if l == High {
		return Low
	}
	return High
}

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}
