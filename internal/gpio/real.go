//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives lines of a Linux GPIO character device. Lines are
// requested when first configured and held until Close.
type RealDriver struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

// NewRealDriver opens the named chip, e.g. "gpiochip0".
func NewRealDriver(chipName string) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealDriver{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

func biasOption(pull Pull) gpiocdev.LineBias {
	switch pull {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

// Input requests pin as an input, or reconfigures it if already held.
func (r *RealDriver) Input(pin int, pull Pull) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.lines[pin]; ok {
		if err := l.Reconfigure(gpiocdev.AsInput, biasOption(pull)); err != nil {
			return fmt.Errorf("reconfigure pin %d as input: %w", pin, err)
		}
		return nil
	}
	l, err := r.chip.RequestLine(pin, gpiocdev.AsInput, biasOption(pull))
	if err != nil {
		return fmt.Errorf("request pin %d as input: %w", pin, err)
	}
	r.lines[pin] = l
	return nil
}

// Output requests pin as an output driven to initial.
func (r *RealDriver) Output(pin int, initial Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.lines[pin]; ok {
		if err := l.Reconfigure(gpiocdev.AsOutput(int(initial))); err != nil {
			return fmt.Errorf("reconfigure pin %d as output: %w", pin, err)
		}
		return nil
	}
	l, err := r.chip.RequestLine(pin, gpiocdev.AsOutput(int(initial)))
	if err != nil {
		return fmt.Errorf("request pin %d as output: %w", pin, err)
	}
	r.lines[pin] = l
	return nil
}

func (r *RealDriver) line(pin int) (*gpiocdev.Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lines[pin]
	if !ok {
		return nil, fmt.Errorf("pin %d not configured", pin)
	}
	return l, nil
}

// Read returns the raw level of pin.
func (r *RealDriver) Read(pin int) (Level, error) {
	l, err := r.line(pin)
	if err != nil {
		return Low, err
	}
	v, err := l.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

// Write drives pin to level.
func (r *RealDriver) Write(pin int, level Level) error {
	l, err := r.line(pin)
	if err != nil {
		return err
	}
	if err := l.SetValue(int(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Close releases GPIO resources.
// Lines are returned to input with pull-down (Pi boot default) before closing
// so relays are released if the process exits.
func (r *RealDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for pin, l := range r.lines {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	r.lines = make(map[int]*gpiocdev.Line)
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
