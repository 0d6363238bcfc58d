//go:build !linux

package gpio

import "errors"

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(chipName string) (*RealDriver, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (r *RealDriver) Input(pin int, pull Pull) error     { return errors.New("gpio: not supported") }
func (r *RealDriver) Output(pin int, initial Level) error { return errors.New("gpio: not supported") }
func (r *RealDriver) Read(pin int) (Level, error)         { return Low, errors.New("gpio: not supported") }
func (r *RealDriver) Write(pin int, level Level) error    { return errors.New("gpio: not supported") }

// Close is not implemented on non-Linux platforms.
func (r *RealDriver) Close() error {
	return nil
}
