// Package storage persists the small amount of device state that must survive
// a restart: roller-shutter positions and travel times, and relay states.
package storage

import "time"

// ShutterSettings are the calibration constants of a roller shutter.
// Zero means not configured.
type ShutterSettings struct {
	FullOpening time.Duration
	FullClosing time.Duration
}

// Store is keyed by channel number. Loads report false when nothing was saved.
type Store interface {
	LoadShutterPosition(channel int) (int, bool)
	SaveShutterPosition(channel int, position int) error
	LoadShutterSettings(channel int) (ShutterSettings, bool)
	SaveShutterSettings(channel int, s ShutterSettings) error
	ReadRelayState(channel int) (bool, bool)
	SaveRelayState(channel int, on bool) error
}
