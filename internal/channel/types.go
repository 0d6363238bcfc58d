// Package channel holds the per-channel configuration and runtime state of a
// device. Channel numbers are array positions: assigned once at registration
// and never reused or moved.
package channel

import (
	"time"

	"github.com/sweeney/supla-device/internal/gpio"
)

// Type is the protocol channel type tag.
type Type int32

const (
	TypeSensorNO           Type = 1000
	TypeDistanceSensor     Type = 1020
	TypeRelay              Type = 2900
	TypeThermometerDS18B20 Type = 3000
	TypeDHT11              Type = 3010
	TypeDHT22              Type = 3020
	TypeAM2302             Type = 3030
	TypePressureSensor     Type = 3042
	TypeRainSensor         Type = 3044
	TypeWeightSensor       Type = 3045
	TypeWindSensor         Type = 3048
	TypeDimmer             Type = 4000
	TypeRGBLEDController   Type = 4010
	TypeDimmerAndRGBLED    Type = 4020
)

func (t Type) String() string {
	switch t {
	case TypeSensorNO:
		return "SENSORNO"
	case TypeDistanceSensor:
		return "DISTANCESENSOR"
	case TypeRelay:
		return "RELAY"
	case TypeThermometerDS18B20:
		return "THERMOMETERDS18B20"
	case TypeDHT11:
		return "DHT11"
	case TypeDHT22:
		return "DHT22"
	case TypeAM2302:
		return "AM2302"
	case TypePressureSensor:
		return "PRESSURESENSOR"
	case TypeRainSensor:
		return "RAINSENSOR"
	case TypeWeightSensor:
		return "WEIGHTSENSOR"
	case TypeWindSensor:
		return "WINDSENSOR"
	case TypeDimmer:
		return "DIMMER"
	case TypeRGBLEDController:
		return "RGBLEDCONTROLLER"
	case TypeDimmerAndRGBLED:
		return "DIMMERANDRGBLED"
	default:
		return "UNKNOWN"
	}
}

// Func is the bitmask of functions a relay channel can be assigned.
type Func int32

const (
	FuncGatewayLock    Func = 0x0001
	FuncGate           Func = 0x0002
	FuncGarageDoor     Func = 0x0004
	FuncDoorLock       Func = 0x0008
	FuncRollerShutter  Func = 0x0010
	FuncPowerSwitch    Func = 0x0020
	FuncLightSwitch    Func = 0x0040
	FuncStaircaseTimer Func = 0x0080
)

// FuncRelayDefault is the function list of a plain or button-backed relay.
const FuncRelayDefault = FuncGatewayLock | FuncGate | FuncGarageDoor | FuncDoorLock |
	FuncPowerSwitch | FuncLightSwitch | FuncStaircaseTimer

// ValueSize is the size of a channel's raw value buffer.
const ValueSize = 8

// Value is a channel's raw value buffer.
type Value [ValueSize]byte

// ByteValue returns a value whose first byte is b and the rest zero.
func ByteValue(b int8) Value {
	var v Value
	v[0] = byte(b)
	return v
}

// Byte returns the first byte as a signed value.
func (v Value) Byte() int8 {
	return int8(v[0])
}

// Channel is the static descriptor and value buffer of one channel.
type Channel struct {
	Number   int
	Type     Type
	FuncList Func
	Value    Value
}

// IsShutter reports whether the channel drives a roller shutter.
func (c Channel) IsShutter() bool {
	return c.Type == TypeRelay && c.FuncList == FuncRollerShutter
}

// ButtonType selects how a relay button behaves.
type ButtonType uint8

const (
	// ButtonMonostable toggles the relay on press only.
	ButtonMonostable ButtonType = iota
	// ButtonBistable toggles the relay on press and again on release.
	ButtonBistable
)

// RelayFlag modifies relay startup behavior.
type RelayFlag uint8

const (
	FlagNone RelayFlag = iota
	// FlagRestore restores the persisted relay state at startup and on
	// every reconnect, and persists changes.
	FlagRestore
)

// PinState is the runtime overlay of a channel, co-indexed with Channel.
type PinState struct {
	Pin1       int
	Pin2       int
	Inverted   bool
	Bistable   bool
	// Pin2Input marks Pin2 as a button input; it is never driven.
	Pin2Input  bool
	ButtonType ButtonType
	Flag       RelayFlag
	// Duration is the on-duration applied when a button switches the relay.
	Duration time.Duration

	// LastLevel is the last observed raw level of the watched pin.
	LastLevel gpio.Level
	// TimeLeft counts down an on-duration (relays) or a poll/settle window
	// (sensors). Zero or negative means inactive.
	TimeLeft time.Duration
	// BiTimeLeft counts down a bistable pulse.
	BiTimeLeft time.Duration
	// VerifyCooldown delays the next bistable feedback sample.
	VerifyCooldown time.Duration
	// NextCheck is the time of the last accepted button transition.
	NextCheck time.Time
	// Last1 and Last2 hold the last floating readings.
	Last1 float64
	Last2 float64
	// Started is cleared to re-run the first-iteration bootstrap.
	Started bool
}

// Behavior is the per-variant poll operation invoked by the scheduler on
// every tick.
type Behavior interface {
	Poll(now time.Time, elapsed time.Duration)
}

// Notifier receives channel value changes.
type Notifier interface {
	Notify(number int, v Value)
}

// Countdown decrements *left by elapsed and reports whether it reached zero
// on this call. Inactive counters (<= 0) are left untouched.
func Countdown(left *time.Duration, elapsed time.Duration) bool {
	if *left <= 0 {
		return false
	}
	if elapsed >= *left {
		*left = 0
		return true
	}
	*left -= elapsed
	return false
}
