// Package proto encodes and decodes device-server frames. Every frame is a
// two-element CBOR array [call_type, payload] whose payload is a map with
// integer keys, or null.
package proto

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/session"
)

// Version is the protocol version spoken by the device.
const Version = 5

// CallType identifies a frame.
type CallType uint16

const (
	CallVersionError             CallType = 10
	CallPingServer               CallType = 40
	CallPingServerResult         CallType = 50
	CallRegisterDevice           CallType = 65
	CallRegisterDeviceResult     CallType = 70
	CallChannelValueChanged      CallType = 100
	CallChannelSetValue          CallType = 110
	CallSetActivityTimeout       CallType = 120
	CallSetActivityTimeoutResult CallType = 130
)

// ErrEmptyFrame is returned for a zero-length frame.
var ErrEmptyFrame = errors.New("proto: empty frame")

// Frame is the decoded envelope of a message.
type Frame struct {
	_       struct{} `cbor:",toarray"`
	Call    CallType
	Payload cbor.RawMessage
}

type channelPayload struct {
	Number   int    `cbor:"1,keyasint"`
	Type     int32  `cbor:"2,keyasint"`
	FuncList int32  `cbor:"3,keyasint,omitempty"`
	Value    []byte `cbor:"4,keyasint"`
}

type registerPayload struct {
	Version          int              `cbor:"1,keyasint"`
	GUID             []byte           `cbor:"2,keyasint"`
	LocationID       int              `cbor:"3,keyasint"`
	LocationPassword string           `cbor:"4,keyasint,omitempty"`
	Name             string           `cbor:"5,keyasint,omitempty"`
	SoftVer          string           `cbor:"6,keyasint,omitempty"`
	ActivityTimeout  int              `cbor:"7,keyasint"`
	Channels         []channelPayload `cbor:"8,keyasint"`
}

type registerResultPayload struct {
	Code            int `cbor:"1,keyasint"`
	ActivityTimeout int `cbor:"2,keyasint"`
	Version         int `cbor:"3,keyasint"`
	VersionMin      int `cbor:"4,keyasint"`
}

type versionErrorPayload struct {
	ServerVersionMin int `cbor:"1,keyasint"`
	ServerVersion    int `cbor:"2,keyasint"`
}

type valuePayload struct {
	Channel    int    `cbor:"1,keyasint"`
	Value      []byte `cbor:"2,keyasint"`
	DurationMS int32  `cbor:"3,keyasint,omitempty"`
}

type activityTimeoutPayload struct {
	Seconds int `cbor:"1,keyasint"`
}

func encode(call CallType, payload interface{}) ([]byte, error) {
	f := Frame{Call: call}
	if payload != nil {
		raw, err := cbor.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("proto: encode call %d payload: %w", call, err)
		}
		f.Payload = raw
	}
	data, err := cbor.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("proto: encode call %d: %w", call, err)
	}
	return data, nil
}

// Decode parses the envelope of a frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if len(data) == 0 {
		return f, ErrEmptyFrame
	}
	if err := cbor.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("proto: decode frame: %w", err)
	}
	return f, nil
}

// cborNull is the encoding of an absent payload.
const cborNull = 0xf6

func (f Frame) payload(v interface{}) error {
	if len(f.Payload) == 0 || (len(f.Payload) == 1 && f.Payload[0] == cborNull) {
		return fmt.Errorf("proto: call %d: missing payload", f.Call)
	}
	if err := cbor.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("proto: call %d: decode payload: %w", f.Call, err)
	}
	return nil
}

func toValue(b []byte) (channel.Value, error) {
	var v channel.Value
	if len(b) > channel.ValueSize {
		return v, fmt.Errorf("proto: value of %d bytes exceeds %d", len(b), channel.ValueSize)
	}
	copy(v[:], b)
	return v, nil
}

// EncodeRegister encodes a device registration.
func EncodeRegister(r session.Registration) ([]byte, error) {
	p := registerPayload{
		Version:          Version,
		GUID:             r.GUID[:],
		LocationID:       r.LocationID,
		LocationPassword: r.LocationPassword,
		Name:             r.Name,
		SoftVer:          r.SoftVer,
		ActivityTimeout:  r.ActivityTimeout,
		Channels:         make([]channelPayload, 0, len(r.Channels)),
	}
	for _, c := range r.Channels {
		v := c.Value
		p.Channels = append(p.Channels, channelPayload{
			Number:   c.Number,
			Type:     int32(c.Type),
			FuncList: int32(c.FuncList),
			Value:    v[:],
		})
	}
	return encode(CallRegisterDevice, p)
}

// EncodePing encodes a keep-alive ping.
func EncodePing() ([]byte, error) {
	return encode(CallPingServer, nil)
}

// EncodeSetActivityTimeout encodes an activity timeout request.
func EncodeSetActivityTimeout(seconds int) ([]byte, error) {
	return encode(CallSetActivityTimeout, activityTimeoutPayload{Seconds: seconds})
}

// EncodeValueChanged encodes a channel value report.
func EncodeValueChanged(number int, v channel.Value) ([]byte, error) {
	return encode(CallChannelValueChanged, valuePayload{Channel: number, Value: v[:]})
}

// Handle decodes a server frame and delivers it to h. Ping results carry
// nothing beyond the response itself.
func Handle(data []byte, h session.Handler) error {
	f, err := Decode(data)
	if err != nil {
		return err
	}

	switch f.Call {
	case CallPingServerResult:
		return nil

	case CallVersionError:
		var p versionErrorPayload
		if err := f.payload(&p); err != nil {
			return err
		}
		h.OnVersionError(session.VersionError{ServerVersionMin: p.ServerVersionMin, ServerVersion: p.ServerVersion})

	case CallRegisterDeviceResult:
		var p registerResultPayload
		if err := f.payload(&p); err != nil {
			return err
		}
		h.OnRegisterResult(session.RegisterResult{
			Code:            session.ResultCode(p.Code),
			ActivityTimeout: p.ActivityTimeout,
			Version:         p.Version,
			VersionMin:      p.VersionMin,
		})

	case CallSetActivityTimeoutResult:
		var p activityTimeoutPayload
		if err := f.payload(&p); err != nil {
			return err
		}
		h.OnActivityTimeoutResult(p.Seconds)

	case CallChannelSetValue:
		var p valuePayload
		if err := f.payload(&p); err != nil {
			return err
		}
		v, err := toValue(p.Value)
		if err != nil {
			return err
		}
		h.OnChannelSetValue(session.SetValue{Channel: p.Channel, Value: v, DurationMS: p.DurationMS})

	default:
		return fmt.Errorf("proto: unexpected call %d", f.Call)
	}
	return nil
}
