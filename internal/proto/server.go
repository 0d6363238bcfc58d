package proto

import (
	"fmt"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/session"
)

// The encoders and decoders below are the server's half of the protocol.

// EncodeRegisterResult encodes a registration result.
func EncodeRegisterResult(r session.RegisterResult) ([]byte, error) {
	return encode(CallRegisterDeviceResult, registerResultPayload{
		Code:            int(r.Code),
		ActivityTimeout: r.ActivityTimeout,
		Version:         r.Version,
		VersionMin:      r.VersionMin,
	})
}

// EncodeVersionError encodes a version error.
func EncodeVersionError(v session.VersionError) ([]byte, error) {
	return encode(CallVersionError, versionErrorPayload{
		ServerVersionMin: v.ServerVersionMin,
		ServerVersion:    v.ServerVersion,
	})
}

// EncodeSetValue encodes a set-channel-value command.
func EncodeSetValue(cmd session.SetValue) ([]byte, error) {
	v := cmd.Value
	return encode(CallChannelSetValue, valuePayload{
		Channel:    cmd.Channel,
		Value:      v[:],
		DurationMS: cmd.DurationMS,
	})
}

// EncodeActivityTimeoutResult encodes the server's activity timeout answer.
func EncodeActivityTimeoutResult(seconds int) ([]byte, error) {
	return encode(CallSetActivityTimeoutResult, activityTimeoutPayload{Seconds: seconds})
}

// EncodePingResult encodes a ping reply.
func EncodePingResult() ([]byte, error) {
	return encode(CallPingServerResult, nil)
}

// DecodeRegister extracts a registration from a CallRegisterDevice frame.
func (f Frame) DecodeRegister() (session.Registration, int, error) {
	var r session.Registration
	if f.Call != CallRegisterDevice {
		return r, 0, fmt.Errorf("proto: call %d is not a registration", f.Call)
	}
	var p registerPayload
	if err := f.payload(&p); err != nil {
		return r, 0, err
	}
	if len(p.GUID) != session.GUIDSize {
		return r, 0, fmt.Errorf("proto: GUID of %d bytes", len(p.GUID))
	}
	copy(r.GUID[:], p.GUID)
	r.LocationID = p.LocationID
	r.LocationPassword = p.LocationPassword
	r.Name = p.Name
	r.SoftVer = p.SoftVer
	r.ActivityTimeout = p.ActivityTimeout
	for _, c := range p.Channels {
		v, err := toValue(c.Value)
		if err != nil {
			return r, 0, err
		}
		r.Channels = append(r.Channels, channel.Channel{
			Number:   c.Number,
			Type:     channel.Type(c.Type),
			FuncList: channel.Func(c.FuncList),
			Value:    v,
		})
	}
	return r, p.Version, nil
}

// DecodeValueChanged extracts a channel value report.
func (f Frame) DecodeValueChanged() (int, channel.Value, error) {
	if f.Call != CallChannelValueChanged {
		return 0, channel.Value{}, fmt.Errorf("proto: call %d is not a value report", f.Call)
	}
	var p valuePayload
	if err := f.payload(&p); err != nil {
		return 0, channel.Value{}, err
	}
	v, err := toValue(p.Value)
	return p.Channel, v, err
}

// DecodeActivityTimeout extracts the seconds of a CallSetActivityTimeout frame.
func (f Frame) DecodeActivityTimeout() (int, error) {
	if f.Call != CallSetActivityTimeout {
		return 0, fmt.Errorf("proto: call %d is not an activity timeout request", f.Call)
	}
	var p activityTimeoutPayload
	if err := f.payload(&p); err != nil {
		return 0, err
	}
	return p.Seconds, nil
}
