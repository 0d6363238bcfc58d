package proto

import (
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/session"
)

type handlerRecorder struct {
	versionErrors    []session.VersionError
	registerResults  []session.RegisterResult
	activityTimeouts []int
	setValues        []session.SetValue
}

func (h *handlerRecorder) OnResponse() {}

func (h *handlerRecorder) OnVersionError(v session.VersionError) {
	h.versionErrors = append(h.versionErrors, v)
}

func (h *handlerRecorder) OnRegisterResult(r session.RegisterResult) {
	h.registerResults = append(h.registerResults, r)
}

func (h *handlerRecorder) OnActivityTimeoutResult(seconds int) {
	h.activityTimeouts = append(h.activityTimeouts, seconds)
}

func (h *handlerRecorder) OnChannelSetValue(cmd session.SetValue) {
	h.setValues = append(h.setValues, cmd)
}

func TestFrameIsTwoElementArray(t *testing.T) {
	data, err := EncodePing()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msg) != 2 {
		t.Fatalf("expected 2-element array, got %d", len(msg))
	}
	if v, ok := msg[0].(uint64); !ok || v != uint64(CallPingServer) {
		t.Errorf("expected call %d, got %v", CallPingServer, msg[0])
	}
	if msg[1] != nil {
		t.Errorf("expected null payload, got %v", msg[1])
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	reg := session.Registration{
		LocationID:       42,
		LocationPassword: "secret",
		Name:             "garage",
		SoftVer:          "2.0.0",
		ActivityTimeout:  45,
		Channels: []channel.Channel{
			{Number: 0, Type: channel.TypeRelay, FuncList: channel.FuncRelayDefault, Value: channel.ByteValue(1)},
			{Number: 1, Type: channel.TypeRelay, FuncList: channel.FuncRollerShutter, Value: channel.ByteValue(-1)},
		},
	}
	for i := range reg.GUID {
		reg.GUID[i] = byte(i + 1)
	}

	data, err := EncodeRegister(reg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, version, err := f.DecodeRegister()
	if err != nil {
		t.Fatalf("decode register: %v", err)
	}

	if version != Version {
		t.Errorf("expected version %d, got %d", Version, version)
	}
	if got.GUID != reg.GUID {
		t.Errorf("GUID mismatch: %x", got.GUID)
	}
	if got.LocationID != 42 || got.LocationPassword != "secret" || got.Name != "garage" {
		t.Errorf("unexpected registration %+v", got)
	}
	if got.ActivityTimeout != 45 {
		t.Errorf("expected activity timeout 45, got %d", got.ActivityTimeout)
	}
	if len(got.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(got.Channels))
	}
	if got.Channels[1].FuncList != channel.FuncRollerShutter || got.Channels[1].Value.Byte() != -1 {
		t.Errorf("unexpected shutter channel %+v", got.Channels[1])
	}
}

func TestHandleRegisterResult(t *testing.T) {
	data, err := EncodeRegisterResult(session.RegisterResult{Code: session.ResultTrue, ActivityTimeout: 120, Version: 5, VersionMin: 1})
	if err != nil {
		t.Fatal(err)
	}
	h := &handlerRecorder{}
	if err := Handle(data, h); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.registerResults) != 1 {
		t.Fatalf("expected 1 result, got %d", len(h.registerResults))
	}
	r := h.registerResults[0]
	if r.Code != session.ResultTrue || r.ActivityTimeout != 120 {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestHandleSetValue(t *testing.T) {
	data, err := EncodeSetValue(session.SetValue{Channel: 3, Value: channel.ByteValue(60), DurationMS: 200<<16 | 150})
	if err != nil {
		t.Fatal(err)
	}
	h := &handlerRecorder{}
	if err := Handle(data, h); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.setValues) != 1 {
		t.Fatalf("expected 1 command, got %d", len(h.setValues))
	}
	cmd := h.setValues[0]
	if cmd.Channel != 3 || cmd.Value.Byte() != 60 || cmd.DurationMS != 200<<16|150 {
		t.Errorf("unexpected command %+v", cmd)
	}
}

func TestHandleVersionErrorAndTimeout(t *testing.T) {
	h := &handlerRecorder{}

	data, _ := EncodeVersionError(session.VersionError{ServerVersionMin: 1, ServerVersion: 4})
	if err := Handle(data, h); err != nil {
		t.Fatalf("handle version error: %v", err)
	}
	data, _ = EncodeActivityTimeoutResult(45)
	if err := Handle(data, h); err != nil {
		t.Fatalf("handle timeout: %v", err)
	}
	data, _ = EncodePingResult()
	if err := Handle(data, h); err != nil {
		t.Fatalf("handle ping: %v", err)
	}

	if len(h.versionErrors) != 1 || h.versionErrors[0].ServerVersion != 4 {
		t.Errorf("unexpected version errors %v", h.versionErrors)
	}
	if len(h.activityTimeouts) != 1 || h.activityTimeouts[0] != 45 {
		t.Errorf("unexpected timeouts %v", h.activityTimeouts)
	}
}

func TestDeviceFramesDecode(t *testing.T) {
	data, _ := EncodeValueChanged(4, channel.ByteValue(1))
	f, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	n, v, err := f.DecodeValueChanged()
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || v.Byte() != 1 {
		t.Errorf("expected channel 4 value 1, got %d/%d", n, v.Byte())
	}

	data, _ = EncodeSetActivityTimeout(45)
	f, _ = Decode(data)
	sec, err := f.DecodeActivityTimeout()
	if err != nil || sec != 45 {
		t.Errorf("expected 45, got %d (%v)", sec, err)
	}
}

func TestHandleErrors(t *testing.T) {
	h := &handlerRecorder{}

	if err := Handle(nil, h); err != ErrEmptyFrame {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
	if err := Handle([]byte{0xff, 0x00}, h); err == nil {
		t.Error("expected error for garbage")
	}

	// A device-bound frame type the device does not handle.
	data, _ := EncodePing()
	if err := Handle(data, h); err == nil {
		t.Error("expected error for unexpected call")
	}

	data, _ = encode(CallChannelSetValue, valuePayload{Channel: 0, Value: make([]byte, 9)})
	if err := Handle(data, h); err == nil {
		t.Error("expected error for oversized value")
	}

	data, _ = encode(CallRegisterDeviceResult, nil)
	if err := Handle(data, h); err == nil {
		t.Error("expected error for missing payload")
	}
}
