package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/proto"
	"github.com/sweeney/supla-device/internal/session"
)

var testGUID = [16]byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

type handlerRecorder struct {
	responses int
	results   []session.RegisterResult
	commands  []session.SetValue
	versions  []session.VersionError
	timeouts  []int
}

func (h *handlerRecorder) OnResponse() { h.responses++ }

func (h *handlerRecorder) OnVersionError(v session.VersionError) {
	h.versions = append(h.versions, v)
}

func (h *handlerRecorder) OnRegisterResult(r session.RegisterResult) {
	h.results = append(h.results, r)
}

func (h *handlerRecorder) OnActivityTimeoutResult(seconds int) {
	h.timeouts = append(h.timeouts, seconds)
}

func (h *handlerRecorder) OnChannelSetValue(cmd session.SetValue) {
	h.commands = append(h.commands, cmd)
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func connected(t *testing.T) (*Transport, *FakeBroker) {
	t.Helper()
	tr, fb := NewFakeTransport(Options{GUID: testGUID}, fixedNow)
	if err := tr.Connect("broker.local", 1883); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	return tr, fb
}

func TestTopicsFor(t *testing.T) {
	topics := TopicsFor(testGUID)
	base := "supla/devices/deadbeef0102030405060708090a0b0c"
	if topics.Up != base+"/up" {
		t.Errorf("unexpected up topic: %s", topics.Up)
	}
	if topics.Down != base+"/down" {
		t.Errorf("unexpected down topic: %s", topics.Down)
	}
	if topics.System != base+"/system" {
		t.Errorf("unexpected system topic: %s", topics.System)
	}
	if got := ClientID(testGUID); got != "supla-deadbeef0102030405060708090a0b0c" {
		t.Errorf("unexpected client id: %s", got)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.FixedZone("X", 3600)),
		Event:     EventOffline,
		Reason:    "disconnect",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-02T21:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.System.Timestamp)
	}
	if parsed.System.Event != "OFFLINE" {
		t.Errorf("unexpected event: %s", parsed.System.Event)
	}
	if parsed.System.Reason != "disconnect" {
		t.Errorf("unexpected reason: %s", parsed.System.Reason)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: EventStatus, RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestConnectSubscribesAndAnnounces(t *testing.T) {
	tr, fb := connected(t)

	if !tr.IsConnected() {
		t.Fatal("expected connected")
	}
	if len(fb.Brokers) != 1 || fb.Brokers[0] != "tcp://broker.local:1883" {
		t.Errorf("unexpected brokers: %v", fb.Brokers)
	}
	if len(fb.Subscriptions) != 1 || fb.Subscriptions[0] != tr.Topics().Down {
		t.Errorf("expected subscription to down topic, got %v", fb.Subscriptions)
	}

	sys := fb.On(tr.Topics().System)
	if len(sys) != 1 {
		t.Fatalf("expected 1 system message, got %d", len(sys))
	}
	if !sys[0].Retained {
		t.Error("expected online announcement to be retained")
	}
	var parsed SystemPayload
	if err := json.Unmarshal(sys[0].Payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != EventOnline {
		t.Errorf("expected ONLINE, got %s", parsed.System.Event)
	}
}

func TestConnectErrors(t *testing.T) {
	tr, fb := NewFakeTransport(Options{GUID: testGUID}, fixedNow)
	fb.ConnectError = errors.New("refused")
	if err := tr.Connect("broker.local", 1883); err == nil {
		t.Error("expected connect error")
	}
	if tr.IsConnected() {
		t.Error("expected not connected after failed connect")
	}

	fb.ConnectError = nil
	fb.SubscribeError = errors.New("denied")
	if err := tr.Connect("broker.local", 1883); err == nil {
		t.Error("expected subscribe error")
	}
	if tr.IsConnected() {
		t.Error("expected not connected after failed subscribe")
	}
	if fb.Disconnects != 1 {
		t.Errorf("expected client closed after failed subscribe, got %d disconnects", fb.Disconnects)
	}
}

func TestSendsFramesOnUpTopic(t *testing.T) {
	tr, fb := connected(t)

	reg := session.Registration{GUID: testGUID, LocationID: 7, Name: "dev", ActivityTimeout: 30}
	if err := tr.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := tr.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := tr.SetActivityTimeout(45); err != nil {
		t.Fatalf("set timeout: %v", err)
	}
	if err := tr.SendValueChanged(2, channel.ByteValue(1)); err != nil {
		t.Fatalf("value changed: %v", err)
	}

	up := fb.On(tr.Topics().Up)
	if len(up) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(up))
	}
	want := []proto.CallType{
		proto.CallRegisterDevice,
		proto.CallPingServer,
		proto.CallSetActivityTimeout,
		proto.CallChannelValueChanged,
	}
	for i, m := range up {
		f, err := proto.Decode(m.Payload)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Call != want[i] {
			t.Errorf("frame %d: expected call %d, got %d", i, want[i], f.Call)
		}
		if m.Retained {
			t.Errorf("frame %d: expected not retained", i)
		}
	}

	got, _, err := mustDecode(t, up[0].Payload).DecodeRegister()
	if err != nil {
		t.Fatalf("decode register: %v", err)
	}
	if got.LocationID != 7 || got.GUID != testGUID {
		t.Errorf("unexpected registration: %+v", got)
	}
	n, v, err := mustDecode(t, up[3].Payload).DecodeValueChanged()
	if err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if n != 2 || v[0] != 1 {
		t.Errorf("expected channel 2 value 1, got %d %v", n, v)
	}
}

func mustDecode(t *testing.T, data []byte) proto.Frame {
	t.Helper()
	f, err := proto.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func TestSendWithoutConnection(t *testing.T) {
	tr, _ := NewFakeTransport(Options{GUID: testGUID}, fixedNow)
	if err := tr.Ping(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := tr.PublishSystem(SystemEvent{Event: EventStatus}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestPublishErrorIsWrapped(t *testing.T) {
	tr, fb := connected(t)
	fb.PublishError = errors.New("broken pipe")
	err := tr.Ping()
	if err == nil || !errors.Is(err, fb.PublishError) {
		t.Errorf("expected wrapped publish error, got %v", err)
	}
}

func TestIterateDeliversFramesInOrder(t *testing.T) {
	tr, fb := connected(t)

	res, _ := proto.EncodeRegisterResult(session.RegisterResult{Code: session.ResultTrue, ActivityTimeout: 60})
	cmd, _ := proto.EncodeSetValue(session.SetValue{Channel: 1, Value: channel.ByteValue(1), DurationMS: 1500})
	fb.Deliver(res)
	fb.Deliver([]byte{0xff}) // garbage is logged and skipped
	fb.Deliver(cmd)

	h := &handlerRecorder{}
	if err := tr.Iterate(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.responses != 3 {
		t.Errorf("expected 3 responses, got %d", h.responses)
	}
	if len(h.results) != 1 || h.results[0].ActivityTimeout != 60 {
		t.Errorf("unexpected results: %+v", h.results)
	}
	if len(h.commands) != 1 || h.commands[0].DurationMS != 1500 {
		t.Errorf("unexpected commands: %+v", h.commands)
	}

	h2 := &handlerRecorder{}
	if err := tr.Iterate(h2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h2.responses != 0 {
		t.Errorf("expected inbox drained, got %d responses", h2.responses)
	}
}

func TestIterateFailsAfterOverflow(t *testing.T) {
	tr, fb := NewFakeTransport(Options{GUID: testGUID, InboxSize: 2}, fixedNow)
	if err := tr.Connect("broker.local", 1883); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ping, _ := proto.EncodePingResult()
	for i := 0; i < 3; i++ {
		fb.Deliver(ping)
	}
	if err := tr.Iterate(&handlerRecorder{}); !errors.Is(err, ErrFramesDropped) {
		t.Errorf("expected ErrFramesDropped, got %v", err)
	}
}

func TestDisconnectAnnouncesOffline(t *testing.T) {
	tr, fb := connected(t)
	tr.Disconnect()

	if tr.IsConnected() {
		t.Error("expected disconnected")
	}
	sys := fb.On(tr.Topics().System)
	if len(sys) != 2 {
		t.Fatalf("expected online and offline messages, got %d", len(sys))
	}
	var parsed SystemPayload
	if err := json.Unmarshal(sys[1].Payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != EventOffline || !sys[1].Retained {
		t.Errorf("expected retained OFFLINE, got %+v retained=%v", parsed.System, sys[1].Retained)
	}

	// A second disconnect is a no-op.
	tr.Disconnect()
	if fb.Disconnects != 1 {
		t.Errorf("expected 1 disconnect, got %d", fb.Disconnects)
	}
}

func TestFramesReceivedBeforeReconnectAreDiscarded(t *testing.T) {
	tr, fb := connected(t)
	ping, _ := proto.EncodePingResult()
	fb.Deliver(ping)

	if err := tr.Connect("broker.local", 1883); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	h := &handlerRecorder{}
	if err := tr.Iterate(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.responses != 0 {
		t.Errorf("expected stale frames dropped, got %d", h.responses)
	}
}

func TestSessionRegistersOverBroker(t *testing.T) {
	now := fixedNow()
	clk := func() time.Time { return now }
	tr, fb := NewFakeTransport(Options{GUID: testGUID}, clk)

	m := session.New(session.Config{Server: "broker.local", Port: 1883}, tr, nil, session.Hooks{
		Registration: func() session.Registration {
			return session.Registration{GUID: testGUID, LocationID: 1, ActivityTimeout: 30}
		},
	}, clk)

	m.Iterate()
	if m.State() != session.Registering {
		t.Fatalf("expected Registering, got %v", m.State())
	}
	if len(fb.On(tr.Topics().Up)) != 1 {
		t.Fatalf("expected register frame published")
	}

	res, _ := proto.EncodeRegisterResult(session.RegisterResult{Code: session.ResultTrue, ActivityTimeout: 30})
	fb.Deliver(res)
	now = now.Add(10 * time.Millisecond)
	m.Iterate()
	if m.State() != session.Registered {
		t.Fatalf("expected Registered, got %v", m.State())
	}

	fb.Drop()
	now = now.Add(10 * time.Millisecond)
	m.Iterate()
	if m.State() == session.Registered {
		t.Error("expected session to leave Registered after broker drop")
	}
}

func TestConnectInFlightReturnsPending(t *testing.T) {
	tr, fb := NewFakeTransport(Options{GUID: testGUID}, fixedNow)
	fb.HoldConnect = true

	for i := 0; i < 2; i++ {
		if err := tr.Connect("broker.local", 1883); !errors.Is(err, session.ErrConnectPending) {
			t.Fatalf("call %d: expected ErrConnectPending, got %v", i, err)
		}
	}
	if len(fb.Brokers) != 1 {
		t.Errorf("expected one dial while pending, got %d", len(fb.Brokers))
	}
	if tr.IsConnected() {
		t.Error("expected not connected while pending")
	}

	fb.FinishConnect()
	if err := tr.Connect("broker.local", 1883); err != nil {
		t.Fatalf("expected connect to complete, got %v", err)
	}
	if !tr.IsConnected() {
		t.Error("expected connected")
	}
	if len(fb.Subscriptions) != 1 {
		t.Errorf("expected subscription after connect, got %v", fb.Subscriptions)
	}
	if len(fb.On(tr.Topics().System)) != 1 {
		t.Error("expected ONLINE after connect completed")
	}
}

func TestConnectInFlightTimesOut(t *testing.T) {
	now := fixedNow()
	tr, fb := NewFakeTransport(Options{GUID: testGUID, ConnectTimeout: time.Second}, func() time.Time { return now })
	fb.HoldConnect = true

	if err := tr.Connect("broker.local", 1883); !errors.Is(err, session.ErrConnectPending) {
		t.Fatalf("expected ErrConnectPending, got %v", err)
	}
	now = now.Add(time.Second)
	err := tr.Connect("broker.local", 1883)
	if err == nil || errors.Is(err, session.ErrConnectPending) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if fb.Disconnects != 1 {
		t.Errorf("expected abandoned attempt closed, got %d disconnects", fb.Disconnects)
	}

	fb.HoldConnect = false
	if err := tr.Connect("broker.local", 1883); err != nil {
		t.Fatalf("expected fresh attempt to connect, got %v", err)
	}
	if len(fb.Brokers) != 2 {
		t.Errorf("expected a second dial, got %d", len(fb.Brokers))
	}
}
