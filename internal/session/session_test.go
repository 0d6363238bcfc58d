package session

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/dispatch"
	"github.com/sweeney/supla-device/internal/status"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type sinkRecorder struct {
	codes []status.Code
}

func (s *sinkRecorder) Status(code status.Code, msg string) {
	s.codes = append(s.codes, code)
}

func (s *sinkRecorder) last() status.Code {
	if len(s.codes) == 0 {
		return 0
	}
	return s.codes[len(s.codes)-1]
}

type harness struct {
	clk  *clock
	ft   *FakeTransport
	sink *sinkRecorder
	m    *Machine

	registering int
	commands    []SetValue
}

func newHarness(desired int) *harness {
	h := &harness{
		clk:  &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		ft:   NewFakeTransport(),
		sink: &sinkRecorder{},
	}
	hooks := Hooks{
		Registration: func() Registration { return Registration{LocationID: 7, Name: "test"} },
		Registering:  func() { h.registering++ },
		Command:      func(cmd SetValue) { h.commands = append(h.commands, cmd) },
	}
	h.m = New(Config{Server: "svr.example", ActivityTimeout: desired}, h.ft, h.sink, hooks, h.clk.now)
	return h
}

// register drives the machine to Registered with the given negotiated timeout.
func (h *harness) register(t *testing.T, negotiated int) {
	t.Helper()
	h.m.Iterate()
	if h.m.State() != Registering {
		t.Fatalf("expected REGISTERING, got %s", h.m.State())
	}
	h.ft.QueueRegisterResult(RegisterResult{Code: ResultTrue, ActivityTimeout: negotiated})
	h.m.Iterate()
	if h.m.State() != Registered {
		t.Fatalf("expected REGISTERED, got %s", h.m.State())
	}
}

func TestNewDefaults(t *testing.T) {
	m := New(Config{Server: "s"}, NewFakeTransport(), nil, Hooks{}, time.Now)
	if m.cfg.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, m.cfg.Port)
	}
	if m.ActivityTimeout() != DefaultActivityTimeout {
		t.Errorf("expected timeout %d, got %d", DefaultActivityTimeout, m.ActivityTimeout())
	}
	if m.State() != Disconnected {
		t.Errorf("expected DISCONNECTED, got %s", m.State())
	}
}

func TestConnectAndRegister(t *testing.T) {
	h := newHarness(30)
	h.m.Iterate()

	if h.ft.Connects != 1 {
		t.Errorf("expected 1 connect, got %d", h.ft.Connects)
	}
	if len(h.ft.Registrations) != 1 {
		t.Fatalf("expected 1 registration, got %d", len(h.ft.Registrations))
	}
	reg := h.ft.Registrations[0]
	if reg.LocationID != 7 || reg.ActivityTimeout != 30 {
		t.Errorf("unexpected registration %+v", reg)
	}
	if h.registering != 1 {
		t.Errorf("expected registering hook once, got %d", h.registering)
	}
	if h.sink.last() != status.RegisterInProgress {
		t.Errorf("expected REGISTER_IN_PROGRESS, got %s", h.sink.last())
	}

	h.ft.QueueRegisterResult(RegisterResult{Code: ResultTrue, ActivityTimeout: 30})
	h.m.Iterate()
	if !h.m.Registered() {
		t.Fatalf("expected registered, got %s", h.m.State())
	}
	if h.sink.last() != status.RegisteredAndReady {
		t.Errorf("expected REGISTERED_AND_READY, got %s", h.sink.last())
	}
	if len(h.ft.ActivityTimeouts) != 0 {
		t.Errorf("expected no renegotiation, got %v", h.ft.ActivityTimeouts)
	}
}

func TestRenegotiatesActivityTimeoutOnce(t *testing.T) {
	h := newHarness(45)
	h.register(t, 120)

	for i := 0; i < 5; i++ {
		h.clk.advance(100 * time.Millisecond)
		h.m.Iterate()
	}

	if len(h.ft.ActivityTimeouts) != 1 {
		t.Fatalf("expected exactly one renegotiation, got %v", h.ft.ActivityTimeouts)
	}
	if h.ft.ActivityTimeouts[0] != 45 {
		t.Errorf("expected renegotiation to 45s, got %d", h.ft.ActivityTimeouts[0])
	}
	if h.m.ActivityTimeout() != 120 {
		t.Errorf("expected negotiated 120 until confirmed, got %d", h.m.ActivityTimeout())
	}

	h.ft.QueueActivityTimeoutResult(45)
	h.m.Iterate()
	if h.m.ActivityTimeout() != 45 {
		t.Errorf("expected 45 after result, got %d", h.m.ActivityTimeout())
	}
}

func TestConnectFailureBacksOff(t *testing.T) {
	h := newHarness(30)
	h.ft.ConnectError = errors.New("connection refused")

	h.m.Iterate()
	if h.m.State() != Disconnected {
		t.Errorf("expected DISCONNECTED, got %s", h.m.State())
	}
	if want := h.clk.t.Add(RetryBackoff); !h.m.RetryNotBefore().Equal(want) {
		t.Errorf("expected retry at %v, got %v", want, h.m.RetryNotBefore())
	}
	if h.sink.last() != status.ConnectFailed {
		t.Errorf("expected CONNECT_FAILED, got %s", h.sink.last())
	}

	h.clk.advance(4999 * time.Millisecond)
	h.m.Iterate()
	if h.ft.Connects != 1 {
		t.Errorf("expected no retry inside backoff, got %d connects", h.ft.Connects)
	}

	h.ft.ConnectError = nil
	h.clk.advance(time.Millisecond)
	h.m.Iterate()
	if h.ft.Connects != 2 {
		t.Errorf("expected retry after backoff, got %d connects", h.ft.Connects)
	}
	if h.m.State() != Registering {
		t.Errorf("expected REGISTERING, got %s", h.m.State())
	}
}

func TestRegistrationRejections(t *testing.T) {
	tests := []struct {
		code ResultCode
		want status.Code
	}{
		{ResultBadCredentials, status.BadCredentials},
		{ResultTemporarilyUnavailable, status.TemporarilyUnavailable},
		{ResultLocationConflict, status.LocationConflict},
		{ResultChannelConflict, status.ChannelConflict},
		{ResultDeviceDisabled, status.DeviceIsDisabled},
		{ResultLocationDisabled, status.LocationIsDisabled},
		{ResultDeviceLimitExceeded, status.DeviceLimitExceeded},
		{ResultGUIDError, status.InvalidGUID},
		{ResultAuthKeyError, status.InvalidAuthKey},
		{ResultRegistrationDisabled, status.RegistrationDisabled},
		{ResultNoLocationAvailable, status.NoLocationAvailable},
		{ResultUserConflict, status.UserConflict},
		{ResultCode(99), status.UnknownRegisterResult},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			h := newHarness(30)
			h.m.Iterate()
			h.ft.QueueRegisterResult(RegisterResult{Code: tt.code})
			h.m.Iterate()

			if h.sink.last() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, h.sink.last())
			}
			if h.m.State() != Disconnected {
				t.Errorf("expected DISCONNECTED, got %s", h.m.State())
			}
			if h.ft.Disconnects != 1 {
				t.Errorf("expected 1 disconnect, got %d", h.ft.Disconnects)
			}
			if !h.m.RetryNotBefore().Equal(h.clk.t.Add(RetryBackoff)) {
				t.Errorf("expected backoff armed, got %v", h.m.RetryNotBefore())
			}
		})
	}
}

func TestTransportFailureWhileRegistered(t *testing.T) {
	h := newHarness(30)
	h.register(t, 30)

	store := channel.NewStore(2)
	if _, err := store.Add(channel.TypeRelay, channel.FuncRelayDefault, channel.PinState{}); err != nil {
		t.Fatal(err)
	}
	d := dispatch.New(store, h.m)

	d.NotifyByte(0, 1)
	if h.ft.SentCount() != 1 {
		t.Fatalf("expected value sent while registered, got %d", h.ft.SentCount())
	}

	h.clk.advance(time.Second)
	h.ft.IterateError = errors.New("srpc failure")
	h.m.Iterate()

	if h.m.State() != Disconnected {
		t.Errorf("expected DISCONNECTED, got %s", h.m.State())
	}
	if want := h.clk.t.Add(5000 * time.Millisecond); !h.m.RetryNotBefore().Equal(want) {
		t.Errorf("expected retry-not-before %v, got %v", want, h.m.RetryNotBefore())
	}
	if h.sink.last() != status.IterateFail {
		t.Errorf("expected ITERATE_FAIL, got %s", h.sink.last())
	}

	d.NotifyByte(0, 0)
	if h.ft.SentCount() != 1 {
		t.Errorf("expected send suppressed while disconnected, got %d", h.ft.SentCount())
	}
	if store.Channel(0).Value.Byte() != 0 {
		t.Error("expected local value still updated")
	}
	if err := h.m.SendValueChanged(0, channel.ByteValue(1)); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}

	// Re-registration resumes transmission.
	h.ft.IterateError = nil
	h.clk.advance(RetryBackoff)
	h.register(t, 30)
	d.NotifyByte(0, 1)
	if h.ft.SentCount() != 2 {
		t.Errorf("expected send after re-registration, got %d", h.ft.SentCount())
	}
}

func TestHardTimeout(t *testing.T) {
	h := newHarness(30)
	h.register(t, 30)

	h.clk.advance(39 * time.Second)
	h.m.Iterate()
	if !h.m.Registered() {
		t.Fatal("timed out too early")
	}

	h.clk.advance(time.Second)
	h.m.Iterate()
	if h.m.State() != Disconnected {
		t.Errorf("expected DISCONNECTED after %ds silence, got %s", 40, h.m.State())
	}
	if h.sink.last() != status.ActivityTimeout {
		t.Errorf("expected ACTIVITY_TIMEOUT, got %s", h.sink.last())
	}
}

func TestKeepAlivePing(t *testing.T) {
	h := newHarness(30)
	h.register(t, 30)

	h.clk.advance(24 * time.Second)
	h.m.Iterate()
	if h.ft.Pings != 0 {
		t.Fatalf("expected no ping before idle threshold, got %d", h.ft.Pings)
	}

	h.clk.advance(time.Second)
	h.m.Iterate()
	if h.ft.Pings != 1 {
		t.Fatalf("expected ping at idle threshold, got %d", h.ft.Pings)
	}

	h.clk.advance(500 * time.Millisecond)
	h.m.Iterate()
	if h.ft.Pings != 1 {
		t.Errorf("expected pings spaced by %v, got %d", PingInterval, h.ft.Pings)
	}

	h.ft.QueuePong()
	h.m.Iterate()
	h.clk.advance(time.Second)
	h.m.Iterate()
	if h.ft.Pings != 1 {
		t.Errorf("expected response to reset idle time, got %d pings", h.ft.Pings)
	}
}

func TestVersionError(t *testing.T) {
	h := newHarness(30)
	h.m.Iterate()
	h.ft.QueueVersionError(VersionError{ServerVersionMin: 1, ServerVersion: 5})
	h.m.Iterate()

	if h.sink.last() != status.ProtocolVersionError {
		t.Errorf("expected PROTOCOL_VERSION_ERROR, got %s", h.sink.last())
	}
	if h.m.State() != Disconnected {
		t.Errorf("expected DISCONNECTED, got %s", h.m.State())
	}
	if h.m.RetryNotBefore().IsZero() {
		t.Error("expected backoff armed")
	}
}

func TestLinkLossReconnects(t *testing.T) {
	h := newHarness(30)
	h.register(t, 30)

	h.ft.Drop()
	h.clk.advance(100 * time.Millisecond)
	h.m.Iterate()

	if h.ft.Connects != 2 {
		t.Errorf("expected reconnect, got %d connects", h.ft.Connects)
	}
	if h.m.State() != Registering {
		t.Errorf("expected REGISTERING, got %s", h.m.State())
	}
	if h.registering != 2 {
		t.Errorf("expected registering hook rerun, got %d", h.registering)
	}
}

func TestCommandForwarded(t *testing.T) {
	h := newHarness(30)
	h.register(t, 30)

	h.ft.QueueSetValue(SetValue{Channel: 2, Value: channel.ByteValue(1), DurationMS: 500})
	h.m.Iterate()

	if len(h.commands) != 1 || h.commands[0].Channel != 2 {
		t.Errorf("expected command for channel 2, got %v", h.commands)
	}
}

func TestRegistrationWithoutResultTimesOut(t *testing.T) {
	h := newHarness(30)
	h.m.Iterate()
	if h.m.State() != Registering {
		t.Fatalf("expected REGISTERING, got %s", h.m.State())
	}

	h.clk.advance(39 * time.Second)
	h.m.Iterate()
	if h.m.State() != Registering {
		t.Fatalf("gave up on registration too early, got %s", h.m.State())
	}

	h.clk.advance(time.Second)
	h.m.Iterate()
	if h.m.State() != Disconnected {
		t.Errorf("expected DISCONNECTED after 40s without a result, got %s", h.m.State())
	}
	if h.ft.Disconnects != 1 {
		t.Errorf("expected link dropped, got %d disconnects", h.ft.Disconnects)
	}
	if h.sink.last() != status.ActivityTimeout {
		t.Errorf("expected ACTIVITY_TIMEOUT, got %s", h.sink.last())
	}

	h.clk.advance(RetryBackoff)
	h.m.Iterate()
	if len(h.ft.Registrations) != 2 {
		t.Errorf("expected a second registration after backoff, got %d", len(h.ft.Registrations))
	}
}

func TestConnectPendingWaitsWithoutBackoff(t *testing.T) {
	h := newHarness(30)
	h.ft.ConnectError = ErrConnectPending

	for i := 0; i < 3; i++ {
		h.m.Iterate()
		h.clk.advance(10 * time.Millisecond)
	}
	if h.m.State() != Connecting {
		t.Errorf("expected CONNECTING, got %s", h.m.State())
	}
	if !h.m.RetryNotBefore().IsZero() {
		t.Error("expected no backoff while the connection is pending")
	}
	if h.ft.Connects != 3 {
		t.Errorf("expected a connect check every tick, got %d", h.ft.Connects)
	}
	disconnected := 0
	for _, c := range h.sink.codes {
		if c == status.Disconnected {
			disconnected++
		}
	}
	if disconnected != 1 {
		t.Errorf("expected DISCONNECTED reported once, got %d", disconnected)
	}

	h.ft.ConnectError = nil
	h.m.Iterate()
	if h.m.State() != Registering {
		t.Errorf("expected REGISTERING once connected, got %s", h.m.State())
	}
}
