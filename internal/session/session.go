package session

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/status"
)

var (
	// ErrNotRegistered is returned when sending outside the Registered state.
	ErrNotRegistered = errors.New("session: not registered")
	// ErrConnectPending is returned by Transport.Connect while a connection
	// is still being established. The machine asks again on the next tick.
	ErrConnectPending = errors.New("session: connect pending")
)

// Config holds the connection parameters.
type Config struct {
	Server string
	Port   int
	// ActivityTimeout is the desired activity timeout in seconds.
	ActivityTimeout int
}

// Hooks connect the machine to the rest of the device. Any may be nil.
type Hooks struct {
	// Registration builds the registration request.
	Registration func() Registration
	// Registering runs after a registration request is sent.
	Registering func()
	// Command handles a set-value command from the server.
	Command func(cmd SetValue)
}

// Machine drives the transport through connect, register and keep-alive.
// It is not safe for concurrent use; the scheduler owns it.
type Machine struct {
	cfg       Config
	transport Transport
	sink      status.Sink
	hooks     Hooks
	now       func() time.Time

	state          State
	lastResponse   time.Time
	lastSent       time.Time
	lastPing       time.Time
	timeout        int
	retryNotBefore time.Time
	lastStatus     status.Code
}

// New creates a Machine. Zero port and timeout take the defaults.
func New(cfg Config, t Transport, sink status.Sink, hooks Hooks, now func() time.Time) *Machine {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ActivityTimeout <= 0 {
		cfg.ActivityTimeout = DefaultActivityTimeout
	}
	return &Machine{
		cfg:       cfg,
		transport: t,
		sink:      sink,
		hooks:     hooks,
		now:       now,
		timeout:   cfg.ActivityTimeout,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Registered reports whether channel events may be sent.
func (m *Machine) Registered() bool {
	return m.state == Registered
}

// ActivityTimeout returns the negotiated activity timeout in seconds.
func (m *Machine) ActivityTimeout() int {
	return m.timeout
}

// RetryNotBefore returns the backoff gate. The zero time means no gate.
func (m *Machine) RetryNotBefore() time.Time {
	return m.retryNotBefore
}

// LastStatus returns the most recently reported status code.
func (m *Machine) LastStatus() status.Code {
	return m.lastStatus
}

// Iterate advances the machine by one tick. It never blocks for longer than
// the transport's own calls.
func (m *Machine) Iterate() {
	now := m.now()

	if !m.retryNotBefore.IsZero() {
		if now.Before(m.retryNotBefore) {
			return
		}
		m.retryNotBefore = time.Time{}
	}

	if !m.transport.IsConnected() {
		if m.state != Connecting {
			m.state = Connecting
			m.status(status.Disconnected, "Not connected")
		}
		if err := m.transport.Connect(m.cfg.Server, m.cfg.Port); err != nil {
			if errors.Is(err, ErrConnectPending) {
				return
			}
			log.Printf("session: connect %s:%d: %v", m.cfg.Server, m.cfg.Port, err)
			m.status(status.ConnectFailed, fmt.Sprintf("Connection fail. Server: %s", m.cfg.Server))
			m.fail(now)
			return
		}
	}

	switch m.state {
	case Disconnected, Connecting:
		if !m.register(now) {
			return
		}
	case Registering:
		if m.expired(now) {
			log.Printf("session: no register result for %v, disconnecting", now.Sub(m.lastResponse))
			m.status(status.ActivityTimeout, "Registration timeout")
			m.fail(now)
			return
		}
	case Registered:
		if m.expired(now) {
			log.Printf("session: no response for %v, disconnecting", now.Sub(m.lastResponse))
			m.status(status.ActivityTimeout, "Activity timeout")
			m.fail(now)
			return
		}
		m.keepAlive(now)
	}

	if err := m.transport.Iterate(m); err != nil {
		log.Printf("session: iterate: %v", err)
		m.status(status.IterateFail, "Iterate fail")
		m.fail(now)
	}
}

func (m *Machine) register(now time.Time) bool {
	var reg Registration
	if m.hooks.Registration != nil {
		reg = m.hooks.Registration()
	}
	reg.ActivityTimeout = m.cfg.ActivityTimeout

	if err := m.transport.Register(reg); err != nil {
		log.Printf("session: register: %v", err)
		m.status(status.IterateFail, "Iterate fail")
		m.fail(now)
		return false
	}

	m.state = Registering
	m.lastResponse = now
	m.lastSent = now
	m.lastPing = now
	m.status(status.RegisterInProgress, "Register in progress")

	if m.hooks.Registering != nil {
		m.hooks.Registering()
	}
	return true
}

func (m *Machine) expired(now time.Time) bool {
	limit := time.Duration(m.timeout+10) * time.Second
	return now.Sub(m.lastResponse) >= limit
}

func (m *Machine) keepAlive(now time.Time) {
	if now.Sub(m.lastPing) < PingInterval {
		return
	}
	idle := time.Duration(m.timeout-5) * time.Second
	if now.Sub(m.lastResponse) < idle && now.Sub(m.lastSent) < idle {
		return
	}

	m.lastPing = now
	if err := m.transport.Ping(); err != nil {
		log.Printf("session: ping: %v", err)
		return
	}
	m.lastSent = now
}

// fail drops the link and arms the retry backoff.
func (m *Machine) fail(now time.Time) {
	m.transport.Disconnect()
	m.state = Disconnected
	m.retryNotBefore = now.Add(RetryBackoff)
}

func (m *Machine) status(code status.Code, msg string) {
	m.lastStatus = code
	if m.sink != nil {
		m.sink.Status(code, msg)
	}
}

// SendValueChanged transmits a channel value while registered.
func (m *Machine) SendValueChanged(number int, v channel.Value) error {
	if m.state != Registered {
		return ErrNotRegistered
	}
	if err := m.transport.SendValueChanged(number, v); err != nil {
		return fmt.Errorf("session: send channel %d: %w", number, err)
	}
	m.lastSent = m.now()
	return nil
}

// OnResponse records server activity.
func (m *Machine) OnResponse() {
	m.lastResponse = m.now()
}

// OnVersionError drops the link; the server cannot speak our protocol.
func (m *Machine) OnVersionError(v VersionError) {
	log.Printf("session: server protocol %d..%d not supported", v.ServerVersionMin, v.ServerVersion)
	m.status(status.ProtocolVersionError, "Protocol version error")
	m.fail(m.now())
}

var rejections = map[ResultCode]struct {
	code status.Code
	msg  string
}{
	ResultBadCredentials:         {status.BadCredentials, "Bad credentials!"},
	ResultTemporarilyUnavailable: {status.TemporarilyUnavailable, "Temporarily unavailable!"},
	ResultLocationConflict:       {status.LocationConflict, "Location conflict!"},
	ResultChannelConflict:        {status.ChannelConflict, "Channel conflict!"},
	ResultDeviceDisabled:         {status.DeviceIsDisabled, "Device is disabled!"},
	ResultLocationDisabled:       {status.LocationIsDisabled, "Location is disabled!"},
	ResultDeviceLimitExceeded:    {status.DeviceLimitExceeded, "Device limit exceeded!"},
	ResultGUIDError:              {status.InvalidGUID, "Incorrect device GUID!"},
	ResultAuthKeyError:           {status.InvalidAuthKey, "Incorrect AuthKey!"},
	ResultRegistrationDisabled:   {status.RegistrationDisabled, "Registration disabled!"},
	ResultNoLocationAvailable:    {status.NoLocationAvailable, "No location available!"},
	ResultUserConflict:           {status.UserConflict, "User conflict!"},
}

// OnRegisterResult completes or rejects the registration.
func (m *Machine) OnRegisterResult(r RegisterResult) {
	if m.state != Registering {
		return
	}

	if r.Code == ResultTrue {
		if r.ActivityTimeout > 0 {
			m.timeout = r.ActivityTimeout
		}
		m.state = Registered
		m.status(status.RegisteredAndReady, "Registered and ready.")

		if m.timeout != m.cfg.ActivityTimeout {
			if err := m.transport.SetActivityTimeout(m.cfg.ActivityTimeout); err != nil {
				log.Printf("session: set activity timeout: %v", err)
			}
		}
		return
	}

	if rej, ok := rejections[r.Code]; ok {
		m.status(rej.code, rej.msg)
	} else {
		log.Printf("session: register result code %d", r.Code)
		m.status(status.UnknownRegisterResult, fmt.Sprintf("Register result code %d", r.Code))
	}
	m.fail(m.now())
}

// OnActivityTimeoutResult records the timeout the server settled on.
func (m *Machine) OnActivityTimeoutResult(seconds int) {
	if seconds > 0 {
		m.timeout = seconds
	}
}

// OnChannelSetValue forwards a server command.
func (m *Machine) OnChannelSetValue(cmd SetValue) {
	if m.state == Disconnected {
		return
	}
	if m.hooks.Command != nil {
		m.hooks.Command(cmd)
	}
}
