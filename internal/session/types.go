// Package session implements the connection and registration state machine
// that keeps a device attached to its server.
package session

import (
	"time"

	"github.com/sweeney/supla-device/internal/channel"
)

const (
	// DefaultPort is the server port used when none is configured.
	DefaultPort = 2015
	// DefaultActivityTimeout is the activity timeout requested at registration,
	// in seconds.
	DefaultActivityTimeout = 30
	// RetryBackoff gates reconnection after any failure.
	RetryBackoff = 5 * time.Second
	// PingInterval is the minimum spacing of keep-alive pings.
	PingInterval = time.Second
)

// State is the session state.
type State int

const (
	Disconnected State = iota
	Connecting
	Registering
	Registered
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Registering:
		return "REGISTERING"
	case Registered:
		return "REGISTERED"
	default:
		return "DISCONNECTED"
	}
}

// ResultCode is the server's answer to a registration request.
type ResultCode int

const (
	ResultTrue                   ResultCode = 3
	ResultTemporarilyUnavailable ResultCode = 4
	ResultBadCredentials         ResultCode = 5
	ResultLocationConflict       ResultCode = 6
	ResultChannelConflict        ResultCode = 7
	ResultDeviceDisabled         ResultCode = 8
	ResultLocationDisabled       ResultCode = 10
	ResultDeviceLimitExceeded    ResultCode = 13
	ResultGUIDError              ResultCode = 14
	ResultRegistrationDisabled   ResultCode = 17
	ResultAuthKeyError           ResultCode = 19
	ResultNoLocationAvailable    ResultCode = 20
	ResultUserConflict           ResultCode = 21
)

// GUIDSize is the length of a device GUID.
const GUIDSize = 16

// Registration is the device description sent when registering.
type Registration struct {
	GUID             [GUIDSize]byte
	LocationID       int
	LocationPassword string
	Name             string
	SoftVer          string
	ActivityTimeout  int
	Channels         []channel.Channel
}

// RegisterResult is the server's reply to a Registration.
type RegisterResult struct {
	Code            ResultCode
	ActivityTimeout int
	Version         int
	VersionMin      int
}

// VersionError reports a protocol version the server cannot speak.
type VersionError struct {
	ServerVersionMin int
	ServerVersion    int
}

// SetValue is a set-channel-value command from the server. DurationMS carries
// an on-duration for relays and packed travel times for roller shutters.
type SetValue struct {
	Channel    int
	Value      channel.Value
	DurationMS int32
}

// Handler receives what the transport decodes during Iterate.
type Handler interface {
	// OnResponse is called for every frame received.
	OnResponse()
	OnVersionError(v VersionError)
	OnRegisterResult(r RegisterResult)
	OnActivityTimeoutResult(seconds int)
	OnChannelSetValue(cmd SetValue)
}

// Transport carries frames to and from the server.
type Transport interface {
	IsConnected() bool
	// Connect may return ErrConnectPending while the link is still coming up.
	Connect(server string, port int) error
	Disconnect()
	// Iterate delivers everything received since the last call to h. An
	// error means the protocol engine failed and the link must be dropped.
	Iterate(h Handler) error
	Register(r Registration) error
	Ping() error
	SetActivityTimeout(seconds int) error
	SendValueChanged(number int, v channel.Value) error
}
