package status

// Code is a device status reported to the status sink.
type Code int

const (
	AlreadyInitialized     Code = 2
	CallbacksNotAssigned   Code = 3
	InvalidGUID            Code = 4
	UnknownServerAddress   Code = 5
	UnknownLocationID      Code = 6
	Initialized            Code = 7
	ChannelLimitExceeded   Code = 8
	Disconnected           Code = 9
	RegisterInProgress     Code = 10
	IterateFail            Code = 11
	ProtocolVersionError   Code = 12
	BadCredentials         Code = 13
	TemporarilyUnavailable Code = 14
	LocationConflict       Code = 15
	ChannelConflict        Code = 16
	RegisteredAndReady     Code = 17
	DeviceIsDisabled       Code = 18
	LocationIsDisabled     Code = 19
	DeviceLimitExceeded    Code = 20
	InvalidAuthKey         Code = 21
	RegistrationDisabled   Code = 22
	NoLocationAvailable    Code = 23
	UserConflict           Code = 24
	ConnectFailed          Code = 25
	ActivityTimeout        Code = 26
	UnknownRegisterResult  Code = 27
)

var codeNames = map[Code]string{
	AlreadyInitialized:     "ALREADY_INITIALIZED",
	CallbacksNotAssigned:   "CB_NOT_ASSIGNED",
	InvalidGUID:            "INVALID_GUID",
	UnknownServerAddress:   "UNKNOWN_SERVER_ADDRESS",
	UnknownLocationID:      "UNKNOWN_LOCATION_ID",
	Initialized:            "INITIALIZED",
	ChannelLimitExceeded:   "CHANNEL_LIMIT_EXCEEDED",
	Disconnected:           "DISCONNECTED",
	RegisterInProgress:     "REGISTER_IN_PROGRESS",
	IterateFail:            "ITERATE_FAIL",
	ProtocolVersionError:   "PROTOCOL_VERSION_ERROR",
	BadCredentials:         "BAD_CREDENTIALS",
	TemporarilyUnavailable: "TEMPORARILY_UNAVAILABLE",
	LocationConflict:       "LOCATION_CONFLICT",
	ChannelConflict:        "CHANNEL_CONFLICT",
	RegisteredAndReady:     "REGISTERED_AND_READY",
	DeviceIsDisabled:       "DEVICE_IS_DISABLED",
	LocationIsDisabled:     "LOCATION_IS_DISABLED",
	DeviceLimitExceeded:    "DEVICE_LIMIT_EXCEEDED",
	InvalidAuthKey:         "INVALID_AUTHKEY",
	RegistrationDisabled:   "REGISTRATION_DISABLED",
	NoLocationAvailable:    "NO_LOCATION_AVAILABLE",
	UserConflict:           "USER_CONFLICT",
	ConnectFailed:          "CONNECT_FAILED",
	ActivityTimeout:        "ACTIVITY_TIMEOUT",
	UnknownRegisterResult:  "UNKNOWN_REGISTER_RESULT",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// Sink receives every status transition.
type Sink interface {
	Status(code Code, msg string)
}
