package session

import (
	"errors"
	"sync"

	"github.com/sweeney/supla-device/internal/channel"
)

// SentValue is a value recorded by FakeTransport.
type SentValue struct {
	Number int
	Value  channel.Value
}

// FakeTransport is a test double that records calls and delivers queued
// frames on Iterate.
type FakeTransport struct {
	mu sync.Mutex

	connected bool

	// ConnectError, if set, will be returned by Connect().
	ConnectError error
	// IterateError, if set, will be returned by Iterate().
	IterateError error
	// RegisterError, if set, will be returned by Register().
	RegisterError error
	// SendError, if set, will be returned by SendValueChanged().
	SendError error

	Connects         int
	Disconnects      int
	Pings            int
	Registrations    []Registration
	ActivityTimeouts []int
	Sent             []SentValue

	inbox []func(h Handler)
}

// NewFakeTransport creates a disconnected FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeTransport) Connect(server string, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connects++
	if f.ConnectError != nil {
		return f.ConnectError
	}
	f.connected = true
	return nil
}

func (f *FakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disconnects++
	f.connected = false
	f.inbox = nil
}

// Drop simulates the link going away without a Disconnect call.
func (f *FakeTransport) Drop() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *FakeTransport) Iterate(h Handler) error {
	f.mu.Lock()
	if f.IterateError != nil {
		err := f.IterateError
		f.mu.Unlock()
		return err
	}
	inbox := f.inbox
	f.inbox = nil
	f.mu.Unlock()

	for _, deliver := range inbox {
		if !f.IsConnected() {
			break
		}
		h.OnResponse()
		deliver(h)
	}
	return nil
}

func (f *FakeTransport) Register(r Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterError != nil {
		return f.RegisterError
	}
	f.Registrations = append(f.Registrations, r)
	return nil
}

func (f *FakeTransport) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.New("not connected")
	}
	f.Pings++
	return nil
}

func (f *FakeTransport) SetActivityTimeout(seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ActivityTimeouts = append(f.ActivityTimeouts, seconds)
	return nil
}

func (f *FakeTransport) SendValueChanged(number int, v channel.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	f.Sent = append(f.Sent, SentValue{Number: number, Value: v})
	return nil
}

func (f *FakeTransport) queue(deliver func(h Handler)) {
	f.mu.Lock()
	f.inbox = append(f.inbox, deliver)
	f.mu.Unlock()
}

// QueueRegisterResult delivers r on the next Iterate.
func (f *FakeTransport) QueueRegisterResult(r RegisterResult) {
	f.queue(func(h Handler) { h.OnRegisterResult(r) })
}

// QueueActivityTimeoutResult delivers an activity timeout result.
func (f *FakeTransport) QueueActivityTimeoutResult(seconds int) {
	f.queue(func(h Handler) { h.OnActivityTimeoutResult(seconds) })
}

// QueueVersionError delivers a version error.
func (f *FakeTransport) QueueVersionError(v VersionError) {
	f.queue(func(h Handler) { h.OnVersionError(v) })
}

// QueueSetValue delivers a set-value command.
func (f *FakeTransport) QueueSetValue(cmd SetValue) {
	f.queue(func(h Handler) { h.OnChannelSetValue(cmd) })
}

// QueuePong delivers a frame with no payload, as a ping reply.
func (f *FakeTransport) QueuePong() {
	f.queue(func(h Handler) {})
}

// SentCount returns the number of values sent.
func (f *FakeTransport) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}
