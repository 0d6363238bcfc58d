package mqtt

import (
	"sync"
	"time"
)

// Message is one publish recorded by FakeBroker.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakeBroker stands in for a broker connection in tests.
type FakeBroker struct {
	mu sync.Mutex

	// Brokers lists every broker URL dialled.
	Brokers []string

	// Published contains every message the device published.
	Published []Message

	// Subscriptions lists the topics subscribed to.
	Subscriptions []string

	// ConnectError, if set, is returned by Connect.
	ConnectError error

	// SubscribeError, if set, is returned by Subscribe.
	SubscribeError error

	// PublishError, if set, is returned by Publish.
	PublishError error

	// HoldConnect, if set, leaves Connect in flight until FinishConnect.
	HoldConnect bool

	// Disconnects counts Disconnect calls.
	Disconnects int

	connected bool
	handler   func(payload []byte)
	held      *fakeToken
}

// fakeToken completes either immediately or when released.
type fakeToken struct {
	done chan struct{}
	err  error
}

func completed(err error) *fakeToken {
	tk := &fakeToken{done: make(chan struct{}), err: err}
	close(tk.done)
	return tk
}

func (tk *fakeToken) Done() <-chan struct{} { return tk.done }

func (tk *fakeToken) Error() error { return tk.err }

// NewFakeTransport creates a Transport wired to a FakeBroker.
func NewFakeTransport(o Options, now func() time.Time) (*Transport, *FakeBroker) {
	f := &FakeBroker{}
	t := newTransport(o, func(broker string) client {
		f.mu.Lock()
		f.Brokers = append(f.Brokers, broker)
		f.mu.Unlock()
		return f
	}, now)
	return t, f
}

func (f *FakeBroker) Connect() token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HoldConnect {
		f.held = &fakeToken{done: make(chan struct{})}
		return f.held
	}
	if f.ConnectError != nil {
		return completed(f.ConnectError)
	}
	f.connected = true
	return completed(nil)
}

// FinishConnect completes a held Connect with ConnectError, or success when
// it is nil.
func (f *FakeBroker) FinishConnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		return
	}
	f.HoldConnect = false
	f.held.err = f.ConnectError
	f.connected = f.ConnectError == nil
	close(f.held.done)
	f.held = nil
}

func (f *FakeBroker) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.handler = nil
	f.Disconnects++
}

func (f *FakeBroker) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeBroker) Publish(topic string, qos byte, retained bool, payload []byte) token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return completed(f.PublishError)
	}
	f.Published = append(f.Published, Message{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	return completed(nil)
}

func (f *FakeBroker) Subscribe(topic string, qos byte, handler func(payload []byte)) token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return completed(f.SubscribeError)
	}
	f.Subscriptions = append(f.Subscriptions, topic)
	f.handler = handler
	return completed(nil)
}

// Drop simulates the broker closing the connection.
func (f *FakeBroker) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

// Deliver hands payload to the subscribed handler as if it arrived on the
// down topic. It reports false when nothing is subscribed.
func (f *FakeBroker) Deliver(payload []byte) bool {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(payload)
	return true
}

// On returns the messages published to topic.
func (f *FakeBroker) On(topic string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.Published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
