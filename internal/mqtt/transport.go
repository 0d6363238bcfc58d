package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/proto"
	"github.com/sweeney/supla-device/internal/session"
)

// DefaultInboxSize is the number of received frames held between drains.
const DefaultInboxSize = 64

var (
	// ErrNotConnected is returned when sending without a broker connection.
	ErrNotConnected = errors.New("mqtt: not connected")
	// ErrFramesDropped is returned by Iterate when the inbox overflowed.
	ErrFramesDropped = errors.New("mqtt: received frames dropped")
)

// Options configures a Transport.
type Options struct {
	GUID           [16]byte
	Username       string
	Password       string
	ConnectTimeout time.Duration
	InboxSize      int
}

// Transport implements session.Transport over an MQTT broker.
type Transport struct {
	topics Topics
	dial   func(broker string) client
	now    func() time.Time

	connectTimeout time.Duration

	mu      sync.Mutex
	client  client
	inbox   *inbox
	pending *dialing
}

// dialing is a connection attempt in progress: first the connect, then the
// subscription to the down topic.
type dialing struct {
	broker     string
	c          client
	tk         token
	subscribed bool
	deadline   time.Time
}

// NewTransport creates a Transport backed by the paho client.
func NewTransport(o Options) *Transport {
	o = withDefaults(o)
	topics := TopicsFor(o.GUID)
	return newTransport(o, func(broker string) client {
		return dialPaho(broker, o, topics)
	}, time.Now)
}

func withDefaults(o Options) Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.InboxSize <= 0 {
		o.InboxSize = DefaultInboxSize
	}
	return o
}

func newTransport(o Options, dial func(string) client, now func() time.Time) *Transport {
	o = withDefaults(o)
	return &Transport{
		topics:         TopicsFor(o.GUID),
		dial:           dial,
		now:            now,
		connectTimeout: o.ConnectTimeout,
		inbox:          newInbox(o.InboxSize),
	}
}

// Topics returns the topics this transport uses.
func (t *Transport) Topics() Topics {
	return t.topics
}

func (t *Transport) current() client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

// IsConnected reports whether the broker connection is open.
func (t *Transport) IsConnected() bool {
	c := t.current()
	return c != nil && c.IsConnected()
}

// Connect opens a broker connection, subscribes to the down topic and
// announces the device as online. It never waits for the broker: while the
// attempt is in flight it returns session.ErrConnectPending and the next
// call picks up where this one left off.
func (t *Transport) Connect(server string, port int) error {
	broker := fmt.Sprintf("tcp://%s:%d", server, port)

	t.mu.Lock()
	d := t.pending
	t.mu.Unlock()
	if d == nil || d.broker != broker {
		t.Disconnect()
		c := t.dial(broker)
		d = &dialing{broker: broker, c: c, tk: c.Connect(), deadline: t.now().Add(t.connectTimeout)}
		t.mu.Lock()
		t.pending = d
		t.mu.Unlock()
	}

	for {
		done, err := settled(d.tk)
		if !done {
			if t.now().Before(d.deadline) {
				return session.ErrConnectPending
			}
			err = errors.New("timed out")
		}
		if err != nil {
			t.mu.Lock()
			t.pending = nil
			t.mu.Unlock()
			if d.subscribed || !done {
				d.c.Disconnect()
			}
			if d.subscribed {
				return fmt.Errorf("mqtt: subscribe %s: %w", t.topics.Down, err)
			}
			return fmt.Errorf("mqtt: connect %s: %w", broker, err)
		}
		if d.subscribed {
			break
		}
		d.subscribed = true
		d.tk = d.c.Subscribe(t.topics.Down, 1, t.receive)
		d.deadline = t.now().Add(t.connectTimeout)
	}

	t.mu.Lock()
	t.pending = nil
	t.client = d.c
	t.inbox.take()
	t.mu.Unlock()

	log.Printf("mqtt: connected to %s", broker)
	if err := t.PublishSystem(SystemEvent{Timestamp: t.now(), Event: EventOnline, Retained: true}); err != nil {
		log.Printf("mqtt: %v", err)
	}
	return nil
}

func (t *Transport) receive(payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox.add(payload)
}

// Disconnect announces the device as offline and closes the connection.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	c, d := t.client, t.pending
	t.client, t.pending = nil, nil
	t.inbox.take()
	t.mu.Unlock()

	if d != nil {
		d.c.Disconnect()
	}
	if c == nil {
		return
	}
	if c.IsConnected() {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: t.now(), Event: EventOffline, Reason: "disconnect"})
		if err == nil {
			if _, err := settled(c.Publish(t.topics.System, 1, true, payload)); err != nil {
				log.Printf("mqtt: publish offline: %v", err)
			}
		}
	}
	// The client's quiesce period flushes the OFFLINE event.
	c.Disconnect()
}

// Iterate hands every frame received since the previous call to h.
func (t *Transport) Iterate(h session.Handler) error {
	t.mu.Lock()
	frames, dropped := t.inbox.take()
	t.mu.Unlock()

	if dropped > 0 {
		return fmt.Errorf("%w: %d", ErrFramesDropped, dropped)
	}
	for _, f := range frames {
		h.OnResponse()
		if err := proto.Handle(f, h); err != nil {
			log.Printf("mqtt: data error: %v", err)
		}
	}
	return nil
}

// send queues payload on the up topic. Delivery is not awaited; a broken
// link shows up as IsConnected going false.
func (t *Transport) send(payload []byte, qos byte) error {
	c := t.current()
	if c == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	if _, err := settled(c.Publish(t.topics.Up, qos, false, payload)); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", t.topics.Up, err)
	}
	return nil
}

// Register sends the registration frame.
func (t *Transport) Register(r session.Registration) error {
	data, err := proto.EncodeRegister(r)
	if err != nil {
		return err
	}
	return t.send(data, 1)
}

// Ping sends a keep-alive frame.
func (t *Transport) Ping() error {
	data, err := proto.EncodePing()
	if err != nil {
		return err
	}
	return t.send(data, 0)
}

// SetActivityTimeout asks the server for a new activity timeout.
func (t *Transport) SetActivityTimeout(seconds int) error {
	data, err := proto.EncodeSetActivityTimeout(seconds)
	if err != nil {
		return err
	}
	return t.send(data, 1)
}

// SendValueChanged reports a channel value.
func (t *Transport) SendValueChanged(number int, v channel.Value) error {
	data, err := proto.EncodeValueChanged(number, v)
	if err != nil {
		return err
	}
	return t.send(data, 0)
}

// PublishSystem publishes a lifecycle event on the system topic.
func (t *Transport) PublishSystem(event SystemEvent) error {
	c := t.current()
	if c == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("mqtt: format system payload: %w", err)
	}
	if _, err := settled(c.Publish(t.topics.System, 1, event.Retained, payload)); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", t.topics.System, err)
	}
	return nil
}
