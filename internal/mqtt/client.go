package mqtt

import (
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// token is the completion handle of an MQTT operation. paho.Token
// satisfies it.
type token interface {
	Done() <-chan struct{}
	Error() error
}

// client is the part of an MQTT client the transport uses. No method waits
// for the broker.
type client interface {
	Connect() token
	Disconnect()
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload []byte) token
	Subscribe(topic string, qos byte, handler func(payload []byte)) token
}

// settled returns the token's error once it has completed, or nil while it
// is still in flight.
func settled(tk token) (done bool, err error) {
	select {
	case <-tk.Done():
		return true, tk.Error()
	default:
		return false, nil
	}
}

type pahoClient struct {
	c paho.Client
}

func dialPaho(broker string, o Options, topics Topics) client {
	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventOffline,
		Reason:    "connection lost",
	})
	if err != nil {
		log.Printf("mqtt: format will: %v", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(ClientID(o.GUID)).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(o.ConnectTimeout).
		SetWill(topics.System, string(will), 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	return &pahoClient{c: paho.NewClient(opts)}
}

func (p *pahoClient) Connect() token {
	return p.c.Connect()
}

func (p *pahoClient) Disconnect() {
	p.c.Disconnect(250)
}

func (p *pahoClient) IsConnected() bool {
	return p.c.IsConnectionOpen()
}

func (p *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) token {
	return p.c.Publish(topic, qos, retained, payload)
}

func (p *pahoClient) Subscribe(topic string, qos byte, handler func(payload []byte)) token {
	return p.c.Subscribe(topic, qos, func(_ paho.Client, m paho.Message) {
		handler(m.Payload())
	})
}
