package dispatch

import (
	"log"

	"github.com/sweeney/supla-device/internal/channel"
)

// Sender transmits value changes upstream.
type Sender interface {
	// Registered reports whether the session accepts channel events.
	Registered() bool
	SendValueChanged(number int, v channel.Value) error
}

// Counts tracks dispatcher activity since startup.
type Counts struct {
	Sent       int
	Suppressed int
	Failed     int
}

// Dispatcher applies value changes to the channel store and forwards them
// upstream while the session is registered. The local update always happens.
type Dispatcher struct {
	store  *channel.Store
	sender Sender
	counts Counts
}

// New creates a Dispatcher.
func New(store *channel.Store, sender Sender) *Dispatcher {
	return &Dispatcher{store: store, sender: sender}
}

// Notify records v as the channel value and sends it if registered.
func (d *Dispatcher) Notify(number int, v channel.Value) {
	d.store.SetValue(number, v)

	if d.sender == nil || !d.sender.Registered() {
		d.counts.Suppressed++
		return
	}
	if err := d.sender.SendValueChanged(number, v); err != nil {
		d.counts.Failed++
		log.Printf("dispatch: channel %d: send value: %v", number, err)
		return
	}
	d.counts.Sent++
}

// NotifyByte sends a single-byte value.
func (d *Dispatcher) NotifyByte(number int, b int8) {
	d.Notify(number, channel.ByteValue(b))
}

// NotifyDouble sends a floating-point reading.
func (d *Dispatcher) NotifyDouble(number int, f float64) {
	d.Notify(number, EncodeDouble(f))
}

// NotifyTempHumidity sends a combined temperature and humidity reading.
func (d *Dispatcher) NotifyTempHumidity(number int, temp, humidity float64) {
	d.Notify(number, EncodeTempHumidity(temp, humidity))
}

// Counts returns a copy of the activity counters.
func (d *Dispatcher) Counts() Counts {
	return d.counts
}
