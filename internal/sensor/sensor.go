// Package sensor polls measuring channels (thermometers, pressure, weight,
// wind, rain, distance and temperature+humidity) and reports their readings
// when they change.
package sensor

import (
	"log"
	"math"
	"time"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/dispatch"
)

const (
	// SlowInterval is the poll period of thermometer-class channels.
	SlowInterval = 10 * time.Second
	// FastInterval is the poll period of distance channels.
	FastInterval = time.Second
	// StaggerStep offsets the first poll of each channel by its index.
	StaggerStep = time.Second
)

// Reader reads a single-value sensor. last is the previous reading.
type Reader interface {
	Read(channel int, last float64) (float64, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(channel int, last float64) (float64, error)

func (f ReaderFunc) Read(channel int, last float64) (float64, error) {
	return f(channel, last)
}

// PairReader reads a temperature and humidity pair.
type PairReader interface {
	ReadPair(channel int, lastTemp, lastHumidity float64) (temp, humidity float64, err error)
}

// PairReaderFunc adapts a function to PairReader.
type PairReaderFunc func(channel int, lastTemp, lastHumidity float64) (float64, float64, error)

func (f PairReaderFunc) ReadPair(channel int, lastTemp, lastHumidity float64) (float64, float64, error) {
	return f(channel, lastTemp, lastHumidity)
}

// Notifier receives changed readings.
type Notifier interface {
	NotifyDouble(number int, f float64)
	NotifyTempHumidity(number int, temp, humidity float64)
}

// Interval returns the poll period for a channel type.
func Interval(t channel.Type) time.Duration {
	if t == channel.TypeDistanceSensor {
		return FastInterval
	}
	return SlowInterval
}

// Stagger returns the initial countdown of channel n.
func Stagger(n int) time.Duration {
	return time.Duration(n) * StaggerStep
}

// due runs the poll countdown and rearms it when it fires.
func due(p *channel.PinState, elapsed, interval time.Duration) bool {
	if p.TimeLeft > 0 && !channel.Countdown(&p.TimeLeft, elapsed) {
		return false
	}
	p.TimeLeft = interval
	return true
}

func same(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// Single polls a one-value channel.
type Single struct {
	n        int
	store    *channel.Store
	reader   Reader
	notify   Notifier
	interval time.Duration
}

// NewSingle creates the poller for channel n. The interval follows the
// channel type.
func NewSingle(n int, store *channel.Store, r Reader, notify Notifier) *Single {
	s := &Single{n: n, store: store, reader: r, notify: notify, interval: SlowInterval}
	if c := store.Channel(n); c != nil {
		s.interval = Interval(c.Type)
	}
	return s
}

// Begin takes the initial reading without reporting it upstream.
func (s *Single) Begin() {
	p := s.store.Pin(s.n)
	if p == nil || s.reader == nil {
		return
	}
	v, err := s.reader.Read(s.n, p.Last1)
	if err != nil {
		log.Printf("sensor %d: initial read: %v", s.n, err)
		return
	}
	p.Last1 = v
	s.store.SetValue(s.n, dispatch.EncodeDouble(v))
}

// Poll reads the sensor when its countdown expires and reports a change.
func (s *Single) Poll(now time.Time, elapsed time.Duration) {
	p := s.store.Pin(s.n)
	if p == nil || s.reader == nil || !due(p, elapsed, s.interval) {
		return
	}
	v, err := s.reader.Read(s.n, p.Last1)
	if err != nil {
		log.Printf("sensor %d: read: %v", s.n, err)
		return
	}
	if same(v, p.Last1) {
		return
	}
	p.Last1 = v
	s.notify.NotifyDouble(s.n, v)
}

// Pair polls a temperature+humidity channel.
type Pair struct {
	n      int
	store  *channel.Store
	reader PairReader
	notify Notifier
}

// NewPair creates the poller for channel n.
func NewPair(n int, store *channel.Store, r PairReader, notify Notifier) *Pair {
	return &Pair{n: n, store: store, reader: r, notify: notify}
}

// Begin takes the initial reading without reporting it upstream.
func (s *Pair) Begin() {
	p := s.store.Pin(s.n)
	if p == nil || s.reader == nil {
		return
	}
	t, h, err := s.reader.ReadPair(s.n, p.Last1, p.Last2)
	if err != nil {
		log.Printf("sensor %d: initial read: %v", s.n, err)
		return
	}
	p.Last1, p.Last2 = t, h
	s.store.SetValue(s.n, dispatch.EncodeTempHumidity(t, h))
}

// Poll reads the sensor every SlowInterval and reports a change of either
// value.
func (s *Pair) Poll(now time.Time, elapsed time.Duration) {
	p := s.store.Pin(s.n)
	if p == nil || s.reader == nil || !due(p, elapsed, SlowInterval) {
		return
	}
	t, h, err := s.reader.ReadPair(s.n, p.Last1, p.Last2)
	if err != nil {
		log.Printf("sensor %d: read: %v", s.n, err)
		return
	}
	if same(t, p.Last1) && same(h, p.Last2) {
		return
	}
	p.Last1, p.Last2 = t, h
	s.notify.NotifyTempHumidity(s.n, t, h)
}
