package device

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/supla-device/internal/status"
)

// ErrNotInitialized is returned by Run before Begin succeeded.
var ErrNotInitialized = errors.New("device: not initialized")

// Default loop periods.
const (
	DefaultIteratePeriod = 10 * time.Millisecond
	DefaultTimerPeriod   = 10 * time.Millisecond
	DefaultStatusPeriod  = time.Second
)

// Loop configures Run.
type Loop struct {
	Iterate time.Duration
	Timer   time.Duration
	Status  time.Duration

	// Tracker, when set, is refreshed every Status period.
	Tracker *status.Tracker
	// Heartbeat is the interval of OnHeartbeat calls; zero or negative
	// disables them. Requires Tracker.
	Heartbeat   time.Duration
	OnHeartbeat func(snap status.Snapshot)
}

// Run drives Iterate, OnTimer and the status refresh from tickers until ctx
// is cancelled.
func (d *Device) Run(ctx context.Context, l Loop) error {
	d.mu.Lock()
	ready := d.session != nil
	shutters := len(d.shutters)
	d.mu.Unlock()
	if !ready {
		return ErrNotInitialized
	}

	if l.Iterate <= 0 {
		l.Iterate = DefaultIteratePeriod
	}
	if l.Timer <= 0 {
		l.Timer = DefaultTimerPeriod
	}
	if l.Status <= 0 {
		l.Status = DefaultStatusPeriod
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return every(ctx, l.Iterate, d.Iterate)
	})
	if shutters > 0 {
		g.Go(func() error {
			return every(ctx, l.Timer, d.OnTimer)
		})
	}
	if l.Tracker != nil {
		hb := NewHeartbeat(l.Heartbeat, d.now())
		g.Go(func() error {
			return every(ctx, l.Status, func() {
				d.Status(l.Tracker)
				if l.OnHeartbeat != nil && hb.Due(d.now()) {
					l.OnHeartbeat(l.Tracker.Snapshot())
				}
			})
		})
	}
	return g.Wait()
}

func every(ctx context.Context, period time.Duration, fn func()) error {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fn()
		}
	}
}

// Heartbeat decides when a periodic status event is due.
type Heartbeat struct {
	interval time.Duration
	last     time.Time
}

// NewHeartbeat creates a Heartbeat whose first beat is one interval after
// start. A zero or negative interval never fires.
func NewHeartbeat(interval time.Duration, start time.Time) *Heartbeat {
	return &Heartbeat{interval: interval, last: start}
}

// Due reports whether the interval has elapsed since the last beat and, if
// so, starts the next interval at now.
func (h *Heartbeat) Due(now time.Time) bool {
	if h.interval <= 0 {
		return false
	}
	if now.Sub(h.last) < h.interval {
		return false
	}
	h.last = now
	return true
}
