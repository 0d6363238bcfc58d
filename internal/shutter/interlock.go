package shutter

import "time"

// RequestMotor schedules a relay change without ever reversing the motor
// directly. A stop waits until the motor has run for StopDelay; a start waits
// until the motor has been off for StartDelay. Requesting the opposite
// direction of a running motor schedules a stop followed by the start.
//
// At most one of the stop and start slots is active at any time.
func (s *Shutter) RequestMotor(now time.Time, m Motor) {
	s.il.Lock()
	defer s.il.Unlock()

	if m == Off {
		s.requestStop(now)
		return
	}

	if s.start.active || (s.stop.active && s.stop.then != Off) {
		return
	}
	s.stop.active = false

	opposite := s.pin.Pin2
	if m == Up {
		opposite = s.pin.Pin1
	}
	if s.io.IsActive(s.n, opposite) {
		s.requestStop(now)
		s.stop.then = m
		return
	}

	at := now
	if !s.stoppedAt.IsZero() {
		if idle := now.Sub(s.stoppedAt); idle < StartDelay {
			at = now.Add(StartDelay - idle)
		}
	}
	s.start = slot{active: true, at: at, value: m}
}

func (s *Shutter) requestStop(now time.Time) {
	if s.stop.active {
		// Already stopping; an explicit stop drops a chained reversal.
		s.stop.then = Off
		return
	}
	s.start.active = false

	at := now
	if !s.startedAt.IsZero() {
		if run := now.Sub(s.startedAt); run < StopDelay {
			at = now.Add(StopDelay - run)
		}
	}
	s.stop = slot{active: true, at: at, value: Off}
}

// ExecutePending drives the relays for any slot whose time has come. It is
// cheap enough to call from the high-frequency timer and safe to call
// concurrently with the rest of the controller.
func (s *Shutter) ExecutePending(now time.Time) {
	s.il.Lock()
	defer s.il.Unlock()

	if s.stop.active && !now.Before(s.stop.at) {
		then := s.stop.then
		s.stop = slot{}
		s.stoppedAt = now
		s.io.SetActive(s.n, s.pin.Pin1, false)
		s.io.SetActive(s.n, s.pin.Pin2, false)

		if then != Off {
			s.start = slot{active: true, at: now.Add(StartDelay), value: then}
		}
	}

	if s.start.active && !now.Before(s.start.at) {
		value := s.start.value
		s.start = slot{}
		s.startedAt = now

		// Release the opposite relay before energising.
		switch value {
		case Up:
			s.io.SetActive(s.n, s.pin.Pin1, false)
			s.io.SetActive(s.n, s.pin.Pin2, true)
		case Down:
			s.io.SetActive(s.n, s.pin.Pin2, false)
			s.io.SetActive(s.n, s.pin.Pin1, true)
		}
	}
}

// Pending reports the scheduled stop and start, for diagnostics.
func (s *Shutter) Pending() (stop, start bool) {
	s.il.Lock()
	defer s.il.Unlock()
	return s.stop.active, s.start.active
}
