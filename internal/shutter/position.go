package shutter

import (
	"time"

	"github.com/sweeney/supla-device/internal/channel"
)

// Tick executes pending relay changes, advances the position estimate from
// the time elapsed since the previous tick, drives the task and reads the
// buttons.
func (s *Shutter) Tick(now time.Time) {
	s.ExecutePending(now)

	if s.lastIterate.IsZero() {
		s.lastIterate = now
		return
	}

	diff := now.Sub(s.lastIterate)
	if diff < 0 {
		diff = 0
	}

	switch {
	case s.io.IsActive(s.n, s.pin.Pin1):
		s.upTime = 0
		s.downTime += diff
		s.calibrate(s.settings.FullClosing, s.downTime, PositionClosed)
		s.move(now, s.settings.FullClosing, &s.downTime, false)
	case s.io.IsActive(s.n, s.pin.Pin2):
		s.downTime = 0
		s.upTime += diff
		s.calibrate(s.settings.FullOpening, s.upTime, PositionOpen)
		s.move(now, s.settings.FullOpening, &s.upTime, true)
	default:
		s.upTime = 0
		s.downTime = 0
	}

	s.processTask(now)

	if now.Sub(s.tick) >= ReportInterval {
		if s.lastReported != s.position {
			s.lastReported = s.position
			s.notify.Notify(s.n, channel.ByteValue(int8(s.Percent())))
		}
		if s.upTime > StallTimeout || s.downTime > StallTimeout {
			s.RequestMotor(now, Off)
		}
		if s.dirty {
			s.dirty = false
			s.savePosition()
		}
		s.tick = now
	}

	s.lastIterate = now
	s.processButtons(now)
}

// beyond reports whether t has reached full travel time plus a 10% margin.
func beyond(t, full time.Duration) bool {
	return t*10 >= full*11
}

// calibrate snaps an unknown position to dest once the motor has run long
// enough to have reached the end stop from anywhere.
func (s *Shutter) calibrate(full, t time.Duration, dest int) {
	if full <= 0 || s.Calibrated() {
		return
	}
	if beyond(t, full) {
		s.position = dest
		s.dirty = true
	}
}

// move converts the run time in *t into a position change and consumes the
// part of *t that was accounted for.
func (s *Shutter) move(now time.Time, full time.Duration, t *time.Duration, up bool) {
	fullMs := full.Milliseconds()
	if !s.Calibrated() || fullMs <= 0 {
		return
	}

	ms := t.Milliseconds()
	p := int(ms * 10000 / fullMs)

	if p > 0 {
		last := s.position
		if up {
			s.position -= p
			if s.position < PositionOpen {
				s.position = PositionOpen
			}
		} else {
			s.position += p
			if s.position > PositionClosed {
				s.position = PositionClosed
			}
		}
		if s.position != last {
			s.dirty = true
		}
	}

	if (up && s.position == PositionOpen) || (!up && s.position == PositionClosed) {
		// Runaway protection: the motor should have hit the end stop by now.
		if beyond(*t, full) {
			s.RequestMotor(now, Off)
		}
		return
	}

	used := time.Duration(int64(p)*fullMs/10000) * time.Millisecond
	if used <= *t {
		*t -= used
	} else {
		*t = 0
	}
}

// withinMargin reports whether t is under m percent of full.
func withinMargin(full, t time.Duration, m int64) bool {
	return full > 0 && int64(t*100/full) < m
}

func (s *Shutter) processTask(now time.Time) {
	if !s.task.Active {
		return
	}

	if !s.Calibrated() {
		// Recalibration run: drive towards the nearer end stop.
		if !s.MotorIsOn() && s.settings.FullOpening > 0 && s.settings.FullClosing > 0 {
			if s.task.Percent < 50 {
				s.RequestMotor(now, Up)
			} else {
				s.RequestMotor(now, Down)
			}
		}
		return
	}

	percent := s.Percent()

	switch {
	case s.task.Direction == DirectionNone:
		switch {
		case percent > s.task.Percent:
			s.task.Direction = DirectionUp
			s.RequestMotor(now, Up)
		case percent < s.task.Percent:
			s.task.Direction = DirectionDown
			s.RequestMotor(now, Down)
		default:
			s.task.Active = false
			s.RequestMotor(now, Off)
		}
	case (s.task.Direction == DirectionUp && percent <= s.task.Percent) ||
		(s.task.Direction == DirectionDown && percent >= s.task.Percent):
		// Within the first 5% of travel towards an end stop, keep running.
		if s.task.Percent == 0 && withinMargin(s.settings.FullOpening, s.upTime, 5) {
			return
		}
		if s.task.Percent == 100 && withinMargin(s.settings.FullClosing, s.downTime, 5) {
			return
		}
		s.task.Active = false
		s.RequestMotor(now, Off)
	}
}
