package service

import (
	"math/rand"
	"time"
)

// Schedule places poll cycles on wall-clock multiples of Base, shifted by
// Offset, plus up to Jitter of random delay. With Base=60s and Offset=3s the
// cycles run at hh:mm:03 + jitter.
type Schedule struct {
	Base   time.Duration
	Offset time.Duration
	Jitter time.Duration

	rnd func() float64
}

func NewSchedule(base, offset, jitter time.Duration) Schedule {
	if base <= 0 {
		base = time.Minute
	}
	if offset < 0 {
		offset = 0
	}
	if jitter < 0 {
		jitter = 0
	}
	return Schedule{Base: base, Offset: offset % base, Jitter: jitter, rnd: rand.Float64}
}

// Next returns the first tick strictly after now.
func (s Schedule) Next(now time.Time) time.Time {
	n := now.UnixNano()
	base := s.Base.Nanoseconds()
	start := n - n%base

	next := start + s.Offset.Nanoseconds()
	if next <= n {
		next += base
	}

	at := time.Unix(0, next)
	if s.Jitter > 0 && s.rnd != nil {
		at = at.Add(time.Duration(s.rnd() * float64(s.Jitter)))
	}
	return at
}
