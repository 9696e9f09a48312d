package data

import "time"

// TimeProvider abstracts the clock so repositories stamp rows with an
// injectable time source instead of calling time.Now directly.
type TimeProvider interface {
	Now() time.Time
}

// SystemTime returns a TimeProvider backed by the system clock.
func SystemTime() TimeProvider { return systemTime{} }

type systemTime struct{}

func (systemTime) Now() time.Time { return time.Now() }

// StaticTime is a TimeProvider pinned to a fixed instant. Advancing it is
// enough to exercise lease expiry and daily-reset paths in tests.
type StaticTime struct {
	current time.Time
}

// NewStaticTime returns a StaticTime pinned to t.
func NewStaticTime(t time.Time) *StaticTime {
	return &StaticTime{current: t}
}

// Now returns the pinned instant.
func (s *StaticTime) Now() time.Time { return s.current }

// Advance moves the clock forward by d.
func (s *StaticTime) Advance(d time.Duration) {
	s.current = s.current.Add(d)
}
