// Package system provides clock implementations.
package system

import "time"

// Clock implements ingest.Clock using the wall clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a function to ingest.Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f().UTC()
}

// Fixed returns a clock frozen at t.
func Fixed(t time.Time) Func {
	return func() time.Time { return t }
}
