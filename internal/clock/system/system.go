// Package system provides the wall-clock implementation of the clock seam.
package system

import "time"

// Clock returns the current time from the system clock.
type Clock struct{}

// New creates a system Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
