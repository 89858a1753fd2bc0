// Package clock abstracts "now" so scheduling logic can be tested.
package clock

import "time"

// Clock returns the current time
type Clock interface {
	Now() time.Time
}

// System is the wall clock in UTC
type System struct{}

// Now returns time.Now in UTC
func (System) Now() time.Time {
	return time.Now().UTC()
}
