package shared

import "time"

// Actor identifies who performs a workflow step and when it happens.
type Actor struct {
	UserID int64
	At     time.Time
}

// NewActor stamps a user with the supplied clock reading.
func NewActor(userID int64, at time.Time) Actor {
	return Actor{UserID: userID, At: at.UTC()}
}

// Valid reports whether the actor carries a user and a timestamp.
func (a Actor) Valid() bool {
	return a.UserID > 0 && !a.At.IsZero()
}

// Clock returns the current time. Handlers own the clock; services only see Actor.At.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}
