package queue

import "time"

// Clock supplies the current time. Use the same clock the storage compares against.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock returns the wall clock in UTC
var SystemClock Clock = ClockFunc(func() time.Time {
	return time.Now().UTC()
})
