package engine

import "time"

// realClock is the production ports.Clock: real wall time, real sleeps.
type realClock struct{}

func (realClock) Now() time.Time       { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
