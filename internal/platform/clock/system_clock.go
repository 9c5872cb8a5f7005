package clock

import "time"

// SystemClock reads the real wall clock.
type SystemClock struct{}

func NewSystemClock() *SystemClock { return &SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now() }
