package clock

import "time"

// Clock provides time to the application. Service-date resolution and row
// timestamps must be deterministic in tests, so nothing reads the ambient
// clock directly.
type Clock interface {
	Now() time.Time
}
