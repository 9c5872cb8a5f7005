package roster

import "errors"

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// ErrSuperseded is returned by Refresh when a newer refresh published its
// snapshot first. The caller's result was discarded.
var ErrSuperseded = errors.New("roster refresh superseded by a newer one")

// ErrNotLoaded is returned when no roster snapshot has been loaded yet.
var ErrNotLoaded = errors.New("roster not loaded yet")
