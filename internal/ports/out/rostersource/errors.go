package rostersource

import "errors"

// ErrUnavailable indicates the roster document could not be fetched
// (transport failure or non-success status). Retryable.
var ErrUnavailable = errors.New("roster source unavailable")
