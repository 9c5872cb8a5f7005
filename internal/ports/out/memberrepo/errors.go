package memberrepo

import "errors"

var (
	// ErrNotFound indicates the requested member does not exist.
	ErrNotFound = errors.New("member not found")

	// ErrRutAlreadyRegistered indicates another member already carries the
	// provided rut.
	ErrRutAlreadyRegistered = errors.New("rut already registered")

	// ErrAlreadyExists indicates a member already exists with the provided ID.
	ErrAlreadyExists = errors.New("member already exists")
)
