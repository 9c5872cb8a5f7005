package attendancerepo

import "errors"

// ErrConflict indicates an attendance row collided with an existing record
// outside the (rut, service date) upsert key. Callers surface it as a
// distinct "already recorded" condition rather than a generic failure.
var ErrConflict = errors.New("attendance row conflict")
