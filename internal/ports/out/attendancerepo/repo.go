package attendancerepo

import (
	"context"
	"time"

	"github.com/iglesia-ietq/asistencia-api/internal/domain"
)

// Attendance is one attendance row as persisted. The uniqueness key is
// (Rut, ServiceDate): re-registering the same person for the same service
// updates the existing row.
type Attendance struct {
	ID   string
	Rut  domain.Rut
	Name string

	ServiceDate  time.Time // date component only is significant
	ServiceDay   domain.ServiceDay
	RegisteredAt time.Time
	Attended     bool

	DeclaredFrequency string
	RegistrationType  string

	// Request metadata captured at registration time; nil when unknown.
	IP        *string
	UserAgent *string

	CreatedAt time.Time
}

// Repository persists attendance rows.
//
// List methods return rows ordered by ServiceDate descending, then Name
// ascending, so the most recent service comes first on every backend.
type Repository interface {
	// Upsert inserts rows, replacing any existing row with the same
	// (rut, service date) key. Last write wins; retries never duplicate.
	Upsert(ctx context.Context, rows []Attendance) error

	ListAll(ctx context.Context) ([]Attendance, error)
	ListSince(ctx context.Context, since time.Time) ([]Attendance, error)
	ListByRut(ctx context.Context, rut domain.Rut, limit int) ([]Attendance, error)
	ListByName(ctx context.Context, name string, limit int) ([]Attendance, error)
}
