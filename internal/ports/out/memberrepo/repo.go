package memberrepo

import (
	"context"
	"time"

	"github.com/iglesia-ietq/asistencia-api/internal/domain"
)

// Member is the persistence shape used by the member repository. It is an
// internal record, not an HTTP DTO.
type Member struct {
	ID   domain.MemberID
	Name string
	// Rut uniquely identifies a person across member and attendance rows.
	// Visits carry a generated VISITA- surrogate.
	Rut domain.Rut

	DeclaredFrequency string
	RegistrationType  string
	// Notes is optional free text; nil means unset.
	Notes *string

	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted members.
//
// List methods return results ordered by Name (case-insensitive) ascending
// to keep behavior deterministic across backends.
type Repository interface {
	Create(ctx context.Context, m Member) error
	Update(ctx context.Context, m Member) error

	GetByID(ctx context.Context, id domain.MemberID) (Member, error)
	GetByRut(ctx context.Context, rut domain.Rut) (Member, error)

	ListActive(ctx context.Context) ([]Member, error)
}
