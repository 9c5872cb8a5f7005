package attendance

import (
	"time"

	"github.com/iglesia-ietq/asistencia-api/internal/domain"
)

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

// RequestMeta carries caller metadata stamped onto attendance rows.
type RequestMeta struct {
	IP        *string
	UserAgent *string
}

type RegisterInput struct {
	MemberIDs []domain.MemberID
	Meta      RequestMeta
}

// RegisterResult reports what a batch registration wrote.
type RegisterResult struct {
	Service    domain.ServiceInfo
	Registered int
}

type CreateVisitInput struct {
	Name              string
	Rut               *string
	DeclaredFrequency string
	Notes             *string
}

type UpdateMemberInput struct {
	DeclaredFrequency Optional[string] // cannot be null
	Notes             Optional[string] // may be null
	IsActive          Optional[bool]   // cannot be null
}

// MemberWithAttendance is an active member joined with the most recent
// attendance row for their rut, when one exists.
type MemberWithAttendance struct {
	Member domain.Member

	LastServiceDate *time.Time
	LastAttended    bool
}

// PersonSummary aggregates all attendance rows for one person.
type PersonSummary struct {
	Rut      domain.Rut `json:"rut"`
	Name     string     `json:"nombre"`
	Total    int        `json:"total_registros"`
	Attended int        `json:"total_asistencias"`
	LastDate string     `json:"ultima_fecha"`
}

// DailySummary aggregates one service date.
type DailySummary struct {
	Date    string `json:"fecha_culto"`
	Day     string `json:"dia_semana_culto"`
	Present int    `json:"presentes"`
	Absent  int    `json:"ausentes"`
	Total   int    `json:"total"`
}

// Export is a rendered CSV download.
type Export struct {
	Filename string
	Body     string
}
