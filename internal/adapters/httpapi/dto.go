package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/iglesia-ietq/asistencia-api/internal/app/attendance"
	"github.com/iglesia-ietq/asistencia-api/internal/domain"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/attendancerepo"
)

type serviceInfoDTO struct {
	Date         openapi_types.Date `json:"fecha_culto"`
	Day          string             `json:"dia_semana_culto"`
	RegisteredAt time.Time          `json:"fecha_registro"`
}

func serviceInfoFromDomain(svc domain.ServiceInfo) serviceInfoDTO {
	return serviceInfoDTO{
		Date:         openapi_types.Date{Time: svc.Date},
		Day:          string(svc.Day),
		RegisteredAt: svc.RegisteredAt,
	}
}

type dashboardResponse struct {
	Metrics   domain.Metrics            `json:"metricas"`
	Members   []rosterMemberDTO         `json:"miembros"`
	Birthdays []domain.UpcomingBirthday `json:"proximosCumpleanos"`
	Service   serviceInfoDTO            `json:"cultoActual"`
	FetchedAt time.Time                 `json:"actualizado"`
}

// rosterMemberDTO is one spreadsheet roster row as the dashboard shows it:
// the raw sheet text for the si/no columns plus the canonical ministry list.
type rosterMemberDTO struct {
	Name           string   `json:"nombre"`
	Phone          string   `json:"telefono"`
	Rut            string   `json:"rut"`
	BirthDate      string   `json:"fecha_nacimiento"`
	Age            int      `json:"edad"`
	Address        string   `json:"direccion"`
	Commune        string   `json:"comuna"`
	Gender         string   `json:"genero"`
	Tenure         string   `json:"tiempo_asistiendo"`
	AttendanceDays string   `json:"dias_asistencia"`
	AttendsWith    string   `json:"asiste_solo_o_acompanado"`
	Ministries     []string `json:"ministerios"`
	HasWhatsApp    string   `json:"tiene_whatsapp"`
	HasTransport   string   `json:"tiene_transporte"`
	ComputerAccess string   `json:"acceso_computador"`
}

func rosterMemberFromDomain(m domain.RosterMember) rosterMemberDTO {
	return rosterMemberDTO{
		Name:           m.Name,
		Phone:          m.Phone,
		Rut:            m.Rut,
		BirthDate:      m.BirthDate,
		Age:            m.Age,
		Address:        m.Address,
		Commune:        m.Commune,
		Gender:         m.Gender,
		Tenure:         m.Tenure,
		AttendanceDays: m.AttendanceDays,
		AttendsWith:    m.AttendsWith,
		Ministries:     domain.NormalizeMinistries(m.GroupParticipation),
		HasWhatsApp:    m.HasWhatsAppRaw,
		HasTransport:   m.HasTransportRaw,
		ComputerAccess: m.ComputerAccessRaw,
	}
}

func rosterMembersFromDomain(ms []domain.RosterMember) []rosterMemberDTO {
	out := make([]rosterMemberDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, rosterMemberFromDomain(m))
	}
	return out
}

type refreshResponse struct {
	Status    string    `json:"estado"`
	Members   int       `json:"miembros"`
	FetchedAt time.Time `json:"actualizado"`
}

type memberDTO struct {
	ID                string    `json:"id"`
	Name              string    `json:"nombre"`
	Rut               string    `json:"rut"`
	DeclaredFrequency string    `json:"frecuencia_declarada"`
	RegistrationType  string    `json:"tipo_registro"`
	Notes             *string   `json:"notas"`
	IsActive          bool      `json:"activo"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func memberFromDomain(m domain.Member) memberDTO {
	return memberDTO{
		ID:                string(m.ID),
		Name:              m.Name,
		Rut:               string(m.Rut),
		DeclaredFrequency: m.DeclaredFrequency,
		RegistrationType:  m.RegistrationType,
		Notes:             m.Notes,
		IsActive:          m.IsActive,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

type memberWithAttendanceDTO struct {
	memberDTO

	LastServiceDate *openapi_types.Date `json:"ultima_fecha_culto"`
	LastAttended    bool                `json:"ultima_asistencia"`
}

func memberWithAttendanceFromApp(m attendance.MemberWithAttendance) memberWithAttendanceDTO {
	out := memberWithAttendanceDTO{
		memberDTO:    memberFromDomain(m.Member),
		LastAttended: m.LastAttended,
	}
	if m.LastServiceDate != nil {
		out.LastServiceDate = &openapi_types.Date{Time: *m.LastServiceDate}
	}
	return out
}

type attendanceRowDTO struct {
	Rut               string             `json:"rut"`
	Name              string             `json:"nombre"`
	ServiceDate       openapi_types.Date `json:"fecha_culto"`
	ServiceDay        string             `json:"dia_semana_culto"`
	RegisteredAt      time.Time          `json:"fecha_registro"`
	Attended          bool               `json:"asistio"`
	DeclaredFrequency string             `json:"frecuencia_declarada"`
	RegistrationType  string             `json:"tipo_registro"`
}

func attendanceRowFromRepo(row attendancerepo.Attendance) attendanceRowDTO {
	return attendanceRowDTO{
		Rut:               string(row.Rut),
		Name:              row.Name,
		ServiceDate:       openapi_types.Date{Time: row.ServiceDate},
		ServiceDay:        string(row.ServiceDay),
		RegisteredAt:      row.RegisteredAt,
		Attended:          row.Attended,
		DeclaredFrequency: row.DeclaredFrequency,
		RegistrationType:  row.RegistrationType,
	}
}

func attendanceRowsFromRepo(rows []attendancerepo.Attendance) []attendanceRowDTO {
	out := make([]attendanceRowDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, attendanceRowFromRepo(row))
	}
	return out
}

type createVisitRequest struct {
	Name              string  `json:"nombre" validate:"required"`
	Rut               *string `json:"rut"`
	DeclaredFrequency string  `json:"frecuencia_declarada"`
	Notes             *string `json:"notas"`
}

type updateMemberRequest struct {
	DeclaredFrequency nullable.Nullable[string] `json:"frecuencia_declarada"`
	Notes             nullable.Nullable[string] `json:"notas"`
	IsActive          nullable.Nullable[bool]   `json:"activo"`
}

// toInput maps the wire-level tri-state fields onto the app-layer patch.
func (req updateMemberRequest) toInput() attendance.UpdateMemberInput {
	return attendance.UpdateMemberInput{
		DeclaredFrequency: optionalFromNullable(req.DeclaredFrequency),
		Notes:             optionalFromNullable(req.Notes),
		IsActive:          optionalFromNullable(req.IsActive),
	}
}

func optionalFromNullable[T any](n nullable.Nullable[T]) attendance.Optional[T] {
	if !n.IsSpecified() {
		return attendance.Unspecified[T]()
	}
	if n.IsNull() {
		return attendance.Null[T]()
	}
	v, err := n.Get()
	if err != nil {
		return attendance.Null[T]()
	}
	return attendance.Some(v)
}

type registerAttendanceRequest struct {
	MemberIDs []string `json:"miembros" validate:"required,min=1,dive,required"`
}

type registerAttendanceResponse struct {
	ServiceDate string `json:"fecha_culto"`
	ServiceDay  string `json:"dia_semana_culto"`
	Registered  int    `json:"registrados"`
}
