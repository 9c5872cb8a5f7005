package domain

import "time"

// RosterMember is one row of the spreadsheet roster export. Fields hold the
// raw free-text values from the sheet; the Flag-typed fields additionally
// carry the si/no classification derived once at parse time.
//
// Roster rows are rebuilt wholesale on every fetch and never mutated.
type RosterMember struct {
	Name      string
	Phone     string
	Rut       string
	BirthDate string // DD/MM/YYYY or empty
	Month     string
	Age       int // 0 when the sheet cell does not parse
	Address   string

	HasWhatsApp        Flag
	Commune            string
	HasTransport       Flag
	Gender             string
	Tenure             string // "tiempo asistiendo" free text
	AttendanceDays     string
	AttendsWith        string
	GroupParticipation string
	ComputerAccess     Flag

	// Raw text behind the Flag fields, kept for export/debugging.
	HasWhatsAppRaw    string
	HasTransportRaw   string
	ComputerAccessRaw string
}

// RegistrationType values for persisted members.
const (
	RegistrationMember = "miembro"
	RegistrationVisit  = "visita"
)

// Member is a persisted member of the congregation: the attendance-marking
// roster, as opposed to the read-only spreadsheet RosterMember.
type Member struct {
	ID   MemberID
	Name string
	Rut  Rut

	DeclaredFrequency string
	RegistrationType  string
	Notes             *string

	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
