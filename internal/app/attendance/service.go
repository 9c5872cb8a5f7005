package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iglesia-ietq/asistencia-api/internal/domain"
	"github.com/iglesia-ietq/asistencia-api/internal/platform/csvcodec"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/attendancerepo"
	clockport "github.com/iglesia-ietq/asistencia-api/internal/ports/out/clock"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/memberrepo"
	"github.com/iglesia-ietq/asistencia-api/pkg/metrics"
)

// recentWindowDays is the horizon for the "recent" read views and the
// absence computation.
const recentWindowDays = 60

// defaultHistoryLimit bounds per-person history queries.
const defaultHistoryLimit = 50

var exportHeaders = []string{
	"rut",
	"nombre",
	"fecha_registro",
	"fecha_culto",
	"dia_semana_culto",
	"asistio",
	"frecuencia_declarada",
	"tipo_registro",
}

// Service implements attendance registration and the derived read views.
type Service struct {
	members memberrepo.Repository
	rows    attendancerepo.Repository
	clk     clockport.Clock
	loc     *time.Location
	met     *metrics.Manager

	newMemberID func() domain.MemberID
	newVisitRut func() domain.Rut

	// HistoryLimit bounds history result size.
	HistoryLimit int
}

func NewService(members memberrepo.Repository, rows attendancerepo.Repository, clk clockport.Clock, loc *time.Location, met *metrics.Manager) *Service {
	return &Service{
		members: members,
		rows:    rows,
		clk:     clk,
		loc:     loc,
		met:     met,
		newMemberID: func() domain.MemberID {
			return domain.MemberID(uuid.NewString())
		},
		newVisitRut: func() domain.Rut {
			return domain.Rut("VISITA-" + uuid.NewString())
		},
		HistoryLimit: defaultHistoryLimit,
	}
}

// CurrentService resolves the service occurrence attendance is being
// registered for right now.
func (s *Service) CurrentService() domain.ServiceInfo {
	return domain.ResolveService(s.clk.Now(), s.loc)
}

// ListMembers returns active members joined with their latest attendance row.
func (s *Service) ListMembers(ctx context.Context) ([]MemberWithAttendance, error) {
	ms, err := s.members.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.rows.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	// Rows come back newest first, so the first row per rut is the latest.
	type last struct {
		date     time.Time
		attended bool
	}
	latest := make(map[domain.Rut]last)
	for _, row := range rows {
		if _, ok := latest[row.Rut]; ok {
			continue
		}
		latest[row.Rut] = last{date: row.ServiceDate, attended: row.Attended}
	}

	out := make([]MemberWithAttendance, 0, len(ms))
	for _, m := range ms {
		item := MemberWithAttendance{Member: toDomainMember(m)}
		if l, ok := latest[m.Rut]; ok {
			d := l.date
			item.LastServiceDate = &d
			item.LastAttended = l.attended
		}
		out = append(out, item)
	}
	return out, nil
}

// RegisterAttendance stamps the given members onto the current service
// occurrence. Re-registering a member for the same service replaces the
// earlier row.
func (s *Service) RegisterAttendance(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if len(in.MemberIDs) == 0 {
		return RegisterResult{}, &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "no members to register",
			Details: map[string]any{"miembros": "must not be empty"},
		}
	}

	svc := s.CurrentService()
	now := s.clk.Now().In(s.loc)

	rows := make([]attendancerepo.Attendance, 0, len(in.MemberIDs))
	for _, id := range in.MemberIDs {
		m, err := s.members.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, memberrepo.ErrNotFound) {
				return RegisterResult{}, &Error{
					Status:  404,
					Code:    "MEMBER_NOT_FOUND",
					Message: "member not found",
					Details: map[string]any{"miembro_id": string(id)},
				}
			}
			return RegisterResult{}, err
		}
		rows = append(rows, attendancerepo.Attendance{
			ID:                uuid.NewString(),
			Rut:               m.Rut,
			Name:              m.Name,
			ServiceDate:       svc.Date,
			ServiceDay:        svc.Day,
			RegisteredAt:      now,
			Attended:          true,
			DeclaredFrequency: m.DeclaredFrequency,
			RegistrationType:  m.RegistrationType,
			IP:                in.Meta.IP,
			UserAgent:         in.Meta.UserAgent,
			CreatedAt:         now,
		})
	}

	if err := s.rows.Upsert(ctx, rows); err != nil {
		if errors.Is(err, attendancerepo.ErrConflict) {
			return RegisterResult{}, &Error{
				Status:  409,
				Code:    "CONFLICT",
				Message: "attendance rows conflicted with a concurrent write",
			}
		}
		return RegisterResult{}, err
	}

	s.met.RecordAttendanceUpserts(len(rows))
	return RegisterResult{Service: svc, Registered: len(rows)}, nil
}

// CreateVisit registers a one-off visitor as a member of type "visita".
// Visitors without a rut get a generated surrogate.
func (s *Service) CreateVisit(ctx context.Context, in CreateVisitInput) (domain.Member, error) {
	name := domain.NormalizeHumanName(in.Name)
	if name == "" {
		return domain.Member{}, &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "invalid visit",
			Details: map[string]any{"nombre": "must not be empty"},
		}
	}

	freq := strings.TrimSpace(in.DeclaredFrequency)
	if freq == "" {
		freq = "ocasional"
	}
	if !domain.IsValidDeclaredFrequency(freq) {
		return domain.Member{}, &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "invalid visit",
			Details: map[string]any{"frecuencia_declarada": "unknown frequency"},
		}
	}

	var rut domain.Rut
	if in.Rut != nil && strings.TrimSpace(*in.Rut) != "" {
		rut = domain.Rut(strings.TrimSpace(*in.Rut))
		if _, err := s.members.GetByRut(ctx, rut); err == nil {
			return domain.Member{}, &Error{
				Status:  409,
				Code:    "RUT_ALREADY_REGISTERED",
				Message: "a member with this rut already exists",
				Details: map[string]any{"rut": string(rut)},
			}
		} else if !errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Member{}, err
		}
	} else {
		rut = s.newVisitRut()
	}

	now := s.clk.Now().UTC()
	rec := memberrepo.Member{
		ID:                s.newMemberID(),
		Name:              name,
		Rut:               rut,
		DeclaredFrequency: freq,
		RegistrationType:  domain.RegistrationVisit,
		Notes:             in.Notes,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.members.Create(ctx, rec); err != nil {
		if errors.Is(err, memberrepo.ErrRutAlreadyRegistered) {
			return domain.Member{}, &Error{
				Status:  409,
				Code:    "RUT_ALREADY_REGISTERED",
				Message: "a member with this rut already exists",
				Details: map[string]any{"rut": string(rut)},
			}
		}
		return domain.Member{}, err
	}

	s.met.RecordVisitCreated()
	return toDomainMember(rec), nil
}

// UpdateMember patches a member's declared frequency, notes or active flag.
func (s *Service) UpdateMember(ctx context.Context, id domain.MemberID, in UpdateMemberInput) (domain.Member, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Member{}, &Error{
				Status:  404,
				Code:    "MEMBER_NOT_FOUND",
				Message: "member not found",
			}
		}
		return domain.Member{}, err
	}

	if in.DeclaredFrequency.IsSpecified() {
		if in.DeclaredFrequency.IsNull() {
			return domain.Member{}, &Error{
				Status:  422,
				Code:    "VALIDATION_ERROR",
				Message: "invalid member patch",
				Details: map[string]any{"frecuencia_declarada": "cannot be null"},
			}
		}
		freq := strings.TrimSpace(in.DeclaredFrequency.Value())
		if !domain.IsValidDeclaredFrequency(freq) {
			return domain.Member{}, &Error{
				Status:  422,
				Code:    "VALIDATION_ERROR",
				Message: "invalid member patch",
				Details: map[string]any{"frecuencia_declarada": "unknown frequency"},
			}
		}
		m.DeclaredFrequency = freq
	}

	if in.Notes.IsSpecified() {
		if in.Notes.IsNull() {
			m.Notes = nil
		} else {
			v := in.Notes.Value()
			m.Notes = &v
		}
	}

	if in.IsActive.IsSpecified() {
		if in.IsActive.IsNull() {
			return domain.Member{}, &Error{
				Status:  422,
				Code:    "VALIDATION_ERROR",
				Message: "invalid member patch",
				Details: map[string]any{"activo": "cannot be null"},
			}
		}
		m.IsActive = in.IsActive.Value()
	}

	m.UpdatedAt = s.clk.Now().UTC()
	if err := s.members.Update(ctx, m); err != nil {
		return domain.Member{}, err
	}
	return toDomainMember(m), nil
}

// History returns attendance rows for one person, newest first. rut takes
// precedence; name matching is a case-insensitive substring fallback.
func (s *Service) History(ctx context.Context, rut, name string) ([]attendancerepo.Attendance, error) {
	rut = strings.TrimSpace(rut)
	name = strings.TrimSpace(name)
	switch {
	case rut != "":
		return s.rows.ListByRut(ctx, domain.Rut(rut), s.HistoryLimit)
	case name != "":
		return s.rows.ListByName(ctx, name, s.HistoryLimit)
	default:
		return nil, &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "history requires rut or nombre",
		}
	}
}

// PersonSummaries aggregates all attendance rows per person.
func (s *Service) PersonSummaries(ctx context.Context) ([]PersonSummary, error) {
	rows, err := s.rows.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byRut := make(map[domain.Rut]*PersonSummary)
	order := make([]domain.Rut, 0)
	for _, row := range rows {
		sum, ok := byRut[row.Rut]
		if !ok {
			sum = &PersonSummary{Rut: row.Rut, Name: row.Name}
			byRut[row.Rut] = sum
			order = append(order, row.Rut)
		}
		sum.Total++
		if row.Attended {
			sum.Attended++
		}
		// Rows are newest first, so the first date seen per rut is the last.
		if sum.LastDate == "" {
			sum.LastDate = row.ServiceDate.Format("2006-01-02")
		}
	}

	out := make([]PersonSummary, 0, len(order))
	for _, rut := range order {
		out = append(out, *byRut[rut])
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// RecentRows returns the raw rows of the last 60 days, newest first.
func (s *Service) RecentRows(ctx context.Context) ([]attendancerepo.Attendance, error) {
	since := s.clk.Now().In(s.loc).AddDate(0, 0, -recentWindowDays)
	return s.rows.ListSince(ctx, since)
}

// DailySummaries aggregates rows per service date, newest first.
func (s *Service) DailySummaries(ctx context.Context) ([]DailySummary, error) {
	rows, err := s.rows.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*DailySummary)
	order := make([]string, 0)
	for _, row := range rows {
		key := row.ServiceDate.Format("2006-01-02")
		sum, ok := byDate[key]
		if !ok {
			sum = &DailySummary{Date: key, Day: string(row.ServiceDay)}
			byDate[key] = sum
			order = append(order, key)
		}
		sum.Total++
		if row.Attended {
			sum.Present++
		} else {
			sum.Absent++
		}
	}

	out := make([]DailySummary, 0, len(order))
	for _, key := range order {
		out = append(out, *byDate[key])
	}
	return out, nil
}

// AbsenceAlerts recomputes the consecutive-absence view over the active
// member list and the recent attendance rows.
func (s *Service) AbsenceAlerts(ctx context.Context) ([]domain.AbsenceAlert, error) {
	ms, err := s.members.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.RecentRows(ctx)
	if err != nil {
		return nil, err
	}

	attended := make(map[domain.Rut]map[string]bool)
	for _, row := range rows {
		if !row.Attended {
			continue
		}
		dates, ok := attended[row.Rut]
		if !ok {
			dates = make(map[string]bool)
			attended[row.Rut] = dates
		}
		dates[row.ServiceDate.Format("2006-01-02")] = true
	}

	members := make([]domain.Member, 0, len(ms))
	for _, m := range ms {
		members = append(members, toDomainMember(m))
	}
	return domain.ComputeAbsenceAlerts(members, attended, s.clk.Now(), s.loc), nil
}

// ExportCSV renders the last 60 days of attendance rows as a CSV download
// named after the current service date.
func (s *Service) ExportCSV(ctx context.Context) (Export, error) {
	rows, err := s.RecentRows(ctx)
	if err != nil {
		return Export{}, err
	}

	records := make([][]any, 0, len(rows))
	for _, row := range rows {
		records = append(records, []any{
			string(row.Rut),
			row.Name,
			row.RegisteredAt.Format(time.RFC3339),
			row.ServiceDate.Format("2006-01-02"),
			string(row.ServiceDay),
			row.Attended,
			row.DeclaredFrequency,
			row.RegistrationType,
		})
	}

	return Export{
		Filename: fmt.Sprintf("asistencias-%s.csv", s.CurrentService().DateString()),
		Body:     csvcodec.Encode(exportHeaders, records),
	}, nil
}

func toDomainMember(m memberrepo.Member) domain.Member {
	return domain.Member{
		ID:                m.ID,
		Name:              m.Name,
		Rut:               m.Rut,
		DeclaredFrequency: m.DeclaredFrequency,
		RegistrationType:  m.RegistrationType,
		Notes:             m.Notes,
		IsActive:          m.IsActive,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
