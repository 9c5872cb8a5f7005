package attendance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	memattendancerepo "github.com/iglesia-ietq/asistencia-api/internal/adapters/memory/attendancerepo"
	memclock "github.com/iglesia-ietq/asistencia-api/internal/adapters/memory/clock"
	memmemberrepo "github.com/iglesia-ietq/asistencia-api/internal/adapters/memory/memberrepo"
	"github.com/iglesia-ietq/asistencia-api/internal/domain"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/attendancerepo"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/memberrepo"
	"github.com/iglesia-ietq/asistencia-api/pkg/metrics"
)

type fixture struct {
	svc     *Service
	members *memmemberrepo.Repo
	rows    *memattendancerepo.Repo
	clk     *memclock.ManualClock
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	members := memmemberrepo.NewRepo()
	rows := memattendancerepo.NewRepo()
	clk := memclock.NewManualClock(now)
	return &fixture{
		svc:     NewService(members, rows, clk, time.UTC, metrics.NewManager()),
		members: members,
		rows:    rows,
		clk:     clk,
	}
}

func (f *fixture) seedMember(t *testing.T, id, name, rut, freq string) {
	t.Helper()
	err := f.members.Create(context.Background(), memberrepo.Member{
		ID:                domain.MemberID(id),
		Name:              name,
		Rut:               domain.Rut(rut),
		DeclaredFrequency: freq,
		RegistrationType:  domain.RegistrationMember,
		IsActive:          true,
		CreatedAt:         f.clk.Now(),
		UpdatedAt:         f.clk.Now(),
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
}

// 2025-06-01 12:00 UTC is a Sunday.
var sunday = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRegisterAttendance_StampsCurrentService(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	f.seedMember(t, "m1", "Ana Pérez", "1-9", "domingo")

	res, err := f.svc.RegisterAttendance(context.Background(), RegisterInput{
		MemberIDs: []domain.MemberID{"m1"},
	})
	if err != nil {
		t.Fatalf("RegisterAttendance err=%v", err)
	}
	if res.Registered != 1 || res.Service.Day != domain.ServiceSunday {
		t.Fatalf("res=%+v", res)
	}

	rows, err := f.rows.ListAll(context.Background())
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
	row := rows[0]
	if row.Rut != "1-9" || !row.Attended || row.ServiceDate.Format("2006-01-02") != "2025-06-01" {
		t.Fatalf("row=%+v", row)
	}
	if row.DeclaredFrequency != "domingo" || row.RegistrationType != domain.RegistrationMember {
		t.Fatalf("row=%+v", row)
	}
}

func TestRegisterAttendance_SameServiceLastWriteWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	f.seedMember(t, "m1", "Ana Pérez", "1-9", "domingo")

	ctx := context.Background()
	if _, err := f.svc.RegisterAttendance(ctx, RegisterInput{MemberIDs: []domain.MemberID{"m1"}}); err != nil {
		t.Fatalf("first register: %v", err)
	}

	f.clk.Advance(2 * time.Hour)
	if _, err := f.svc.RegisterAttendance(ctx, RegisterInput{MemberIDs: []domain.MemberID{"m1"}}); err != nil {
		t.Fatalf("second register: %v", err)
	}

	rows, _ := f.rows.ListAll(ctx)
	if len(rows) != 1 {
		t.Fatalf("rows=%d want 1 (upsert on rut+date)", len(rows))
	}
	if rows[0].RegisteredAt.Hour() != 14 {
		t.Fatalf("registeredAt=%v want the later write", rows[0].RegisteredAt)
	}
}

func TestRegisterAttendance_UnknownMember(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	_, err := f.svc.RegisterAttendance(context.Background(), RegisterInput{MemberIDs: []domain.MemberID{"ghost"}})
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != 404 || ae.Code != "MEMBER_NOT_FOUND" {
		t.Fatalf("err=%v want MEMBER_NOT_FOUND 404", err)
	}
}

func TestRegisterAttendance_EmptyBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	_, err := f.svc.RegisterAttendance(context.Background(), RegisterInput{})
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != 422 {
		t.Fatalf("err=%v want 422", err)
	}
}

func TestCreateVisit_GeneratesSurrogateRut(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	m, err := f.svc.CreateVisit(context.Background(), CreateVisitInput{Name: "  Pedro   Soto "})
	if err != nil {
		t.Fatalf("CreateVisit err=%v", err)
	}
	if m.Name != "Pedro Soto" {
		t.Fatalf("name=%q", m.Name)
	}
	if !strings.HasPrefix(string(m.Rut), "VISITA-") {
		t.Fatalf("rut=%q want VISITA- prefix", m.Rut)
	}
	if m.RegistrationType != domain.RegistrationVisit || m.DeclaredFrequency != "ocasional" {
		t.Fatalf("m=%+v", m)
	}
}

func TestCreateVisit_DuplicateRut(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	f.seedMember(t, "m1", "Ana Pérez", "1-9", "domingo")

	rut := "1-9"
	_, err := f.svc.CreateVisit(context.Background(), CreateVisitInput{Name: "Otra Ana", Rut: &rut})
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != 409 || ae.Code != "RUT_ALREADY_REGISTERED" {
		t.Fatalf("err=%v want RUT_ALREADY_REGISTERED 409", err)
	}
}

func TestCreateVisit_RejectsUnknownFrequency(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	_, err := f.svc.CreateVisit(context.Background(), CreateVisitInput{Name: "Pedro", DeclaredFrequency: "lunes"})
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != 422 {
		t.Fatalf("err=%v want 422", err)
	}
}

func TestUpdateMember_PatchSemantics(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	f.seedMember(t, "m1", "Ana Pérez", "1-9", "domingo")
	ctx := context.Background()

	m, err := f.svc.UpdateMember(ctx, "m1", UpdateMemberInput{
		DeclaredFrequency: Some("todos"),
		Notes:             Some("llamar antes"),
	})
	if err != nil {
		t.Fatalf("UpdateMember err=%v", err)
	}
	if m.DeclaredFrequency != "todos" || m.Notes == nil || *m.Notes != "llamar antes" {
		t.Fatalf("m=%+v", m)
	}

	m, err = f.svc.UpdateMember(ctx, "m1", UpdateMemberInput{Notes: Null[string]()})
	if err != nil {
		t.Fatalf("UpdateMember err=%v", err)
	}
	if m.Notes != nil {
		t.Fatalf("notes=%v want cleared", *m.Notes)
	}
	if m.DeclaredFrequency != "todos" {
		t.Fatalf("unspecified field must stay untouched, got %q", m.DeclaredFrequency)
	}

	_, err = f.svc.UpdateMember(ctx, "m1", UpdateMemberInput{DeclaredFrequency: Some("lunes")})
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != 422 {
		t.Fatalf("err=%v want 422", err)
	}

	_, err = f.svc.UpdateMember(ctx, "m1", UpdateMemberInput{DeclaredFrequency: Null[string]()})
	if !errors.As(err, &ae) || ae.Status != 422 {
		t.Fatalf("null frequency err=%v want 422", err)
	}
}

func TestListMembers_JoinsLastAttendance(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	f.seedMember(t, "m1", "Ana Pérez", "1-9", "domingo")
	f.seedMember(t, "m2", "Bruno Díaz", "2-7", "todos")
	ctx := context.Background()

	if _, err := f.svc.RegisterAttendance(ctx, RegisterInput{MemberIDs: []domain.MemberID{"m1"}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ms, err := f.svc.ListMembers(ctx)
	if err != nil {
		t.Fatalf("ListMembers err=%v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("members=%d", len(ms))
	}
	// Ordered by name: Ana first.
	if ms[0].Member.Name != "Ana Pérez" || ms[0].LastServiceDate == nil || !ms[0].LastAttended {
		t.Fatalf("ana=%+v", ms[0])
	}
	if ms[1].LastServiceDate != nil {
		t.Fatalf("bruno should have no attendance, got %+v", ms[1])
	}
}

func TestHistory_RequiresRutOrName(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	_, err := f.svc.History(context.Background(), "", "")
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != 422 {
		t.Fatalf("err=%v want 422", err)
	}
}

func TestDailySummariesAndPersonSummaries(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	f.seedMember(t, "m1", "Ana Pérez", "1-9", "todos")
	f.seedMember(t, "m2", "Bruno Díaz", "2-7", "todos")
	ctx := context.Background()

	if _, err := f.svc.RegisterAttendance(ctx, RegisterInput{MemberIDs: []domain.MemberID{"m1", "m2"}}); err != nil {
		t.Fatalf("register sunday: %v", err)
	}

	// Wednesday service: only Ana.
	f.clk.Set(time.Date(2025, 6, 4, 20, 0, 0, 0, time.UTC))
	if _, err := f.svc.RegisterAttendance(ctx, RegisterInput{MemberIDs: []domain.MemberID{"m1"}}); err != nil {
		t.Fatalf("register wednesday: %v", err)
	}

	daily, err := f.svc.DailySummaries(ctx)
	if err != nil {
		t.Fatalf("DailySummaries err=%v", err)
	}
	if len(daily) != 2 {
		t.Fatalf("daily=%+v", daily)
	}
	// Newest first.
	if daily[0].Date != "2025-06-04" || daily[0].Present != 1 || daily[0].Total != 1 {
		t.Fatalf("daily[0]=%+v", daily[0])
	}
	if daily[1].Date != "2025-06-01" || daily[1].Present != 2 {
		t.Fatalf("daily[1]=%+v", daily[1])
	}

	sums, err := f.svc.PersonSummaries(ctx)
	if err != nil {
		t.Fatalf("PersonSummaries err=%v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("sums=%+v", sums)
	}
	if sums[0].Name != "Ana Pérez" || sums[0].Total != 2 || sums[0].Attended != 2 || sums[0].LastDate != "2025-06-04" {
		t.Fatalf("ana summary=%+v", sums[0])
	}
	if sums[1].Name != "Bruno Díaz" || sums[1].Total != 1 {
		t.Fatalf("bruno summary=%+v", sums[1])
	}
}

func TestExportCSV(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sunday)
	ctx := context.Background()

	export, err := f.svc.ExportCSV(ctx)
	if err != nil {
		t.Fatalf("ExportCSV err=%v", err)
	}
	if export.Filename != "asistencias-2025-06-01.csv" {
		t.Fatalf("filename=%q", export.Filename)
	}
	if export.Body != "" {
		t.Fatalf("empty table must export an empty body, got %q", export.Body)
	}

	f.seedMember(t, "m1", "Ana Pérez", "1-9", "domingo")
	if _, err := f.svc.RegisterAttendance(ctx, RegisterInput{MemberIDs: []domain.MemberID{"m1"}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// A row outside the 60-day window must not appear in the export.
	old := time.Date(2025, 2, 2, 12, 0, 0, 0, time.UTC)
	err = f.rows.Upsert(ctx, []attendancerepo.Attendance{{
		ID:           "old-row",
		Rut:          "2-7",
		Name:         "Bruno Díaz",
		ServiceDate:  old,
		ServiceDay:   domain.ServiceSunday,
		RegisteredAt: old,
		Attended:     true,
		CreatedAt:    old,
	}})
	if err != nil {
		t.Fatalf("seed old row: %v", err)
	}

	export, err = f.svc.ExportCSV(ctx)
	if err != nil {
		t.Fatalf("ExportCSV err=%v", err)
	}
	lines := strings.Split(export.Body, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%d body=%q", len(lines), export.Body)
	}
	if lines[0] != "rut,nombre,fecha_registro,fecha_culto,dia_semana_culto,asistio,frecuencia_declarada,tipo_registro" {
		t.Fatalf("header=%q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1-9,Ana Pérez,") || !strings.Contains(lines[1], ",2025-06-01,domingo,true,") {
		t.Fatalf("row=%q", lines[1])
	}
	if strings.Contains(export.Body, "Bruno") {
		t.Fatalf("row outside the 60-day window leaked: %q", export.Body)
	}
}

func TestAbsenceAlerts_UsesDeclaredFrequency(t *testing.T) {
	t.Parallel()

	// Saturday 2025-06-14: Ana (domingo) missed 06-08 and 06-01.
	f := newFixture(t, time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC))
	f.seedMember(t, "m1", "Ana Pérez", "1-9", "domingo")
	f.seedMember(t, "m2", "Carmen Ruiz", "3-5", "ocasional")

	alerts, err := f.svc.AbsenceAlerts(context.Background())
	if err != nil {
		t.Fatalf("AbsenceAlerts err=%v", err)
	}
	if len(alerts) != 1 || alerts[0].Rut != "1-9" {
		t.Fatalf("alerts=%+v", alerts)
	}
	if alerts[0].AlertType != domain.AlertConsecutiveAbsences {
		t.Fatalf("alertType=%q", alerts[0].AlertType)
	}
}
