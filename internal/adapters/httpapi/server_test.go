package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	memattendancerepo "github.com/iglesia-ietq/asistencia-api/internal/adapters/memory/attendancerepo"
	memclock "github.com/iglesia-ietq/asistencia-api/internal/adapters/memory/clock"
	memidempotency "github.com/iglesia-ietq/asistencia-api/internal/adapters/memory/idempotency"
	memmemberrepo "github.com/iglesia-ietq/asistencia-api/internal/adapters/memory/memberrepo"
	"github.com/iglesia-ietq/asistencia-api/internal/app/attendance"
	"github.com/iglesia-ietq/asistencia-api/internal/app/roster"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/rostersource"
	"github.com/iglesia-ietq/asistencia-api/pkg/logger"
	"github.com/iglesia-ietq/asistencia-api/pkg/metrics"
)

const sheetHeader = "Nombre,Telefono,RUT,Fecha Nacimiento,Mes,Edad,Direccion,WhatsApp,Comuna,Transporte,Genero,Tiempo Asistiendo,Dias Asistencia,Asiste Solo,Participa Grupos,Acceso Computador"

const sheetBody = sheetHeader + "\n" +
	"Ana Pérez,+56911111111,1-9,10/06/1990,Junio,35,Calle 1,si,Quilicura,no,femenino,2-5 años,todos los cultos,sola,\"Dorcas, Jóvenes\",si\n" +
	"Bruno Díaz,+56922222222,2-7,01/01/1980,Enero,45,Calle 2,no,Renca,si,masculino,6 meses,domingo,acompañado,no,no\n"

type stubSource struct {
	body string
	err  error
}

func (s *stubSource) Fetch(ctx context.Context) (string, error) {
	_ = ctx
	return s.body, s.err
}

type env struct {
	handler http.Handler
	svc     *attendance.Service
	clk     *memclock.ManualClock
	source  *stubSource
}

func newEnv(t *testing.T) *env {
	t.Helper()

	// 2025-06-01 12:00 UTC is a Sunday.
	clk := memclock.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	met := metrics.NewManager()
	source := &stubSource{body: sheetBody}

	rosterSvc := roster.NewService(source, clk, time.UTC, logger.Named("test"), met, roster.Options{})
	attendanceSvc := attendance.NewService(memmemberrepo.NewRepo(), memattendancerepo.NewRepo(), clk, time.UTC, met)

	s := NewServer(rosterSvc, attendanceSvc, memidempotency.NewStore(), met)
	return &env{
		handler: NewRouter(s, NewBypassAuthMiddleware("test-admin")),
		svc:     attendanceSvc,
		clk:     clk,
		source:  source,
	}
}

func (e *env) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error envelope in %q", rec.Body.String())
	}
	code, _ := e["code"].(string)
	return code
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestDashboard_LoadsRosterOnFirstHit(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/dashboard", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if _, ok := body["metricas"]; !ok {
		t.Fatalf("missing metricas in %q", rec.Body.String())
	}
	svc, ok := body["cultoActual"].(map[string]any)
	if !ok || svc["dia_semana_culto"] != "domingo" {
		t.Fatalf("cultoActual=%v", body["cultoActual"])
	}
	members, ok := body["miembros"].([]any)
	if !ok || len(members) != 2 {
		t.Fatalf("miembros=%v", body["miembros"])
	}
	ana := members[0].(map[string]any)
	if ana["nombre"] != "Ana Pérez" || ana["tiene_whatsapp"] != "si" || ana["tiene_transporte"] != "no" {
		t.Fatalf("ana=%v", ana)
	}
	ministries, ok := ana["ministerios"].([]any)
	if !ok || len(ministries) != 2 || ministries[0] != "Dorcas" || ministries[1] != "Jóvenes" {
		t.Fatalf("ministerios=%v", ana["ministerios"])
	}
	// Ana's birthday 10/06 falls inside the June 1 week window only when
	// within 7 days; 10/06 is 9 days out, so no entry for her.
	if bs, ok := body["proximosCumpleanos"].([]any); ok {
		for _, b := range bs {
			if m, ok := b.(map[string]any); ok && m["nombre"] == "Ana Pérez" {
				t.Fatalf("unexpected birthday entry: %v", m)
			}
		}
	}
}

func TestDashboard_SourceUnavailable(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.source.err = rostersource.ErrUnavailable
	rec := e.do(t, http.MethodGet, "/api/v1/dashboard", "", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "NETWORK_ERROR" {
		t.Fatalf("code=%q", code)
	}
}

func TestRosterRefresh(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/roster/refresh", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["estado"] != "ok" || body["miembros"] != float64(2) {
		t.Fatalf("body=%v", body)
	}
}

func TestVisitAndAttendanceFlow(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/members/visits", `{"nombre":"Pedro Soto"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create visit status=%d body=%q", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)["miembro"].(map[string]any)
	id := created["id"].(string)
	if !strings.HasPrefix(created["rut"].(string), "VISITA-") {
		t.Fatalf("rut=%v", created["rut"])
	}

	rec = e.do(t, http.MethodPost, "/api/v1/attendance", `{"miembros":["`+id+`"]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("register status=%d body=%q", rec.Code, rec.Body.String())
	}
	reg := decodeBody(t, rec)
	if reg["fecha_culto"] != "2025-06-01" || reg["dia_semana_culto"] != "domingo" || reg["registrados"] != float64(1) {
		t.Fatalf("reg=%v", reg)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/members", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}
	ms := decodeBody(t, rec)["miembros"].([]any)
	if len(ms) != 1 {
		t.Fatalf("members=%v", ms)
	}
	m := ms[0].(map[string]any)
	if m["ultima_asistencia"] != true || m["ultima_fecha_culto"] != "2025-06-01" {
		t.Fatalf("member=%v", m)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/attendance/history?nombre=pedro", "", nil)
	rows := decodeBody(t, rec)["asistencias"].([]any)
	if rec.Code != http.StatusOK || len(rows) != 1 {
		t.Fatalf("history status=%d rows=%v", rec.Code, rows)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/attendance/daily", "", nil)
	days := decodeBody(t, rec)["cultos"].([]any)
	if rec.Code != http.StatusOK || len(days) != 1 {
		t.Fatalf("daily status=%d days=%v", rec.Code, days)
	}
}

func TestRegisterAttendance_Validation(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/attendance", `{"miembros":[]}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Fatalf("code=%q", code)
	}

	rec = e.do(t, http.MethodPost, "/api/v1/attendance", `not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/api/v1/attendance", `{"miembros":["ghost"]}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "MEMBER_NOT_FOUND" {
		t.Fatalf("code=%q", code)
	}
}

func TestRegisterAttendance_Idempotency(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/members/visits", `{"nombre":"Pedro Soto"}`, nil)
	id := decodeBody(t, rec)["miembro"].(map[string]any)["id"].(string)

	payload := `{"miembros":["` + id + `"]}`
	key := map[string]string{"Idempotency-Key": "key-1"}

	first := e.do(t, http.MethodPost, "/api/v1/attendance", payload, key)
	if first.Code != http.StatusOK {
		t.Fatalf("first status=%d body=%q", first.Code, first.Body.String())
	}

	replay := e.do(t, http.MethodPost, "/api/v1/attendance", payload, key)
	if replay.Code != http.StatusOK {
		t.Fatalf("replay status=%d body=%q", replay.Code, replay.Body.String())
	}
	if replay.Body.String() != first.Body.String() {
		t.Fatalf("replay body differs: %q vs %q", replay.Body.String(), first.Body.String())
	}

	// Same key, different payload.
	reuse := e.do(t, http.MethodPost, "/api/v1/attendance", `{"miembros":["`+id+`","`+id+`"]}`, key)
	if reuse.Code != http.StatusConflict {
		t.Fatalf("reuse status=%d body=%q", reuse.Code, reuse.Body.String())
	}
	if code := errorCode(t, reuse); code != "IDEMPOTENCY_KEY_REUSE" {
		t.Fatalf("code=%q", code)
	}
}

func TestUpdateMember_Patch(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/members/visits", `{"nombre":"Pedro Soto","notas":"primera visita"}`, nil)
	id := decodeBody(t, rec)["miembro"].(map[string]any)["id"].(string)

	rec = e.do(t, http.MethodPatch, "/api/v1/members/"+id, `{"frecuencia_declarada":"todos","notas":null}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	m := decodeBody(t, rec)["miembro"].(map[string]any)
	if m["frecuencia_declarada"] != "todos" || m["notas"] != nil {
		t.Fatalf("member=%v", m)
	}

	rec = e.do(t, http.MethodPatch, "/api/v1/members/"+id, `{"frecuencia_declarada":null}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPatch, "/api/v1/members/ghost", `{"activo":false}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestExport(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/attendance/export", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("content-type=%q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "asistencias-2025-06-01.csv") {
		t.Fatalf("disposition=%q", cd)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("empty table must export an empty body, got %q", rec.Body.String())
	}
}

func TestErrorEnvelopeCarriesRequestID(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/attendance/history", "", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rec.Code)
	}
	body := decodeBody(t, rec)
	errBody := body["error"].(map[string]any)
	if rid, ok := errBody["requestId"].(string); !ok || rid == "" {
		t.Fatalf("requestId missing in %q", rec.Body.String())
	}
}

func TestJWTAuthMiddleware_RejectsMissingAndMalformed(t *testing.T) {
	t.Parallel()

	mw := NewAuthMiddleware(nil)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header status=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/members", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("malformed header status=%d", rec.Code)
	}
}

func TestBypassAuth_SubjectOverride(t *testing.T) {
	t.Parallel()

	mw := NewBypassAuthMiddleware("dev-admin")
	var got string
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		got = id.Subject
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Debug-Subject", "alice")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "alice" {
		t.Fatalf("subject=%q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "dev-admin" {
		t.Fatalf("subject=%q", got)
	}
}
