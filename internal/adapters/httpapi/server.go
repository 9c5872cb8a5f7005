package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/iglesia-ietq/asistencia-api/internal/app/attendance"
	"github.com/iglesia-ietq/asistencia-api/internal/app/roster"
	"github.com/iglesia-ietq/asistencia-api/internal/domain"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/idempotency"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/rostersource"
	"github.com/iglesia-ietq/asistencia-api/pkg/metrics"
)

// maxBodyBytes bounds request bodies; attendance batches are small.
const maxBodyBytes = 1 << 20

// Server is the HTTP adapter: it decodes requests, delegates to the app
// services and renders the JSON envelope.
type Server struct {
	Roster     *roster.Service
	Attendance *attendance.Service
	Idem       idempotency.Store
	Met        *metrics.Manager

	validate *validator.Validate
}

func NewServer(rosterSvc *roster.Service, attendanceSvc *attendance.Service, idem idempotency.Store, met *metrics.Manager) *Server {
	return &Server{
		Roster:     rosterSvc,
		Attendance: attendanceSvc,
		Idem:       idem,
		Met:        met,
		validate:   validator.New(),
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Roster.Snapshot()
	if errors.Is(err, roster.ErrNotLoaded) {
		// First hit before the refresh loop has produced anything: load
		// synchronously so the dashboard is never empty without cause.
		snap, err = s.Roster.Refresh(r.Context())
		if errors.Is(err, roster.ErrSuperseded) {
			snap, err = s.Roster.Snapshot()
		}
	}
	if err != nil {
		writeRosterError(w, r, err)
		return
	}

	svc := s.Attendance.CurrentService()
	writeJSON(w, http.StatusOK, dashboardResponse{
		Metrics:   snap.Stats,
		Members:   rosterMembersFromDomain(snap.Members),
		Birthdays: domain.SortedWeekBirthdays(snap.Members, svc.RegisteredAt),
		Service:   serviceInfoFromDomain(svc),
		FetchedAt: snap.FetchedAt,
	})
}

func (s *Server) handleRosterRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Roster.Refresh(r.Context())
	if errors.Is(err, roster.ErrSuperseded) {
		// A newer refresh already published; nothing was lost.
		writeJSON(w, http.StatusAccepted, refreshResponse{Status: "superseded"})
		return
	}
	if err != nil {
		writeRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Status:    "ok",
		Members:   len(snap.Members),
		FetchedAt: snap.FetchedAt,
	})
}

func (s *Server) handleCurrentService(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, serviceInfoFromDomain(s.Attendance.CurrentService()))
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Attendance.ListMembers(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]memberWithAttendanceDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, memberWithAttendanceFromApp(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"miembros": out})
}

func (s *Server) handleCreateVisit(w http.ResponseWriter, r *http.Request) {
	var req createVisitRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	m, err := s.Attendance.CreateVisit(r.Context(), attendance.CreateVisitInput{
		Name:              req.Name,
		Rut:               req.Rut,
		DeclaredFrequency: req.DeclaredFrequency,
		Notes:             req.Notes,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"miembro": memberFromDomain(m)})
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "memberId")
	var req updateMemberRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	m, err := s.Attendance.UpdateMember(r.Context(), domain.MemberID(id), req.toInput())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"miembro": memberFromDomain(m)})
}

func (s *Server) handleRegisterAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "unreadable request body", nil)
		return
	}

	var req registerAttendanceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request", validationDetails(err))
		return
	}

	// Idempotency handling:
	// - Replay if same actor+key+route+bodyHash
	// - Reject if same actor+key+route with different bodyHash (409)
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	var (
		bodyHash string
		metaFP   idempotency.Fingerprint
	)
	if idemKey != "" && s.Idem != nil {
		sum := sha256.Sum256(body)
		bodyHash = hex.EncodeToString(sum[:])

		metaFP = idempotency.Fingerprint{
			Key:     idempotency.Key(idemKey),
			Subject: domain.SubjectID(id.Subject),
			Method:  http.MethodPost,
			Route:   "/attendance",
		}
		if meta, found, err := s.Idem.Get(r.Context(), metaFP); err != nil {
			writeAppError(w, r, err)
			return
		} else if found {
			if string(meta.Body) != bodyHash {
				writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
				return
			}
		} else {
			_ = s.Idem.Put(r.Context(), metaFP, idempotency.Record{
				ContentType: "text/plain",
				Body:        []byte(bodyHash),
				CreatedAt:   time.Now().UTC(),
			})
		}

		respFP := metaFP
		respFP.BodyHash = bodyHash
		if rec, found, err := s.Idem.Get(r.Context(), respFP); err != nil {
			writeAppError(w, r, err)
			return
		} else if found && rec.StatusCode == http.StatusOK && strings.HasPrefix(rec.ContentType, "application/json") {
			s.Met.RecordIdempotentReplay()
			w.Header().Set("Content-Type", rec.ContentType)
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.Body)
			return
		}
	}

	in := attendance.RegisterInput{Meta: requestMeta(r)}
	for _, mid := range req.MemberIDs {
		in.MemberIDs = append(in.MemberIDs, domain.MemberID(mid))
	}

	res, err := s.Attendance.RegisterAttendance(r.Context(), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	resp := registerAttendanceResponse{
		ServiceDate: res.Service.DateString(),
		ServiceDay:  string(res.Service.Day),
		Registered:  res.Registered,
	}

	// Store the successful response for replay.
	if idemKey != "" && s.Idem != nil {
		respFP := metaFP
		respFP.BodyHash = bodyHash
		if b, err := json.Marshal(resp); err == nil {
			_ = s.Idem.Put(r.Context(), respFP, idempotency.Record{
				StatusCode:  http.StatusOK,
				ContentType: "application/json",
				Body:        b,
				CreatedAt:   time.Now().UTC(),
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Attendance.History(r.Context(), r.URL.Query().Get("rut"), r.URL.Query().Get("nombre"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asistencias": attendanceRowsFromRepo(rows)})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sums, err := s.Attendance.PersonSummaries(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resumen": sums})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Attendance.RecentRows(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asistencias": attendanceRowsFromRepo(rows)})
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	sums, err := s.Attendance.DailySummaries(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cultos": sums})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.Attendance.AbsenceAlerts(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alertas": alerts})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := s.Attendance.ExportCSV(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(export.Body))
}

// --- helpers ---

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRosterError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, rostersource.ErrUnavailable) {
		writeError(w, r, http.StatusBadGateway, "NETWORK_ERROR", "roster source unavailable", nil)
		return
	}
	writeAppError(w, r, err)
}

func requestMeta(r *http.Request) attendance.RequestMeta {
	meta := attendance.RequestMeta{}
	if ip := strings.TrimSpace(r.RemoteAddr); ip != "" {
		meta.IP = &ip
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		meta.UserAgent = &ua
	}
	return meta
}
