package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the API HTTP router.
//
// /healthz and /metrics are unauthenticated infra endpoints; every /api/v1
// route goes through the admin auth middleware.
func NewRouter(s *Server, authMW func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(NewMetricsMiddleware(s.Met))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", s.Met.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMW)

		r.Get("/dashboard", s.handleDashboard)
		r.Post("/roster/refresh", s.handleRosterRefresh)
		r.Get("/service/current", s.handleCurrentService)

		r.Get("/members", s.handleListMembers)
		r.Post("/members/visits", s.handleCreateVisit)
		r.Patch("/members/{memberId}", s.handleUpdateMember)

		r.Post("/attendance", s.handleRegisterAttendance)
		r.Get("/attendance/history", s.handleHistory)
		r.Get("/attendance/summary", s.handleSummary)
		r.Get("/attendance/recent", s.handleRecent)
		r.Get("/attendance/daily", s.handleDaily)
		r.Get("/attendance/alerts", s.handleAlerts)
		r.Get("/attendance/export", s.handleExport)
	})

	return r
}
