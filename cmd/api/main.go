package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iglesia-ietq/asistencia-api/internal/adapters/httpapi"
	memattendancerepo "github.com/iglesia-ietq/asistencia-api/internal/adapters/memory/attendancerepo"
	memidempotency "github.com/iglesia-ietq/asistencia-api/internal/adapters/memory/idempotency"
	memmemberrepo "github.com/iglesia-ietq/asistencia-api/internal/adapters/memory/memberrepo"
	postgres "github.com/iglesia-ietq/asistencia-api/internal/adapters/postgres"
	pgattendancerepo "github.com/iglesia-ietq/asistencia-api/internal/adapters/postgres/attendancerepo"
	pgidempotency "github.com/iglesia-ietq/asistencia-api/internal/adapters/postgres/idempotency"
	pgmemberrepo "github.com/iglesia-ietq/asistencia-api/internal/adapters/postgres/memberrepo"
	"github.com/iglesia-ietq/asistencia-api/internal/adapters/sheets"
	"github.com/iglesia-ietq/asistencia-api/internal/app/attendance"
	"github.com/iglesia-ietq/asistencia-api/internal/app/roster"
	"github.com/iglesia-ietq/asistencia-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/iglesia-ietq/asistencia-api/internal/platform/clock"
	"github.com/iglesia-ietq/asistencia-api/internal/platform/config"
	attendancerepoport "github.com/iglesia-ietq/asistencia-api/internal/ports/out/attendancerepo"
	idempotencyport "github.com/iglesia-ietq/asistencia-api/internal/ports/out/idempotency"
	memberrepoport "github.com/iglesia-ietq/asistencia-api/internal/ports/out/memberrepo"
	"github.com/iglesia-ietq/asistencia-api/pkg/logger"
	"github.com/iglesia-ietq/asistencia-api/pkg/metrics"
)

func main() {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger.Init()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	lg := logger.Named("api")

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Timezone, err)
	}

	var authMW func(http.Handler) http.Handler
	switch cfg.AuthMode {
	case "bypass":
		authMW = httpapi.NewBypassAuthMiddleware(cfg.BypassSubject)
	default:
		jwtCfg, err := cfg.JWT()
		if err != nil {
			log.Fatalf("invalid auth config: %v", err)
		}
		authMW = httpapi.NewAuthMiddleware(jwtverifier.New(jwtCfg))
	}

	clk := platformclock.NewSystemClock()
	met := metrics.NewManager()

	var (
		memberRepo memberrepoport.Repository
		rowRepo    attendancerepoport.Repository
		idemStore  idempotencyport.Store
		cleanup    func()
	)

	switch cfg.StorageBackend {
	case "postgres":
		pool, err := postgres.NewPool(context.Background(), cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			log.Fatalf("invalid postgres config: %v", err)
		}
		cleanup = pool.Close

		memberRepo = pgmemberrepo.NewRepo(pool)
		rowRepo = pgattendancerepo.NewRepo(pool)
		idemStore = pgidempotency.NewStore(pool)
	default:
		memberRepo = memmemberrepo.NewRepo()
		rowRepo = memattendancerepo.NewRepo()
		idemStore = memidempotency.NewStore()
	}

	if cleanup != nil {
		defer cleanup()
	}

	source := sheets.NewSource(cfg.RosterURL, cfg.FetchTimeout())
	rosterSvc := roster.NewService(source, clk, loc, logger.Named("roster"), met, roster.Options{
		RefreshInterval: cfg.RosterRefreshInterval(),
		FetchTimeout:    cfg.FetchTimeout(),
	})
	attendanceSvc := attendance.NewService(memberRepo, rowRepo, clk, loc, met)

	api := httpapi.NewServer(rosterSvc, attendanceSvc, idemStore, met)
	handler := httpapi.NewRouter(api, authMW)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go rosterSvc.Start(ctx)

	go func() {
		lg.Info(ctx, "api listening", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	lg.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
