package roster

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iglesia-ietq/asistencia-api/internal/domain"
	"github.com/iglesia-ietq/asistencia-api/internal/platform/csvcodec"
	clockport "github.com/iglesia-ietq/asistencia-api/internal/ports/out/clock"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/rostersource"
	"github.com/iglesia-ietq/asistencia-api/pkg/logger"
	"github.com/iglesia-ietq/asistencia-api/pkg/metrics"
)

// rosterMinFields is the column count a sheet row needs to be usable.
// The published sheet has 16 columns; shorter rows are half-filled forms.
const rosterMinFields = 16

// Snapshot is one fully loaded roster with its derived statistics.
type Snapshot struct {
	Members   []domain.RosterMember
	Stats     domain.Metrics
	FetchedAt time.Time
}

// Service loads the roster from its source and keeps the latest snapshot.
//
// Concurrent refreshes follow latest-wins ordering: each refresh gets a
// monotonically increasing generation, and a refresh only publishes if no
// higher generation has published before it. A refresh whose result is
// discarded returns ErrSuperseded.
type Service struct {
	source rostersource.Source
	clk    clockport.Clock
	loc    *time.Location
	log    logger.Logger
	met    *metrics.Manager

	interval time.Duration
	timeout  time.Duration

	mu           sync.Mutex
	nextGen      uint64
	publishedGen uint64
	snapshot     *Snapshot
}

// Options tunes the refresh loop. Zero values fall back to 30s for both.
type Options struct {
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
}

func NewService(source rostersource.Source, clk clockport.Clock, loc *time.Location, log logger.Logger, met *metrics.Manager, opts Options) *Service {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 30 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &Service{
		source:   source,
		clk:      clk,
		loc:      loc,
		log:      log,
		met:      met,
		interval: opts.RefreshInterval,
		timeout:  opts.FetchTimeout,
	}
}

// Snapshot returns the latest published snapshot, or ErrNotLoaded before the
// first successful refresh.
func (s *Service) Snapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil, ErrNotLoaded
	}
	return s.snapshot, nil
}

// Refresh fetches and parses the roster, then publishes the snapshot unless
// a newer refresh got there first.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	s.nextGen++
	gen := s.nextGen
	s.mu.Unlock()

	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.source.Fetch(fetchCtx)
	if err != nil {
		s.met.RecordRosterFetch("error", time.Since(start).Seconds())
		s.log.Error(ctx, "roster fetch failed", logger.Error(err))
		return nil, err
	}

	members := ParseRoster(raw)
	now := s.clk.Now().In(s.loc)
	snap := &Snapshot{
		Members:   members,
		Stats:     domain.ComputeMetrics(members, now),
		FetchedAt: now,
	}

	s.mu.Lock()
	if gen <= s.publishedGen {
		s.mu.Unlock()
		s.met.RecordRosterFetch("superseded", time.Since(start).Seconds())
		return nil, ErrSuperseded
	}
	s.publishedGen = gen
	s.snapshot = snap
	s.mu.Unlock()

	s.met.RecordRosterFetch("ok", time.Since(start).Seconds())
	s.met.SetRosterMembers(len(members))
	s.log.Info(ctx, "roster refreshed",
		logger.Int("members", len(members)),
		logger.String("fetched_at", snap.FetchedAt.Format(time.RFC3339)),
	)
	return snap, nil
}

// Start runs the periodic refresh loop until ctx is canceled. It performs an
// immediate first refresh so the dashboard is usable right after boot.
func (s *Service) Start(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil {
		s.log.Warn(ctx, "initial roster refresh failed", logger.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.log.Warn(ctx, "periodic roster refresh failed", logger.Error(err))
			}
		}
	}
}

// ParseRoster turns the raw CSV document into roster members. Blank lines are
// dropped first; the first remaining line is the sheet header, so a document
// that starts with an empty line still loses its header row, not a member.
// Rows with fewer than 16 columns or without a name are skipped rather than
// failing the whole document.
func ParseRoster(raw string) []domain.RosterMember {
	lines := make([]string, 0, strings.Count(raw, "\n")+1)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	members := make([]domain.RosterMember, 0, len(lines))
	for i, line := range lines {
		if i == 0 {
			continue
		}
		fields := csvcodec.ParseLine(line)
		if len(fields) < rosterMinFields || strings.TrimSpace(fields[0]) == "" {
			continue
		}
		members = append(members, memberFromRow(fields))
	}
	return members
}

func memberFromRow(fields []string) domain.RosterMember {
	age, err := strconv.Atoi(strings.TrimSpace(fields[5]))
	if err != nil || age < 0 {
		age = 0
	}
	return domain.RosterMember{
		Name:      fields[0],
		Phone:     fields[1],
		Rut:       fields[2],
		BirthDate: fields[3],
		Month:     fields[4],
		Age:       age,
		Address:   fields[6],

		HasWhatsApp:        domain.ParseFlag(fields[7]),
		Commune:            fields[8],
		HasTransport:       domain.ParseFlag(fields[9]),
		Gender:             fields[10],
		Tenure:             fields[11],
		AttendanceDays:     fields[12],
		AttendsWith:        fields[13],
		GroupParticipation: fields[14],
		ComputerAccess:     domain.ParseFlag(fields[15]),

		HasWhatsAppRaw:    fields[7],
		HasTransportRaw:   fields[9],
		ComputerAccessRaw: fields[15],
	}
}
