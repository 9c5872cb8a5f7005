package attendancerepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iglesia-ietq/asistencia-api/internal/domain"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/attendancerepo"
)

type rowKey struct {
	rut  domain.Rut
	date string
}

// Repo is an in-memory implementation of attendancerepo.Repository.
// Rows are keyed on (rut, service date); Upsert replaces on collision.
type Repo struct {
	mu   sync.RWMutex
	rows map[rowKey]attendancerepo.Attendance
}

func NewRepo() *Repo {
	return &Repo{rows: make(map[rowKey]attendancerepo.Attendance)}
}

func (r *Repo) Upsert(ctx context.Context, rows []attendancerepo.Attendance) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		key := rowKey{rut: row.Rut, date: row.ServiceDate.Format("2006-01-02")}
		if existing, ok := r.rows[key]; ok {
			row.ID = existing.ID
			row.CreatedAt = existing.CreatedAt
		}
		r.rows[key] = row
	}
	return nil
}

func (r *Repo) ListAll(ctx context.Context) ([]attendancerepo.Attendance, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]attendancerepo.Attendance, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	sortRows(out)
	return out, nil
}

func (r *Repo) ListSince(ctx context.Context, since time.Time) ([]attendancerepo.Attendance, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]attendancerepo.Attendance, 0)
	for _, row := range r.rows {
		if row.ServiceDate.Before(since) {
			continue
		}
		out = append(out, row)
	}
	sortRows(out)
	return out, nil
}

func (r *Repo) ListByRut(ctx context.Context, rut domain.Rut, limit int) ([]attendancerepo.Attendance, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]attendancerepo.Attendance, 0)
	for _, row := range r.rows {
		if row.Rut != rut {
			continue
		}
		out = append(out, row)
	}
	sortRows(out)
	return truncate(out, limit), nil
}

func (r *Repo) ListByName(ctx context.Context, name string, limit int) ([]attendancerepo.Attendance, error) {
	_ = ctx
	needle := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]attendancerepo.Attendance, 0)
	for _, row := range r.rows {
		if !strings.Contains(strings.ToLower(row.Name), needle) {
			continue
		}
		out = append(out, row)
	}
	sortRows(out)
	return truncate(out, limit), nil
}

func sortRows(rows []attendancerepo.Attendance) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].ServiceDate.Equal(rows[j].ServiceDate) {
			return rows[i].ServiceDate.After(rows[j].ServiceDate)
		}
		return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name)
	})
}

func truncate(rows []attendancerepo.Attendance, limit int) []attendancerepo.Attendance {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
