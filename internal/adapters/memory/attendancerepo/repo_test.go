package attendancerepo

import (
	"context"
	"testing"
	"time"

	"github.com/iglesia-ietq/asistencia-api/internal/domain"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/attendancerepo"
)

func day(d int) time.Time {
	return time.Date(2025, 6, d, 12, 0, 0, 0, time.UTC)
}

func row(id, rut, name string, date time.Time) attendancerepo.Attendance {
	return attendancerepo.Attendance{
		ID:           id,
		Rut:          domain.Rut(rut),
		Name:         name,
		ServiceDate:  date,
		ServiceDay:   "domingo",
		RegisteredAt: date,
		Attended:     true,
		CreatedAt:    date,
	}
}

func TestUpsert_ReplacesOnRutAndDate(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()

	first := row("a1", "1-9", "Ana", day(1))
	if err := r.Upsert(ctx, []attendancerepo.Attendance{first}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second := row("a2", "1-9", "Ana", day(1))
	second.RegisteredAt = day(1).Add(2 * time.Hour)
	if err := r.Upsert(ctx, []attendancerepo.Attendance{second}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := r.ListAll(ctx)
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
	got := rows[0]
	if got.ID != "a1" || !got.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("replacement must keep the original id and created_at, got %+v", got)
	}
	if !got.RegisteredAt.Equal(second.RegisteredAt) {
		t.Fatalf("registeredAt=%v want the later write", got.RegisteredAt)
	}
}

func TestListAll_SortsByDateDescThenName(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	err := r.Upsert(ctx, []attendancerepo.Attendance{
		row("a1", "1-9", "carla", day(1)),
		row("a2", "2-7", "Ana", day(1)),
		row("a3", "3-5", "Bruno", day(8)),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := r.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	want := []string{"Bruno", "Ana", "carla"}
	for i, name := range want {
		if rows[i].Name != name {
			t.Fatalf("rows[%d]=%s want %s", i, rows[i].Name, name)
		}
	}
}

func TestListSince(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	err := r.Upsert(ctx, []attendancerepo.Attendance{
		row("a1", "1-9", "Ana", day(1)),
		row("a2", "1-9", "Ana", day(8)),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := r.ListSince(ctx, day(5))
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
	if !rows[0].ServiceDate.Equal(day(8)) {
		t.Fatalf("date=%v", rows[0].ServiceDate)
	}
}

func TestListByRutAndName(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	err := r.Upsert(ctx, []attendancerepo.Attendance{
		row("a1", "1-9", "Ana Pérez", day(1)),
		row("a2", "1-9", "Ana Pérez", day(4)),
		row("a3", "2-7", "Bruno Díaz", day(1)),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	byRut, err := r.ListByRut(ctx, "1-9", 10)
	if err != nil || len(byRut) != 2 {
		t.Fatalf("byRut=%v err=%v", byRut, err)
	}
	if !byRut[0].ServiceDate.Equal(day(4)) {
		t.Fatalf("newest first, got %v", byRut[0].ServiceDate)
	}

	limited, err := r.ListByRut(ctx, "1-9", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limited=%v err=%v", limited, err)
	}

	byName, err := r.ListByName(ctx, "pérez", 10)
	if err != nil || len(byName) != 2 {
		t.Fatalf("substring match must be case-insensitive, got %v err=%v", byName, err)
	}

	none, err := r.ListByName(ctx, "nadie", 10)
	if err != nil || len(none) != 0 {
		t.Fatalf("none=%v err=%v", none, err)
	}
}
