package attendancerepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/iglesia-ietq/asistencia-api/internal/adapters/postgres"
	"github.com/iglesia-ietq/asistencia-api/internal/domain"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/attendancerepo"
)

// Repo is a Postgres implementation of attendancerepo.Repository.
// The asistencias table has a unique constraint on (rut, fecha_culto);
// Upsert relies on it for last-write-wins semantics.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Upsert(ctx context.Context, rows []attendancerepo.Attendance) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	if len(rows) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, row := range rows {
			id := row.ID
			if id == "" {
				id = uuid.NewString()
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO asistencias (
					external_id,
					rut,
					nombre,
					fecha_culto,
					dia_semana_culto,
					fecha_registro,
					asistio,
					frecuencia_declarada,
					tipo_registro,
					ip_registro,
					user_agent,
					created_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
				ON CONFLICT (rut, fecha_culto)
				DO UPDATE SET
					nombre = EXCLUDED.nombre,
					dia_semana_culto = EXCLUDED.dia_semana_culto,
					fecha_registro = EXCLUDED.fecha_registro,
					asistio = EXCLUDED.asistio,
					frecuencia_declarada = EXCLUDED.frecuencia_declarada,
					tipo_registro = EXCLUDED.tipo_registro,
					ip_registro = EXCLUDED.ip_registro,
					user_agent = EXCLUDED.user_agent
			`,
				id,
				string(row.Rut),
				row.Name,
				row.ServiceDate.Format("2006-01-02"),
				string(row.ServiceDay),
				row.RegisteredAt.UTC(),
				row.Attended,
				row.DeclaredFrequency,
				row.RegistrationType,
				row.IP,
				row.UserAgent,
				row.CreatedAt.UTC(),
			)
			if err != nil {
				if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
					// A violation other than (rut, fecha_culto) means
					// concurrent writers raced on the row id.
					return attendancerepo.ErrConflict
				}
				return err
			}
		}
		return nil
	})
}

func (r *Repo) ListAll(ctx context.Context) ([]attendancerepo.Attendance, error) {
	return r.list(ctx, ``, nil, 0)
}

func (r *Repo) ListSince(ctx context.Context, since time.Time) ([]attendancerepo.Attendance, error) {
	return r.list(ctx, `WHERE fecha_culto >= $1`, []any{since.Format("2006-01-02")}, 0)
}

func (r *Repo) ListByRut(ctx context.Context, rut domain.Rut, limit int) ([]attendancerepo.Attendance, error) {
	return r.list(ctx, `WHERE rut = $1`, []any{string(rut)}, limit)
}

func (r *Repo) ListByName(ctx context.Context, name string, limit int) ([]attendancerepo.Attendance, error) {
	return r.list(ctx, `WHERE nombre ILIKE $1`, []any{"%" + name + "%"}, limit)
}

func (r *Repo) list(ctx context.Context, where string, args []any, limit int) ([]attendancerepo.Attendance, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	q := `
		SELECT
			external_id,
			rut,
			nombre,
			fecha_culto,
			dia_semana_culto,
			fecha_registro,
			asistio,
			frecuencia_declarada,
			tipo_registro,
			ip_registro,
			user_agent,
			created_at
		FROM asistencias
		` + where + `
		ORDER BY fecha_culto DESC, lower(nombre) ASC
	`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d ", limit)
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]attendancerepo.Attendance, 0)
	for rows.Next() {
		var (
			a   attendancerepo.Attendance
			rut string
			day string
		)
		err := rows.Scan(
			&a.ID,
			&rut,
			&a.Name,
			&a.ServiceDate,
			&day,
			&a.RegisteredAt,
			&a.Attended,
			&a.DeclaredFrequency,
			&a.RegistrationType,
			&a.IP,
			&a.UserAgent,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		a.Rut = domain.Rut(rut)
		a.ServiceDay = domain.ServiceDay(day)
		a.RegisteredAt = a.RegisteredAt.UTC()
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
