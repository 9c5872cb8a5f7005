package memberrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/iglesia-ietq/asistencia-api/internal/adapters/postgres"
	"github.com/iglesia-ietq/asistencia-api/internal/domain"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/memberrepo"
)

// Repo is a Postgres implementation of memberrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, m memberrepo.Member) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(m.ID))
	if err != nil {
		return fmt.Errorf("invalid member id: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO miembros (
				external_id,
				nombre,
				rut,
				frecuencia_declarada,
				tipo_registro,
				notas,
				activo,
				created_at,
				updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			id,
			m.Name,
			string(m.Rut),
			m.DeclaredFrequency,
			m.RegistrationType,
			m.Notes,
			m.IsActive,
			m.CreatedAt.UTC(),
			m.UpdatedAt.UTC(),
		)
		if err != nil {
			if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
				switch pe.ConstraintName {
				case "miembros_rut_unique":
					return memberrepo.ErrRutAlreadyRegistered
				case "miembros_external_id_unique":
					return memberrepo.ErrAlreadyExists
				default:
					return err
				}
			}
			return err
		}
		return nil
	})
}

func (r *Repo) Update(ctx context.Context, m memberrepo.Member) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(m.ID))
	if err != nil {
		return fmt.Errorf("invalid member id: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var existingRut string
		row := tx.QueryRow(ctx, `SELECT rut FROM miembros WHERE external_id = $1`, id)
		if err := row.Scan(&existingRut); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return memberrepo.ErrNotFound
			}
			return err
		}
		// The rut binding is immutable once set.
		if existingRut != string(m.Rut) {
			return memberrepo.ErrRutAlreadyRegistered
		}

		ct, err := tx.Exec(ctx, `
			UPDATE miembros
			SET nombre = $2,
			    frecuencia_declarada = $3,
			    tipo_registro = $4,
			    notas = $5,
			    activo = $6,
			    updated_at = $7
			WHERE external_id = $1
		`,
			id,
			m.Name,
			m.DeclaredFrequency,
			m.RegistrationType,
			m.Notes,
			m.IsActive,
			m.UpdatedAt.UTC(),
		)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return memberrepo.ErrNotFound
		}
		return nil
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (memberrepo.Member, error) {
	if r.pool == nil {
		return memberrepo.Member{}, errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, selectMember+` WHERE external_id = $1`, uid)
	return scanMember(row)
}

func (r *Repo) GetByRut(ctx context.Context, rut domain.Rut) (memberrepo.Member, error) {
	if r.pool == nil {
		return memberrepo.Member{}, errors.New("nil postgres pool")
	}
	row := r.pool.QueryRow(ctx, selectMember+` WHERE rut = $1`, string(rut))
	return scanMember(row)
}

func (r *Repo) ListActive(ctx context.Context) ([]memberrepo.Member, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, selectMember+`
		WHERE activo = true
		ORDER BY lower(nombre) ASC, external_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]memberrepo.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const selectMember = `
	SELECT
		external_id,
		nombre,
		rut,
		frecuencia_declarada,
		tipo_registro,
		notas,
		activo,
		created_at,
		updated_at
	FROM miembros
`

func scanMember(row pgx.Row) (memberrepo.Member, error) {
	var (
		id  uuid.UUID
		m   memberrepo.Member
		rut string
	)
	err := row.Scan(
		&id,
		&m.Name,
		&rut,
		&m.DeclaredFrequency,
		&m.RegistrationType,
		&m.Notes,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return memberrepo.Member{}, memberrepo.ErrNotFound
		}
		return memberrepo.Member{}, err
	}
	m.ID = domain.MemberID(id.String())
	m.Rut = domain.Rut(rut)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}
