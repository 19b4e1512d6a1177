package clinics

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores clinics; specialties live in a text[] column.
type PostgresRepository struct {
	db querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("clinics: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

const clinicColumns = `id, name, slug, COALESCE(logo_url, ''), COALESCE(phone, ''), COALESCE(address, ''), COALESCE(description, ''), specialties, created_at`

func (r *PostgresRepository) Create(ctx context.Context, c *Clinic) error {
	prepare(c)
	query := `
		INSERT INTO clinics (id, name, slug, logo_url, phone, address, description, specialties, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9)
	`
	_, err := r.db.Exec(ctx, query, c.ID, c.Name, c.Slug, c.LogoURL, c.Phone, c.Address, c.Description, c.Specialties, c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlugTaken
		}
		return fmt.Errorf("clinics: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return r.getOne(ctx, `SELECT `+clinicColumns+` FROM clinics WHERE id = $1`, id)
}

func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*Clinic, error) {
	return r.getOne(ctx, `SELECT `+clinicColumns+` FROM clinics WHERE slug = $1`, NormalizeSlug(slug))
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM clinics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("clinics: count failed: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*Clinic, error) {
	var c Clinic
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&c.ID,
		&c.Name,
		&c.Slug,
		&c.LogoURL,
		&c.Phone,
		&c.Address,
		&c.Description,
		&c.Specialties,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("clinics: select failed: %w", err)
	}
	if c.Specialties == nil {
		c.Specialties = []string{}
	}
	return &c, nil
}
