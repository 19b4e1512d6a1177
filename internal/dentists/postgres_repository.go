package dentists

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores dentists and their calendar connection.
type PostgresRepository struct {
	db querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("dentists: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

const dentistColumns = `id, clinic_id, first_name, last_name, email, COALESCE(specialty, ''), COALESCE(phone, ''), created_at,
	calendar_connected, COALESCE(calendar_access_token, ''), COALESCE(calendar_refresh_token, ''), calendar_token_expiry, COALESCE(calendar_email, '')`

func (r *PostgresRepository) Create(ctx context.Context, req *CreateRequest) (*Dentist, error) {
	d := newDentist(req)
	query := `
		INSERT INTO dentists (id, clinic_id, first_name, last_name, email, specialty, phone)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		d.ID, d.ClinicID, d.FirstName, d.LastName, d.Email, d.Specialty, d.Phone,
	).Scan(&createdAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("dentists: insert failed: %w", err)
	}
	d.CreatedAt = createdAt
	return d, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	d, err := scanDentist(r.db.QueryRow(ctx, `SELECT `+dentistColumns+` FROM dentists WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dentists: select failed: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Dentist, error) {
	return r.list(ctx, `SELECT `+dentistColumns+` FROM dentists WHERE clinic_id = $1 ORDER BY last_name, first_name`, clinicID)
}

func (r *PostgresRepository) ListCalendarConnected(ctx context.Context) ([]*Dentist, error) {
	return r.list(ctx, `SELECT `+dentistColumns+` FROM dentists
		WHERE calendar_connected AND calendar_refresh_token IS NOT NULL ORDER BY last_name, first_name`)
}

func (r *PostgresRepository) Update(ctx context.Context, d *Dentist) error {
	query := `
		UPDATE dentists
		SET first_name = $2, last_name = $3, email = $4, specialty = NULLIF($5, ''), phone = NULLIF($6, '')
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, d.ID, d.FirstName, d.LastName, d.Email, d.Specialty, d.Phone)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("dentists: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SaveCalendarConnection(ctx context.Context, id uuid.UUID, conn CalendarConnection) error {
	query := `
		UPDATE dentists
		SET calendar_connected = $2,
			calendar_access_token = NULLIF($3, ''),
			calendar_refresh_token = NULLIF($4, ''),
			calendar_token_expiry = $5,
			calendar_email = NULLIF($6, '')
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, conn.Connected, conn.AccessToken, conn.RefreshToken, conn.TokenExpiry, conn.AccountEmail)
	if err != nil {
		return fmt.Errorf("dentists: save calendar connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Dentist, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dentists: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Dentist
	for rows.Next() {
		d, err := scanDentist(rows)
		if err != nil {
			return nil, fmt.Errorf("dentists: scan failed: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dentists: list failed: %w", err)
	}
	return out, nil
}

func scanDentist(row pgx.Row) (*Dentist, error) {
	var d Dentist
	if err := row.Scan(
		&d.ID,
		&d.ClinicID,
		&d.FirstName,
		&d.LastName,
		&d.Email,
		&d.Specialty,
		&d.Phone,
		&d.CreatedAt,
		&d.Calendar.Connected,
		&d.Calendar.AccessToken,
		&d.Calendar.RefreshToken,
		&d.Calendar.TokenExpiry,
		&d.Calendar.AccountEmail,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
