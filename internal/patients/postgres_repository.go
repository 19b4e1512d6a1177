package patients

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

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

const patientColumns = `id, clinic_id, first_name, last_name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(notes, ''), created_at`

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateRequest) (*Patient, error) {
	p, err := newPatient(req)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO patients (id, clinic_id, first_name, last_name, email, phone, notes)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		p.ID,
		p.ClinicID,
		p.FirstName,
		p.LastName,
		p.Email,
		p.Phone,
		p.Notes,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("patients: insert failed: %w", err)
	}
	p.CreatedAt = createdAt
	return p, nil
}

// GetByID fetches a single patient.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Patient, error) {
	rows, err := r.db.Query(ctx, `SELECT `+patientColumns+` FROM patients WHERE clinic_id = $1 ORDER BY last_name, first_name`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("patients: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: scan failed: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patients: list failed: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *Patient) error {
	query := `
		UPDATE patients
		SET first_name = $2, last_name = $3, email = NULLIF($4, ''), phone = NULLIF($5, ''), notes = NULLIF($6, '')
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.Notes)
	if err != nil {
		return fmt.Errorf("patients: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.Phone,
		&p.Notes,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
