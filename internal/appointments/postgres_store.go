package appointments

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

// SQLSTATE exclusion_violation, raised by appointments_no_overlap.
const exclusionViolation = "23P01"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists appointments. The table carries an ends_at column so
// the gist exclusion constraint can index tstzrange(starts_at, ends_at).
type PostgresStore struct {
	db querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(q querier) *PostgresStore {
	return &PostgresStore{db: q}
}

const appointmentColumns = `id, clinic_id, dentist_id, patient_id, starts_at, duration_minutes, COALESCE(reason, ''), status,
	COALESCE(payment_ref, ''), COALESCE(calendar_event_id, ''), reminder_sent_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, clinic_id, dentist_id, patient_id, starts_at, ends_at, duration_minutes, reason,
			status, payment_ref, calendar_event_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NULLIF($10, ''), NULLIF($11, ''), $12)
	`
	_, err := s.db.Exec(ctx, query,
		appt.ID,
		appt.ClinicID,
		appt.DentistID,
		appt.PatientID,
		appt.StartsAt,
		appt.EndsAt(),
		appt.DurationMinutes,
		appt.Reason,
		string(appt.Status),
		appt.PaymentRef,
		appt.CalendarEventID,
		appt.CreatedAt,
	)
	if err != nil {
		return mapWriteError("insert", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	return s.exec(ctx, "set status", ErrNotFound,
		`UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
}

func (s *PostgresStore) MarkCancelled(ctx context.Context, id uuid.UUID) (string, error) {
	query := `
		UPDATE appointments AS a
		SET status = 'Cancelada', calendar_event_id = NULL, updated_at = now()
		FROM (SELECT id, calendar_event_id FROM appointments WHERE id = $1 FOR UPDATE) AS prev
		WHERE a.id = prev.id
		RETURNING COALESCE(prev.calendar_event_id, '')
	`
	var previous string
	if err := s.db.QueryRow(ctx, query, id).Scan(&previous); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("appointments: cancel failed: %w", err)
	}
	return previous, nil
}

func (s *PostgresStore) SetSchedule(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) error {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return s.exec(ctx, "set schedule", ErrInactive, `
		UPDATE appointments
		SET starts_at = $2, ends_at = $3, duration_minutes = $4, reminder_sent_at = NULL, updated_at = now()
		WHERE id = $1 AND status <> 'Cancelada'
	`, id, start, end, durationMinutes)
}

func (s *PostgresStore) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	return s.exec(ctx, "set calendar event", ErrInactive, `
		UPDATE appointments SET calendar_event_id = NULLIF($2, ''), updated_at = now()
		WHERE id = $1 AND status <> 'Cancelada'
	`, id, eventID)
}

func (s *PostgresStore) SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	return s.exec(ctx, "set payment ref", ErrNotFound,
		`UPDATE appointments SET payment_ref = NULLIF($2, ''), updated_at = now() WHERE id = $1`, id, ref)
}

func (s *PostgresStore) SetReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.exec(ctx, "set reminder", ErrNotFound,
		`UPDATE appointments SET reminder_sent_at = $2, updated_at = now() WHERE id = $1`, id, at)
}

// exec runs a single-row update and reports noRows when nothing matched.
func (s *PostgresStore) exec(ctx context.Context, op string, noRows error, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return noRows
	}
	return nil
}

func (s *PostgresStore) ListByClinic(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return s.list(ctx, `SELECT `+appointmentColumns+` FROM appointments
		WHERE clinic_id = $1 AND starts_at >= $2 AND starts_at <= $3
		ORDER BY starts_at`, clinicID, from, to)
}

func (s *PostgresStore) FindOverlapping(ctx context.Context, dentistID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]*Appointment, error) {
	return s.list(ctx, `SELECT `+appointmentColumns+` FROM appointments
		WHERE dentist_id = $1 AND status <> 'Cancelada' AND starts_at < $3 AND ends_at > $2 AND id <> $4
		ORDER BY starts_at`, dentistID, start, end, exclude)
}

func (s *PostgresStore) GetByCalendarEventID(ctx context.Context, eventID string) (*Appointment, error) {
	if eventID == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE calendar_event_id = $1 LIMIT 1`, eventID)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select by event failed: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) ListReminderDue(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return s.list(ctx, `SELECT `+appointmentColumns+` FROM appointments
		WHERE reminder_sent_at IS NULL AND status IN ('Pendiente', 'Confirmada', 'Pagada')
			AND starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at`, from, to)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Appointment, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: query failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows failed: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt   Appointment
		status string
	)
	err := row.Scan(
		&appt.ID,
		&appt.ClinicID,
		&appt.DentistID,
		&appt.PatientID,
		&appt.StartsAt,
		&appt.DurationMinutes,
		&appt.Reason,
		&status,
		&appt.PaymentRef,
		&appt.CalendarEventID,
		&appt.ReminderSentAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	appt.Status = Status(status)
	appt.StartsAt = appt.StartsAt.UTC()
	return &appt, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return ErrConflict
	}
	return fmt.Errorf("appointments: %s failed: %w", op, err)
}
