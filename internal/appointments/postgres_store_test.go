package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentRowColumns = []string{
	"id", "clinic_id", "dentist_id", "patient_id", "starts_at", "duration_minutes", "reason", "status",
	"payment_ref", "calendar_event_id", "reminder_sent_at", "created_at",
}

func TestPostgresCreateMapsExclusionViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	appt := &Appointment{
		ID: uuid.New(), ClinicID: uuid.New(), DentistID: uuid.New(), PatientID: uuid.New(),
		StartsAt: at(10, 0), DurationMinutes: 30, Status: StatusPending, CreatedAt: time.Now(),
	}
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(appt.ID, appt.ClinicID, appt.DentistID, appt.PatientID, appt.StartsAt, at(10, 30), 30, "", "Pendiente", "", "", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})

	err = store.Create(context.Background(), appt)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindOverlapping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	dentistID := uuid.New()
	existing := uuid.New()
	rows := pgxmock.NewRows(appointmentRowColumns).
		AddRow(existing, uuid.New(), dentistID, uuid.New(), at(10, 0), 30, "", "Confirmada", "pref_1", "evt", (*time.Time)(nil), time.Now())
	mock.ExpectQuery("status <> 'Cancelada'").
		WithArgs(dentistID, at(10, 15), at(10, 45), uuid.Nil).
		WillReturnRows(rows)

	checker := NewConflictChecker(store)
	conflict, err := checker.HasConflict(context.Background(), dentistID, at(10, 15), 30, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, conflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	id := uuid.New()
	mock.ExpectQuery("FROM appointments WHERE id").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err = store.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetScansRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	id := uuid.New()
	sent := at(8, 0)
	rows := pgxmock.NewRows(appointmentRowColumns).
		AddRow(id, uuid.New(), uuid.New(), uuid.New(), at(10, 0), 45, "Endodoncia", "Pagada", "777", "", &sent, time.Now())
	mock.ExpectQuery("FROM appointments WHERE id").WithArgs(id).WillReturnRows(rows)

	appt, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, appt.Status)
	assert.Equal(t, 45, appt.DurationMinutes)
	assert.Equal(t, "777", appt.PaymentRef)
	require.NotNil(t, appt.ReminderSentAt)
	assert.False(t, appt.CanPay())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetStatusMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	id := uuid.New()
	mock.ExpectExec("UPDATE appointments SET status").WithArgs(id, "Confirmada").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.SetStatus(context.Background(), id, StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetCalendarEventIDSkipsCancelled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	id := uuid.New()
	mock.ExpectExec("status <> 'Cancelada'").WithArgs(id, "evt-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.SetCalendarEventID(context.Background(), id, "evt-1")
	assert.ErrorIs(t, err, ErrInactive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkCancelledReturnsLinkedEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	id := uuid.New()
	mock.ExpectQuery("SET status = 'Cancelada', calendar_event_id = NULL").WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"calendar_event_id"}).AddRow("evt-9"))
	mock.ExpectQuery("SET status = 'Cancelada', calendar_event_id = NULL").WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	previous, err := store.MarkCancelled(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "evt-9", previous)

	_, err = store.MarkCancelled(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetScheduleMapsExclusionViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	id := uuid.New()
	mock.ExpectExec("SET starts_at").WithArgs(id, at(10, 0), at(11, 0), 60).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})

	err = store.SetSchedule(context.Background(), id, at(10, 0), 60)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}
