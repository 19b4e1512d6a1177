package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/dentists"
	"github.com/Hervar88/DentiFlow/internal/messaging"
	"github.com/Hervar88/DentiFlow/internal/patients"
)

type reminderFixture struct {
	appts   *appointments.Service
	wa      *fakeWhatsApp
	worker  *ReminderWorker
	dentist *dentists.Dentist
	start   time.Time
}

func newReminderFixture(t *testing.T) *reminderFixture {
	t.Helper()
	dentistRepo := dentists.NewInMemoryRepository()
	d, err := dentistRepo.Create(context.Background(), &dentists.CreateRequest{
		ClinicID: uuid.New(), FirstName: "Carlos", LastName: "Mendoza", Email: "carlos@sonrisa.mx",
	})
	require.NoError(t, err)

	appts := appointments.NewService(appointments.NewMemoryStore(), dentistRepo, patients.NewInMemoryRepository())
	wa := &fakeWhatsApp{configured: true}
	worker := NewReminderWorker(appts, NewNotifier(wa, nil, testConfig(), nil), nil).WithLeadTime(24 * time.Hour)

	start := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	worker.now = func() time.Time { return start.Add(-3 * time.Hour) }
	return &reminderFixture{appts: appts, wa: wa, worker: worker, dentist: d, start: start}
}

func (f *reminderFixture) book(t *testing.T, at time.Time) *appointments.View {
	t.Helper()
	view, err := f.appts.Book(context.Background(), &appointments.BookRequest{
		ClinicID:         f.dentist.ClinicID,
		DentistID:        f.dentist.ID,
		PatientFirstName: "María",
		PatientLastName:  "López",
		PatientPhone:     "5512345678",
		StartsAt:         at,
		DurationMinutes:  30,
	})
	require.NoError(t, err)
	return view
}

func TestReminderWorkerSendsOnce(t *testing.T) {
	f := newReminderFixture(t)
	f.book(t, f.start)
	f.book(t, f.start.Add(48*time.Hour))

	assert.Equal(t, 1, f.worker.RunOnce(context.Background()))
	require.Len(t, f.wa.sent, 1)
	assert.Contains(t, f.wa.sent[0], "Recordatorio de cita")

	assert.Equal(t, 0, f.worker.RunOnce(context.Background()))
	assert.Len(t, f.wa.sent, 1)
}

func TestReminderWorkerSkipsCancelled(t *testing.T) {
	f := newReminderFixture(t)
	view := f.book(t, f.start)
	_, err := f.appts.Cancel(context.Background(), view.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, f.worker.RunOnce(context.Background()))
	assert.Empty(t, f.wa.sent)
}

func TestReminderWorkerRetriesFailedSendsNextRun(t *testing.T) {
	f := newReminderFixture(t)
	f.book(t, f.start)
	f.wa.failures = []error{fmt.Errorf("%w: blocked", messaging.ErrPermanent)}

	assert.Equal(t, 0, f.worker.RunOnce(context.Background()))
	assert.Equal(t, 1, f.worker.RunOnce(context.Background()))
	assert.Len(t, f.wa.sent, 1)
}

func TestNewReminderWorkerRequiresDeps(t *testing.T) {
	assert.Panics(t, func() { NewReminderWorker(nil, NewNotifier(nil, nil, Config{}, nil), nil) })
}
