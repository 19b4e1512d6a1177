package appointments

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/internal/dentists"
	"github.com/Hervar88/DentiFlow/internal/patients"
)

// DentistReader resolves dentists for booking and display.
type DentistReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*dentists.Dentist, error)
}

// PatientWriter creates and resolves patients.
type PatientWriter interface {
	Create(ctx context.Context, req *patients.CreateRequest) (*patients.Patient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
}

// CalendarSync pushes appointments to the dentist's external calendar.
// SyncAppointment returns the event id, or "" when the dentist has no calendar.
type CalendarSync interface {
	SyncAppointment(ctx context.Context, appt *Appointment) (string, error)
	DeleteAppointmentEvent(ctx context.Context, appt *Appointment) error
}

// Notifier tells the patient about appointment changes.
type Notifier interface {
	BookingConfirmed(ctx context.Context, appt *Appointment) error
	StatusChanged(ctx context.Context, appt *Appointment) error
	Cancelled(ctx context.Context, appt *Appointment) error
}

// Locker serializes critical sections per key. Lock blocks until the lock is
// held or ctx is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type noopCalendar struct{}

func (noopCalendar) SyncAppointment(context.Context, *Appointment) (string, error) { return "", nil }
func (noopCalendar) DeleteAppointmentEvent(context.Context, *Appointment) error    { return nil }

type noopNotifier struct{}

func (noopNotifier) BookingConfirmed(context.Context, *Appointment) error { return nil }
func (noopNotifier) StatusChanged(context.Context, *Appointment) error    { return nil }
func (noopNotifier) Cancelled(context.Context, *Appointment) error        { return nil }
