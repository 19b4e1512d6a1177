package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists appointments. Implementations must return copies so callers
// can mutate results without touching stored state. Writes after Create touch
// only the columns they name, so concurrent changes to other fields survive.
type Store interface {
	Create(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	// MarkCancelled cancels the appointment, unlinks its calendar event and
	// returns the event id that was linked.
	MarkCancelled(ctx context.Context, id uuid.UUID) (string, error)
	// SetSchedule moves an active appointment and clears its reminder mark.
	// Returns ErrInactive when the appointment is cancelled.
	SetSchedule(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) error
	// SetCalendarEventID links an event to an active appointment. Returns
	// ErrInactive when the appointment is cancelled.
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error
	SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error
	SetReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
	ListByClinic(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	// FindOverlapping returns non-cancelled appointments of the dentist that
	// intersect [start, end), skipping exclude.
	FindOverlapping(ctx context.Context, dentistID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]*Appointment, error)
	GetByCalendarEventID(ctx context.Context, eventID string) (*Appointment, error)
	// ListReminderDue returns active appointments starting in [from, to) that
	// have not had a reminder yet.
	ListReminderDue(ctx context.Context, from, to time.Time) ([]*Appointment, error)
}

// MemoryStore keeps appointments in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]*Appointment)}
}

func (s *MemoryStore) Create(ctx context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.Status != StatusCancelled && s.overlapsLocked(appt.ID, appt.DentistID, appt.StartsAt, appt.EndsAt()) {
		return ErrConflict
	}
	s.items[appt.ID] = stripRelations(appt)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return appt.clone(), nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	return s.mutate(id, func(a *Appointment) error {
		if status != StatusCancelled && a.Status == StatusCancelled && s.overlapsLocked(a.ID, a.DentistID, a.StartsAt, a.EndsAt()) {
			return ErrConflict
		}
		a.Status = status
		return nil
	})
}

func (s *MemoryStore) MarkCancelled(ctx context.Context, id uuid.UUID) (string, error) {
	var previous string
	err := s.mutate(id, func(a *Appointment) error {
		previous = a.CalendarEventID
		a.Status = StatusCancelled
		a.CalendarEventID = ""
		return nil
	})
	return previous, err
}

func (s *MemoryStore) SetSchedule(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) error {
	return s.mutate(id, func(a *Appointment) error {
		if a.Status == StatusCancelled {
			return ErrInactive
		}
		end := start.Add(time.Duration(durationMinutes) * time.Minute)
		if s.overlapsLocked(a.ID, a.DentistID, start, end) {
			return ErrConflict
		}
		a.StartsAt = start
		a.DurationMinutes = durationMinutes
		a.ReminderSentAt = nil
		return nil
	})
}

func (s *MemoryStore) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	return s.mutate(id, func(a *Appointment) error {
		if a.Status == StatusCancelled {
			return ErrInactive
		}
		a.CalendarEventID = eventID
		return nil
	})
}

func (s *MemoryStore) SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	return s.mutate(id, func(a *Appointment) error {
		a.PaymentRef = ref
		return nil
	})
}

func (s *MemoryStore) SetReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.mutate(id, func(a *Appointment) error {
		at := at
		a.ReminderSentAt = &at
		return nil
	})
}

// mutate applies fn to a copy of the stored row and keeps it only when fn succeeds.
func (s *MemoryStore) mutate(id uuid.UUID, fn func(*Appointment) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	next := current.clone()
	if err := fn(next); err != nil {
		return err
	}
	s.items[id] = next
	return nil
}

func (s *MemoryStore) overlapsLocked(self, dentistID uuid.UUID, start, end time.Time) bool {
	for id, existing := range s.items {
		if id == self {
			continue
		}
		if existing.DentistID == dentistID && existing.Status != StatusCancelled && existing.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) ListByClinic(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool {
		return a.ClinicID == clinicID && !a.StartsAt.Before(from) && !a.StartsAt.After(to)
	}), nil
}

func (s *MemoryStore) FindOverlapping(ctx context.Context, dentistID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool {
		return a.DentistID == dentistID && a.ID != exclude && a.Status != StatusCancelled && a.Overlaps(start, end)
	}), nil
}

func (s *MemoryStore) GetByCalendarEventID(ctx context.Context, eventID string) (*Appointment, error) {
	if eventID == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.items {
		if a.CalendarEventID == eventID {
			return a.clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListReminderDue(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool {
		return a.ReminderSentAt == nil && remindable(a.Status) && !a.StartsAt.Before(from) && a.StartsAt.Before(to)
	}), nil
}

func (s *MemoryStore) filter(keep func(*Appointment) bool) []*Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Appointment, 0)
	for _, a := range s.items {
		if keep(a) {
			out = append(out, a.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}

func remindable(s Status) bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusPaid
}

func stripRelations(a *Appointment) *Appointment {
	cp := a.clone()
	cp.Dentist = nil
	cp.Patient = nil
	return cp
}
