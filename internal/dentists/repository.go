package dentists

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Repository defines dentist storage, including the calendar connection columns.
type Repository interface {
	Create(ctx context.Context, req *CreateRequest) (*Dentist, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Dentist, error)
	ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Dentist, error)
	ListCalendarConnected(ctx context.Context) ([]*Dentist, error)
	Update(ctx context.Context, d *Dentist) error
	SaveCalendarConnection(ctx context.Context, id uuid.UUID, conn CalendarConnection) error
}

// InMemoryRepository is a map-backed Repository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	dentists map[uuid.UUID]*Dentist
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{dentists: make(map[uuid.UUID]*Dentist)}
}

func (r *InMemoryRepository) Create(ctx context.Context, req *CreateRequest) (*Dentist, error) {
	d := newDentist(req)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTakenLocked(d.Email, d.ID) {
		return nil, ErrEmailTaken
	}
	r.dentists[d.ID] = d
	out := *d
	return &out, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dentists[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *d
	return &out, nil
}

func (r *InMemoryRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Dentist, error) {
	return r.filter(func(d *Dentist) bool { return d.ClinicID == clinicID }), nil
}

func (r *InMemoryRepository) ListCalendarConnected(ctx context.Context) ([]*Dentist, error) {
	return r.filter(func(d *Dentist) bool { return d.Calendar.CanSync() }), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, d *Dentist) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.dentists[d.ID]
	if !ok {
		return ErrNotFound
	}
	if r.emailTakenLocked(d.Email, d.ID) {
		return ErrEmailTaken
	}
	cp := *d
	cp.Calendar = existing.Calendar
	r.dentists[d.ID] = &cp
	return nil
}

func (r *InMemoryRepository) SaveCalendarConnection(ctx context.Context, id uuid.UUID, conn CalendarConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dentists[id]
	if !ok {
		return ErrNotFound
	}
	d.Calendar = conn
	return nil
}

func (r *InMemoryRepository) filter(keep func(*Dentist) bool) []*Dentist {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Dentist
	for _, d := range r.dentists {
		if keep(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out
}

func (r *InMemoryRepository) emailTakenLocked(email string, self uuid.UUID) bool {
	for id, d := range r.dentists {
		if id != self && d.Email == email {
			return true
		}
	}
	return false
}
