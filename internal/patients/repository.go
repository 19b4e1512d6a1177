package patients

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Repository defines the interface for patient storage
type Repository interface {
	Create(ctx context.Context, req *CreateRequest) (*Patient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Patient, error)
	Update(ctx context.Context, p *Patient) error
}

// InMemoryRepository keeps patients in a map; used for local runs and tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		patients: make(map[uuid.UUID]*Patient),
	}
}

// Create stores a new patient. Booking always inserts, there is no dedup by contact.
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateRequest) (*Patient, error) {
	p, err := newPatient(req)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.patients[p.ID] = p
	r.mu.Unlock()

	out := *p
	return &out, nil
}

// GetByID retrieves a patient by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *InMemoryRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Patient
	for _, p := range r.patients {
		if p.ClinicID == clinicID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.patients[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}
