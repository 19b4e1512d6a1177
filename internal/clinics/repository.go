package clinics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository stores clinics.
type Repository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetBySlug(ctx context.Context, slug string) (*Clinic, error)
	Count(ctx context.Context) (int, error)
}

type InMemoryRepository struct {
	mu      sync.RWMutex
	clinics map[uuid.UUID]*Clinic
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{clinics: make(map[uuid.UUID]*Clinic)}
}

func (r *InMemoryRepository) Create(ctx context.Context, c *Clinic) error {
	prepare(c)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.clinics {
		if existing.Slug == c.Slug {
			return ErrSlugTaken
		}
	}
	cp := *c
	r.clinics[c.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clinics[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryRepository) GetBySlug(ctx context.Context, slug string) (*Clinic, error) {
	slug = NormalizeSlug(slug)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clinics {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clinics), nil
}

func prepare(c *Clinic) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Specialties == nil {
		c.Specialties = []string{}
	}
	c.Slug = NormalizeSlug(c.Slug)
}
