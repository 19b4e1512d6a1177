package clinics

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/internal/dentists"
)

type dentistLister interface {
	ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*dentists.Dentist, error)
}

// Service assembles public clinic profiles.
type Service struct {
	repo     Repository
	dentists dentistLister
}

func NewService(repo Repository, dentistRepo dentistLister) *Service {
	if repo == nil || dentistRepo == nil {
		panic("clinics: repository and dentist lister required")
	}
	return &Service{repo: repo, dentists: dentistRepo}
}

// Profile returns the clinic with its dentist roster.
func (s *Service) Profile(ctx context.Context, slug string) (*Profile, error) {
	c, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	roster, err := s.dentists.ListByClinic(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("clinics: list dentists: %w", err)
	}
	p := &Profile{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		LogoURL:     c.LogoURL,
		Phone:       c.Phone,
		Address:     c.Address,
		Description: c.Description,
		Specialties: c.Specialties,
		Dentists:    make([]DentistSummary, 0, len(roster)),
	}
	for _, d := range roster {
		p.Dentists = append(p.Dentists, DentistSummary{
			ID:        d.ID,
			FirstName: d.FirstName,
			LastName:  d.LastName,
			Specialty: d.Specialty,
		})
	}
	return p, nil
}

// Get is used by callers that already hold a clinic id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.repo.GetByID(ctx, id)
}
