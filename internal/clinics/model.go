package clinics

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("clinics: not found")
	ErrSlugTaken = errors.New("clinics: slug already in use")
)

// Clinic is the tenant root; dentists, patients and appointments belong to one clinic.
type Clinic struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"nombre"`
	Slug        string    `json:"slug"`
	LogoURL     string    `json:"logoUrl,omitempty"`
	Phone       string    `json:"telefono,omitempty"`
	Address     string    `json:"direccion,omitempty"`
	Description string    `json:"descripcion,omitempty"`
	Specialties []string  `json:"especialidades"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DentistSummary is the public card of a dentist on the clinic page.
type DentistSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"nombre"`
	LastName  string    `json:"apellido"`
	Specialty string    `json:"especialidad,omitempty"`
}

// Profile is the landing-page view of a clinic.
type Profile struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"nombre"`
	Slug        string           `json:"slug"`
	LogoURL     string           `json:"logoUrl,omitempty"`
	Phone       string           `json:"telefono,omitempty"`
	Address     string           `json:"direccion,omitempty"`
	Description string           `json:"descripcion,omitempty"`
	Specialties []string         `json:"especialidades"`
	Dentists    []DentistSummary `json:"dentistas"`
}

// NormalizeSlug lower-cases and trims a public routing key.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
