package patients

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a patient does not exist.
	ErrNotFound = errors.New("patients: not found")

	// ErrMissingClinic is returned when a patient is created without a clinic.
	ErrMissingClinic = errors.New("patients: clinic id required")
)

// Patient is a person booked into appointments at one clinic.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	ClinicID  uuid.UUID `json:"clinicaId"`
	FirstName string    `json:"nombre"`
	LastName  string    `json:"apellido"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"telefono,omitempty"`
	Notes     string    `json:"notas,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FullName joins first and last name for display.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// CreateRequest represents the request body for creating a patient
type CreateRequest struct {
	ClinicID  uuid.UUID `json:"clinicaId" validate:"required"`
	FirstName string    `json:"nombre" validate:"required,max=100"`
	LastName  string    `json:"apellido" validate:"required,max=100"`
	Email     string    `json:"email" validate:"omitempty,email"`
	Phone     string    `json:"telefono" validate:"omitempty,max=30"`
	Notes     string    `json:"notas" validate:"omitempty,max=2000"`
}

// UpdateRequest replaces the editable fields of a patient.
type UpdateRequest struct {
	FirstName string `json:"nombre" validate:"required,max=100"`
	LastName  string `json:"apellido" validate:"required,max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"telefono" validate:"omitempty,max=30"`
	Notes     string `json:"notas" validate:"omitempty,max=2000"`
}

// Apply copies the request fields onto p.
func (r *UpdateRequest) Apply(p *Patient) {
	p.FirstName = strings.TrimSpace(r.FirstName)
	p.LastName = strings.TrimSpace(r.LastName)
	p.Email = strings.TrimSpace(r.Email)
	p.Phone = strings.TrimSpace(r.Phone)
	p.Notes = r.Notes
}

func newPatient(req *CreateRequest) (*Patient, error) {
	if req.ClinicID == uuid.Nil {
		return nil, ErrMissingClinic
	}
	return &Patient{
		ID:        uuid.New(),
		ClinicID:  req.ClinicID,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Notes:     req.Notes,
		CreatedAt: time.Now().UTC(),
	}, nil
}
