package dentists

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a dentist does not exist.
	ErrNotFound = errors.New("dentists: not found")

	// ErrEmailTaken is returned when another dentist already uses the email.
	ErrEmailTaken = errors.New("dentists: email already registered")
)

// Dentist is a practitioner who owns a schedule at one clinic.
type Dentist struct {
	ID        uuid.UUID          `json:"id"`
	ClinicID  uuid.UUID          `json:"clinicaId"`
	FirstName string             `json:"nombre"`
	LastName  string             `json:"apellido"`
	Email     string             `json:"email"`
	Specialty string             `json:"especialidad,omitempty"`
	Phone     string             `json:"telefono,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	Calendar  CalendarConnection `json:"-"`
}

// CalendarConnection is the Google Calendar OAuth state of a dentist.
// Only the calendar package writes it.
type CalendarConnection struct {
	Connected    bool
	AccessToken  string
	RefreshToken string
	TokenExpiry  *time.Time
	AccountEmail string
}

// CanSync reports whether events can be pushed to the dentist's calendar.
func (c CalendarConnection) CanSync() bool {
	return c.Connected && c.RefreshToken != ""
}

// FullName joins first and last name for display.
func (d *Dentist) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// View is the JSON shape returned by the dentist endpoints.
type View struct {
	ID                      uuid.UUID `json:"id"`
	ClinicID                uuid.UUID `json:"clinicaId"`
	FirstName               string    `json:"nombre"`
	LastName                string    `json:"apellido"`
	Email                   string    `json:"email"`
	Specialty               string    `json:"especialidad,omitempty"`
	Phone                   string    `json:"telefono,omitempty"`
	GoogleCalendarConnected bool      `json:"googleCalendarConnected"`
	GoogleCalendarEmail     string    `json:"googleCalendarEmail,omitempty"`
	CreatedAt               time.Time `json:"createdAt"`
}

// ToView drops the token material.
func (d *Dentist) ToView() View {
	return View{
		ID:                      d.ID,
		ClinicID:                d.ClinicID,
		FirstName:               d.FirstName,
		LastName:                d.LastName,
		Email:                   d.Email,
		Specialty:               d.Specialty,
		Phone:                   d.Phone,
		GoogleCalendarConnected: d.Calendar.Connected,
		GoogleCalendarEmail:     d.Calendar.AccountEmail,
		CreatedAt:               d.CreatedAt,
	}
}

type CreateRequest struct {
	ClinicID  uuid.UUID `json:"clinicaId" validate:"required"`
	FirstName string    `json:"nombre" validate:"required,max=100"`
	LastName  string    `json:"apellido" validate:"required,max=100"`
	Email     string    `json:"email" validate:"required,email"`
	Specialty string    `json:"especialidad" validate:"omitempty,max=100"`
	Phone     string    `json:"telefono" validate:"omitempty,max=30"`
}

type UpdateRequest struct {
	FirstName string `json:"nombre" validate:"required,max=100"`
	LastName  string `json:"apellido" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Specialty string `json:"especialidad" validate:"omitempty,max=100"`
	Phone     string `json:"telefono" validate:"omitempty,max=30"`
}

// Apply copies the editable fields onto d.
func (r *UpdateRequest) Apply(d *Dentist) {
	d.FirstName = strings.TrimSpace(r.FirstName)
	d.LastName = strings.TrimSpace(r.LastName)
	d.Email = normalizeEmail(r.Email)
	d.Specialty = strings.TrimSpace(r.Specialty)
	d.Phone = strings.TrimSpace(r.Phone)
}

func newDentist(req *CreateRequest) *Dentist {
	return &Dentist{
		ID:        uuid.New(),
		ClinicID:  req.ClinicID,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     normalizeEmail(req.Email),
		Specialty: strings.TrimSpace(req.Specialty),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: time.Now().UTC(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
