package appointments

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/internal/dentists"
	"github.com/Hervar88/DentiFlow/internal/patients"
)

// DefaultDurationMinutes applies when a booking omits the duration.
const DefaultDurationMinutes = 30

// PreferencePrefix marks a payment reference that only points at a checkout
// preference; the patient has not paid yet.
const PreferencePrefix = "pref_"

var (
	ErrNotFound        = errors.New("appointments: not found")
	ErrDentistNotFound = errors.New("appointments: dentist not found")
	ErrConflict        = errors.New("appointments: dentist already booked in that slot")
	// ErrInactive is returned by guarded writes when the appointment is cancelled.
	ErrInactive        = errors.New("appointments: appointment cancelled")
)

// ValidationError carries a message meant for the API caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Appointment is a booked slot on one dentist's schedule.
type Appointment struct {
	ID              uuid.UUID
	ClinicID        uuid.UUID
	DentistID       uuid.UUID
	PatientID       uuid.UUID
	StartsAt        time.Time
	DurationMinutes int
	Reason          string
	Status          Status
	PaymentRef      string
	CalendarEventID string
	ReminderSentAt  *time.Time
	CreatedAt       time.Time

	// Loaded for display; never persisted through the appointment store.
	Dentist *dentists.Dentist
	Patient *patients.Patient
}

// EndsAt is the exclusive end of the slot.
func (a *Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps applies half-open interval semantics: back-to-back slots do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartsAt.Before(end) && a.EndsAt().After(start)
}

// HasConfirmedPayment reports whether PaymentRef is a real payment id.
func (a *Appointment) HasConfirmedPayment() bool {
	return a.PaymentRef != "" && !strings.HasPrefix(a.PaymentRef, PreferencePrefix)
}

// CanPay reports whether a deposit can still be initiated.
func (a *Appointment) CanPay() bool {
	if a.Status != StatusPending && a.Status != StatusConfirmed {
		return false
	}
	return !a.HasConfirmedPayment()
}

// PreferenceID strips the preference prefix, or returns "" when the reference is not a preference.
func (a *Appointment) PreferenceID() string {
	if !strings.HasPrefix(a.PaymentRef, PreferencePrefix) {
		return ""
	}
	return strings.TrimPrefix(a.PaymentRef, PreferencePrefix)
}

// DentistName is the display name used in views and messages.
func (a *Appointment) DentistName() string {
	if a.Dentist == nil {
		return ""
	}
	return a.Dentist.FullName()
}

// PatientName is the display name used in views and messages.
func (a *Appointment) PatientName() string {
	if a.Patient == nil {
		return ""
	}
	return a.Patient.FullName()
}

func (a *Appointment) clone() *Appointment {
	cp := *a
	if a.ReminderSentAt != nil {
		t := *a.ReminderSentAt
		cp.ReminderSentAt = &t
	}
	return &cp
}

// View is the denormalized appointment returned to API clients.
type View struct {
	ID              uuid.UUID `json:"id"`
	StartsAt        time.Time `json:"fechaHora"`
	DurationMinutes int       `json:"duracionMinutos"`
	Reason          *string   `json:"motivo"`
	Status          string    `json:"estado"`
	DentistName     string    `json:"nombreDentista"`
	PatientName     string    `json:"nombrePaciente"`
	PaymentRef      *string   `json:"mercadoPagoPaymentId"`
	CanPay          bool      `json:"canPay"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ToView denormalizes the appointment for clients.
func (a *Appointment) ToView() View {
	return View{
		ID:              a.ID,
		StartsAt:        a.StartsAt,
		DurationMinutes: a.DurationMinutes,
		Reason:          optional(a.Reason),
		Status:          string(a.Status),
		DentistName:     a.DentistName(),
		PatientName:     a.PatientName(),
		PaymentRef:      optional(a.PaymentRef),
		CanPay:          a.CanPay(),
		CreatedAt:       a.CreatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// BookRequest is the payload of POST /appointments/book.
type BookRequest struct {
	ClinicID         uuid.UUID `json:"clinicaId" validate:"required"`
	DentistID        uuid.UUID `json:"dentistaId" validate:"required"`
	PatientFirstName string    `json:"nombrePaciente" validate:"required,max=100"`
	PatientLastName  string    `json:"apellidoPaciente" validate:"required,max=100"`
	PatientEmail     string    `json:"emailPaciente" validate:"omitempty,email"`
	PatientPhone     string    `json:"telefonoPaciente" validate:"omitempty,max=30"`
	StartsAt         time.Time `json:"fechaHora" validate:"required"`
	DurationMinutes  int       `json:"duracionMinutos" validate:"gte=0,lte=480"`
	Reason           string    `json:"motivo" validate:"omitempty,max=500"`
}

// StatusRequest is the payload of PATCH /appointments/{id}/status.
type StatusRequest struct {
	Status string `json:"estado"`
}

// RescheduleRequest is the payload of PATCH /appointments/{id}/reschedule.
type RescheduleRequest struct {
	StartsAt        time.Time `json:"fechaHora" validate:"required"`
	DurationMinutes int       `json:"duracionMinutos" validate:"gte=0,lte=480"`
}

// CalendarChange is an external calendar event as seen by reconciliation.
type CalendarChange struct {
	// DentistID is the owner of the calendar the change was read from.
	DentistID uuid.UUID
	EventID   string
	StartsAt  time.Time
	EndsAt    time.Time
	Cancelled bool
}
