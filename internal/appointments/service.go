package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Hervar88/DentiFlow/internal/dentists"
	"github.com/Hervar88/DentiFlow/internal/observability/metrics"
	"github.com/Hervar88/DentiFlow/internal/patients"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

var appointmentsTracer = otel.Tracer("dentiflow.internal.appointments")

const defaultAdapterTimeout = 10 * time.Second

// Service books appointments and applies state changes, fanning each change
// out to the calendar and notification adapters on a best-effort basis.
type Service struct {
	store          Store
	checker        *ConflictChecker
	dentists       DentistReader
	patients       PatientWriter
	calendar       CalendarSync
	notifier       Notifier
	locker         Locker
	metrics        *metrics.SchedulingMetrics
	logger         *logging.Logger
	adapterTimeout time.Duration
	now            func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithCalendar(c CalendarSync) Option {
	return func(s *Service) {
		if c != nil {
			s.calendar = c
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAdapterTimeout bounds every best-effort adapter call.
func WithAdapterTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.adapterTimeout = d
		}
	}
}

// NewService constructs the booking orchestrator.
func NewService(store Store, dentistRepo DentistReader, patientRepo PatientWriter, opts ...Option) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if dentistRepo == nil || patientRepo == nil {
		panic("appointments: dentist and patient repositories required")
	}
	s := &Service{
		store:          store,
		checker:        NewConflictChecker(store),
		dentists:       dentistRepo,
		patients:       patientRepo,
		calendar:       noopCalendar{},
		notifier:       noopNotifier{},
		locker:         NewLocalLocker(),
		logger:         logging.Default(),
		adapterTimeout: defaultAdapterTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book creates a patient and a Pendiente appointment when the dentist's slot is free.
func (s *Service) Book(ctx context.Context, req *BookRequest) (*View, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("dentiflow.clinic_id", req.ClinicID.String()),
		attribute.String("dentiflow.dentist_id", req.DentistID.String()),
	)

	appt, err := s.book(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveBooking(bookingOutcome(err))
		return nil, err
	}
	s.metrics.ObserveBooking("booked")
	span.SetAttributes(attribute.String("dentiflow.appointment_id", appt.ID.String()))
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"clinic_id", appt.ClinicID,
		"dentist_id", appt.DentistID,
		"starts_at", appt.StartsAt,
	)

	if eventID := s.syncCalendar(ctx, appt); eventID != "" && eventID != appt.CalendarEventID {
		s.linkEvent(ctx, appt, eventID)
	}
	s.bestEffort(ctx, appt, "notify", "booking_confirmed", func(ctx context.Context) error {
		return s.notifier.BookingConfirmed(ctx, appt)
	})

	view := appt.ToView()
	return &view, nil
}

func (s *Service) book(ctx context.Context, req *BookRequest) (*Appointment, error) {
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = DefaultDurationMinutes
	}
	start := req.StartsAt.UTC()

	dentist, err := s.dentists.GetByID(ctx, req.DentistID)
	if err != nil {
		if errors.Is(err, dentists.ErrNotFound) {
			return nil, ErrDentistNotFound
		}
		return nil, fmt.Errorf("appointments: load dentist: %w", err)
	}
	if req.ClinicID != uuid.Nil && dentist.ClinicID != req.ClinicID {
		return nil, &ValidationError{Message: "El dentista no pertenece a la clínica indicada."}
	}

	var appt *Appointment
	err = s.withDentistLock(ctx, dentist.ID, func(ctx context.Context) error {
		conflict, err := s.checker.HasConflict(ctx, dentist.ID, start, req.DurationMinutes, uuid.Nil)
		if err != nil {
			return err
		}
		if conflict {
			return ErrConflict
		}

		patient, err := s.patients.Create(ctx, &patients.CreateRequest{
			ClinicID:  dentist.ClinicID,
			FirstName: req.PatientFirstName,
			LastName:  req.PatientLastName,
			Email:     req.PatientEmail,
			Phone:     req.PatientPhone,
		})
		if err != nil {
			return fmt.Errorf("appointments: create patient: %w", err)
		}

		appt = &Appointment{
			ID:              uuid.New(),
			ClinicID:        dentist.ClinicID,
			DentistID:       dentist.ID,
			PatientID:       patient.ID,
			StartsAt:        start,
			DurationMinutes: req.DurationMinutes,
			Reason:          req.Reason,
			Status:          StatusPending,
			CreatedAt:       s.now().UTC(),
		}
		if err := s.store.Create(ctx, appt); err != nil {
			if errors.Is(err, ErrConflict) {
				return ErrConflict
			}
			return fmt.Errorf("appointments: create: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.load(ctx, appt.ID)
}

// Get returns the denormalized appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := appt.ToView()
	return &view, nil
}

// Load returns the appointment with dentist and patient attached.
func (s *Service) Load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, id)
}

// List returns a clinic's appointments starting within [from, to], ordered by start.
func (s *Service) List(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]View, error) {
	items, err := s.store.ListByClinic(ctx, clinicID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(items))
	for _, appt := range items {
		if err := s.hydrate(ctx, appt); err != nil {
			return nil, err
		}
		views = append(views, appt.ToView())
	}
	return views, nil
}

// UpdateStatus sets the status unconditionally. Applying the same status twice is a no-op success.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*View, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("dentiflow.appointment_id", id.String()),
		attribute.String("dentiflow.status", string(status)),
	)

	if !status.Valid() {
		return nil, &ValidationError{Message: "Estado inválido. Valores: " + statusNames()}
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	previous := appt.Status
	if err := s.store.SetStatus(ctx, id, status); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: update status: %w", err)
	}
	appt.Status = status
	s.metrics.ObserveStatusChange(string(status))
	s.logger.Info("appointment status updated", "appointment_id", id, "from", previous, "to", status)

	s.fanOutStatus(ctx, appt)

	view := appt.ToView()
	return &view, nil
}

// Cancel frees the slot. The calendar event link is cleared even when the
// external delete fails.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*View, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("dentiflow.appointment_id", id.String()))

	appt, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	eventID, err := s.store.MarkCancelled(ctx, id)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("appointments: cancel: %w", err)
	}
	appt.Status = StatusCancelled
	if eventID != "" {
		appt.CalendarEventID = eventID
		s.bestEffort(ctx, appt, "calendar", "delete", func(ctx context.Context) error {
			return s.calendar.DeleteAppointmentEvent(ctx, appt)
		})
	}
	appt.CalendarEventID = ""
	s.metrics.ObserveStatusChange(string(StatusCancelled))
	s.logger.Info("appointment cancelled", "appointment_id", id)

	s.bestEffort(ctx, appt, "notify", "cancelled", func(ctx context.Context) error {
		return s.notifier.Cancelled(ctx, appt)
	})

	view := appt.ToView()
	return &view, nil
}

// Reschedule moves an appointment to a new slot, checking conflicts against
// every other appointment of the dentist.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) (*View, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("dentiflow.appointment_id", id.String()))

	appt, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, &ValidationError{Message: "No se puede reprogramar una cita cancelada."}
	}
	if durationMinutes <= 0 {
		durationMinutes = appt.DurationMinutes
	}
	start = start.UTC()

	err = s.withDentistLock(ctx, appt.DentistID, func(ctx context.Context) error {
		conflict, err := s.checker.HasConflict(ctx, appt.DentistID, start, durationMinutes, appt.ID)
		if err != nil {
			return err
		}
		if conflict {
			return ErrConflict
		}
		if err := s.store.SetSchedule(ctx, appt.ID, start, durationMinutes); err != nil {
			switch {
			case errors.Is(err, ErrConflict):
				return ErrConflict
			case errors.Is(err, ErrInactive):
				return &ValidationError{Message: "No se puede reprogramar una cita cancelada."}
			}
			return fmt.Errorf("appointments: reschedule: %w", err)
		}
		appt.StartsAt = start
		appt.DurationMinutes = durationMinutes
		appt.ReminderSentAt = nil
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment rescheduled", "appointment_id", id, "starts_at", start, "duration_minutes", durationMinutes)

	if eventID := s.syncCalendar(ctx, appt); eventID != "" && eventID != appt.CalendarEventID {
		s.linkEvent(ctx, appt, eventID)
	}

	view := appt.ToView()
	return &view, nil
}

// ApplyCalendarChanges reconciles events edited in the external calendar.
// The calendar is authoritative for time once an event is linked. Changes read
// from one dentist's calendar never touch another dentist's appointments.
// Returns the number of appointments changed.
func (s *Service) ApplyCalendarChanges(ctx context.Context, changes []CalendarChange) (int, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.apply_calendar_changes")
	defer span.End()
	span.SetAttributes(attribute.Int("dentiflow.changes", len(changes)))

	updated := 0
	for _, change := range changes {
		appt, err := s.store.GetByCalendarEventID(ctx, change.EventID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			span.RecordError(err)
			return updated, err
		}
		if change.DentistID != uuid.Nil && appt.DentistID != change.DentistID {
			s.logger.Warn("calendar change for another dentist ignored",
				"appointment_id", appt.ID,
				"event_id", change.EventID,
				"dentist_id", change.DentistID,
			)
			continue
		}

		applied, err := s.applyCalendarChange(ctx, appt, change)
		if err != nil {
			// A move that collides with another booking is skipped rather than
			// failing the whole batch.
			s.logger.Warn("calendar change not applied", "appointment_id", appt.ID, "event_id", change.EventID, "error", err)
			span.RecordError(err)
			continue
		}
		if !applied {
			continue
		}
		updated++
		s.logger.Info("appointment updated from calendar",
			"appointment_id", appt.ID,
			"event_id", change.EventID,
			"status", appt.Status,
			"starts_at", appt.StartsAt,
			"duration_minutes", appt.DurationMinutes,
		)
	}
	return updated, nil
}

func (s *Service) applyCalendarChange(ctx context.Context, appt *Appointment, change CalendarChange) (bool, error) {
	if change.Cancelled {
		if appt.Status == StatusCancelled {
			return false, nil
		}
		if _, err := s.store.MarkCancelled(ctx, appt.ID); err != nil {
			return false, err
		}
		appt.Status = StatusCancelled
		appt.CalendarEventID = ""
		return true, nil
	}
	if change.StartsAt.IsZero() {
		return false, nil
	}

	start := change.StartsAt.UTC()
	duration := appt.DurationMinutes
	if minutes := int(change.EndsAt.Sub(change.StartsAt) / time.Minute); minutes > 0 {
		duration = minutes
	}
	if start.Equal(appt.StartsAt) && duration == appt.DurationMinutes {
		return false, nil
	}
	if err := s.store.SetSchedule(ctx, appt.ID, start, duration); err != nil {
		return false, err
	}
	appt.StartsAt = start
	appt.DurationMinutes = duration
	return true, nil
}

// AttachPaymentRef stores a payment reference without changing the status.
func (s *Service) AttachPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	if err := s.store.SetPaymentRef(ctx, id, ref); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("appointments: attach payment: %w", err)
	}
	return nil
}

// RecordPayment stores a processor payment id. An approved payment also moves
// the appointment to Pagada and runs the status fan-out.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, paymentID string, approved bool) (*View, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.record_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("dentiflow.appointment_id", id.String()),
		attribute.Bool("dentiflow.payment_approved", approved),
	)

	appt, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.store.SetPaymentRef(ctx, id, paymentID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: record payment: %w", err)
	}
	appt.PaymentRef = paymentID
	changed := approved && appt.Status != StatusPaid
	if changed {
		if err := s.store.SetStatus(ctx, id, StatusPaid); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("appointments: record payment: %w", err)
		}
		appt.Status = StatusPaid
	}
	s.logger.Info("payment recorded", "appointment_id", id, "payment_id", paymentID, "approved", approved)

	if changed {
		s.metrics.ObserveStatusChange(string(StatusPaid))
		s.fanOutStatus(ctx, appt)
	}
	view := appt.ToView()
	return &view, nil
}

// DueReminders returns appointments starting within [from, to) that still
// need a reminder, with dentist and patient attached.
func (s *Service) DueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	items, err := s.store.ListReminderDue(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, appt := range items {
		if err := s.hydrate(ctx, appt); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// MarkReminderSent records that the reminder went out.
func (s *Service) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.store.SetReminderSent(ctx, id, at.UTC())
}

func (s *Service) fanOutStatus(ctx context.Context, appt *Appointment) {
	if eventID := s.syncCalendar(ctx, appt); eventID != "" && eventID != appt.CalendarEventID {
		s.linkEvent(ctx, appt, eventID)
	}
	if appt.Status.Notifiable() {
		s.bestEffort(ctx, appt, "notify", "status_changed", func(ctx context.Context) error {
			return s.notifier.StatusChanged(ctx, appt)
		})
	}
}

func (s *Service) syncCalendar(ctx context.Context, appt *Appointment) string {
	var eventID string
	s.bestEffort(ctx, appt, "calendar", "sync", func(ctx context.Context) error {
		id, err := s.calendar.SyncAppointment(ctx, appt)
		eventID = id
		return err
	})
	return eventID
}

// linkEvent stores a newly created event id. When the appointment was
// cancelled in the meantime the event is orphaned, so it is deleted instead.
func (s *Service) linkEvent(ctx context.Context, appt *Appointment, eventID string) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.adapterTimeout)
	defer cancel()

	err := s.store.SetCalendarEventID(storeCtx, appt.ID, eventID)
	switch {
	case err == nil:
		appt.CalendarEventID = eventID
	case errors.Is(err, ErrInactive):
		s.logger.Info("appointment cancelled during calendar sync, deleting event", "appointment_id", appt.ID, "event_id", eventID)
		orphan := appt.clone()
		orphan.CalendarEventID = eventID
		s.bestEffort(ctx, orphan, "calendar", "delete", func(ctx context.Context) error {
			return s.calendar.DeleteAppointmentEvent(ctx, orphan)
		})
	default:
		s.logger.Error("failed to store calendar event id", "appointment_id", appt.ID, "event_id", eventID, "error", err)
	}
}

// bestEffort runs fn detached from the caller's cancellation and bounded by
// the adapter timeout. Failures are logged and counted, never returned.
func (s *Service) bestEffort(ctx context.Context, appt *Appointment, adapter, operation string, fn func(context.Context) error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.adapterTimeout)
	defer cancel()
	callCtx, span := appointmentsTracer.Start(callCtx, "appointments.adapter."+adapter+"."+operation,
		trace.WithAttributes(attribute.String("dentiflow.appointment_id", appt.ID.String())))
	defer span.End()

	started := time.Now()
	err := fn(callCtx)
	s.metrics.ObserveAdapterCall(adapter, operation, time.Since(started).Seconds(), err != nil)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("best-effort adapter call failed",
			"appointment_id", appt.ID,
			"adapter", adapter,
			"operation", operation,
			"error", err,
		)
	}
}

func (s *Service) withDentistLock(ctx context.Context, dentistID uuid.UUID, fn func(context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, "dentist:"+dentistID.String())
	if err != nil {
		return fmt.Errorf("appointments: acquire dentist lock: %w", err)
	}
	defer unlock()
	return fn(ctx)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) hydrate(ctx context.Context, appt *Appointment) error {
	dentist, err := s.dentists.GetByID(ctx, appt.DentistID)
	if err != nil && !errors.Is(err, dentists.ErrNotFound) {
		return fmt.Errorf("appointments: load dentist: %w", err)
	}
	appt.Dentist = dentist
	patient, err := s.patients.GetByID(ctx, appt.PatientID)
	if err != nil && !errors.Is(err, patients.ErrNotFound) {
		return fmt.Errorf("appointments: load patient: %w", err)
	}
	appt.Patient = patient
	return nil
}

func bookingOutcome(err error) string {
	var validationErr *ValidationError
	switch {
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrDentistNotFound):
		return "dentist_not_found"
	case errors.As(err, &validationErr):
		return "invalid"
	default:
		return "error"
	}
}
