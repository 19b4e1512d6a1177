package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/events"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

const (
	providerMercadoPago = "mercadopago"

	StatusPending           = "pending"
	StatusPreferenceCreated = "preference_created"
	StatusApproved          = "approved"
	StatusUnknown           = "unknown"
)

var (
	ErrAppointmentCancelled = errors.New("payments: appointment cancelled")
	ErrAlreadyPaid          = errors.New("payments: appointment already paid")
)

// Gateway is the processor surface the service needs.
type Gateway interface {
	Configured() bool
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	GetPayment(ctx context.Context, paymentID int64) (*Payment, error)
}

// AppointmentBook is the slice of the appointment orchestrator payments touch.
type AppointmentBook interface {
	Load(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	AttachPaymentRef(ctx context.Context, id uuid.UUID, ref string) error
	RecordPayment(ctx context.Context, id uuid.UUID, paymentID string, approved bool) (*appointments.View, error)
}

// DepositConfig describes the deposit charged per appointment.
type DepositConfig struct {
	Amount        float64
	Currency      string
	PublicBaseURL string
	Location      *time.Location
}

// PreferenceResult is returned to the client after creating a checkout.
type PreferenceResult struct {
	PreferenceID     string `json:"preferenceId"`
	InitPoint        string `json:"initPoint"`
	SandboxInitPoint string `json:"sandboxInitPoint"`
}

// PaymentStatus summarizes an appointment's deposit.
type PaymentStatus struct {
	PaymentID  *string    `json:"paymentId"`
	Status     string     `json:"status"`
	AmountPaid *float64   `json:"amountPaid"`
	PaidAt     *time.Time `json:"paidAt"`
}

// Service creates deposit checkouts and applies processor notifications.
type Service struct {
	gateway   Gateway
	book      AppointmentBook
	processed events.Tracker
	deposit   DepositConfig
	velocity  *VelocityChecker
	logger    *logging.Logger
}

func NewService(gateway Gateway, book AppointmentBook, processed events.Tracker, deposit DepositConfig, logger *logging.Logger) *Service {
	if gateway == nil || book == nil {
		panic("payments: gateway and appointment book required")
	}
	if processed == nil {
		processed = events.NewMemoryProcessedStore()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if deposit.Currency == "" {
		deposit.Currency = "MXN"
	}
	if deposit.Amount <= 0 {
		deposit.Amount = 500
	}
	if deposit.Location == nil {
		deposit.Location = time.UTC
	}
	deposit.PublicBaseURL = strings.TrimRight(deposit.PublicBaseURL, "/")
	return &Service{gateway: gateway, book: book, processed: processed, deposit: deposit, logger: logger}
}

// WithVelocity caps checkout attempts per appointment and patient phone.
func (s *Service) WithVelocity(v *VelocityChecker) *Service {
	s.velocity = v
	return s
}

// Configured reports whether the processor has credentials.
func (s *Service) Configured() bool {
	return s.gateway.Configured()
}

// CreatePreference opens a deposit checkout and stores pref_<id> on the appointment.
func (s *Service) CreatePreference(ctx context.Context, appointmentID uuid.UUID) (*PreferenceResult, error) {
	ctx, span := mercadoPagoTracer.Start(ctx, "payments.create_preference")
	defer span.End()
	span.SetAttributes(attribute.String("dentiflow.appointment_id", appointmentID.String()))

	if !s.gateway.Configured() {
		return nil, ErrNotConfigured
	}
	appt, err := s.book.Load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	switch {
	case appt.Status == appointments.StatusCancelled:
		return nil, ErrAppointmentCancelled
	case appt.Status == appointments.StatusPaid || appt.HasConfirmedPayment():
		return nil, ErrAlreadyPaid
	}
	if err := s.checkVelocity(ctx, appt); err != nil {
		return nil, err
	}

	pref, err := s.gateway.CreatePreference(ctx, s.preferenceRequest(appt))
	if err != nil {
		span.RecordError(err)
		s.logger.Error("failed to create mercado pago preference", "appointment_id", appointmentID, "error", err)
		return nil, fmt.Errorf("payments: create preference: %w", err)
	}
	if err := s.book.AttachPaymentRef(ctx, appointmentID, appointments.PreferencePrefix+pref.ID); err != nil {
		return nil, fmt.Errorf("payments: store preference: %w", err)
	}
	s.logger.Info("created mercado pago preference",
		"appointment_id", appointmentID,
		"preference_id", pref.ID,
		"amount", s.deposit.Amount,
		"currency", s.deposit.Currency,
	)
	return &PreferenceResult{
		PreferenceID:     pref.ID,
		InitPoint:        pref.InitPoint,
		SandboxInitPoint: pref.SandboxInitPoint,
	}, nil
}

func (s *Service) preferenceRequest(appt *appointments.Appointment) PreferenceRequest {
	reason := appt.Reason
	if strings.TrimSpace(reason) == "" {
		reason = "Consulta general"
	}
	id := appt.ID.String()
	return PreferenceRequest{
		Items: []PreferenceItem{{
			Title: fmt.Sprintf("Anticipo — Cita dental (%s)", reason),
			Description: fmt.Sprintf("Anticipo para cita el %s con Dr. %s",
				appt.StartsAt.In(s.deposit.Location).Format("02/01/2006 15:04"), appt.DentistName()),
			Quantity:   1,
			CurrencyID: s.deposit.Currency,
			UnitPrice:  s.deposit.Amount,
		}},
		BackURLs: BackURLs{
			Success: s.deposit.PublicBaseURL + "/pago-exitoso?citaId=" + id,
			Failure: s.deposit.PublicBaseURL + "/pago-fallido?citaId=" + id,
			Pending: s.deposit.PublicBaseURL + "/pago-pendiente?citaId=" + id,
		},
		AutoReturn:          "approved",
		ExternalReference:   id,
		NotificationURL:     s.deposit.PublicBaseURL + "/api/payments/webhook",
		StatementDescriptor: "DENTIFLOW",
	}
}

// HandleNotification applies a webhook delivery. Only payment notifications
// are acted on; everything else, including malformed ids, is logged and ignored.
func (s *Service) HandleNotification(ctx context.Context, kind, dataID string) error {
	ctx, span := mercadoPagoTracer.Start(ctx, "payments.handle_notification")
	defer span.End()
	span.SetAttributes(attribute.String("dentiflow.notification_type", kind))

	if !s.gateway.Configured() {
		s.logger.Warn("mercado pago webhook received but not configured")
		return nil
	}
	if kind != "payment" {
		s.logger.Info("ignoring mercado pago notification", "type", kind)
		return nil
	}
	paymentID, err := strconv.ParseInt(strings.TrimSpace(dataID), 10, 64)
	if err != nil {
		s.logger.Warn("invalid payment id in webhook", "data_id", dataID)
		return nil
	}

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			s.logger.Warn("payment not found in mercado pago", "payment_id", paymentID)
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("payments: fetch payment: %w", err)
	}
	s.logger.Info("mercado pago payment notification",
		"payment_id", paymentID,
		"status", payment.Status,
		"external_reference", payment.ExternalReference,
	)

	eventID := fmt.Sprintf("%d:%s", paymentID, payment.Status)
	if seen, err := s.processed.AlreadyProcessed(ctx, providerMercadoPago, eventID); err != nil {
		return fmt.Errorf("payments: processed lookup: %w", err)
	} else if seen {
		s.logger.Debug("duplicate mercado pago notification", "event_id", eventID)
		return nil
	}

	appointmentID, err := uuid.Parse(payment.ExternalReference)
	if err != nil {
		s.logger.Warn("invalid external reference in payment", "payment_id", paymentID, "external_reference", payment.ExternalReference)
		return nil
	}
	approved := payment.Status == StatusApproved
	if _, err := s.book.RecordPayment(ctx, appointmentID, strconv.FormatInt(paymentID, 10), approved); err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			s.logger.Warn("appointment not found for payment", "appointment_id", appointmentID, "payment_id", paymentID)
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("payments: record payment: %w", err)
	}
	if _, err := s.processed.MarkProcessed(ctx, providerMercadoPago, eventID); err != nil {
		s.logger.Warn("failed to mark notification processed", "event_id", eventID, "error", err)
	}
	if approved {
		s.logger.Info("appointment paid via mercado pago", "appointment_id", appointmentID, "payment_id", paymentID)
	}
	return nil
}

// Status reports the deposit state of an appointment. A stored preference
// reads as preference_created; a real payment id is looked up at the processor
// and falls back to the appointment's own status when that fails.
func (s *Service) Status(ctx context.Context, appointmentID uuid.UUID) (*PaymentStatus, error) {
	appt, err := s.book.Load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	switch {
	case appt.PaymentRef == "":
		return &PaymentStatus{Status: StatusPending}, nil
	case appt.PreferenceID() != "":
		return &PaymentStatus{Status: StatusPreferenceCreated}, nil
	}

	ref := appt.PaymentRef
	if paymentID, err := strconv.ParseInt(ref, 10, 64); err == nil && s.gateway.Configured() {
		payment, err := s.gateway.GetPayment(ctx, paymentID)
		if err == nil {
			status := payment.Status
			if status == "" {
				status = StatusUnknown
			}
			amount := payment.TransactionAmount
			return &PaymentStatus{PaymentID: &ref, Status: status, AmountPaid: &amount, PaidAt: payment.DateApproved}, nil
		}
		s.logger.Error("failed to fetch mercado pago payment", "appointment_id", appointmentID, "payment_id", paymentID, "error", err)
	}

	status := StatusUnknown
	if appt.Status == appointments.StatusPaid {
		status = StatusApproved
	}
	return &PaymentStatus{PaymentID: &ref, Status: status}, nil
}

func (s *Service) checkVelocity(ctx context.Context, appt *appointments.Appointment) error {
	if s.velocity == nil {
		return nil
	}
	res, err := s.velocity.CheckAppointment(ctx, appt.ID)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return fmt.Errorf("%w: %s", ErrTooManyAttempts, res.Message)
	}
	if appt.Patient == nil {
		return nil
	}
	res, err = s.velocity.CheckPhone(ctx, appt.ClinicID, appt.Patient.Phone)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return fmt.Errorf("%w: %s", ErrTooManyAttempts, res.Message)
	}
	return nil
}
