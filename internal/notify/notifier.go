// Package notify sends appointment messages to patients over WhatsApp and email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/messaging"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

var notifyTracer = otel.Tracer("dentiflow.internal.notify")

// WhatsApp sends a single WhatsApp message.
type WhatsApp interface {
	Configured() bool
	Send(ctx context.Context, phone, body string) (string, error)
}

// Config controls message copy and retry behaviour.
type Config struct {
	ClinicName    string
	Location      *time.Location
	MaxAttempts   int
	RetryBaseWait time.Duration
}

// Notifier implements appointments.Notifier. A message counts as delivered
// when at least one channel accepted it.
type Notifier struct {
	whatsapp WhatsApp
	email    EmailSender
	cfg      Config
	logger   *logging.Logger
}

var _ appointments.Notifier = (*Notifier)(nil)

// NewNotifier accepts nil channels; a nil channel is skipped.
func NewNotifier(whatsapp WhatsApp, email EmailSender, cfg Config, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "Tu Clínica Dental"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseWait <= 0 {
		cfg.RetryBaseWait = 500 * time.Millisecond
	}
	return &Notifier{whatsapp: whatsapp, email: email, cfg: cfg, logger: logger}
}

// HasChannel reports whether any delivery channel is usable.
func (n *Notifier) HasChannel() bool {
	return (n.whatsapp != nil && n.whatsapp.Configured()) || n.email != nil
}

func (n *Notifier) BookingConfirmed(ctx context.Context, appt *appointments.Appointment) error {
	return n.deliver(ctx, kindConfirmation, appt)
}

func (n *Notifier) StatusChanged(ctx context.Context, appt *appointments.Appointment) error {
	if !appt.Status.Notifiable() {
		return nil
	}
	return n.deliver(ctx, kindStatus, appt)
}

func (n *Notifier) Cancelled(ctx context.Context, appt *appointments.Appointment) error {
	return n.deliver(ctx, kindCancellation, appt)
}

// Reminder sends the day-before reminder.
func (n *Notifier) Reminder(ctx context.Context, appt *appointments.Appointment) error {
	return n.deliver(ctx, kindReminder, appt)
}

func (n *Notifier) deliver(ctx context.Context, kind messageKind, appt *appointments.Appointment) error {
	if appt == nil || appt.Patient == nil {
		n.logger.Debug("notify: no patient attached, skipping", "kind", kind)
		return nil
	}

	ctx, span := notifyTracer.Start(ctx, "notify."+string(kind))
	defer span.End()
	span.SetAttributes(attribute.String("dentiflow.appointment_id", appt.ID.String()))

	msg, err := render(kind, appt, n.cfg.ClinicName, n.cfg.Location)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var (
		attempted int
		errs      []error
	)
	if n.whatsapp != nil && n.whatsapp.Configured() && appt.Patient.Phone != "" {
		attempted++
		if err := n.sendWhatsApp(ctx, appt.Patient.Phone, msg.WhatsApp); err != nil {
			errs = append(errs, err)
		}
	}
	if n.email != nil && appt.Patient.Email != "" {
		attempted++
		err := n.email.Send(ctx, EmailMessage{
			To:      appt.Patient.Email,
			ToName:  appt.PatientName(),
			Subject: msg.Subject,
			Body:    msg.Text,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if attempted == 0 {
		n.logger.Debug("notify: no channel available, skipping", "kind", kind, "appointment_id", appt.ID)
		return nil
	}
	if len(errs) == attempted {
		err := fmt.Errorf("notify: %s not delivered: %w", kind, errors.Join(errs...))
		span.RecordError(err)
		return err
	}
	for _, err := range errs {
		n.logger.Warn("notify: channel failed", "kind", kind, "appointment_id", appt.ID, "error", err)
	}
	n.logger.Info("notification sent", "kind", kind, "appointment_id", appt.ID)
	return nil
}

// sendWhatsApp retries with exponential backoff until a permanent failure,
// the attempt limit or ctx cancellation.
func (n *Notifier) sendWhatsApp(ctx context.Context, phone, body string) error {
	wait := n.cfg.RetryBaseWait
	var err error
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		var sid string
		sid, err = n.whatsapp.Send(ctx, phone, body)
		if err == nil {
			n.logger.Debug("whatsapp delivered", "sid", sid, "attempt", attempt)
			return nil
		}
		if errors.Is(err, messaging.ErrPermanent) || errors.Is(err, messaging.ErrNotConfigured) {
			return err
		}
		if attempt == n.cfg.MaxAttempts {
			break
		}
		n.logger.Warn("whatsapp send failed, retrying", "attempt", attempt, "wait", wait.String(), "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("notify: whatsapp retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}
	return fmt.Errorf("notify: whatsapp failed after %d attempts: %w", n.cfg.MaxAttempts, err)
}
