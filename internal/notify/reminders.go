package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// ReminderSource lists appointments needing a reminder and records sends.
type ReminderSource interface {
	DueReminders(ctx context.Context, from, to time.Time) ([]*appointments.Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ReminderWorker sends one reminder per appointment starting within the lead time.
type ReminderWorker struct {
	source   ReminderSource
	notifier *Notifier
	logger   *logging.Logger
	interval time.Duration
	leadTime time.Duration
	now      func() time.Time
}

func NewReminderWorker(source ReminderSource, notifier *Notifier, logger *logging.Logger) *ReminderWorker {
	if source == nil {
		panic("notify: reminder source required")
	}
	if notifier == nil {
		panic("notify: notifier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderWorker{
		source:   source,
		notifier: notifier,
		logger:   logger,
		interval: 15 * time.Minute,
		leadTime: 24 * time.Hour,
		now:      time.Now,
	}
}

// WithInterval sets how often due reminders are checked.
func (w *ReminderWorker) WithInterval(interval time.Duration) *ReminderWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithLeadTime sets how far ahead of the appointment the reminder goes out.
func (w *ReminderWorker) WithLeadTime(lead time.Duration) *ReminderWorker {
	if lead > 0 {
		w.leadTime = lead
	}
	return w
}

// Start blocks until ctx is cancelled.
func (w *ReminderWorker) Start(ctx context.Context) {
	w.logger.Info("starting reminder worker",
		"interval", w.interval.String(),
		"lead_time", w.leadTime.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker shutting down")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce sends every due reminder and returns how many were sent.
// Failed reminders stay due and are retried on the next run.
func (w *ReminderWorker) RunOnce(ctx context.Context) int {
	now := w.now()
	due, err := w.source.DueReminders(ctx, now, now.Add(w.leadTime))
	if err != nil {
		w.logger.Error("failed to list due reminders", "error", err)
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	sent := 0
	for _, appt := range due {
		if err := w.notifier.Reminder(ctx, appt); err != nil {
			w.logger.Error("failed to send reminder", "appointment_id", appt.ID, "error", err)
			continue
		}
		if err := w.source.MarkReminderSent(ctx, appt.ID, now); err != nil {
			w.logger.Error("failed to mark reminder sent", "appointment_id", appt.ID, "error", err)
			continue
		}
		sent++
	}
	w.logger.Info("reminders processed", "sent", sent, "due", len(due))
	return sent
}
