package calendar

import (
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/Hervar88/DentiFlow/internal/appointments"
)

// Google Calendar event palette ids per status.
var statusColors = map[appointments.Status]string{
	appointments.StatusPending:    "5",  // banana
	appointments.StatusConfirmed:  "7",  // peacock
	appointments.StatusPaid:       "2",  // sage
	appointments.StatusInProgress: "3",  // grape
	appointments.StatusCompleted:  "10", // basil
	appointments.StatusCancelled:  "11", // tomato
	appointments.StatusNoShow:     "8",  // graphite
}

func colorFor(s appointments.Status) string {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return "0"
}

func buildEvent(appt *appointments.Appointment, timeZone string) *gcal.Event {
	return &gcal.Event{
		Summary:     "🦷 Cita: " + appt.PatientName(),
		Description: describe(appt),
		Start: &gcal.EventDateTime{
			DateTime: appt.StartsAt.UTC().Format(time.RFC3339),
			TimeZone: timeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: appt.EndsAt().UTC().Format(time.RFC3339),
			TimeZone: timeZone,
		},
		ColorId: colorFor(appt.Status),
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "popup", Minutes: 30},
				{Method: "email", Minutes: 60},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
}

func describe(appt *appointments.Appointment) string {
	lines := []string{
		"📋 Estado: " + string(appt.Status),
		"👤 Paciente: " + appt.PatientName(),
	}
	if appt.Reason != "" {
		lines = append(lines, "💬 Motivo: "+appt.Reason)
	}
	lines = append(lines, "\n🔗 Gestionado por DentiFlow")
	return strings.Join(lines, "\n")
}

// toChange maps a listed Google event onto the reconciliation input.
// Cancelled events often arrive without start/end.
func toChange(ev *gcal.Event) appointments.CalendarChange {
	change := appointments.CalendarChange{
		EventID:   ev.Id,
		Cancelled: ev.Status == "cancelled",
	}
	if ev.Start != nil && ev.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
			change.StartsAt = t.UTC()
		}
	}
	if ev.End != nil && ev.End.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
			change.EndsAt = t.UTC()
		}
	}
	return change
}
