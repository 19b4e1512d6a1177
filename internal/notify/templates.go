package notify

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"

	"github.com/Hervar88/DentiFlow/internal/appointments"
)

type messageKind string

const (
	kindConfirmation messageKind = "confirmation"
	kindReminder     messageKind = "reminder"
	kindCancellation messageKind = "cancellation"
	kindStatus       messageKind = "status"
)

var messageTemplates = map[messageKind]*template.Template{
	kindConfirmation: mustParse(kindConfirmation, `✅ *Cita confirmada* — {{.Clinic}}

Hola {{.Patient}}, tu cita ha sido agendada:

📅 *Fecha:* {{.Date}}
🕐 *Hora:* {{.Time}} hrs
👨‍⚕️ *Dentista:* {{.Dentist}}
📝 *Motivo:* {{.Reason}}

Te esperamos. Si necesitas cancelar o reagendar, contáctanos con anticipación.`),

	kindReminder: mustParse(kindReminder, `⏰ *Recordatorio de cita* — {{.Clinic}}

Hola {{.Patient}}, te recordamos que tienes una cita:

📅 *Fecha:* {{.Date}}
🕐 *Hora:* {{.Time}} hrs
👨‍⚕️ *Dentista:* {{.Dentist}}

Por favor llega 10 minutos antes. ¡Te esperamos!`),

	kindCancellation: mustParse(kindCancellation, `❌ *Cita cancelada* — {{.Clinic}}

Hola {{.Patient}}, tu cita del {{.ShortDate}} a las {{.Time}} hrs ha sido cancelada.

Si deseas reagendar, contáctanos o visita nuestra página para agendar una nueva cita.`),

	kindStatus: mustParse(kindStatus, `📋 *Actualización de cita* — {{.Clinic}}

Hola {{.Patient}}, tu cita del {{.ShortDate}} a las {{.Time}} hrs ahora está {{.Status}}.`),
}

var emailSubjects = map[messageKind]string{
	kindConfirmation: "Cita confirmada",
	kindReminder:     "Recordatorio de cita",
	kindCancellation: "Cita cancelada",
	kindStatus:       "Actualización de cita",
}

var statusLabels = map[appointments.Status]string{
	appointments.StatusConfirmed:  "✅ confirmada",
	appointments.StatusPaid:       "💰 pagada (anticipo recibido)",
	appointments.StatusInProgress: "🦷 en progreso",
	appointments.StatusCompleted:  "🎉 completada",
}

var (
	weekdaysES = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	monthsES   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

func mustParse(kind messageKind, text string) *template.Template {
	return template.Must(template.New(string(kind)).Option("missingkey=error").Parse(text))
}

type messageData struct {
	Clinic    string
	Patient   string
	Date      string
	ShortDate string
	Time      string
	Dentist   string
	Reason    string
	Status    string
}

// renderedMessage is one notification in both channel formats.
type renderedMessage struct {
	Subject  string
	WhatsApp string
	Text     string
}

func render(kind messageKind, appt *appointments.Appointment, clinic string, loc *time.Location) (renderedMessage, error) {
	tmpl, ok := messageTemplates[kind]
	if !ok {
		return renderedMessage{}, fmt.Errorf("notify: unknown message kind %q", kind)
	}
	if loc == nil {
		loc = time.UTC
	}
	start := appt.StartsAt.In(loc)

	data := messageData{
		Clinic:    clinic,
		Patient:   appt.PatientName(),
		Date:      longDateES(start),
		ShortDate: shortDateES(start),
		Time:      start.Format("15:04"),
		Dentist:   "su dentista",
		Reason:    appt.Reason,
		Status:    statusLabels[appt.Status],
	}
	if name := appt.DentistName(); name != "" {
		data.Dentist = "Dr. " + name
	}
	if strings.TrimSpace(data.Reason) == "" {
		data.Reason = "Consulta general"
	}
	if data.Status == "" {
		data.Status = strings.ToLower(string(appt.Status))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return renderedMessage{}, fmt.Errorf("notify: render %s: %w", kind, err)
	}
	body := buf.String()
	return renderedMessage{
		Subject:  emailSubjects[kind] + " — " + clinic,
		WhatsApp: body,
		Text:     strings.ReplaceAll(body, "*", ""),
	}, nil
}

// longDateES formats like "martes 10 de marzo, 2026".
func longDateES(t time.Time) string {
	return fmt.Sprintf("%s %d de %s, %d", weekdaysES[t.Weekday()], t.Day(), monthsES[t.Month()-1], t.Year())
}

// shortDateES formats like "martes 10 de marzo".
func shortDateES(t time.Time) string {
	return fmt.Sprintf("%s %d de %s", weekdaysES[t.Weekday()], t.Day(), monthsES[t.Month()-1])
}

func plainToHTML(text string) string {
	lines := strings.Split(html.EscapeString(text), "\n")
	return "<p>" + strings.Join(lines, "<br>") + "</p>"
}
