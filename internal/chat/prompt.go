package chat

import (
	"fmt"
	"strings"

	"github.com/Hervar88/DentiFlow/internal/clinics"
)

const receptionistRules = `Eres la recepcionista virtual de una clínica dental. Tu nombre es Ana.
Responde siempre en español, de forma amable, profesional y concisa.
NUNCA inventes información que no esté en el contexto proporcionado.
Si no sabes algo, sugiere al paciente contactar directamente a la clínica.
Si el paciente quiere agendar una cita, guíalo para que use el botón 'Agendar Cita' en la página.
No generes diagnósticos médicos ni recomendaciones de tratamiento específicas.
Usa emojis moderadamente para hacer la conversación más amigable.
`

const clinicPolicies = `• Horario de atención: Lunes a Viernes 9:00–19:00, Sábados 9:00–14:00
• Para agendar cita, el paciente debe usar el botón 'Agendar Cita' de la página web
• Se aceptan pagos con tarjeta, transferencia y efectivo
• El anticipo para confirmar cita se puede pagar en línea con Mercado Pago
• Las confirmaciones de cita se envían por WhatsApp
`

// BuildSystemPrompt grounds the receptionist on the clinic's own data so it
// only answers from what the clinic published.
func BuildSystemPrompt(p *clinics.Profile) string {
	var b strings.Builder
	b.WriteString(receptionistRules)
	b.WriteString("\n═══ DATOS DE LA CLÍNICA ═══\n\n")
	fmt.Fprintf(&b, "Nombre: %s\n", p.Name)
	writeOptional(&b, "Descripción", p.Description)
	writeOptional(&b, "Dirección", p.Address)
	writeOptional(&b, "Teléfono", p.Phone)

	if len(p.Specialties) > 0 {
		b.WriteString("\n═══ SERVICIOS DISPONIBLES ═══\n")
		for _, s := range p.Specialties {
			fmt.Fprintf(&b, "• %s\n", s)
		}
	}

	if len(p.Dentists) > 0 {
		b.WriteString("\n═══ EQUIPO MÉDICO ═══\n")
		for _, d := range p.Dentists {
			specialty := strings.TrimSpace(d.Specialty)
			if specialty == "" {
				specialty = "Odontología General"
			}
			fmt.Fprintf(&b, "• Dr. %s %s — Especialidad: %s\n", d.FirstName, d.LastName, specialty)
		}
	}

	b.WriteString("\n═══ INSTRUCCIONES ADICIONALES ═══\n")
	b.WriteString(clinicPolicies)
	return b.String()
}

func writeOptional(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}
