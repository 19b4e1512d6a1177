package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/Hervar88/DentiFlow/internal/clinics"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// Replies shown to the patient when no model answer is available.
const (
	ReplyNotConfigured = "El chatbot no está configurado. Contacta a la clínica directamente."
	ReplyUnavailable   = "Lo siento, no pude procesar tu mensaje en este momento. Por favor intenta de nuevo o contacta a la clínica directamente."
	ReplyClinicMissing = "No se encontró la clínica."
)

// maxHistory caps how many trailing turns are forwarded to the model.
const maxHistory = 20

// ClinicProfiles resolves the public clinic profile by slug.
type ClinicProfiles interface {
	Profile(ctx context.Context, slug string) (*clinics.Profile, error)
}

// Service answers widget messages in the context of one clinic.
type Service struct {
	clinics ClinicProfiles
	llm     LLM
	logger  *logging.Logger
}

func NewService(clinicProfiles ClinicProfiles, llm LLM, logger *logging.Logger) *Service {
	if clinicProfiles == nil {
		panic("chat: clinic profiles required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{clinics: clinicProfiles, llm: llm, logger: logger}
}

// Configured reports whether an LLM provider is available.
func (s *Service) Configured() bool {
	return s.llm != nil && s.llm.Configured()
}

// Reply always returns text for the patient. Errors are returned only for
// lookups that failed for reasons other than a missing clinic.
func (s *Service) Reply(ctx context.Context, slug string, messages []Message) (string, error) {
	profile, err := s.clinics.Profile(ctx, slug)
	if err != nil {
		if errors.Is(err, clinics.ErrNotFound) {
			return ReplyClinicMissing, nil
		}
		return "", err
	}
	if !s.Configured() {
		return ReplyNotConfigured, nil
	}

	history := trimHistory(messages)
	if len(history) == 0 {
		return ReplyUnavailable, nil
	}

	reply, err := s.llm.Complete(ctx, BuildSystemPrompt(profile), history)
	if err != nil {
		s.logger.Error("chatbot completion failed", "error", err, "slug", slug)
		return ReplyUnavailable, nil
	}
	return reply, nil
}

func trimHistory(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		out = append(out, Message{Role: normalizeRole(m.Role), Content: content})
	}
	if len(out) > maxHistory {
		out = out[len(out)-maxHistory:]
	}
	return out
}
