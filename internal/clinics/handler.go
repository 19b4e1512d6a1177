package clinics

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Hervar88/DentiFlow/internal/http/respond"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// Handler serves the public clinic page.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// GetProfile handles GET /clinica/{slug}
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	profile, err := h.service.Profile(r.Context(), slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Clínica no encontrada.")
			return
		}
		h.logger.Error("clinic profile failed", "error", err, "slug", slug)
		respond.Error(w, http.StatusInternalServerError, "error interno")
		return
	}
	respond.JSON(w, http.StatusOK, profile)
}
