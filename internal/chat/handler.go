package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Hervar88/DentiFlow/internal/http/respond"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// Request is the payload of POST /chat/{slug}.
type Request struct {
	Messages []Message `json:"messages" validate:"required,min=1,max=50,dive"`
}

// Response carries the receptionist's answer.
type Response struct {
	Response string `json:"response"`
}

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

// Routes mounts the chat endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/configured", h.Configured)
	r.Post("/{slug}", h.Chat)
}

// Chat handles POST /chat/{slug}
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	slug := chi.URLParam(r, "slug")
	reply, err := h.service.Reply(r.Context(), slug, req.Messages)
	if err != nil {
		h.logger.Error("chat failed", "error", err, "slug", slug)
		respond.JSON(w, http.StatusOK, Response{Response: ReplyUnavailable})
		return
	}
	respond.JSON(w, http.StatusOK, Response{Response: reply})
}

// Configured handles GET /chat/configured
func (h *Handler) Configured(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]bool{"configured": h.service.Configured()})
}
