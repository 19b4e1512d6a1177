package appointments

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/internal/http/respond"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

const (
	msgConflict        = "El dentista ya tiene una cita en ese horario."
	msgDentistNotFound = "Dentista no encontrado."
	msgNotFound        = "Cita no encontrada."
	msgInternal        = "error interno"
)

// Handler exposes the appointment endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("appointments: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the handlers under /appointments.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/book", h.Book)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Cancel)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Patch("/{id}/reschedule", h.Reschedule)
}

// List handles GET /appointments?clinicaId&desde&hasta
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clinicID, err := uuid.Parse(q.Get("clinicaId"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "clinicaId inválido")
		return
	}
	from, err := parseBound(q.Get("desde"), false)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "desde inválido")
		return
	}
	to, err := parseBound(q.Get("hasta"), true)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "hasta inválido")
		return
	}

	views, err := h.service.List(r.Context(), clinicID, from, to)
	if err != nil {
		h.logger.Error("list appointments failed", "error", err, "clinic_id", clinicID)
		respond.Error(w, http.StatusInternalServerError, msgInternal)
		return
	}
	respond.JSON(w, http.StatusOK, views)
}

// Get handles GET /appointments/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get appointment failed", id)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}

// Book handles POST /appointments/book
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.service.Book(r.Context(), &req)
	if err != nil {
		var validationErr *ValidationError
		switch {
		case errors.Is(err, ErrConflict):
			respond.Error(w, http.StatusBadRequest, msgConflict)
		case errors.Is(err, ErrDentistNotFound):
			respond.Error(w, http.StatusBadRequest, msgDentistNotFound)
		case errors.As(err, &validationErr):
			respond.Error(w, http.StatusBadRequest, validationErr.Message)
		default:
			h.logger.Error("book appointment failed", "error", err, "dentist_id", req.DentistID)
			respond.Error(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}
	w.Header().Set("Location", "/appointments/"+view.ID.String())
	respond.JSON(w, http.StatusCreated, view)
}

// UpdateStatus handles PATCH /appointments/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.service.UpdateStatus(r.Context(), id, status)
	if err != nil {
		h.writeError(w, err, "update status failed", id)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}

// Reschedule handles PATCH /appointments/{id}/reschedule
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.service.Reschedule(r.Context(), id, req.StartsAt, req.DurationMinutes)
	if err != nil {
		h.writeError(w, err, "reschedule failed", id)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}

// Cancel handles DELETE /appointments/{id}
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "cancel appointment failed", id)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, id uuid.UUID) {
	var validationErr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, ErrConflict):
		respond.Error(w, http.StatusBadRequest, msgConflict)
	case errors.As(err, &validationErr):
		respond.Error(w, http.StatusBadRequest, validationErr.Message)
	default:
		h.logger.Error(msg, "error", err, "appointment_id", id)
		respond.Error(w, http.StatusInternalServerError, msgInternal)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "id de cita inválido")
		return uuid.Nil, false
	}
	return id, true
}

var boundLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// parseBound accepts RFC 3339, a zoneless timestamp (read as UTC) or a plain
// date. A plain date used as the upper bound covers the whole day.
func parseBound(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.Parse("2006-01-02", raw); err == nil {
		if upper {
			return d.Add(24*time.Hour - time.Nanosecond), nil
		}
		return d, nil
	}
	var lastErr error
	for _, layout := range boundLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
