package calendar

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/http/respond"
	"github.com/Hervar88/DentiFlow/internal/observability/metrics"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// Reconciler applies calendar-side edits to stored appointments.
type Reconciler interface {
	ApplyCalendarChanges(ctx context.Context, changes []appointments.CalendarChange) (int, error)
}

// Handler serves the /google-calendar routes.
type Handler struct {
	calendar    *GoogleCalendar
	reconciler  Reconciler
	successURL  string
	metrics     *metrics.SchedulingMetrics
	logger      *logging.Logger
	syncTimeout time.Duration
}

// NewHandler wires the OAuth endpoints and the push webhook. successURL is
// where the browser lands after a successful connection.
func NewHandler(cal *GoogleCalendar, reconciler Reconciler, successURL string, m *metrics.SchedulingMetrics, logger *logging.Logger) *Handler {
	if cal == nil || reconciler == nil {
		panic("calendar: adapter and reconciler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		calendar:    cal,
		reconciler:  reconciler,
		successURL:  successURL,
		metrics:     m,
		logger:      logger,
		syncTimeout: 30 * time.Second,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/auth-url", h.AuthURL)
	r.Get("/callback", h.Callback)
	r.Get("/status/{dentistaId}", h.Status)
	r.Delete("/disconnect/{dentistaId}", h.Disconnect)
	r.Post("/webhook", h.Webhook)
}

// AuthURL handles GET /google-calendar/auth-url?dentistaId=
func (h *Handler) AuthURL(w http.ResponseWriter, r *http.Request) {
	dentistID, err := uuid.Parse(r.URL.Query().Get("dentistaId"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "dentistaId inválido")
		return
	}
	authURL, err := h.calendar.AuthURL(dentistID)
	if err != nil {
		respond.Error(w, http.StatusServiceUnavailable, "Google Calendar no está configurado.")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"authUrl": authURL})
}

// Callback handles GET /google-calendar/callback?code=&state=
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if oauthErr := q.Get("error"); oauthErr != "" {
		h.logger.Warn("google oauth error", "error", oauthErr)
		respond.Error(w, http.StatusBadRequest, "Autorización de Google rechazada.")
		return
	}
	dentistID, err := uuid.Parse(q.Get("state"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "State inválido.")
		return
	}
	code := q.Get("code")
	if code == "" {
		respond.Error(w, http.StatusBadRequest, "Falta el código de autorización.")
		return
	}

	if err := h.calendar.HandleCallback(r.Context(), code, dentistID); err != nil {
		switch {
		case errors.Is(err, ErrDentistNotFound):
			respond.Error(w, http.StatusBadRequest, "Dentista no encontrado.")
		case errors.Is(err, ErrNotConfigured):
			respond.Error(w, http.StatusServiceUnavailable, "Google Calendar no está configurado.")
		default:
			h.logger.Error("google oauth callback failed", "dentist_id", dentistID, "error", err)
			respond.Error(w, http.StatusBadRequest, "No se pudo conectar Google Calendar.")
		}
		return
	}
	http.Redirect(w, r, h.successURL, http.StatusFound)
}

// Status handles GET /google-calendar/status/{dentistaId}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	dentistID, err := uuid.Parse(chi.URLParam(r, "dentistaId"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "dentistaId inválido")
		return
	}
	st, err := h.calendar.Status(r.Context(), dentistID)
	if err != nil {
		h.logger.Error("calendar status failed", "dentist_id", dentistID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "error interno")
		return
	}
	respond.JSON(w, http.StatusOK, st)
}

// Disconnect handles DELETE /google-calendar/disconnect/{dentistaId}
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	dentistID, err := uuid.Parse(chi.URLParam(r, "dentistaId"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "dentistaId inválido")
		return
	}
	if err := h.calendar.Disconnect(r.Context(), dentistID); err != nil {
		if errors.Is(err, ErrDentistNotFound) {
			respond.Error(w, http.StatusBadRequest, "Dentista no encontrado.")
			return
		}
		h.logger.Error("calendar disconnect failed", "dentist_id", dentistID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "error interno")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "Google Calendar desconectado."})
}

// Webhook handles POST /google-calendar/webhook. The response only reflects
// header presence; reconciliation failures are logged.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	channelID := r.Header.Get("X-Goog-Channel-ID")
	resourceID := r.Header.Get("X-Goog-Resource-ID")
	if channelID == "" || resourceID == "" {
		h.metrics.ObserveWebhook("google_calendar", "rejected")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.syncTimeout)
	defer cancel()

	result := "processed"
	changes, err := h.calendar.FetchChanges(ctx, channelID)
	if err == nil && len(changes) > 0 {
		var applied int
		applied, err = h.reconciler.ApplyCalendarChanges(ctx, changes)
		h.logger.Info("calendar webhook reconciled",
			"channel_id", channelID,
			"resource_id", resourceID,
			"changes", len(changes),
			"applied", applied,
		)
	}
	if err != nil {
		result = "failed"
		h.logger.Error("calendar webhook failed", "channel_id", channelID, "resource_id", resourceID, "error", err)
	}
	h.metrics.ObserveWebhook("google_calendar", result)
	w.WriteHeader(http.StatusOK)
}
