package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/http/respond"
	"github.com/Hervar88/DentiFlow/internal/observability/metrics"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// Handler serves the deposit endpoints and the Mercado Pago webhook.
type Handler struct {
	service       *Service
	webhookSecret string
	metrics       *metrics.SchedulingMetrics
	logger        *logging.Logger
	timeout       time.Duration
}

func NewHandler(service *Service, webhookSecret string, m *metrics.SchedulingMetrics, logger *logging.Logger) *Handler {
	if service == nil {
		panic("payments: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:       service,
		webhookSecret: strings.TrimSpace(webhookSecret),
		metrics:       m,
		logger:        logger,
		timeout:       30 * time.Second,
	}
}

// AppointmentRoutes mounts the payment routes under /appointments.
func (h *Handler) AppointmentRoutes(r chi.Router) {
	r.Post("/{id}/payment", h.CreatePreference)
	r.Get("/{id}/payment", h.Status)
}

// Routes mounts /payments.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/webhook", h.Webhook)
	r.Get("/configured", h.Configured)
}

// CreatePreference handles POST /appointments/{id}/payment
func (h *Handler) CreatePreference(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "id de cita inválido")
		return
	}
	result, err := h.service.CreatePreference(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotConfigured):
			respond.Error(w, http.StatusServiceUnavailable, "Mercado Pago no está configurado.")
		case errors.Is(err, appointments.ErrNotFound):
			respond.Error(w, http.StatusNotFound, "Cita no encontrada.")
		case errors.Is(err, ErrAppointmentCancelled):
			respond.Error(w, http.StatusBadRequest, "No se puede generar pago para una cita cancelada.")
		case errors.Is(err, ErrAlreadyPaid):
			respond.Error(w, http.StatusBadRequest, "Esta cita ya fue pagada.")
		case errors.Is(err, ErrTooManyAttempts):
			respond.Error(w, http.StatusTooManyRequests, "Demasiados intentos de pago. Intenta más tarde.")
		default:
			respond.Error(w, http.StatusBadGateway, "Error al crear la preferencia de pago en Mercado Pago.")
		}
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

// Status handles GET /appointments/{id}/payment
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "id de cita inválido")
		return
	}
	status, err := h.service.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Cita no encontrada.")
			return
		}
		h.logger.Error("payment status failed", "appointment_id", id, "error", err)
		respond.Error(w, http.StatusInternalServerError, "error interno")
		return
	}
	respond.JSON(w, http.StatusOK, status)
}

// Configured handles GET /payments/configured
func (h *Handler) Configured(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]bool{"configured": h.service.Configured()})
}

type notification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// Webhook handles POST /payments/webhook. It always answers 200 so the
// processor stops retrying; failures are logged and counted.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	kind, dataID := parseNotification(r, payload)

	if !verifySignature(h.webhookSecret, dataID, r.Header.Get("X-Request-Id"), r.Header.Get("X-Signature")) {
		h.logger.Warn("mercado pago webhook signature mismatch", "type", kind, "data_id", dataID)
		h.metrics.ObserveWebhook("mercadopago", "rejected")
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	result := "processed"
	if err := h.service.HandleNotification(ctx, kind, dataID); err != nil {
		result = "failed"
		h.logger.Error("mercado pago webhook failed", "type", kind, "data_id", dataID, "error", err)
	}
	h.metrics.ObserveWebhook("mercadopago", result)
	w.WriteHeader(http.StatusOK)
}

// parseNotification reads type and data id from the query string (IPN and
// webhook styles) and falls back to the JSON body.
func parseNotification(r *http.Request, payload []byte) (string, string) {
	q := r.URL.Query()
	kind := firstNonEmpty(q.Get("type"), q.Get("topic"))
	dataID := firstNonEmpty(q.Get("data.id"), q.Get("id"))

	if len(bytes.TrimSpace(payload)) > 0 {
		var body notification
		if err := json.Unmarshal(payload, &body); err == nil {
			if kind == "" {
				kind = body.Type
			}
			if dataID == "" {
				dataID = strings.Trim(string(body.Data.ID), `"`)
			}
		}
	}
	return strings.TrimSpace(kind), strings.TrimSpace(dataID)
}

// verifySignature checks the x-signature header (ts=...,v1=...) against the
// manifest "id:<data.id>;request-id:<x-request-id>;ts:<ts>;". An empty secret
// disables verification.
func verifySignature(secret, dataID, requestID, header string) bool {
	if secret == "" {
		return true
	}
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return false
	}
	manifest := "id:" + strings.ToLower(dataID) + ";request-id:" + requestID + ";ts:" + ts + ";"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(v1)))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
