package patients

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/internal/http/respond"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// Handler handles HTTP requests for patients
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new patients handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// Routes mounts the patient endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
}

// List handles GET /pacientes?clinicaId=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clinicID, err := uuid.Parse(r.URL.Query().Get("clinicaId"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "clinicaId inválido")
		return
	}
	list, err := h.repo.ListByClinic(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to list patients", "error", err, "clinic_id", clinicID)
		respond.Error(w, http.StatusInternalServerError, "no se pudieron listar los pacientes")
		return
	}
	if list == nil {
		list = []*Patient{}
	}
	respond.JSON(w, http.StatusOK, list)
}

// Get handles GET /pacientes/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusNotFound, "Paciente no encontrado.")
		return
	}
	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err, id)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// Create handles POST /pacientes
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		h.logger.Error("failed to create patient", "error", err)
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("patient created", "patient_id", p.ID, "clinic_id", p.ClinicID)
	w.Header().Set("Location", "/pacientes/"+p.ID.String())
	respond.JSON(w, http.StatusCreated, p)
}

// Update handles PUT /pacientes/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusNotFound, "Paciente no encontrado.")
		return
	}
	var req UpdateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err, id)
		return
	}
	req.Apply(p)
	if err := h.repo.Update(r.Context(), p); err != nil {
		h.writeLookupError(w, err, id)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error, id uuid.UUID) {
	if errors.Is(err, ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Paciente no encontrado.")
		return
	}
	h.logger.Error("patient lookup failed", "error", err, "patient_id", id)
	respond.Error(w, http.StatusInternalServerError, "error interno")
}
