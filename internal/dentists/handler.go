package dentists

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/internal/http/respond"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// Handler serves the dentist CRUD endpoints.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// Routes mounts the dentist endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clinicID, err := uuid.Parse(r.URL.Query().Get("clinicaId"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "clinicaId inválido")
		return
	}
	list, err := h.repo.ListByClinic(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to list dentists", "error", err, "clinic_id", clinicID)
		respond.Error(w, http.StatusInternalServerError, "no se pudieron listar los dentistas")
		return
	}
	views := make([]View, 0, len(list))
	for _, d := range list {
		views = append(views, d.ToView())
	}
	respond.JSON(w, http.StatusOK, views)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusNotFound, "Dentista no encontrado.")
		return
	}
	d, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, d.ToView())
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("dentist created", "dentist_id", d.ID, "clinic_id", d.ClinicID)
	w.Header().Set("Location", "/dentistas/"+d.ID.String())
	respond.JSON(w, http.StatusCreated, d.ToView())
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusNotFound, "Dentista no encontrado.")
		return
	}
	var req UpdateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	req.Apply(d)
	if err := h.repo.Update(r.Context(), d); err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, d.ToView())
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, "Dentista no encontrado.")
	case errors.Is(err, ErrEmailTaken):
		respond.Error(w, http.StatusConflict, "Ya existe un dentista con ese email.")
	default:
		h.logger.Error("dentist request failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "error interno")
	}
}
