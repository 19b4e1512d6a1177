package patients

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/pkg/logging"
)

func newTestRouter(repo Repository) http.Handler {
	r := chi.NewRouter()
	r.Route("/pacientes", NewHandler(repo, logging.Default()).Routes)
	return r
}

func TestCreatePatient_Success(t *testing.T) {
	repo := NewInMemoryRepository()
	router := newTestRouter(repo)

	clinicID := uuid.New()
	body, _ := json.Marshal(CreateRequest{
		ClinicID:  clinicID,
		FirstName: "María",
		LastName:  "López",
		Email:     "maria@example.com",
		Phone:     "5512345678",
	})
	req := httptest.NewRequest(http.MethodPost, "/pacientes", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var p Patient
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if p.FirstName != "María" || p.ClinicID != clinicID {
		t.Errorf("unexpected patient %+v", p)
	}
	if _, err := repo.GetByID(context.Background(), p.ID); err != nil {
		t.Errorf("patient not stored: %v", err)
	}
}

func TestCreatePatient_InvalidRequest(t *testing.T) {
	router := newTestRouter(NewInMemoryRepository())

	body := []byte(`{"clinicaId":"` + uuid.NewString() + `","nombre":"","apellido":"X","email":"bad"}`)
	req := httptest.NewRequest(http.MethodPost, "/pacientes", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	router := newTestRouter(NewInMemoryRepository())

	req := httptest.NewRequest(http.MethodGet, "/pacientes/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestUpdateAndListPatients(t *testing.T) {
	repo := NewInMemoryRepository()
	router := newTestRouter(repo)
	clinicID := uuid.New()

	p, err := repo.Create(context.Background(), &CreateRequest{ClinicID: clinicID, FirstName: "Luis", LastName: "Zapata"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(context.Background(), &CreateRequest{ClinicID: clinicID, FirstName: "Ana", LastName: "Acosta"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(context.Background(), &CreateRequest{ClinicID: uuid.New(), FirstName: "Otro", LastName: "Clinic"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	body := []byte(`{"nombre":"Luis","apellido":"Zapata","telefono":"+525511112222","notas":"alergia"}`)
	req := httptest.NewRequest(http.MethodPut, "/pacientes/"+p.ID.String(), bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/pacientes?clinicaId="+clinicID.String(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list []Patient
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 patients for clinic, got %d", len(list))
	}
	if list[0].LastName != "Acosta" {
		t.Errorf("expected list ordered by last name, got %s first", list[0].LastName)
	}
	if list[1].Notes != "alergia" || list[1].Phone != "+525511112222" {
		t.Errorf("update not applied: %+v", list[1])
	}
}

func TestListPatients_BadClinicID(t *testing.T) {
	router := newTestRouter(NewInMemoryRepository())
	req := httptest.NewRequest(http.MethodGet, "/pacientes?clinicaId=nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
