package appointments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hervar88/DentiFlow/internal/http/respond"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/appointments", NewHandler(f.service, nil).Routes)
	return r
}

func bookBody(f *fixture, start string) string {
	return `{"clinicaId":"` + f.clinicID.String() + `","dentistaId":"` + f.dentist.ID.String() +
		`","nombrePaciente":"María","apellidoPaciente":"López","telefonoPaciente":"5512345678","fechaHora":"` + start + `","motivo":"Limpieza"}`
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body respond.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestBookEndpoint(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	rec := doRequest(router, http.MethodPost, "/appointments/book", bookBody(f, "2026-03-10T10:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Pendiente", view["estado"])
	assert.Equal(t, float64(30), view["duracionMinutos"])
	assert.Equal(t, "Limpieza", view["motivo"])
	assert.Equal(t, true, view["canPay"])
	assert.Nil(t, view["mercadoPagoPaymentId"])
	assert.Equal(t, "/appointments/"+view["id"].(string), rec.Header().Get("Location"))

	rec = doRequest(router, http.MethodPost, "/appointments/book", bookBody(f, "2026-03-10T10:15:00Z"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "El dentista ya tiene una cita en ese horario.", decodeError(t, rec))
}

func TestBookEndpointUnknownDentist(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	body := strings.Replace(bookBody(f, "2026-03-10T10:00:00Z"), f.dentist.ID.String(), uuid.NewString(), 1)

	rec := doRequest(router, http.MethodPost, "/appointments/book", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Dentista no encontrado.", decodeError(t, rec))
}

func TestBookEndpointValidation(t *testing.T) {
	f := newFixture(t)
	rec := doRequest(newTestRouter(f), http.MethodPost, "/appointments/book", `{"clinicaId":"`+f.clinicID.String()+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec))
}

func TestUpdateStatusRejectsUnknownState(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	view, err := f.service.Book(context.Background(), f.request(at(10, 0), 30))
	require.NoError(t, err)

	rec := doRequest(router, http.MethodPatch, "/appointments/"+view.ID.String()+"/status", `{"estado":"Bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg := decodeError(t, rec)
	for _, s := range AllStatuses {
		assert.Contains(t, msg, string(s))
	}

	stored, err := f.store.Get(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	view, err := f.service.Book(context.Background(), f.request(at(10, 0), 30))
	require.NoError(t, err)

	rec := doRequest(router, http.MethodPatch, "/appointments/"+view.ID.String()+"/status", `{"estado":"confirmada"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"estado":"Confirmada"`)

	rec = doRequest(router, http.MethodPatch, "/appointments/"+uuid.NewString()+"/status", `{"estado":"Confirmada"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelAndGetEndpoints(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	view, err := f.service.Book(context.Background(), f.request(at(10, 0), 30))
	require.NoError(t, err)

	rec := doRequest(router, http.MethodDelete, "/appointments/"+view.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"estado":"Cancelada"`)

	rec = doRequest(router, http.MethodGet, "/appointments/"+view.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"canPay":false`)

	rec = doRequest(router, http.MethodGet, "/appointments/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodDelete, "/appointments/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEndpointOrdersByStart(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	ctx := context.Background()
	_, err := f.service.Book(ctx, f.request(at(15, 0), 30))
	require.NoError(t, err)
	_, err = f.service.Book(ctx, f.request(at(9, 0), 30))
	require.NoError(t, err)
	_, err = f.service.Book(ctx, f.request(at(9, 0).Add(48*time.Hour), 30))
	require.NoError(t, err)

	rec := doRequest(router, http.MethodGet, "/appointments?clinicaId="+f.clinicID.String()+"&desde=2026-03-10&hasta=2026-03-10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var views []View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.True(t, views[0].StartsAt.Equal(at(9, 0)))
	assert.True(t, views[1].StartsAt.Equal(at(15, 0)))

	rec = doRequest(router, http.MethodGet, "/appointments?clinicaId=nope&desde=2026-03-10&hasta=2026-03-10", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRescheduleEndpoint(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	view, err := f.service.Book(context.Background(), f.request(at(10, 0), 30))
	require.NoError(t, err)

	rec := doRequest(router, http.MethodPatch, "/appointments/"+view.ID.String()+"/reschedule", `{"fechaHora":"2026-03-10T16:00:00Z","duracionMinutos":60}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"duracionMinutos":60`)
}
