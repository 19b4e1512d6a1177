package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/dentists"
	"github.com/Hervar88/DentiFlow/internal/observability/metrics"
)

type stubReconciler struct {
	changes []appointments.CalendarChange
	err     error
}

func (s *stubReconciler) ApplyCalendarChanges(ctx context.Context, changes []appointments.CalendarChange) (int, error) {
	s.changes = append(s.changes, changes...)
	if s.err != nil {
		return 0, s.err
	}
	return len(changes), nil
}

type handlerFixture struct {
	fake       *fakeGoogle
	repo       *dentists.InMemoryRepository
	reconciler *stubReconciler
	registry   *prometheus.Registry
	router     chi.Router
}

func newHandlerFixture(t *testing.T, cfgFn func(*Config)) *handlerFixture {
	t.Helper()
	fake := newFakeGoogle(t)
	cfg := fake.config()
	if cfgFn != nil {
		cfgFn(&cfg)
	}
	repo := dentists.NewInMemoryRepository()
	rec := &stubReconciler{}
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	h := NewHandler(NewGoogleCalendar(cfg, repo, nil), rec, "http://localhost:5173/dashboard?calendar=connected", m, nil)

	r := chi.NewRouter()
	r.Route("/google-calendar", h.Routes)
	return &handlerFixture{fake: fake, repo: repo, reconciler: rec, registry: reg, router: r}
}

func (f *handlerFixture) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// webhooks reads dentiflow_webhooks_received_total for the calendar source.
func (f *handlerFixture) webhooks(t *testing.T, result string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "dentiflow_webhooks_received_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, "google_calendar", result) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, source, result string) bool {
	var gotSource, gotResult string
	for _, lp := range m.GetLabel() {
		switch lp.GetName() {
		case "source":
			gotSource = lp.GetValue()
		case "result":
			gotResult = lp.GetValue()
		}
	}
	return gotSource == source && gotResult == result
}

func TestHandlerAuthURL(t *testing.T) {
	f := newHandlerFixture(t, nil)
	id := uuid.New()

	rec := f.do(http.MethodGet, "/google-calendar/auth-url?dentistaId="+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["authUrl"], "state="+id.String())

	rec = f.do(http.MethodGet, "/google-calendar/auth-url?dentistaId=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAuthURLNotConfigured(t *testing.T) {
	f := newHandlerFixture(t, func(c *Config) { c.ClientID = "" })

	rec := f.do(http.MethodGet, "/google-calendar/auth-url?dentistaId="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Google Calendar no está configurado.")
}

func TestHandlerCallback(t *testing.T) {
	f := newHandlerFixture(t, nil)
	d := newDentist(t, f.repo, nil)

	rec := f.do(http.MethodGet, "/google-calendar/callback?code=abc&state="+d.ID.String(), nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://localhost:5173/dashboard?calendar=connected", rec.Header().Get("Location"))

	stored, err := f.repo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.True(t, stored.Calendar.Connected)

	rec = f.do(http.MethodGet, "/google-calendar/callback?code=abc&state=bad", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "State inválido.")

	rec = f.do(http.MethodGet, "/google-calendar/callback?state="+d.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Falta el código de autorización.")

	rec = f.do(http.MethodGet, "/google-calendar/callback?code=abc&state="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dentista no encontrado.")
}

func TestHandlerStatusAndDisconnect(t *testing.T) {
	f := newHandlerFixture(t, nil)
	conn := connected(time.Hour)
	conn.AccountEmail = "carlos@gmail.com"
	d := newDentist(t, f.repo, conn)

	rec := f.do(http.MethodGet, "/google-calendar/status/"+d.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, true, st["connected"])
	assert.Equal(t, "carlos@gmail.com", st["googleEmail"])

	rec = f.do(http.MethodDelete, "/google-calendar/disconnect/"+d.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Google Calendar desconectado.")

	rec = f.do(http.MethodGet, "/google-calendar/status/"+d.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":false,"googleEmail":null,"tokenExpiry":null}`, rec.Body.String())

	rec = f.do(http.MethodDelete, "/google-calendar/disconnect/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRequiresHeaders(t *testing.T) {
	f := newHandlerFixture(t, nil)

	rec := f.do(http.MethodPost, "/google-calendar/webhook", http.Header{"X-Goog-Channel-Id": {"dentiflow-x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.reconciler.changes)
	assert.Equal(t, 1.0, f.webhooks(t, "rejected"))
}

func TestWebhookAppliesChanges(t *testing.T) {
	f := newHandlerFixture(t, nil)
	d := newDentist(t, f.repo, connected(time.Hour))
	f.fake.listItems = []*gcal.Event{{Id: "evt-1", Status: "cancelled"}}

	header := http.Header{
		"X-Goog-Channel-Id":  {"dentiflow-" + d.ID.String()},
		"X-Goog-Resource-Id": {"res-1"},
	}
	rec := f.do(http.MethodPost, "/google-calendar/webhook", header)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.reconciler.changes, 1)
	assert.Equal(t, "evt-1", f.reconciler.changes[0].EventID)
	assert.True(t, f.reconciler.changes[0].Cancelled)
	assert.Equal(t, 1.0, f.webhooks(t, "processed"))
}

func TestWebhookReturnsOKWhenReconcileFails(t *testing.T) {
	f := newHandlerFixture(t, nil)
	d := newDentist(t, f.repo, connected(time.Hour))
	f.fake.listItems = []*gcal.Event{{Id: "evt-1", Status: "confirmed"}}
	f.reconciler.err = errors.New("db down")

	header := http.Header{
		"X-Goog-Channel-Id":  {"dentiflow-" + d.ID.String()},
		"X-Goog-Resource-Id": {"res-1"},
	}
	rec := f.do(http.MethodPost, "/google-calendar/webhook", header)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, f.webhooks(t, "failed"))
}

func TestWebhookUnknownChannelIsIgnored(t *testing.T) {
	f := newHandlerFixture(t, nil)

	header := http.Header{
		"X-Goog-Channel-Id":  {"someone-else"},
		"X-Goog-Resource-Id": {"res-1"},
	}
	rec := f.do(http.MethodPost, "/google-calendar/webhook", header)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.reconciler.changes)
	assert.Empty(t, strings.TrimSpace(rec.Body.String()))
}
