package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/dentists"
	"github.com/Hervar88/DentiFlow/internal/patients"
)

// fakeGoogle stands in for the OAuth token endpoint, userinfo, revoke and
// the Calendar v3 events API.
type fakeGoogle struct {
	mu          sync.Mutex
	server      *httptest.Server
	grants      []string
	inserted    []gcal.Event
	updated     map[string]gcal.Event
	deleted     []string
	watched     []gcal.Channel
	revoked     []string
	listItems   []*gcal.Event
	listQueries []url.Values
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	f := &fakeGoogle{updated: map[string]gcal.Event{}}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grant := r.Form.Get("grant_type")
		f.mu.Lock()
		f.grants = append(f.grants, grant)
		f.mu.Unlock()

		resp := map[string]any{"token_type": "Bearer", "expires_in": 3600}
		if grant == "refresh_token" {
			resp["access_token"] = "at-refreshed"
		} else {
			resp["access_token"] = "at-1"
			resp["refresh_token"] = "rt-1"
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"email": "carlos@gmail.com"})
	})
	mux.HandleFunc("POST /revoke", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.revoked = append(f.revoked, r.URL.Query().Get("token"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		var ev gcal.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		f.mu.Lock()
		f.inserted = append(f.inserted, ev)
		f.mu.Unlock()
		writeJSON(w, map[string]string{"id": "evt-new"})
	})
	mux.HandleFunc("PUT /calendar/v3/calendars/primary/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		var ev gcal.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		id := r.PathValue("id")
		f.mu.Lock()
		f.updated[id] = ev
		f.mu.Unlock()
		writeJSON(w, map[string]string{"id": id})
	})
	mux.HandleFunc("DELETE /calendar/v3/calendars/primary/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.listQueries = append(f.listQueries, r.URL.Query())
		items := f.listItems
		f.mu.Unlock()
		writeJSON(w, map[string]any{"items": items})
	})
	mux.HandleFunc("POST /calendar/v3/calendars/primary/events/watch", func(w http.ResponseWriter, r *http.Request) {
		var ch gcal.Channel
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ch))
		f.mu.Lock()
		f.watched = append(f.watched, ch)
		f.mu.Unlock()
		writeJSON(w, map[string]string{"id": ch.Id, "resourceId": "res-1"})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGoogle) config() Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/google-calendar/callback",
		WebhookURL:   "https://api.dentiflow.mx/google-calendar/webhook",
		TimeZone:     "America/Mexico_City",
		Endpoint:     oauth2.Endpoint{AuthURL: f.server.URL + "/auth", TokenURL: f.server.URL + "/token"},
		APIEndpoint:  f.server.URL + "/calendar/v3/",
		UserInfoURL:  f.server.URL + "/userinfo",
		RevokeURL:    f.server.URL + "/revoke",
		HTTPClient:   f.server.Client(),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newDentist(t *testing.T, repo *dentists.InMemoryRepository, conn *dentists.CalendarConnection) *dentists.Dentist {
	t.Helper()
	d, err := repo.Create(context.Background(), &dentists.CreateRequest{
		ClinicID: uuid.New(), FirstName: "Carlos", LastName: "Mendoza", Email: uuid.NewString() + "@sonrisa.mx",
	})
	require.NoError(t, err)
	if conn != nil {
		require.NoError(t, repo.SaveCalendarConnection(context.Background(), d.ID, *conn))
		d.Calendar = *conn
	}
	return d
}

func connected(expiresIn time.Duration) *dentists.CalendarConnection {
	exp := time.Now().Add(expiresIn)
	return &dentists.CalendarConnection{Connected: true, AccessToken: "at-0", RefreshToken: "rt-0", TokenExpiry: &exp}
}

func sampleAppointment(d *dentists.Dentist) *appointments.Appointment {
	return &appointments.Appointment{
		ID:              uuid.New(),
		ClinicID:        d.ClinicID,
		DentistID:       d.ID,
		StartsAt:        time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC),
		DurationMinutes: 45,
		Reason:          "Limpieza",
		Status:          appointments.StatusPending,
		Dentist:         d,
		Patient:         &patients.Patient{FirstName: "María", LastName: "López"},
	}
}

func TestAuthURL(t *testing.T) {
	fake := newFakeGoogle(t)
	cal := NewGoogleCalendar(fake.config(), dentists.NewInMemoryRepository(), nil)
	id := uuid.New()

	raw, err := cal.AuthURL(id)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, id.String(), q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Contains(t, q.Get("scope"), "calendar.events")
	assert.Contains(t, q.Get("scope"), "userinfo.email")

	_, err = NewGoogleCalendar(Config{}, dentists.NewInMemoryRepository(), nil).AuthURL(id)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHandleCallbackStoresTokensAndWatches(t *testing.T) {
	fake := newFakeGoogle(t)
	repo := dentists.NewInMemoryRepository()
	d := newDentist(t, repo, nil)
	cal := NewGoogleCalendar(fake.config(), repo, nil)

	require.NoError(t, cal.HandleCallback(context.Background(), "auth-code", d.ID))

	stored, err := repo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.True(t, stored.Calendar.Connected)
	assert.Equal(t, "at-1", stored.Calendar.AccessToken)
	assert.Equal(t, "rt-1", stored.Calendar.RefreshToken)
	assert.Equal(t, "carlos@gmail.com", stored.Calendar.AccountEmail)
	require.NotNil(t, stored.Calendar.TokenExpiry)

	require.Len(t, fake.watched, 1)
	assert.Equal(t, "dentiflow-"+d.ID.String(), fake.watched[0].Id)
	assert.Equal(t, "web_hook", fake.watched[0].Type)
	assert.Greater(t, fake.watched[0].Expiration, time.Now().Add(6*24*time.Hour).UnixMilli())

	assert.ErrorIs(t, cal.HandleCallback(context.Background(), "code", uuid.New()), ErrDentistNotFound)
}

func TestSyncAppointmentInsertsThenUpdates(t *testing.T) {
	fake := newFakeGoogle(t)
	repo := dentists.NewInMemoryRepository()
	d := newDentist(t, repo, connected(time.Hour))
	cal := NewGoogleCalendar(fake.config(), repo, nil)
	appt := sampleAppointment(d)

	eventID, err := cal.SyncAppointment(context.Background(), appt)
	require.NoError(t, err)
	assert.Equal(t, "evt-new", eventID)

	require.Len(t, fake.inserted, 1)
	ev := fake.inserted[0]
	assert.Equal(t, "🦷 Cita: María López", ev.Summary)
	assert.Contains(t, ev.Description, "Estado: Pendiente")
	assert.Contains(t, ev.Description, "Motivo: Limpieza")
	assert.Equal(t, "5", ev.ColorId)
	assert.Equal(t, "2026-03-10T16:00:00Z", ev.Start.DateTime)
	assert.Equal(t, "2026-03-10T16:45:00Z", ev.End.DateTime)
	assert.Equal(t, "America/Mexico_City", ev.Start.TimeZone)
	require.Len(t, ev.Reminders.Overrides, 2)

	appt.CalendarEventID = eventID
	appt.Status = appointments.StatusConfirmed
	eventID, err = cal.SyncAppointment(context.Background(), appt)
	require.NoError(t, err)
	assert.Equal(t, "evt-new", eventID)
	assert.Equal(t, "7", fake.updated["evt-new"].ColorId)
	assert.Empty(t, fake.grants, "valid token must not be refreshed")
}

func TestSyncSkipsDentistWithoutCalendar(t *testing.T) {
	fake := newFakeGoogle(t)
	repo := dentists.NewInMemoryRepository()
	d := newDentist(t, repo, nil)
	cal := NewGoogleCalendar(fake.config(), repo, nil)

	eventID, err := cal.SyncAppointment(context.Background(), sampleAppointment(d))
	require.NoError(t, err)
	assert.Empty(t, eventID)
	assert.Empty(t, fake.inserted)
}

func TestSyncRefreshesExpiringToken(t *testing.T) {
	fake := newFakeGoogle(t)
	repo := dentists.NewInMemoryRepository()
	d := newDentist(t, repo, connected(30*time.Second))
	cal := NewGoogleCalendar(fake.config(), repo, nil)

	_, err := cal.SyncAppointment(context.Background(), sampleAppointment(d))
	require.NoError(t, err)
	assert.Equal(t, []string{"refresh_token"}, fake.grants)

	stored, err := repo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "at-refreshed", stored.Calendar.AccessToken)
	assert.Equal(t, "rt-0", stored.Calendar.RefreshToken)
	assert.True(t, stored.Calendar.TokenExpiry.After(time.Now().Add(30*time.Minute)))
}

func TestDeleteAppointmentEvent(t *testing.T) {
	fake := newFakeGoogle(t)
	repo := dentists.NewInMemoryRepository()
	d := newDentist(t, repo, connected(time.Hour))
	cal := NewGoogleCalendar(fake.config(), repo, nil)

	appt := sampleAppointment(d)
	require.NoError(t, cal.DeleteAppointmentEvent(context.Background(), appt))
	assert.Empty(t, fake.deleted)

	appt.CalendarEventID = "evt-7"
	require.NoError(t, cal.DeleteAppointmentEvent(context.Background(), appt))
	assert.Equal(t, []string{"evt-7"}, fake.deleted)
}

func TestFetchChanges(t *testing.T) {
	fake := newFakeGoogle(t)
	fake.listItems = []*gcal.Event{
		{Id: "evt-moved", Status: "confirmed", Start: &gcal.EventDateTime{DateTime: "2026-03-10T11:00:00-06:00"}, End: &gcal.EventDateTime{DateTime: "2026-03-10T12:00:00-06:00"}},
		{Id: "evt-gone", Status: "cancelled"},
	}
	repo := dentists.NewInMemoryRepository()
	d := newDentist(t, repo, connected(time.Hour))
	cal := NewGoogleCalendar(fake.config(), repo, nil)

	changes, err := cal.FetchChanges(context.Background(), "dentiflow-"+d.ID.String())
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC), changes[0].StartsAt)
	assert.Equal(t, time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC), changes[0].EndsAt)
	assert.False(t, changes[0].Cancelled)
	assert.True(t, changes[1].Cancelled)
	assert.True(t, changes[1].StartsAt.IsZero())
	for _, c := range changes {
		assert.Equal(t, d.ID, c.DentistID)
	}

	require.Len(t, fake.listQueries, 1)
	q := fake.listQueries[0]
	assert.Equal(t, "true", q.Get("singleEvents"))
	assert.Equal(t, "updated", q.Get("orderBy"))
	assert.NotEmpty(t, q.Get("updatedMin"))

	changes, err = cal.FetchChanges(context.Background(), "other-channel")
	require.NoError(t, err)
	assert.Empty(t, changes)

	changes, err = cal.FetchChanges(context.Background(), "dentiflow-"+uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDisconnectRevokesAndClears(t *testing.T) {
	fake := newFakeGoogle(t)
	repo := dentists.NewInMemoryRepository()
	d := newDentist(t, repo, connected(time.Hour))
	cal := NewGoogleCalendar(fake.config(), repo, nil)

	require.NoError(t, cal.Disconnect(context.Background(), d.ID))
	assert.Equal(t, []string{"at-0"}, fake.revoked)

	st, err := cal.Status(context.Background(), d.ID)
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.Nil(t, st.GoogleEmail)
	assert.Nil(t, st.TokenExpiry)
}

func TestTokenRefreshWorkerRunOnce(t *testing.T) {
	fake := newFakeGoogle(t)
	repo := dentists.NewInMemoryRepository()
	soon := newDentist(t, repo, connected(2*time.Minute))
	newDentist(t, repo, connected(5*time.Hour))
	cal := NewGoogleCalendar(fake.config(), repo, nil)

	n := NewTokenRefreshWorker(cal, nil).WithRefreshBefore(10 * time.Minute).RunOnce(context.Background())
	assert.Equal(t, 1, n)

	stored, err := repo.GetByID(context.Background(), soon.ID)
	require.NoError(t, err)
	assert.Equal(t, "at-refreshed", stored.Calendar.AccessToken)
}

func TestParseChannelID(t *testing.T) {
	id := uuid.New()
	got, ok := parseChannelID("dentiflow-" + id.String())
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = parseChannelID("dentiflow-nope")
	assert.False(t, ok)
	_, ok = parseChannelID(strings.ToUpper("x-" + id.String()))
	assert.False(t, ok)
}
