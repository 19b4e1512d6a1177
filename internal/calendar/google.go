// Package calendar syncs appointments with each dentist's Google Calendar and
// reconciles changes made on the Google side.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/dentists"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

var calendarTracer = otel.Tracer("dentiflow.internal.calendar")

const (
	primaryCalendar    = "primary"
	channelPrefix      = "dentiflow-"
	refreshWindow      = 60 * time.Second
	watchLifetime      = 7 * 24 * time.Hour
	changeLookback     = 5 * time.Minute
	defaultUserInfo    = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultRevokeURL   = "https://oauth2.googleapis.com/revoke"
	userInfoEmailScope = "https://www.googleapis.com/auth/userinfo.email"
)

var (
	ErrNotConfigured   = errors.New("calendar: google oauth not configured")
	ErrDentistNotFound = errors.New("calendar: dentist not found")
)

// Config holds the Google OAuth client and push-notification settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	WebhookURL   string
	TimeZone     string

	// Overrides, used by tests.
	Endpoint    oauth2.Endpoint
	APIEndpoint string
	UserInfoURL string
	RevokeURL   string
	HTTPClient  *http.Client
}

// Enabled reports whether OAuth credentials are present.
func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// DentistStore is the slice of the dentist repository the adapter needs.
type DentistStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*dentists.Dentist, error)
	ListCalendarConnected(ctx context.Context) ([]*dentists.Dentist, error)
	SaveCalendarConnection(ctx context.Context, id uuid.UUID, conn dentists.CalendarConnection) error
}

// GoogleCalendar implements appointments.CalendarSync against Google Calendar v3.
type GoogleCalendar struct {
	cfg      Config
	oauth    *oauth2.Config
	dentists DentistStore
	logger   *logging.Logger
	now      func() time.Time
}

func NewGoogleCalendar(cfg Config, store DentistStore, logger *logging.Logger) *GoogleCalendar {
	if store == nil {
		panic("calendar: dentist store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfo
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = defaultRevokeURL
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "America/Mexico_City"
	}
	return &GoogleCalendar{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     cfg.Endpoint,
			Scopes:       []string{gcal.CalendarEventsScope, userInfoEmailScope},
		},
		dentists: store,
		logger:   logger,
		now:      time.Now,
	}
}

// AuthURL is the consent URL for a dentist; the dentist id travels in state.
func (g *GoogleCalendar) AuthURL(dentistID uuid.UUID) (string, error) {
	if !g.cfg.Enabled() {
		return "", ErrNotConfigured
	}
	return g.oauth.AuthCodeURL(dentistID.String(), oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// HandleCallback exchanges the authorization code, stores the tokens and
// registers a push channel for the dentist's primary calendar.
func (g *GoogleCalendar) HandleCallback(ctx context.Context, code string, dentistID uuid.UUID) error {
	ctx, span := calendarTracer.Start(ctx, "calendar.oauth_callback")
	defer span.End()
	span.SetAttributes(attribute.String("dentiflow.dentist_id", dentistID.String()))

	if !g.cfg.Enabled() {
		return ErrNotConfigured
	}
	d, err := g.dentist(ctx, dentistID)
	if err != nil {
		return err
	}

	tok, err := g.oauth.Exchange(g.clientContext(ctx), code)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("calendar: exchange code: %w", err)
	}

	email, err := g.fetchEmail(ctx, tok)
	if err != nil {
		g.logger.Warn("could not read google account email", "dentist_id", dentistID, "error", err)
	}

	conn := dentists.CalendarConnection{
		Connected:    true,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  expiryOf(tok, g.now()),
		AccountEmail: email,
	}
	if conn.RefreshToken == "" {
		conn.RefreshToken = d.Calendar.RefreshToken
	}
	if err := g.dentists.SaveCalendarConnection(ctx, dentistID, conn); err != nil {
		span.RecordError(err)
		return fmt.Errorf("calendar: save connection: %w", err)
	}
	d.Calendar = conn
	g.logger.Info("google calendar connected", "dentist_id", dentistID, "email", email)

	if g.cfg.WebhookURL != "" {
		if err := g.watch(ctx, d); err != nil {
			g.logger.Error("failed to register calendar webhook", "dentist_id", dentistID, "error", err)
		}
	}
	return nil
}

// SyncAppointment creates or updates the appointment's event. It returns ""
// without error when the dentist has no usable calendar connection.
func (g *GoogleCalendar) SyncAppointment(ctx context.Context, appt *appointments.Appointment) (string, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.sync_appointment")
	defer span.End()
	span.SetAttributes(attribute.String("dentiflow.appointment_id", appt.ID.String()))

	d, err := g.connectedDentist(ctx, appt.DentistID)
	if err != nil || d == nil {
		return "", err
	}
	svc, err := g.service(ctx, d)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	ev := buildEvent(appt, g.cfg.TimeZone)
	if appt.CalendarEventID != "" {
		updated, err := svc.Events.Update(primaryCalendar, appt.CalendarEventID, ev).Context(ctx).Do()
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("calendar: update event: %w", err)
		}
		g.logger.Info("updated google calendar event", "event_id", updated.Id, "appointment_id", appt.ID)
		return updated.Id, nil
	}

	created, err := svc.Events.Insert(primaryCalendar, ev).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	g.logger.Info("created google calendar event", "event_id", created.Id, "appointment_id", appt.ID)
	return created.Id, nil
}

// DeleteAppointmentEvent removes the linked event, if any.
func (g *GoogleCalendar) DeleteAppointmentEvent(ctx context.Context, appt *appointments.Appointment) error {
	if appt.CalendarEventID == "" {
		return nil
	}
	ctx, span := calendarTracer.Start(ctx, "calendar.delete_event")
	defer span.End()
	span.SetAttributes(attribute.String("dentiflow.appointment_id", appt.ID.String()))

	d, err := g.connectedDentist(ctx, appt.DentistID)
	if err != nil || d == nil {
		return err
	}
	svc, err := g.service(ctx, d)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := svc.Events.Delete(primaryCalendar, appt.CalendarEventID).Context(ctx).Do(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("calendar: delete event: %w", err)
	}
	g.logger.Info("deleted google calendar event", "event_id", appt.CalendarEventID, "appointment_id", appt.ID)
	return nil
}

// FetchChanges resolves the dentist behind a push channel and lists the
// events changed in the last few minutes. Unknown channels yield no changes.
func (g *GoogleCalendar) FetchChanges(ctx context.Context, channelID string) ([]appointments.CalendarChange, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.fetch_changes")
	defer span.End()

	dentistID, ok := parseChannelID(channelID)
	if !ok {
		return nil, nil
	}
	span.SetAttributes(attribute.String("dentiflow.dentist_id", dentistID.String()))

	d, err := g.dentists.GetByID(ctx, dentistID)
	if err != nil {
		if errors.Is(err, dentists.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("calendar: load dentist: %w", err)
	}
	if !d.Calendar.Connected {
		return nil, nil
	}

	svc, err := g.service(ctx, d)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	events, err := svc.Events.List(primaryCalendar).
		UpdatedMin(g.now().Add(-changeLookback).UTC().Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(true).
		OrderBy("updated").
		Context(ctx).
		Do()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("calendar: list events: %w", err)
	}

	changes := make([]appointments.CalendarChange, 0, len(events.Items))
	for _, ev := range events.Items {
		if ev == nil || ev.Id == "" {
			continue
		}
		change := toChange(ev)
		change.DentistID = dentistID
		changes = append(changes, change)
	}
	return changes, nil
}

// Disconnect revokes the token at Google (best-effort) and clears the connection.
func (g *GoogleCalendar) Disconnect(ctx context.Context, dentistID uuid.UUID) error {
	d, err := g.dentist(ctx, dentistID)
	if err != nil {
		return err
	}
	if token := d.Calendar.AccessToken; token != "" {
		if err := g.revoke(ctx, token); err != nil {
			g.logger.Warn("failed to revoke google token", "dentist_id", dentistID, "error", err)
		}
	}
	if err := g.dentists.SaveCalendarConnection(ctx, dentistID, dentists.CalendarConnection{}); err != nil {
		return fmt.Errorf("calendar: clear connection: %w", err)
	}
	g.logger.Info("google calendar disconnected", "dentist_id", dentistID)
	return nil
}

// Status is the connection summary shown in the dashboard.
type Status struct {
	Connected   bool       `json:"connected"`
	GoogleEmail *string    `json:"googleEmail"`
	TokenExpiry *time.Time `json:"tokenExpiry"`
}

// Status reports the connection state. Unknown dentists read as disconnected.
func (g *GoogleCalendar) Status(ctx context.Context, dentistID uuid.UUID) (Status, error) {
	d, err := g.dentists.GetByID(ctx, dentistID)
	if err != nil {
		if errors.Is(err, dentists.ErrNotFound) {
			return Status{}, nil
		}
		return Status{}, err
	}
	st := Status{Connected: d.Calendar.Connected, TokenExpiry: d.Calendar.TokenExpiry}
	if d.Calendar.AccountEmail != "" {
		email := d.Calendar.AccountEmail
		st.GoogleEmail = &email
	}
	return st, nil
}

// RefreshToken exchanges the stored refresh token for a new access token and persists it.
func (g *GoogleCalendar) RefreshToken(ctx context.Context, d *dentists.Dentist) error {
	_, err := g.refresh(ctx, d)
	return err
}

// ListExpiring returns connected dentists whose access token expires within d.
func (g *GoogleCalendar) ListExpiring(ctx context.Context, within time.Duration) ([]*dentists.Dentist, error) {
	all, err := g.dentists.ListCalendarConnected(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := g.now().Add(within)
	out := make([]*dentists.Dentist, 0, len(all))
	for _, d := range all {
		if d.Calendar.TokenExpiry == nil || d.Calendar.TokenExpiry.Before(cutoff) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (g *GoogleCalendar) watch(ctx context.Context, d *dentists.Dentist) error {
	svc, err := g.service(ctx, d)
	if err != nil {
		return err
	}
	channel := &gcal.Channel{
		Id:         channelPrefix + d.ID.String(),
		Type:       "web_hook",
		Address:    g.cfg.WebhookURL,
		Expiration: g.now().Add(watchLifetime).UnixMilli(),
	}
	if _, err := svc.Events.Watch(primaryCalendar, channel).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar: watch: %w", err)
	}
	g.logger.Info("registered google calendar webhook", "dentist_id", d.ID)
	return nil
}

func (g *GoogleCalendar) service(ctx context.Context, d *dentists.Dentist) (*gcal.Service, error) {
	tok, err := g.token(ctx, d)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(g.clientContext(ctx), oauth2.StaticTokenSource(tok))),
	}
	if g.cfg.APIEndpoint != "" {
		opts = append(opts, option.WithEndpoint(g.cfg.APIEndpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: build service: %w", err)
	}
	return svc, nil
}

// token returns the stored access token, refreshing it when it expires
// within refreshWindow.
func (g *GoogleCalendar) token(ctx context.Context, d *dentists.Dentist) (*oauth2.Token, error) {
	conn := d.Calendar
	if conn.AccessToken != "" && conn.TokenExpiry != nil && conn.TokenExpiry.Sub(g.now()) > refreshWindow {
		return &oauth2.Token{
			AccessToken:  conn.AccessToken,
			RefreshToken: conn.RefreshToken,
			TokenType:    "Bearer",
			Expiry:       *conn.TokenExpiry,
		}, nil
	}
	return g.refresh(ctx, d)
}

func (g *GoogleCalendar) refresh(ctx context.Context, d *dentists.Dentist) (*oauth2.Token, error) {
	if d.Calendar.RefreshToken == "" {
		return nil, fmt.Errorf("calendar: dentist %s has no refresh token", d.ID)
	}
	fresh, err := g.oauth.TokenSource(g.clientContext(ctx), &oauth2.Token{RefreshToken: d.Calendar.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("calendar: refresh token: %w", err)
	}

	conn := d.Calendar
	conn.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		conn.RefreshToken = fresh.RefreshToken
	}
	conn.TokenExpiry = expiryOf(fresh, g.now())
	if err := g.dentists.SaveCalendarConnection(ctx, d.ID, conn); err != nil {
		return nil, fmt.Errorf("calendar: save refreshed token: %w", err)
	}
	d.Calendar = conn
	g.logger.Debug("refreshed google token", "dentist_id", d.ID, "expiry", conn.TokenExpiry)
	return fresh, nil
}

func (g *GoogleCalendar) fetchEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	client := oauth2.NewClient(g.clientContext(ctx), oauth2.StaticTokenSource(tok))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.UserInfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	return info.Email, nil
}

func (g *GoogleCalendar) revoke(ctx context.Context, token string) error {
	endpoint := g.cfg.RevokeURL + "?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("revoke status %d", resp.StatusCode)
	}
	return nil
}

func (g *GoogleCalendar) connectedDentist(ctx context.Context, id uuid.UUID) (*dentists.Dentist, error) {
	d, err := g.dentists.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, dentists.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("calendar: load dentist: %w", err)
	}
	if !g.cfg.Enabled() || !d.Calendar.CanSync() {
		g.logger.Debug("dentist not connected to google calendar, skipping", "dentist_id", id)
		return nil, nil
	}
	return d, nil
}

func (g *GoogleCalendar) dentist(ctx context.Context, id uuid.UUID) (*dentists.Dentist, error) {
	d, err := g.dentists.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, dentists.ErrNotFound) {
			return nil, ErrDentistNotFound
		}
		return nil, fmt.Errorf("calendar: load dentist: %w", err)
	}
	return d, nil
}

func (g *GoogleCalendar) clientContext(ctx context.Context) context.Context {
	if g.cfg.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.cfg.HTTPClient)
}

func (g *GoogleCalendar) httpClient() *http.Client {
	if g.cfg.HTTPClient != nil {
		return g.cfg.HTTPClient
	}
	return http.DefaultClient
}

func parseChannelID(channelID string) (uuid.UUID, bool) {
	if !strings.HasPrefix(channelID, channelPrefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(channelID, channelPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func expiryOf(tok *oauth2.Token, now time.Time) *time.Time {
	exp := tok.Expiry
	if exp.IsZero() {
		exp = now.Add(time.Hour)
	}
	exp = exp.UTC()
	return &exp
}
