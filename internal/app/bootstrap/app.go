// Package bootstrap assembles the API: stores, adapters, services, handlers
// and background workers, from a loaded config.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Hervar88/DentiFlow/internal/api/router"
	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/calendar"
	"github.com/Hervar88/DentiFlow/internal/chat"
	"github.com/Hervar88/DentiFlow/internal/clinics"
	appconfig "github.com/Hervar88/DentiFlow/internal/config"
	"github.com/Hervar88/DentiFlow/internal/dentists"
	"github.com/Hervar88/DentiFlow/internal/events"
	httpmiddleware "github.com/Hervar88/DentiFlow/internal/http/middleware"
	"github.com/Hervar88/DentiFlow/internal/locking"
	"github.com/Hervar88/DentiFlow/internal/messaging"
	"github.com/Hervar88/DentiFlow/internal/notify"
	"github.com/Hervar88/DentiFlow/internal/observability/metrics"
	"github.com/Hervar88/DentiFlow/internal/patients"
	"github.com/Hervar88/DentiFlow/internal/payments"
	"github.com/Hervar88/DentiFlow/internal/seed"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// App is the wired API process.
type App struct {
	Handler http.Handler

	Appointments *appointments.Service
	Metrics      *metrics.SchedulingMetrics
	Registry     *prometheus.Registry

	pool       *pgxpool.Pool
	redis      *redis.Client
	limiter    *httpmiddleware.RateLimiter
	calendar   *calendar.GoogleCalendar
	calendarOn bool
	reminders  *notify.ReminderWorker
	cfg        *appconfig.Config
	closers    []func() error
	logger     *logging.Logger
}

type stores struct {
	clinics      clinics.Repository
	dentists     dentists.Repository
	patients     patients.Repository
	appointments appointments.Store
	processed    events.Tracker
}

func memoryStores() stores {
	return stores{
		clinics:      clinics.NewInMemoryRepository(),
		dentists:     dentists.NewInMemoryRepository(),
		patients:     patients.NewInMemoryRepository(),
		appointments: appointments.NewMemoryStore(),
		processed:    events.NewMemoryProcessedStore(),
	}
}

func postgresStores(pool *pgxpool.Pool) stores {
	return stores{
		clinics:      clinics.NewPostgresRepository(pool),
		dentists:     dentists.NewPostgresRepository(pool),
		patients:     patients.NewPostgresRepository(pool),
		appointments: appointments.NewPostgresStore(pool),
		processed:    events.NewProcessedStore(pool),
	}
}

// Build wires every component. Postgres is used when DATABASE_URL is set and
// USE_MEMORY_STORE is off; Redis only backs the booking lock.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{cfg: cfg, logger: logger}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.NewSchedulingMetrics(app.Registry)

	healthChecks := map[string]router.HealthCheck{}

	st := memoryStores()
	if !cfg.UseMemoryStore && cfg.DatabaseURL != "" {
		pool, err := ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		app.pool = pool
		app.closers = append(app.closers, func() error { pool.Close(); return nil })
		st = postgresStores(pool)
		healthChecks["postgres"] = pool.Ping
		logger.Info("using postgres stores")
	} else {
		logger.Info("using in-memory stores")
	}

	var locker appointments.Locker = appointments.NewLocalLocker()
	if client := BuildRedisClient(ctx, cfg, logger, true); client != nil {
		app.redis = client
		app.closers = append(app.closers, client.Close)
		locker = locking.NewRedisLocker(client, cfg.LockTTL, cfg.LockWait, logger)
		healthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		logger.Info("using redis booking locks", "addr", cfg.RedisAddr)
	}

	loc, err := time.LoadLocation(cfg.CalendarTimeZone)
	if err != nil {
		logger.Warn("unknown calendar time zone, using UTC", "tz", cfg.CalendarTimeZone, "error", err)
		loc = time.UTC
	}

	app.calendar = calendar.NewGoogleCalendar(calendar.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		WebhookURL:   cfg.GoogleWebhookURL,
		TimeZone:     cfg.CalendarTimeZone,
	}, st.dentists, logger)
	app.calendarOn = calendar.Config{ClientID: cfg.GoogleClientID, ClientSecret: cfg.GoogleClientSecret}.Enabled()

	notifier := buildNotifier(cfg, loc, logger)

	app.Appointments = appointments.NewService(st.appointments, st.dentists, st.patients,
		appointments.WithCalendar(app.calendar),
		appointments.WithNotifier(notifier),
		appointments.WithLocker(locker),
		appointments.WithMetrics(app.Metrics),
		appointments.WithLogger(logger),
		appointments.WithAdapterTimeout(cfg.AdapterTimeout),
	)
	if notifier.HasChannel() {
		app.reminders = notify.NewReminderWorker(app.Appointments, notifier, logger).
			WithInterval(cfg.ReminderInterval).
			WithLeadTime(cfg.ReminderLeadTime)
	}

	gateway := payments.NewMercadoPagoClient(cfg.MercadoPagoAccessToken, logger).WithBaseURL(cfg.MercadoPagoBaseURL)
	paymentsService := payments.NewService(gateway, app.Appointments, st.processed, payments.DepositConfig{
		Amount:        cfg.DepositAmount,
		Currency:      cfg.DepositCurrency,
		PublicBaseURL: cfg.PublicBaseURL,
		Location:      loc,
	}, logger)
	if app.redis != nil {
		paymentsService.WithVelocity(payments.NewVelocityChecker(app.redis, payments.DefaultVelocityConfig(), logger))
	}

	clinicService := clinics.NewService(st.clinics, st.dentists)

	llm, closeLLM := buildLLM(ctx, cfg, logger)
	if closeLLM != nil {
		app.closers = append(app.closers, closeLLM)
	}

	if cfg.SeedDemoData && cfg.IsDevelopment() {
		if _, err := seed.New(seed.Stores{
			Clinics:      st.clinics,
			Dentists:     st.dentists,
			Patients:     st.patients,
			Appointments: st.appointments,
		}, 0, logger).Run(ctx); err != nil {
			logger.Warn("demo seed failed", "error", err)
		}
	}

	app.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	app.Handler = router.New(&router.Config{
		Logger:             logger,
		Metrics:            app.Metrics,
		MetricsHandler:     promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSOrigins,
		RateLimiter:        app.limiter,
		HealthChecks:       healthChecks,
		Appointments:       appointments.NewHandler(app.Appointments, logger),
		Payments:           payments.NewHandler(paymentsService, cfg.MercadoPagoWebhookSecret, app.Metrics, logger),
		Calendar:           calendar.NewHandler(app.calendar, app.Appointments, cfg.PublicBaseURL+"/dashboard?gcal=connected", app.Metrics, logger),
		Clinics:            clinics.NewHandler(clinicService, logger),
		Dentists:           dentists.NewHandler(st.dentists, logger),
		Patients:           patients.NewHandler(st.patients, logger),
		Chat:               chat.NewHandler(chat.NewService(clinicService, llm, logger), logger),
	})
	return app, nil
}

func buildNotifier(cfg *appconfig.Config, loc *time.Location, logger *logging.Logger) *notify.Notifier {
	whatsapp := messaging.NewWhatsAppSender(messaging.WhatsAppConfig{
		AccountSID:    cfg.TwilioAccountSID,
		AuthToken:     cfg.TwilioAuthToken,
		From:          cfg.TwilioWhatsAppFrom,
		DefaultRegion: cfg.DefaultPhoneRegion,
	}, logger)

	// A typed nil would make the interface non-nil.
	var email notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		email = sg
	}

	return notify.NewNotifier(whatsapp, email, notify.Config{
		ClinicName:    cfg.ClinicDisplayName,
		Location:      loc,
		MaxAttempts:   cfg.NotifyMaxAttempts,
		RetryBaseWait: cfg.NotifyRetryBaseWait,
	}, logger)
}

// buildLLM picks the chat provider. The returned closer may be nil.
func buildLLM(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (chat.LLM, func() error) {
	if cfg.LLMProvider == "gemini" && cfg.GeminiAPIKey != "" {
		client, err := chat.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.OpenAIMaxTokens)
		if err == nil {
			logger.Info("chat receptionist using gemini", "model", cfg.GeminiModel)
			return client, client.Close
		}
		logger.Warn("gemini client unavailable, falling back to openai", "error", err)
	}
	client := chat.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIMaxTokens, logger)
	if !client.Configured() {
		logger.Warn("chat receptionist not configured")
	}
	return client, nil
}

// Start launches the background workers; they stop when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	go a.limiter.RunEviction(ctx, time.Minute)
	if a.calendarOn {
		go calendar.NewTokenRefreshWorker(a.calendar, a.logger).
			WithInterval(a.cfg.CalendarRefreshInterval).
			Start(ctx)
	}
	if a.reminders != nil {
		go a.reminders.Start(ctx)
	}
}

// Close releases pools and clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
