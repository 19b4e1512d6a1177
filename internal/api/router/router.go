package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/calendar"
	"github.com/Hervar88/DentiFlow/internal/chat"
	"github.com/Hervar88/DentiFlow/internal/clinics"
	"github.com/Hervar88/DentiFlow/internal/dentists"
	httpmiddleware "github.com/Hervar88/DentiFlow/internal/http/middleware"
	"github.com/Hervar88/DentiFlow/internal/http/respond"
	"github.com/Hervar88/DentiFlow/internal/observability/metrics"
	"github.com/Hervar88/DentiFlow/internal/patients"
	"github.com/Hervar88/DentiFlow/internal/payments"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger             *logging.Logger
	Metrics            *metrics.SchedulingMetrics
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
	HealthChecks       map[string]HealthCheck

	Appointments *appointments.Handler
	Payments     *payments.Handler
	Calendar     *calendar.Handler
	Clinics      *clinics.Handler
	Dentists     *dentists.Handler
	Patients     *patients.Handler
	Chat         *chat.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.Metrics))

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Anonymous visitors can book and chat; both are rate limited.
	limitPost := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		limitPost = onlyMethod(http.MethodPost, cfg.RateLimiter.Middleware)
	}

	if cfg.Appointments != nil {
		r.Route("/appointments", func(ar chi.Router) {
			ar.Use(limitPost)
			cfg.Appointments.Routes(ar)
			if cfg.Payments != nil {
				cfg.Payments.AppointmentRoutes(ar)
			}
		})
	}
	if cfg.Payments != nil {
		r.Route("/payments", cfg.Payments.Routes)
	}
	if cfg.Calendar != nil {
		r.Route("/google-calendar", cfg.Calendar.Routes)
	}
	if cfg.Clinics != nil {
		r.Get("/clinica/{slug}", cfg.Clinics.GetProfile)
	}
	if cfg.Dentists != nil {
		r.Route("/dentistas", cfg.Dentists.Routes)
	}
	if cfg.Patients != nil {
		r.Route("/pacientes", cfg.Patients.Routes)
	}
	if cfg.Chat != nil {
		r.Route("/chat", func(cr chi.Router) {
			cr.Use(limitPost)
			cfg.Chat.Routes(cr)
		})
	}

	return r
}

func onlyMethod(method string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == method {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "healthy", Timestamp: time.Now().UTC()}
		if len(checks) == 0 {
			respond.JSON(w, http.StatusOK, resp)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Checks = make(map[string]string, len(checks))
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		respond.JSON(w, status, resp)
	}
}
