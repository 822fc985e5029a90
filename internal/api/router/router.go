package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/appointments"
	"github.com/doorstepdoctor/doorstep-api/internal/booking"
	httpmiddleware "github.com/doorstepdoctor/doorstep-api/internal/http/middleware"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/internal/profiles"
	"github.com/doorstepdoctor/doorstep-api/internal/reconciliation"
	"github.com/doorstepdoctor/doorstep-api/internal/subscriptions"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// Pinger reports backing store health for /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	Booking       *booking.Handler
	Appointments  *appointments.Handler
	Subscriptions *subscriptions.Handler
	Profiles      *profiles.Handler
	Webhook       *reconciliation.WebhookHandler
	// FakeCallbacks is mounted under /dev only when fake payments are allowed.
	FakeCallbacks *reconciliation.FakeCallbackHandler

	Auth  httpmiddleware.AuthConfig
	Roles identity.RoleStore

	// WebhookLimiter throttles the unauthenticated callback ingress per IP.
	WebhookLimiter *httpmiddleware.RateLimiter

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	Readiness          Pinger
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		public.Get("/ready", readinessHandler(cfg.Readiness))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhook != nil {
			webhook := http.Handler(http.HandlerFunc(cfg.Webhook.Handle))
			if cfg.WebhookLimiter != nil {
				webhook = cfg.WebhookLimiter.Middleware(webhook)
			}
			public.Method(http.MethodPost, "/webhooks/intasend", webhook)
		}
		if cfg.FakeCallbacks != nil {
			public.Mount("/dev", cfg.FakeCallbacks.Routes())
		}
		if cfg.Subscriptions != nil {
			public.Get("/api/subscriptions/plans", cfg.Subscriptions.ListPlans)
		}
	})

	// Authenticated API
	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.Authenticate(cfg.Auth, cfg.Roles, cfg.Logger))

		if cfg.Booking != nil {
			api.Post("/appointments", cfg.Booking.Book)
			api.Post("/payments/appointments", cfg.Booking.Pay)
		}
		if cfg.Appointments != nil {
			api.Get("/appointments/{id}", cfg.Appointments.Get)
			api.Patch("/appointments/{id}/status", cfg.Appointments.UpdateStatus)
			api.Get("/doctors/me/appointments", cfg.Appointments.ListForDoctor)
			api.Get("/doctors/me/stats", cfg.Appointments.StatsForDoctor)
			api.Get("/patients/me/appointments", cfg.Appointments.ListForPatient)
		}
		if cfg.Subscriptions != nil {
			api.Post("/subscriptions", cfg.Subscriptions.Subscribe)
			api.Get("/subscriptions/me", cfg.Subscriptions.Mine)
		}
		if cfg.Profiles != nil {
			api.Get("/doctors/me/credentials", cfg.Profiles.GetCredentials)
			api.Put("/doctors/me/credentials", cfg.Profiles.PutCredentials)
			api.Get("/patients/me/medical-history", cfg.Profiles.GetMedicalHistory)
			api.Put("/patients/me/medical-history", cfg.Profiles.PutMedicalHistory)
			api.Put("/admin/doctors/{doctorID}/verification", cfg.Profiles.SetVerification)
		}
	})

	return r
}

func readinessHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p == nil {
			apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			apperr.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
