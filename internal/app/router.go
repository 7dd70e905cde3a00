package app

import (
	"database/sql"
	"net/http"
	"time"

	"surveyentry/internal/administration"
	"surveyentry/internal/app/observability"
	"surveyentry/internal/auth"
	"surveyentry/internal/metrics"
	"surveyentry/internal/respondent"
	"surveyentry/internal/store"
	"surveyentry/internal/survey"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP surface is built from.
// DB is optional and only feeds connection pool metrics.
type Deps struct {
	DB       *sql.DB
	Store    store.Store
	AuthRepo auth.Repository
	Rules    survey.Rules
	Logger   *zap.Logger
	Registry *prometheus.Registry
}

func NewRouter(cfg Config, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	collector := observability.NewCollector(deps.Registry, deps.DB, deps.Logger)
	m := metrics.New(deps.Registry)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)

	authSvc := auth.NewService(deps.AuthRepo, auth.ServiceConfig{
		SessionTTL: cfg.SessionTTL,
		Logger:     deps.Logger,
	})
	authHandler := auth.NewHandler(authSvc, cfg.Production())

	respondentSvc := respondent.NewService(deps.Store, respondent.ServiceConfig{
		Rules:   deps.Rules,
		Logger:  deps.Logger,
		Metrics: m,
	})
	respondentHandler := respondent.NewHandler(respondentSvc)

	adminSvc := administration.NewService(deps.Store, administration.ServiceConfig{
		Rules:   deps.Rules,
		Logger:  deps.Logger,
		Metrics: m,
	})
	adminHandler := administration.NewHandler(adminSvc)

	loginLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Method(http.MethodGet, "/metrics", collector.MetricsHandler())

	r.Route("/api/v1", func(api chi.Router) {
		api.With(RateLimitMiddleware(loginLimiter)).Post("/auth/login", authHandler.Login)
		api.Get("/auth/csrf", CSRFTokenHandler(cfg.Production()))

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Use(CSRFMiddleware(cfg.CSRFEnforced))

			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)

			secure.Get("/respondents", respondentHandler.Search)
			secure.Post("/respondents", respondentHandler.Create)
			secure.Post("/respondents/review", respondentHandler.Review)
			secure.Post("/respondents/import", respondentHandler.ImportRoster)
			secure.Get("/respondents/export", respondentHandler.ExportRoster)
			secure.Get("/respondents/{id}/administrations", respondentHandler.TakenSurveys)
			secure.Get("/respondents/{id}/surveys", respondentHandler.AvailableSurveys)
			secure.Get("/respondents/{id}/linked-students", respondentHandler.LinkedStudents)

			secure.Get("/surveys/{id}/schema", adminHandler.EntryForm)
			secure.Get("/administrations/{id}/prefill", adminHandler.Prefill)
			secure.Post("/administrations", adminHandler.Create)
			secure.Put("/administrations/{id}", adminHandler.Update)
		})
	})

	return r
}
