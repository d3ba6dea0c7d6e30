package server

import (
	"net/http"

	"github.com/cloo-solutions/supportkb/internal/api/handlers"
	"github.com/cloo-solutions/supportkb/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Logger         *zap.Logger
	MaxBodyBytes   int64
	// AllowedOrigins enables CORS for browser callers such as an embedded
	// help widget. Empty disables CORS handling.
	AllowedOrigins []string
	HealthHandler  *handlers.HealthHandler
	ArticleHandler *handlers.ArticleHandler
	JobHandler     *handlers.JobHandler
	SearchHandler  *handlers.SearchHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = middleware.DefaultMaxBodyBytes
	}

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", middleware.OrgIDHeader, middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.OrgScope)
	r.Use(middleware.Sentry)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.MaxBodyBytes(maxBody))

	r.Get("/health", cfg.HealthHandler.Health)

	// Search and ingestion accept organization_id in the body.
	r.Post("/articles", cfg.ArticleHandler.Ingest)
	r.Post("/search", cfg.SearchHandler.Search)
	r.Post("/answer", cfg.SearchHandler.Answer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOrg)

		r.Route("/articles/{id}", func(r chi.Router) {
			r.Delete("/", cfg.ArticleHandler.Delete)
			r.Post("/unpublish", cfg.ArticleHandler.Unpublish)
			r.Get("/jobs", cfg.ArticleHandler.ListJobs)
		})

		r.Get("/jobs/{id}", cfg.JobHandler.Get)
	})

	return r
}
