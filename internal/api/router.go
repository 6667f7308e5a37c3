package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/api/handlers"
	"github.com/subtrans/backend/internal/api/middleware"
	"github.com/subtrans/backend/internal/auth"
	"github.com/subtrans/backend/internal/config"
	"github.com/subtrans/backend/internal/db"
	"github.com/subtrans/backend/internal/job"
	"github.com/subtrans/backend/internal/progress"
	"github.com/subtrans/backend/internal/storage"
	"github.com/subtrans/backend/internal/subtitle/chunk"
	"github.com/subtrans/backend/internal/subtitle/translate"
)

// Deps are the services the HTTP layer is built on
type Deps struct {
	Config      *config.Config
	DB          *db.Database
	JWT         *auth.JWTService
	Gateway     *translate.Gateway
	Chunks      *chunk.Translator
	Driver      *job.Driver
	Progress    *progress.Store
	Remote      handlers.ProgressSource // optional
	Store       storage.Store
	Defaults    *handlers.Runtime
	RateLimiter *middleware.RateLimiter
	Log         *zap.SugaredLogger
}

func NewRouter(d Deps) *chi.Mux {
	cfg := d.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Log.Named("http")))
	r.Use(cors.Handler(middleware.CORSOptions(cfg.Server.CORSOrigins)))
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Handler)
	}

	// Handlers
	log := d.Log.Named("api")
	authHandler := handlers.NewAuthHandler(d.DB, d.JWT)
	healthHandler := handlers.NewHealthHandler(d.Gateway.AvailableEngines)
	subtitleHandler := handlers.NewSubtitleHandler(d.DB, d.Store, d.Driver, d.Gateway, d.Progress, d.Defaults, handlers.SubtitleConfig{
		UploadLimit: cfg.Server.UploadLimit,
		UploadTTL:   cfg.Storage.UploadTTL,
		OutputTTL:   cfg.Storage.OutputTTL,
	}, log)
	if d.Remote != nil {
		subtitleHandler.WithRemoteProgress(d.Remote)
	}
	translationHandler := handlers.NewTranslationHandler(d.Chunks, d.Gateway, d.Defaults, cfg.Translation.BatchConcurrency, log)
	settingsHandler := handlers.NewSettingsHandler(d.DB, cfg.Engines, d.Defaults.Defaults().Engine, d.Gateway, d.Defaults, log)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)
		r.With(middleware.MaxBodySize(cfg.Server.BodyLimit)).Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(middleware.AuthMiddleware(d.JWT))
			}

			r.Get("/auth/me", authHandler.Me)

			// Uploads carry their own size limit
			r.Post("/subtitle/upload", subtitleHandler.Upload)
			r.Get("/subtitle/progress/{fileID}", subtitleHandler.Progress)
			r.Get("/subtitle/download/{fileID}", subtitleHandler.Download)
			r.Get("/subtitle/info/{fileID}", subtitleHandler.Info)
			r.Get("/subtitle/formats", subtitleHandler.Formats)

			r.Get("/translation/engines", translationHandler.Engines)
			r.Get("/translation/languages", translationHandler.Languages)
			r.Get("/translation/ollama", translationHandler.Ollama)

			r.Group(func(r chi.Router) {
				r.Use(middleware.MaxBodySize(cfg.Server.BodyLimit))
				r.Post("/subtitle/translate", subtitleHandler.Translate)
				r.Post("/translation/text", translationHandler.Text)
				r.Post("/translation/batch", translationHandler.Batch)
			})

			// Settings
			r.Group(func(r chi.Router) {
				if cfg.Auth.Enabled {
					r.Use(middleware.RequireRole("admin"))
				}
				r.Use(middleware.MaxBodySize(cfg.Server.BodyLimit))
				r.Get("/settings", settingsHandler.GetSettings)
				r.Put("/settings", settingsHandler.UpdateSettings)
			})
		})
	})

	return r
}
