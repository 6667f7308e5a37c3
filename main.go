package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/api"
	"github.com/subtrans/backend/internal/api/handlers"
	"github.com/subtrans/backend/internal/api/middleware"
	"github.com/subtrans/backend/internal/auth"
	"github.com/subtrans/backend/internal/config"
	"github.com/subtrans/backend/internal/db"
	"github.com/subtrans/backend/internal/job"
	"github.com/subtrans/backend/internal/logger"
	"github.com/subtrans/backend/internal/progress"
	"github.com/subtrans/backend/internal/storage"
	"github.com/subtrans/backend/internal/subtitle"
	"github.com/subtrans/backend/internal/subtitle/chunk"
	"github.com/subtrans/backend/internal/subtitle/translate"
	"github.com/subtrans/backend/internal/watcher"
)

const (
	sweepInterval    = 10 * time.Minute
	shutdownTimeout  = 15 * time.Second
	redisDialTimeout = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.GeneratedSecret {
		log.Warnw("no JWT secret configured, generated a random one; tokens will not survive restarts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.Paths.Data, 0755); err != nil {
		log.Fatalw("create data directory", "path", cfg.Paths.Data, "error", err)
	}

	database, err := db.NewSQLite(cfg.Paths.DB)
	if err != nil {
		log.Fatalw("initialize database", "error", err)
	}
	defer database.Close()

	if err := database.EnsureAdmin(cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		log.Fatalw("create admin user", "error", err)
	}

	settings, err := database.GetAllSettings()
	if err != nil {
		log.Fatalw("load settings", "error", err)
	}
	gw := translate.NewGateway(handlers.EngineCredentials(cfg.Engines, settings), log.Named("translate"))
	log.Infow("translation engines ready", "engines", gw.AvailableEngines())

	chunks := chunk.New(gw, log.Named("chunk"))

	tracker := progress.NewStore(cfg.Translation.ProgressTTL, log.Named("progress"))
	go tracker.Run(ctx, sweepInterval)

	var remote handlers.ProgressSource
	if cfg.Redis.Addr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
		pub, err := progress.NewRedisPublisher(dialCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix, cfg.Translation.ProgressTTL, log.Named("progress"))
		cancel()
		if err != nil {
			log.Warnw("redis unavailable, progress is kept in memory only", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer pub.Close()
			tracker.Subscribe(pub.Observe)
			remote = pub
			log.Infow("publishing progress to redis", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
		}
	}

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatalw("initialize storage", "backend", cfg.Storage.Backend, "error", err)
	}
	go storage.NewSweeper(database, store, log.Named("storage")).Run(ctx, sweepInterval)

	driver := job.NewDriver(chunks, gw, tracker, log.Named("job"))
	driver.ChunkPause = cfg.Translation.ChunkPause

	defaults := defaultOptions(cfg)
	rt := handlers.NewRuntime(defaults)
	if engine := settings["default_engine"]; engine != "" {
		rt.SetEngine(engine)
	}

	if cfg.Watch.InputDir != "" {
		if err := startWatcher(ctx, cfg, driver, rt.Defaults(), log.Named("watcher")); err != nil {
			log.Fatalw("start watch folder", "dir", cfg.Watch.InputDir, "error", err)
		}
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow,
		"/api/subtitle/progress/", "/api/subtitle/download/", "/api/health")
	go limiter.Run(ctx)

	router := api.NewRouter(api.Deps{
		Config:      cfg,
		DB:          database,
		JWT:         auth.NewJWTService(cfg.Auth.JWTSecret),
		Gateway:     gw,
		Chunks:      chunks,
		Driver:      driver,
		Progress:    tracker,
		Remote:      remote,
		Store:       store,
		Defaults:    rt,
		RateLimiter: limiter,
		Log:         log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("shutdown", "error", err)
		}
	}()

	log.Infow("starting server", "addr", srv.Addr, "auth", cfg.Auth.Enabled, "storage", cfg.Storage.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalw("server failed", "error", err)
	}
}

func defaultOptions(cfg *config.Config) job.Options {
	opts := job.Options{ChunkSize: cfg.Translation.ChunkSize}
	opts.Engine = cfg.Translation.Engine
	opts.Mode = chunk.Mode(cfg.Translation.Mode)
	opts.MaxRetries = cfg.Translation.MaxRetries
	opts.RetryDelay = cfg.Translation.RetryDelay
	opts.EnableFallback = *cfg.Translation.EnableFallback
	opts.Normalize()
	return opts
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (storage.Store, error) {
	if cfg.Storage.Backend == "minio" {
		m := cfg.Storage.Minio
		return storage.NewMinio(ctx, storage.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
			Region:    m.Region,
		})
	}

	local, err := storage.NewLocal(cfg.Paths.Uploads)
	if err != nil {
		return nil, err
	}
	// Files left over from a previous run are older than any live upload
	removed, err := local.Clean(time.Now().Add(-cfg.Storage.UploadTTL))
	if err != nil {
		log.Warnw("clean uploads directory", "path", cfg.Paths.Uploads, "error", err)
	} else if removed > 0 {
		log.Infow("cleaned uploads directory", "path", cfg.Paths.Uploads, "removed", removed)
	}
	return local, nil
}

func startWatcher(ctx context.Context, cfg *config.Config, driver *job.Driver, opts job.Options, log *zap.SugaredLogger) error {
	var outFormat subtitle.Format
	if cfg.Watch.OutputFormat != "" {
		f, err := subtitle.ParseFormat(cfg.Watch.OutputFormat)
		if err != nil {
			return err
		}
		outFormat = f
	}
	if err := os.MkdirAll(cfg.Watch.OutputDir, 0755); err != nil {
		return err
	}

	opts.TargetLang = cfg.Watch.TargetLang
	handler := watcher.TranslateHandler(driver, opts, cfg.Watch.OutputDir, outFormat, log)
	w, err := watcher.New(cfg.Watch.InputDir, handler, log, cfg.Watch.MaxConcurrent)
	if err != nil {
		return err
	}

	go func() {
		defer w.Stop()
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("watch folder stopped", "error", err)
		}
	}()
	log.Infow("watching folder", "input", cfg.Watch.InputDir, "output", cfg.Watch.OutputDir, "target_lang", opts.TargetLang)
	return nil
}
