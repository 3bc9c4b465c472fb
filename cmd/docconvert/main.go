package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"docconvert/internal/config"
	"docconvert/internal/convert"
	"docconvert/internal/domain"
	"docconvert/internal/extract"
	"docconvert/internal/fonts"
	"docconvert/internal/furniture"
	"docconvert/internal/http/server"
	"docconvert/internal/infra/cache"
	"docconvert/internal/infra/chrome"
	"docconvert/internal/infra/fetch"
	"docconvert/internal/infra/gotenberg"
	"docconvert/internal/infra/logging"
	"docconvert/internal/infra/postgres"
	"docconvert/internal/infra/ratelimit"
	"docconvert/internal/infra/rod"
	"docconvert/internal/infra/storage"
	"docconvert/internal/render"
	"docconvert/internal/tokens"
)

func main() {
	cfg := config.Load()
	if err := ensureLogDir(cfg.Logger.File); err != nil {
		fmt.Fprintf(os.Stderr, "cannot create log directory: %v\n", err)
	}
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	logging.SetLogLevel(cfg.Logger.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, cleanup, err := setup(ctx, cfg)
	if err != nil {
		logging.Error("Startup failed", "error", err)
		cancel()
		os.Exit(1)
	}
	defer cleanup()

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// ensureLogDir creates the parent directory of the log file.
func ensureLogDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func newEngine(cfg config.Config) render.Engine {
	switch cfg.PDF.Engine {
	case config.EngineRod:
		return rod.NewFromConfig(cfg)
	case config.EngineGotenberg:
		return gotenberg.NewFromConfig(cfg)
	default:
		return chrome.NewFromConfig(cfg)
	}
}

// setup wires every component and returns the app plus a cleanup releasing
// browsers and connections.
func setup(ctx context.Context, cfg config.Config) (*fiber.App, func(), error) {
	geometry, err := cfg.Geometry()
	if err != nil {
		return nil, nil, err
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pdfs, err := storage.New(cfg.Storage.PDFDir, domain.ExtPDF, cfg.Storage.BaseURL, "output")
	if err != nil {
		return nil, nil, err
	}
	words, err := storage.New(cfg.Storage.WordDir, domain.ExtDOCX, cfg.Storage.BaseURL, "word_output")
	if err != nil {
		return nil, nil, err
	}

	var (
		locker      storage.Locker = storage.NewLocalLocker()
		renderCache convert.RenderCache
	)
	if cfg.Cache.RedisHost != "" {
		lockRedis := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisHost, DB: cfg.Storage.LockDB})
		closers = append(closers, func() { _ = lockRedis.Close() })
		locker = storage.NewRedisLocker(lockRedis, cfg.Storage.LockTTL)

		if cfg.Cache.PDFCacheEnabled {
			cacheRedis := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisHost, DB: cfg.Cache.PDFCacheDB})
			closers = append(closers, func() { _ = cacheRedis.Close() })
			renderCache = cache.New(cacheRedis, cfg.Cache.PDFCacheTTL)
		}
	}

	engine := newEngine(cfg)
	manager := render.NewManager(engine, render.Options{
		MaxSessions:    cfg.PDF.MaxSessions,
		AcquireTimeout: cfg.PDF.AcquireTimeout,
		NetworkIdle:    time.Duration(cfg.PDF.NetworkIdleMS) * time.Millisecond,
		Flags:          cfg.PDF.ChromeFlags,
	})
	closers = append(closers, manager.Close)
	logging.Info("Render engine selected", "engine", manager.Engine(), "max_sessions", cfg.PDF.MaxSessions)

	pool := extract.NewPool(extract.PDFExtractor{}, cfg.Extract.Workers)

	htmlConv := &convert.HTMLConverter{
		Sessions: manager,
		Assets:   fetch.New(cfg.Furniture.FetchTimeout, cfg.Limits.MaxAssetBytes),
		Cache:    renderCache,
		Store:    pdfs,
		Locker:   locker,
		Options: convert.HTMLOptions{
			Geometry: geometry,
			Furniture: furniture.Options{
				HeaderText:   cfg.Furniture.HeaderText,
				FooterText:   cfg.Furniture.FooterText,
				PageNumbers:  cfg.Furniture.PageNumbers,
				LogoHeightPx: cfg.Furniture.LogoHeightPx,
			},
			LogoURL:        cfg.Furniture.HeaderLogoURL,
			LoadTimeout:    cfg.ContentLoadTimeout(),
			RequestTimeout: cfg.RequestTimeout(),
			MaxHTMLBytes:   cfg.Limits.MaxHTMLBytes,
			MaxPDFBytes:    cfg.Limits.MaxPDFBytes,
		},
	}
	docConv := &convert.DocumentConverter{
		Sources:   fetch.New(cfg.Source.FetchTimeout, cfg.Limits.MaxSourceBytes),
		Extractor: pool,
		Store:     words,
		Locker:    locker,
		Options: convert.DocumentOptions{
			StagingDir:     cfg.Extract.StagingDir,
			ExtractTimeout: cfg.Extract.Timeout,
			MaxSourceBytes: cfg.Limits.MaxSourceBytes,
		},
	}

	provisioner := fonts.New(fonts.Options{
		Dirs:       cfg.Fonts.Dirs,
		InstallDir: cfg.Fonts.InstallDir,
		RunFCCache: cfg.Fonts.RunFCCache,
	})
	provisioner.Start(ctx)

	var tokenCache *tokens.Cache
	if cfg.Auth.Postgres.Enabled() {
		dsn, err := postgres.DSN(cfg.Auth.Postgres)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		db := postgres.NewDB()
		closers = append(closers, func() { _ = db.Close() })

		tokenCache = tokens.NewCache()
		reloader := tokens.NewReloader(postgres.NewTokenRepository(db, dsn), tokenCache, cfg.Auth.ReloadInterval)
		if err := reloader.LoadOnce(ctx); err != nil {
			logging.Error("Failed to load API tokens", "error", err)
		}
		reloader.Start(ctx)
	}

	sweeper := storage.NewSweeper(cfg.Storage.Retention, cfg.Storage.SweepInterval, pdfs, words)
	if sweeper.Enabled() {
		go sweeper.Run(ctx)
	}

	limiterStore := ratelimit.NewStore(ratelimit.RedisConfig{
		Addr: cfg.Cache.RedisHost,
		DB:   cfg.Cache.RateLimitDB,
	})

	app := server.New(server.Deps{
		Config:       cfg,
		HTML:         htmlConv,
		Documents:    docConv,
		PDFs:         pdfs,
		Words:        words,
		Locker:       locker,
		Tokens:       tokenCache,
		LimiterStore: limiterStore,
		Render:       manager,
		Extract:      pool,
		Ready:        provisioner.Ready,
	})
	return app, cleanup, nil
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
