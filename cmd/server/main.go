package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fin-ner/wizard/internal/api"
	"github.com/fin-ner/wizard/internal/backend"
	"github.com/fin-ner/wizard/internal/config"
	"github.com/fin-ner/wizard/internal/events"
	"github.com/fin-ner/wizard/internal/logging"
	"github.com/fin-ner/wizard/internal/metrics"
	"github.com/fin-ner/wizard/internal/results"
	"github.com/fin-ner/wizard/internal/session"
	"github.com/fin-ner/wizard/internal/sessionstore"
	"github.com/fin-ner/wizard/internal/storage"
	"github.com/fin-ner/wizard/internal/task"
	"github.com/fin-ner/wizard/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
)

const serviceName = "fin-ner-wizard"

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	logger := logging.NewJSONLogger(serviceName, cfg.Advanced.LogLevel)
	slog.SetDefault(logger)

	// Check if running in embedded mode (client built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	// Initialize storage
	blobs, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	store, err := sessionstore.Open(cfg.Storage.SessionBackend, cfg.Storage.SessionDBPath)
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}
	defer store.Close()

	catalog, err := results.LoadCatalog(cfg.Storage.CatalogFile)
	if err != nil {
		return fmt.Errorf("failed to load results catalog: %w", err)
	}

	client, err := backend.New(backend.Config{
		BaseURL:            cfg.Backend.URL,
		Timeout:            cfg.BackendTimeout(),
		RequestsPerSecond:  cfg.Backend.RequestsPerSecond,
		Burst:              cfg.Backend.Burst,
		BreakerFailures:    uint32(max(cfg.Backend.BreakerFailures, 0)),
		BreakerOpenTimeout: cfg.BreakerOpenTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to configure backend client: %w", err)
	}

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	m := metrics.New(serviceName)

	// Initialize session manager
	sessionMgr := session.NewManager(session.Config{
		Store:       store,
		Blobs:       blobs,
		Runner:      newRunner(cfg, client, blobs),
		Recorder:    m,
		Publisher:   publisher,
		Logger:      logger,
		MaxSessions: cfg.Processing.MaxSessions,
	})
	defer sessionMgr.Close()

	if !cfg.AuthEnabled() {
		logger.Warn("no identity provider publishable key configured, sign-in is disabled in the client")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e)
	configureMiddleware(e, cfg, embeddedMode)
	e.Use(m.Middleware())

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Sessions:           sessionMgr,
		Blobs:              blobs,
		Catalog:            catalog,
		Backend:            client,
		Recorder:           m,
		AllowedExtensions:  cfg.AllowedExtensions(),
		WebSocketReadLimit: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
		PublishableKey:     cfg.Auth.PublishableKey,
		Version:            Version,
		Logger:             logger,
	}))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// Register embedded client if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", "error", err)
		} else {
			logger.Info("serving embedded client from binary")
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, embeddedMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sessionMgr.Run(gctx, cfg.CleanupInterval(), cfg.SessionTimeout())
	})
	g.Go(func() error {
		return pruneUploads(gctx, blobs, cfg.CleanupInterval(), cfg.SessionTimeout(), logger)
	})

	return g.Wait()
}

// resolveConfigPath returns FINNER_CONFIG or the config file next to the executable
func resolveConfigPath() (string, error) {
	if p := os.Getenv("FINNER_CONFIG"); p != "" {
		return p, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), "FinNERWizard.config"), nil
}

func newRunner(cfg *config.AppConfig, client *backend.Client, blobs storage.Store) task.Runner {
	if cfg.Processing.Runner == "remote" {
		return task.NewRemote(client, blobs)
	}
	return task.NewSimulated(nil, task.SimulatedConfig{
		Interval:    cfg.TickInterval(),
		Step:        cfg.Processing.ProgressStep,
		SettleDelay: cfg.SettleDelay(),
	})
}

type publisher interface {
	session.Publisher
	Close()
}

func newPublisher(cfg *config.AppConfig, logger *slog.Logger) publisher {
	if cfg.Events.NATSURL == "" {
		return events.Noop{}
	}
	p, err := events.NewNATS(cfg.Events.NATSURL, cfg.Events.Subject, events.NATSOptions{Name: serviceName}, logger)
	if err != nil {
		logger.Warn("handoff events disabled", "url", cfg.Events.NATSURL, "error", err)
		return events.Noop{}
	}
	logger.Info("publishing handoff events", "url", cfg.Events.NATSURL, "subject", p.Subject())
	return p
}

// pruneUploads removes upload files left behind by earlier runs
func pruneUploads(ctx context.Context, blobs *storage.LocalStore, interval, maxAge time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := blobs.PruneOlderThan(maxAge)
		if err != nil {
			logger.Warn("pruning uploads failed", "error", err)
		} else if n > 0 {
			logger.Info("pruned stale uploads", "count", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func configureMiddleware(e *echo.Echo, cfg *config.AppConfig, embeddedMode bool) {
	streaming := func(c echo.Context) bool {
		path := c.Request().URL.Path
		return strings.HasSuffix(path, "/progress") ||
			strings.HasPrefix(path, "/api/ws/") ||
			c.Request().Header.Get("Accept") == "text/event-stream"
	}

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return streaming(c) || path == "/api/health" || path == "/metrics"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return streaming(c) || strings.HasSuffix(c.Request().URL.Path, "/upload")
		},
		ErrorMessage: "Request timeout",
	}))

	// Compression middleware
	if cfg.Advanced.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level:   cfg.Advanced.CompressionLevel,
			Skipper: streaming,
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if !cfg.Server.EnableCORS {
		return
	}
	allowMethods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	if embeddedMode {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     origins,
			AllowMethods:     allowMethods,
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.SessionHeader},
			ExposeHeaders:    []string{api.SessionHeader},
			AllowCredentials: origins[0] != "*",
		}))
		return
	}
	// Development mode - only allow the local dev server
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{
			"http://localhost:5173", "http://127.0.0.1:5173",
			"http://localhost:3000", "http://127.0.0.1:3000",
		},
		AllowMethods:     allowMethods,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, api.SessionHeader},
		ExposeHeaders:    []string{api.SessionHeader},
		AllowCredentials: true,
	}))
}

func printBanner(cfg *config.AppConfig, configPath string, embeddedMode bool) {
	mode := "Development"
	if embeddedMode {
		mode = "Embedded client"
	}
	auth := "disabled"
	if cfg.AuthEnabled() {
		auth = "enabled"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           FinNER Document Wizard                          ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("║  Runner:     %-45s║\n", cfg.Processing.Runner)
	fmt.Printf("║  Auth:       %-45s║\n", auth)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.URL)
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
