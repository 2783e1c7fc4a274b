package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archives-observability/archives/config"
	"github.com/archives-observability/archives/handlers"
	"github.com/archives-observability/archives/metrics"
	"github.com/archives-observability/archives/middleware"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/query"
	"github.com/archives-observability/archives/services"
	"github.com/archives-observability/archives/store"
	"github.com/archives-observability/archives/tools"
	"github.com/archives-observability/archives/utils"
	"github.com/archives-observability/archives/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	bodyLimit       = 1 << 20
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

// deps are the collaborators shared by both Fiber apps.
type deps struct {
	cfg      *config.Config
	logger   *utils.Logger
	service  services.QueryServiceInterface
	registry *tools.Registry
	metrics  *metrics.Metrics
	hub      *websocket.Hub
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(os.Getenv("ARCHIVES_CONFIG_FILE"))
	if err != nil {
		log.Fatal("Configuration could not be loaded: ", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		log.Fatal("Configuration validation failed: ", errs)
	}

	logger := utils.InitLogger(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	logger.Info("Starting archives query service", map[string]interface{}{
		"version":     version,
		"environment": cfg.Environment,
		"api_address": cfg.APIAddress(),
		"mcp_enabled": cfg.MCP.Enabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", err)
		os.Exit(1)
	}
	logger.Info("Server shutdown completed successfully")
}

// run wires the store, the query service and both listeners, then blocks
// until ctx is cancelled or a listener fails.
func run(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	db, err := store.Open(cfg.StoreConnection())
	if err != nil {
		return err
	}

	m := metrics.New()
	executor := store.NewExecutor(db, store.Config{
		QueryTimeout:   cfg.Query.Timeout,
		AcquireTimeout: cfg.Query.AcquireTimeout,
		MaxConnections: int64(cfg.ClickHouse.PoolSize),
		Breaker:        cfg.StoreBreaker(),
		Observer:       m,
	}, logger.Named("store"))

	shutdown := utils.NewGracefulShutdown(shutdownTimeout, logger)
	shutdown.Register("store", func(context.Context) error { return executor.Close() })

	if err := m.RegisterPool(executor.Stats); err != nil {
		return errors.Join(err, shutdown.Shutdown(context.Background()))
	}

	d, err := buildDeps(cfg, logger, executor, m)
	if err != nil {
		return errors.Join(err, shutdown.Shutdown(context.Background()))
	}

	utils.Go(logger, "tail_hub", func() { d.hub.Run(ctx) })
	if cfg.Tail.Enabled {
		tail := services.NewTailService(d.service, d.hub, cfg.Tail.PollInterval)
		utils.Go(logger, "tail_poller", func() { tail.Run(ctx) })
	}

	apps := map[string]*fiber.App{cfg.APIAddress(): createAPIApp(d)}
	if cfg.MCP.Enabled {
		apps[cfg.MCPAddress()] = createToolApp(d)
	}

	listenErr := make(chan error, len(apps))
	for address, app := range apps {
		shutdown.Register(address, app.ShutdownWithContext)
		go func() {
			logger.Info("Server starting", map[string]interface{}{
				"address": address,
				"app":     app.Config().AppName,
			})
			if err := app.Listen(address); err != nil {
				listenErr <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, starting graceful shutdown...")
	case runErr = <-listenErr:
		logger.Error("Server failed to start", runErr)
	}

	// listeners stop before the store closes
	return errors.Join(runErr, shutdown.Shutdown(context.Background()))
}

// buildDeps assembles the query service, the tool registry and the live
// tail hub on top of runner.
func buildDeps(cfg *config.Config, logger *utils.Logger, runner services.QueryRunner, m *metrics.Metrics) (*deps, error) {
	builder, err := query.NewBuilder(cfg.BuilderConfig())
	if err != nil {
		return nil, err
	}

	svc := services.NewQueryService(builder, runner, services.QueryServiceConfig{
		Version: version,
		Retention: models.Retention{
			LogsDays:    cfg.Retention.LogsDays,
			MetricsDays: cfg.Retention.MetricsDays,
		},
		HealthCacheTTL: cfg.HealthCacheTTL,
	})

	registry, err := tools.NewRegistry(tools.QueryTools(svc, nil)...)
	if err != nil {
		return nil, err
	}

	return &deps{
		cfg:      cfg,
		logger:   logger,
		service:  svc,
		registry: registry.WithObserver(m),
		metrics:  m,
		hub:      websocket.NewHub(logger.Named("tail"), m),
	}, nil
}

func newFiberApp(name string, d *deps) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name + " " + version,
		ErrorHandler:          middleware.ErrorHandler(d.logger),
		ReadTimeout:           d.cfg.API.Timeout,
		WriteTimeout:          d.cfg.API.Timeout,
		IdleTimeout:           idleTimeout,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})
}

func setupMiddleware(app *fiber.App, surface string, d *deps) {
	app.Use(middleware.PanicRecovery(d.logger))
	app.Use(middleware.CorrelationID())
	app.Use(middleware.StructuredLogging(d.logger))

	accessLog := middleware.DefaultAccessLogConfig()
	accessLog.Logger = d.logger
	app.Use(middleware.AccessLog(accessLog))

	app.Use(middleware.RequestMetrics(surface, d.metrics))
}

// createAPIApp builds the REST surface: queries, metrics exposition and
// the live tail socket.
func createAPIApp(d *deps) *fiber.App {
	app := newFiberApp("archives-api", d)
	setupMiddleware(app, "api", d)
	app.Use(middleware.CORSWithOrigins(d.cfg.CORSOrigins))

	h := handlers.NewQueryHandler(d.service, d.cfg.API.Timeout)
	app.Get("/health", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(d.metrics.Handler()))

	v1 := app.Group("/v1")
	v1.Get("/status", h.Status)
	v1.Post("/logs/search", h.SearchLogs)
	v1.Get("/logs/:id", h.GetLog)
	v1.Get("/metrics/names", h.MetricNames)
	v1.Post("/metrics/query", h.QueryMetrics)

	app.Get("/ws/tail", websocket.Upgrade, websocket.Handler(d.hub))

	app.Use(middleware.NotFoundHandler())
	return app
}

// createToolApp builds the agent tool surface.
func createToolApp(d *deps) *fiber.App {
	app := newFiberApp("archives-mcp", d)
	setupMiddleware(app, "mcp", d)
	app.Use(middleware.RateLimiting(middleware.RateLimitConfig{
		RequestsPerSecond: d.cfg.MCP.RateLimit,
		BurstSize:         d.cfg.MCP.RateBurst,
		SkipPaths:         []string{"/health", "/ping"},
	}))

	h := handlers.NewToolHandler(d.registry, d.service, d.cfg.API.Timeout)
	app.Get("/health", h.Health)
	app.Get("/ping", h.Ping)
	app.Get("/tools", h.Catalog)
	app.Post("/mcp", h.Invoke)

	stream := tools.NewMCPHandler(tools.NewMCPServer(d.registry, "archives", version))
	app.All("/mcp/stream", adaptor.HTTPHandler(stream))

	app.Use(middleware.NotFoundHandler())
	return app
}
