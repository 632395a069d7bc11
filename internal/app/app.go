package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sundayezeilo/shortlink/internal/cache"
	"github.com/sundayezeilo/shortlink/internal/clicks"
	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/db/migrations"
	db "github.com/sundayezeilo/shortlink/internal/db/sqlc"
	"github.com/sundayezeilo/shortlink/internal/metrics"
	"github.com/sundayezeilo/shortlink/internal/server"
	"github.com/sundayezeilo/shortlink/internal/shortlink"
)

// App holds the application dependencies and configuration.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DBPool   *pgxpool.Pool
	Server   *server.Server
	Resolver *shortlink.Resolver
	Clicks   *clicks.Queue
	Handler  *shortlink.Handler
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	if err := loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.App.LogLevel)

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"service", cfg.Observability.ServiceName,
		"version", cfg.Observability.ServiceVersion,
	)

	if cfg.Database.AutoMigrate {
		if err := migrate(cfg, logger); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	// Connect to database
	dbPool, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	m, metricsHandler := setupMetrics(cfg)

	// Setup application dependencies
	queries := db.New(dbPool)

	resolver := shortlink.NewResolver(
		shortlink.NewRepository(queries),
		shortlink.ResolverConfig{
			ActiveTTL:    cfg.Cache.ActiveTTL,
			InactiveTTL:  cfg.Cache.InactiveTTL,
			StoreTimeout: cfg.Resolver.StoreTimeout,
			Logger:       logger,
			Metrics:      m,
		},
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
	)

	queue := clicks.NewQueue(clicks.NewRepository(queries), clicks.QueueConfig{
		FlushInterval:  cfg.Clicks.FlushInterval,
		FlushThreshold: cfg.Clicks.FlushThreshold,
		MaxPending:     cfg.Clicks.MaxPending,
		FlushTimeout:   cfg.Clicks.FlushTimeout,
		Logger:         logger,
		Metrics:        m,
	})
	queue.Start()

	svc := shortlink.NewService(shortlink.ServiceConfig{
		Resolver: resolver,
		Clicks:   queue,
		Counter:  clicks.NewCounter(queries),
		Logger:   logger,
		Metrics:  m,
	})
	handler := shortlink.NewHandler(shortlink.HandlerConfig{
		Service:           svc,
		Logger:            logger,
		ErrorPageURL:      cfg.Resolver.ErrorPageURL,
		TrustProxyHeaders: cfg.Resolver.TrustProxyHeaders,
	})

	// Create server
	srv := server.New(cfg, logger, handler, metricsHandler)

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"metrics_enabled", cfg.Observability.MetricsEnabled,
		"trust_proxy_headers", cfg.Resolver.TrustProxyHeaders,
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DBPool:   dbPool,
		Server:   srv,
		Resolver: resolver,
		Clicks:   queue,
		Handler:  handler,
	}, nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("server starting", "port", a.Config.Server.Port)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. The server stops taking
// requests first, then pending clicks are flushed before the database pool is closed.
func (a *App) Shutdown() error {
	a.Logger.Info("shutting down application")

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop server: %w", err))
		}
	}

	if a.Clicks != nil {
		if err := a.Clicks.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop click queue: %w", err))
		}
		a.Logger.Info("click queue stopped")
	}

	if a.Resolver != nil {
		a.Resolver.Close()
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database connection closed")
	}

	return errors.Join(errs...)
}

// loadEnv loads .env file only in non-production environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("no .env file found.")
		}
	}
	return nil
}

// setupLogger creates a structured logger based on the log level.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// setupMetrics builds a private registry. When metrics are disabled it returns
// nil for both; every component treats a nil *metrics.Metrics as a no-op.
func setupMetrics(cfg *config.Config) (*metrics.Metrics, http.Handler) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg), metrics.Handler(reg)
}

func migrate(cfg *config.Config, logger *slog.Logger) (err error) {
	m, err := migrations.New(cfg.Database.URL(), logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, m.Close())
	}()

	return m.Up()
}

// connectDatabase establishes a connection to the PostgreSQL database.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Set pool configuration
	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")

	return pool, nil
}
