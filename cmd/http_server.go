package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/hospital-auth/api"
	"github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/audit"
	auditPostgres "github.com/frahmantamala/hospital-auth/internal/audit/postgres"
	"github.com/frahmantamala/hospital-auth/internal/auth"
	"github.com/frahmantamala/hospital-auth/internal/database"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/transport/middleware"
	"github.com/frahmantamala/hospital-auth/internal/transport/rest"
	"github.com/frahmantamala/hospital-auth/internal/user"
	userPostgres "github.com/frahmantamala/hospital-auth/internal/user/postgres"
	"github.com/frahmantamala/hospital-auth/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *gorm.DB
	SQL      *sqlx.DB
	Router   *chi.Mux
	Sessions *session.Manager
	Throttle *middleware.RateLimiter
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		deps.Logger.Error("failed to set up routes", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go deps.Sessions.RunSweeper(ctx, deps.Config.Session.SweepInterval, deps.Logger)
	if deps.Throttle != nil {
		go deps.Throttle.Run(ctx, time.Minute)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("Received signal, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			closeDB(deps)
			os.Exit(1)
		}
	}

	closeDB(deps)
	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger

	auditLogger := audit.NewLogger(auditPostgres.NewWriter(deps.DB), lg)
	if err := auditLogger.RegisterMetrics(deps.Registry); err != nil {
		return err
	}

	authMetrics, err := auth.NewMetrics(deps.Registry)
	if err != nil {
		return err
	}

	users := userPostgres.NewUserRepository(deps.DB)
	hasher := auth.NewHasher(cfg.Security)
	authService := auth.NewService(users, hasher, auditLogger, cfg.Security.MaxLoginAttempts, lg).WithMetrics(authMetrics)
	guard := auth.NewGuard(auditLogger, cfg.Session.LoginPath, lg).WithMetrics(authMetrics)

	var csrfRecorder middleware.AuditRecorder
	if cfg.Security.AuditCSRFRejections {
		csrfRecorder = auditLogger
	}

	routes := rest.Routes{
		Health:         rest.NewHealthHandler(deps.SQL.DB, deps.Sessions),
		Sessions:       deps.Sessions,
		Guard:          guard,
		CSRF:           middleware.NewCSRF(csrfRecorder, lg),
		Throttle:       deps.Throttle,
		Auth:           auth.NewHandler(authService),
		Users:          user.NewHandler(user.NewService(users, auditLogger, lg)),
		Audit:          audit.NewHandler(auditPostgres.NewReader(deps.SQL)),
		OpenAPISpec:    api.OpenAPI,
		AllowedOrigins: cfg.Server.Origins(),
		Logger:         lg,
	}

	if cfg.Observability.Metrics.Enabled {
		httpMetrics, err := middleware.NewHTTPMetrics(deps.Registry)
		if err != nil {
			return err
		}
		routes.HTTPMetrics = httpMetrics
		routes.MetricsPath = cfg.Observability.Metrics.Path
		routes.MetricsHandler = promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})
	}

	rest.RegisterAllRoutes(deps.Router, routes)
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg := logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)

	if _, err := api.Load(context.Background()); err != nil {
		return nil, err
	}

	db, sqlDB, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := &Dependencies{
		Config:   config,
		DB:       db,
		SQL:      sqlDB,
		Router:   chi.NewRouter(),
		Sessions: session.NewManager(session.ConfigFrom(config.Session), session.NewMemoryStore()),
		Registry: registry,
		Logger:   lg,
	}
	if config.Security.LoginRatePerMinute > 0 {
		deps.Throttle = middleware.NewRateLimiter(config.Security.LoginRatePerMinute, config.Security.LoginRateBurst, lg)
	}
	return deps, nil
}

// initDB opens gorm for the write path and shares its pool with sqlx for reads.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, *sqlx.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.Driver == database.DriverSQLite {
		if err := database.AutoMigrate(db); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}

	return db, sqlx.NewDb(sqlDB, database.SQLDriverName(cfg.Driver)), nil
}

func closeDB(deps *Dependencies) {
	if err := deps.SQL.Close(); err != nil {
		deps.Logger.Error("Database close error", "error", err)
	}
}
