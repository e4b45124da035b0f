package app

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

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notluquis/bioalergia-sub006/internal/api"
	"github.com/notluquis/bioalergia-sub006/internal/channels"
	"github.com/notluquis/bioalergia-sub006/internal/config"
	"github.com/notluquis/bioalergia-sub006/internal/credentials"
	"github.com/notluquis/bioalergia-sub006/internal/reconcile"
	"github.com/notluquis/bioalergia-sub006/internal/runs"
	"github.com/notluquis/bioalergia-sub006/internal/scheduler"
	"github.com/notluquis/bioalergia-sub006/internal/sii"
	"github.com/notluquis/bioalergia-sub006/internal/store/inmemory"
	"github.com/notluquis/bioalergia-sub006/internal/store/postgres"
	"github.com/notluquis/bioalergia-sub006/internal/syncer"
	"github.com/notluquis/bioalergia-sub006/internal/telemetry"
	"github.com/notluquis/bioalergia-sub006/internal/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync service",
	Long: `Start the document sync service.

The service requires a configuration file (--config) that specifies:
- The taxpayer whose registry is mirrored
- Credential exchange and registry endpoints
- Sync schedule, push notification channels and storage

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 60 * time.Second // manual syncs run inline and hit the upstream registry
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 65 * time.Second // must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

// stores groups the three persistence interfaces the service wires together.
type stores struct {
	records  reconcile.RecordStore
	runs     runs.Store
	channels channels.Store
	pool     *pgxpool.Pool
}

// buildStores creates database-backed stores when a database is configured,
// falling back to in-memory stores for local development.
func buildStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database == nil {
		slog.Warn("No database configured, using in-memory storage; state is lost on restart")
		return &stores{
			records:  inmemory.NewRecordStore(),
			runs:     inmemory.NewRunStore(),
			channels: inmemory.NewChannelStore(),
		}, nil
	}

	connStr, err := cfg.Database.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	lifetime, err := cfg.Database.GetConnMaxLifetime(30 * time.Minute)
	if err != nil {
		return nil, err
	}

	opts := []postgres.PoolOption{postgres.WithConnLifetime(lifetime)}
	if cfg.Database.MaxOpenConns > 0 {
		opts = append(opts, postgres.WithMaxConns(cfg.Database.MaxOpenConns))
	}
	if cfg.Database.MaxIdleConns > 0 {
		opts = append(opts, postgres.WithMinConns(cfg.Database.MaxIdleConns))
	}

	pool, err := postgres.Connect(ctx, connStr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &stores{
		records:  postgres.NewRecordStore(pool),
		runs:     postgres.NewRunStore(pool),
		channels: postgres.NewChannelStore(pool),
		pool:     pool,
	}, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	address := cfg.Server.GetAddress()
	slog.Info("Starting sync service",
		"version", versions.GetVersionInfo().Version,
		"address", address,
		"tenant", cfg.Tenant.RUT)

	// Metrics provider; a no-op when no telemetry endpoint is configured.
	meterCfg := telemetry.MeterConfig{
		ServiceName:    "bioalergia-sync",
		ServiceVersion: versions.GetVersionInfo().Version,
	}
	if cfg.Telemetry != nil {
		meterCfg.Endpoint = cfg.Telemetry.Endpoint
		meterCfg.Insecure = cfg.Telemetry.Insecure
	}
	meterProvider, shutdownMeter, err := telemetry.NewMeterProvider(ctx, meterCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMeter(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	st, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	// Credential store backing both the registry fetches and the push
	// notification provider.
	password, err := cfg.Identity.GetPassword()
	if err != nil {
		return fmt.Errorf("failed to get identity password: %w", err)
	}
	credStore := credentials.NewStore(credentials.Config{
		TokenURL: cfg.Identity.TokenURL,
		ClientID: cfg.Identity.ClientID,
		Username: cfg.Identity.Username,
		Password: password,
	})

	siiClient := sii.NewClient(credStore,
		cfg.Registry.BaseURL,
		cfg.Tenant.RUT,
		cfg.Registry.WorkspaceID,
		cfg.Registry.ResourceID,
	)

	tracker := runs.NewTracker(st.runs)

	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}
	engine := syncer.New(siiClient, credStore, st.records, tracker,
		syncer.WithMetrics(syncMetrics))

	// Channel manager; syncs still run on schedule alone when no calendar
	// is configured.
	var manager *channels.Manager
	if cfg.Calendar != nil {
		channelMetrics, err := telemetry.NewChannelMetrics(meterProvider)
		if err != nil {
			return fmt.Errorf("failed to create channel metrics: %w", err)
		}
		provider := channels.NewGoogleProvider(credStore, cfg.Calendar.BaseURL)
		manager = channels.NewManager(provider, st.channels, credStore,
			cfg.Calendar.CallbackBase,
			cfg.Calendar.Resources,
			channels.WithMetrics(channelMetrics))
	}

	location, err := time.LoadLocation(cfg.Scheduler.GetTimezone())
	if err != nil {
		return fmt.Errorf("failed to load scheduler timezone: %w", err)
	}

	var maint scheduler.Maintainer
	if manager != nil {
		maint = manager
	}
	sched := scheduler.New(scheduler.Config{
		CronExpressions: cfg.Scheduler.CronExpressions,
		Location:        location,
		Units:           cfg.Scheduler.GetUnits(),
	}, engine, maint)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	router := api.NewServer(engine, sched,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
