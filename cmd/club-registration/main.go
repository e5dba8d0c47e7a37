package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/terra-clan/club-registration/internal/api"
	"github.com/terra-clan/club-registration/internal/assign"
	"github.com/terra-clan/club-registration/internal/catalog"
	"github.com/terra-clan/club-registration/internal/config"
	"github.com/terra-clan/club-registration/internal/health"
	"github.com/terra-clan/club-registration/internal/live"
	"github.com/terra-clan/club-registration/internal/lock"
	"github.com/terra-clan/club-registration/internal/metrics"
	"github.com/terra-clan/club-registration/internal/notify"
	"github.com/terra-clan/club-registration/internal/reconcile"
	"github.com/terra-clan/club-registration/internal/registration"
	"github.com/terra-clan/club-registration/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting club-registration",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"policy", cfg.Assignment.Policy,
		"deadline", cfg.Registration.Deadline,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	checks := health.NewRegistry(2 * time.Second)

	repo, err := newRepository(initCtx, cfg)
	if err != nil {
		slog.Error("failed to create repository", "error", err)
		os.Exit(1)
	}
	checks.Register("storage", repo)

	// Load catalog
	cat := catalog.Default()
	if cfg.Catalog.File != "" {
		cat, err = catalog.LoadFromFile(cfg.Catalog.File)
		if err != nil {
			slog.Error("failed to load catalog", "file", cfg.Catalog.File, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("catalog loaded", "clubs", len(cat.AllClubs()), "grades", len(cat.Grades()))

	policy, err := assign.ParsePolicy(cfg.Assignment.Policy)
	if err != nil {
		slog.Error("invalid assignment policy", "error", err)
		os.Exit(1)
	}
	engine := assign.NewEngine(cat,
		assign.WithPolicy(policy),
		assign.WithSource(assign.NewSource(cfg.Assignment.Seed)),
	)

	locker, err := newLocker(initCtx, cfg)
	if err != nil {
		slog.Error("failed to create recompute lock", "error", err)
		os.Exit(1)
	}
	checks.Register("lock", locker)

	collector := metrics.NewCollector(prometheus.NewRegistry(), "clubs")

	sender, err := newSender(cfg, checks)
	if err != nil {
		slog.Error("failed to create notification sender", "error", err)
		os.Exit(1)
	}
	notifier := notify.NewNotifier(sender, cfg.Notify.SendDelay, notify.WithRecorder(collector))

	hub := live.NewHub(16)

	service := registration.NewService(repo, cat, engine,
		registration.WithLocker(locker),
		registration.WithNotifier(notifier),
		registration.WithHub(hub),
		registration.WithRecorder(collector),
		registration.WithDeadline(cfg.Registration.Deadline),
		registration.WithConfirmations(cfg.Notify.OnSubmit),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start reconcile worker
	if cfg.Reconcile.Interval > 0 {
		reconcile.NewReconciler(service, cfg.Reconcile.Interval).Start(ctx)
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, service, hub, checks, collector.Handler())
	httpServer := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()
	hub.Close()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := notifier.Close(); err != nil {
		slog.Error("notifier close error", "error", err)
	}
	if err := locker.Close(); err != nil {
		slog.Error("lock close error", "error", err)
	}
	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("club-registration stopped")
}

func newRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if cfg.Storage.Driver == "memory" {
		slog.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryRepository(), nil
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		return nil, err
	}

	// Run database migrations
	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := repo.Migrate(ctx, cfg.Database.MigrationsDir); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("database connected successfully")
	return repo, nil
}

func newLocker(ctx context.Context, cfg *config.Config) (lock.Locker, error) {
	switch cfg.Lock.Driver {
	case lock.DriverRedis:
		return lock.NewRedisLocker(ctx, lock.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Lock.TTL,
			Wait:     cfg.Lock.Wait,
		})
	case lock.DriverNone:
		slog.Warn("recompute lock disabled, concurrent runs may overwrite each other")
		return lock.NoopLocker{}, nil
	default:
		return lock.NewLocalLocker(cfg.Lock.Wait), nil
	}
}

// newSender returns nil for the none driver so every send reports not configured
func newSender(cfg *config.Config, checks *health.Registry) (notify.Sender, error) {
	switch cfg.Notify.Driver {
	case notify.DriverNATS:
		s, err := notify.NewNATSSender(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, err
		}
		checks.Register("nats", s)
		return s, nil
	case notify.DriverNone:
		return nil, nil
	default:
		return notify.NewLogSender(slog.Default()), nil
	}
}
