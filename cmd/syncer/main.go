package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"bizsync/internal/config"
	"bizsync/internal/publisher"
	"bizsync/internal/remote"
	"bizsync/internal/service"
	"bizsync/internal/storage/sqlstore"
	"bizsync/internal/tracker"
)

var configPath string

var root = &cobra.Command{
	Use:           "syncer",
	Short:         "Offline-first sync of business data with the remote service",
	SilenceErrors: true,
	SilenceUsage:  true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(
		newRunCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newLoginCmd(),
		newLogoutCmd(),
	)
}

func main() {
	if err := root.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	sessions *service.SessionService
	sync     *service.SyncService
	closers  []func() error
}

func newApp(ctx context.Context) (*app, error) {
	logger := setupLogger("info")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger = setupLogger(cfg.LogLevel)

	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.ResolvedDSN(),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("connected to database", "driver", cfg.Store.Driver)

	a := &app{cfg: cfg, logger: logger, closers: []func() error{db.Close}}

	store := sqlstore.NewStore(db)
	checkpoints := sqlstore.NewCheckpointStore(db)
	secrets := sqlstore.NewSecretStore(db)
	txManager := sqlstore.NewTransactionManager(db)

	a.sessions = service.NewSessionService(secrets, checkpoints, txManager, logger)

	client := remote.New(remote.Config{
		BaseURL:        cfg.Remote.BaseURL,
		Timeout:        cfg.Remote.Timeout,
		MaxAttempts:    cfg.Remote.Retry.MaxAttempts,
		InitialBackoff: cfg.Remote.Retry.InitialBackoff,
		MaxBackoff:     cfg.Remote.Retry.MaxBackoff,
		RateLimit:      cfg.Remote.RateLimit.RequestsPerSecond,
		RateBurst:      cfg.Remote.RateLimit.Burst,
		UserAgent:      cfg.Remote.UserAgent,
	}, a.sessions, logger)

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		a.closers = append(a.closers, rabbitMQ.Close)
		pub = rabbitMQ
	}

	a.sync = service.NewSyncService(
		store,
		tracker.New(store, txManager, logger),
		checkpoints,
		client,
		a.sessions,
		txManager,
		pub,
		logger,
		cfg.Sync,
	)

	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}
