package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/amjad-AR/ChatApp/internal/directory"
	"github.com/amjad-AR/ChatApp/internal/server"
	"github.com/amjad-AR/ChatApp/internal/store"
	"github.com/amjad-AR/ChatApp/pkg/config"
	"github.com/amjad-AR/ChatApp/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.Logging.Level))
	slog.SetDefault(logger)

	ctx, stop := rootContext()
	defer stop()

	st, dir, cleanup, err := buildBackends(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backends", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	app := server.NewApp(logger, ctx, cfg, st, dir)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

// rootContext cancels on the shutdown signals only. Listing them explicitly
// matters: NotifyContext with no arguments relays every signal, including the
// SIGURGs the runtime sends itself for preemption.
func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func buildBackends(ctx context.Context, logger *slog.Logger, cfg *config.Config) (store.Store, directory.Directory, func(), error) {
	switch cfg.Store.Backend {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Store.URI))
		if err != nil {
			return nil, nil, nil, err
		}
		db := client.Database(cfg.Store.Database)
		cleanup := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect failed", slog.Any("error", err))
			}
		}
		return store.NewMongoStore(logger, db, cfg.Store.Timeout),
			directory.NewMongoDirectory(db, cfg.Store.Timeout),
			cleanup, nil
	default:
		// In-memory backend for local development; messages do not survive
		// a restart and every announced identity is accepted.
		logger.Warn("using in-memory store backend", slog.String("backend", cfg.Store.Backend))
		return store.NewMemoryStore(), openDirectory{}, func() {}, nil
	}
}

// openDirectory accepts any identity; the memory backend has no user table.
type openDirectory struct{}

func (openDirectory) Exists(context.Context, string) (bool, error) { return true, nil }
