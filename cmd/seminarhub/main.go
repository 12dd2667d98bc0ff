package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"seminarhub/internal/config"
	"seminarhub/internal/registry"
	"seminarhub/internal/server"
	"seminarhub/internal/store"
	"seminarhub/pkg/logger"
)

// Application wires the components in dependency order: store, persistence
// engine, session registry, server.
type Application struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *sql.DB
	engine   *store.Engine
	registry *registry.Registry
	server   *server.Server
}

func NewApplication(cfg *config.Config) (*Application, error) {
	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Store, zl)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(context.Background(), db, cfg.Store.Driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare schema: %w", err)
	}

	engine := store.NewEngine(db, cfg.Store.Driver, zl)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector())

	reg := registry.New(engine, metrics, zl)
	srv := server.New(cfg, engine, reg, metrics, zl)

	return &Application{
		cfg:      cfg,
		log:      zl,
		db:       db,
		engine:   engine,
		registry: reg,
		server:   srv,
	}, nil
}

func (app *Application) Start() error {
	return app.server.Start()
}

// Stop shuts down in reverse dependency order: server first, store last.
func (app *Application) Stop(ctx context.Context) error {
	if err := app.server.Stop(ctx); err != nil {
		app.log.Warn("server shutdown", zap.Error(err))
	}
	if err := app.db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	app.log.Info("shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("SEMINARHUB_CONFIG_FILE"))
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return err
	}

	if err := app.Start(); err != nil {
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signalCh
	app.log.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return app.Stop(ctx)
}
