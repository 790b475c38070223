// Package main runs the initiative tracker API server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/initiative/internal/api"
	"github.com/cory-johannsen/initiative/internal/config"
	"github.com/cory-johannsen/initiative/internal/observability"
	"github.com/cory-johannsen/initiative/internal/server"
	"github.com/cory-johannsen/initiative/internal/storage/memory"
	"github.com/cory-johannsen/initiative/internal/storage/postgres"
	"github.com/cory-johannsen/initiative/internal/storage/sqlite"
	"github.com/cory-johannsen/initiative/internal/tracker"
)

const healthInterval = 30 * time.Second

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (empty = defaults and TRACKER_ environment)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting initiative tracker",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("store", cfg.Store.Driver),
	)

	ctx := context.Background()
	lifecycle := server.NewLifecycle(logger)

	var (
		store  tracker.Store
		health func(ctx context.Context) error
	)
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if err := postgres.MigrateUp(cfg.Database.DSN()); err != nil {
			logger.Fatal("applying migrations", zap.Error(err))
		}
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		store = postgres.NewEncounterStore(pool.DB())
		health = func(ctx context.Context) error { return pool.Health(ctx, 5*time.Second) }
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			logger.Fatal("opening sqlite store", zap.String("path", cfg.SQLite.Path), zap.Error(err))
		}
		defer db.Close()
		logger.Info("sqlite store opened", zap.String("path", cfg.SQLite.Path))
		store = db
		health = db.Ping
	default:
		logger.Warn("using in-memory store; encounters are lost on restart")
		store = memory.NewStore()
	}

	if health != nil {
		lifecycle.Add(cfg.Store.Driver, &server.TickerService{
			Name:     cfg.Store.Driver,
			Interval: healthInterval,
			Fn:       health,
			Logger:   logger,
		})
	}

	svc := tracker.NewService(store, logger)
	router := api.NewRouter(svc, logger, api.Options{
		PollInterval:     cfg.Watch.PollInterval,
		FailureThreshold: cfg.Watch.FailureThreshold,
		Health:           health,
	})

	lifecycle.Add("http", &server.HTTPService{
		Server: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	})

	logger.Info("tracker initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
