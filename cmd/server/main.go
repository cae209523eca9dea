package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oggyb/speeddate/internal/app"
	"github.com/oggyb/speeddate/internal/cache"
	"github.com/oggyb/speeddate/internal/config"
	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/events"
	"github.com/oggyb/speeddate/internal/logger"
	"github.com/oggyb/speeddate/internal/matchmaking"
	"github.com/oggyb/speeddate/internal/server"
	svc "github.com/oggyb/speeddate/internal/service/matchmaking"
	"github.com/oggyb/speeddate/internal/sweeper"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	if path := os.Getenv("MATCHMAKING_CONFIG"); path != "" {
		if err := cfg.LoadMatchmakingFile(path); err != nil {
			log.Error("failed to load matchmaking config", "path", path, "err", err)
			return
		}
	}
	if err := cfg.Matchmaking.Validate(); err != nil {
		log.Error("invalid matchmaking config", "err", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}
	defer redisCache.Close()

	var locker matchmaking.Locker = redisCache
	if cfg.Matchmaking.LockBackend == "local" {
		locker = matchmaking.NewLocalLocker()
	}
	publisher := events.Fanout{
		events.NewRedisPublisher(redisCache),
		events.LogPublisher{Log: logger.Component("events")},
	}

	engine := matchmaking.New(database, locker, cfg.Matchmaking,
		matchmaking.WithPublisher(publisher),
		matchmaking.WithLogger(logger.Component("matchmaking")),
	)

	// Inject logger into app context
	appCtx := app.New(cfg, database, redisCache, engine, log)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	runner := sweeper.New(engine, cfg.Matchmaking.SweepInterval, logger.Component("sweeper"))
	runner.Start(ctx)
	defer runner.Stop()

	grpcServer := server.NewGRPCServer(log, svc.NewRegistrar(appCtx))

	addr := cfg.GRPC.Host + ":" + cfg.GRPC.Port
	log.Info("starting gRPC server", "addr", addr, "lock_backend", cfg.Matchmaking.LockBackend)

	if err := server.StartGRPCServer(ctx, cfg, grpcServer); err != nil {
		log.Error("failed to start gRPC server", "err", err)
	}
	log.Info("server stopped")
}
