package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/cache"
	"github.com/oggyb/speeddate/internal/config"
	"github.com/oggyb/speeddate/internal/matchmaking"
)

// AppContext holds shared dependencies (DB, Redis, Logger, Engine, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache // nil when running with the local locker and no event bus
	Engine     *matchmaking.Engine
	Logger     *slog.Logger
}

// New creates a new AppContext
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, engine *matchmaking.Engine, logger *slog.Logger) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Engine:     engine,
		Logger:     logger,
	}
}
