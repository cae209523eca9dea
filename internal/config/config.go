package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		Driver   string
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	Matchmaking Matchmaking
}

// Matchmaking holds the timing and scoring knobs of the pairing engine.
// Every value can come from the environment or from a YAML overlay file
// pointed to by MATCHMAKING_CONFIG (file values win over env defaults).
type Matchmaking struct {
	HeartbeatTTL      time.Duration `yaml:"heartbeat_ttl"`
	ReachabilityGrace time.Duration `yaml:"reachability_grace"`
	VoteWindow        time.Duration `yaml:"vote_window"`
	AckTimeout        time.Duration `yaml:"ack_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	RelaxAfter        time.Duration `yaml:"relax_after"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	FairnessBoost     int64         `yaml:"fairness_boost"`
	AgingCredit       int64         `yaml:"aging_credit"`
	MaxRelaxStage     int           `yaml:"max_relax_stage"`
	SnapshotLimit     int           `yaml:"snapshot_limit"`
	LockBackend       string        `yaml:"lock_backend"`
}

func New() *Config {
	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "matchmaker")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.Driver == "sqlite" {
		cfg.DB.DSN = getEnvDefault("SQLITE_PATH", "speeddate.db")
	} else if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "speeddate")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	if dbStr := getEnvDefault("REDIS_DB", "0"); dbStr != "" {
		if dbInt, err := strconv.Atoi(dbStr); err == nil {
			cfg.Redis.DB = dbInt
		}
	}

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// Matchmaking
	cfg.Matchmaking = DefaultMatchmaking()
	m := &cfg.Matchmaking
	m.HeartbeatTTL = getEnvDuration("HEARTBEAT_TTL", m.HeartbeatTTL)
	m.ReachabilityGrace = getEnvDuration("REACHABILITY_GRACE", m.ReachabilityGrace)
	m.VoteWindow = getEnvDuration("VOTE_WINDOW", m.VoteWindow)
	m.AckTimeout = getEnvDuration("ACK_TIMEOUT", m.AckTimeout)
	m.SweepInterval = getEnvDuration("SWEEP_INTERVAL", m.SweepInterval)
	m.RelaxAfter = getEnvDuration("RELAX_AFTER", m.RelaxAfter)
	m.LockTTL = getEnvDuration("LOCK_TTL", m.LockTTL)
	m.FairnessBoost = int64(getEnvInt("FAIRNESS_BOOST", int(m.FairnessBoost)))
	m.AgingCredit = int64(getEnvInt("AGING_CREDIT", int(m.AgingCredit)))
	m.MaxRelaxStage = getEnvInt("MAX_RELAX_STAGE", m.MaxRelaxStage)
	m.SnapshotLimit = getEnvInt("SNAPSHOT_LIMIT", m.SnapshotLimit)
	m.LockBackend = strings.ToLower(getEnvDefault("LOCK_BACKEND", m.LockBackend))

	return cfg
}

// DefaultMatchmaking returns the tuning used when nothing is configured.
func DefaultMatchmaking() Matchmaking {
	return Matchmaking{
		HeartbeatTTL:      10 * time.Second,
		ReachabilityGrace: 15 * time.Second,
		VoteWindow:        20 * time.Second,
		AckTimeout:        30 * time.Second,
		SweepInterval:     5 * time.Second,
		RelaxAfter:        60 * time.Second,
		LockTTL:           5 * time.Second,
		FairnessBoost:     10,
		AgingCredit:       1,
		MaxRelaxStage:     1,
		SnapshotLimit:     200,
		LockBackend:       "redis",
	}
}

// LoadMatchmakingFile overlays the YAML file at path onto cfg.Matchmaking.
// Keys absent from the file keep their current values.
func (c *Config) LoadMatchmakingFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read matchmaking config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c.Matchmaking); err != nil {
		return fmt.Errorf("parse matchmaking config: %w", err)
	}
	return c.Matchmaking.Validate()
}

// Validate rejects tunings that would break the pairing state machine.
func (m Matchmaking) Validate() error {
	switch {
	case m.HeartbeatTTL <= 0:
		return fmt.Errorf("heartbeat_ttl must be positive")
	case m.ReachabilityGrace < 0:
		return fmt.Errorf("reachability_grace must not be negative")
	case m.VoteWindow <= 0:
		return fmt.Errorf("vote_window must be positive")
	case m.AckTimeout <= 0:
		return fmt.Errorf("ack_timeout must be positive")
	case m.SweepInterval <= 0:
		return fmt.Errorf("sweep_interval must be positive")
	case m.LockTTL <= 0:
		return fmt.Errorf("lock_ttl must be positive")
	case m.FairnessBoost < 0 || m.AgingCredit < 0:
		return fmt.Errorf("fairness_boost and aging_credit must not be negative")
	case m.MaxRelaxStage < 0:
		return fmt.Errorf("max_relax_stage must not be negative")
	case m.SnapshotLimit <= 0:
		return fmt.Errorf("snapshot_limit must be positive")
	case m.LockBackend != "redis" && m.LockBackend != "local":
		return fmt.Errorf("lock_backend must be redis or local, got %q", m.LockBackend)
	}
	return nil
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
