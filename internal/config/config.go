package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"development" validate:"oneof=development production"`

	HttpServerPort uint16   `env:"HTTP_SERVER_PORT" envDefault:"5000" validate:"min=1000,max=65535"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"  envDefault:"*"    envSeparator:","`

	WsMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"4096" validate:"min=128"`
	WsSendBuffer     int           `env:"WS_SEND_BUFFER"      envDefault:"256"  validate:"min=1,max=65536"`
	WsPingPeriod     time.Duration `env:"WS_PING_PERIOD"      envDefault:"30s"  validate:"min=1s"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"20" validate:"gt=0"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST"      envDefault:"40" validate:"min=1"`

	// Presence audit feed (Redis stream -> Postgres). Off unless AUDIT_ENABLED=true.
	AuditEnabled bool   `env:"AUDIT_ENABLED" envDefault:"false"`
	AuditStream  string `env:"AUDIT_STREAM"  envDefault:"presence_stream" validate:"required"`

	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379" validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"relay_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"relay_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"relay_db"`
}

// LoadConfig reads an optional .env file, then the process environment,
// and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// AllowsAnyOrigin reports whether the origin allow-list contains "*".
func (c *Config) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}
