package main

import (
	"chatrelay/internal/config"
	"chatrelay/internal/database/db_client"
	"chatrelay/internal/http/http_server"
	"chatrelay/internal/presencefeed"
	"chatrelay/internal/redis/redis_client"
	"chatrelay/internal/relay"
	"chatrelay/internal/syncsession"
	"chatrelay/internal/ws"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer func() { _ = Log.Sync() }()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.AppEnv == "production" {
		if prod, err := zap.NewProduction(); err == nil {
			Log = prod
			zap.ReplaceGlobals(Log)
		}
		gin.SetMode(gin.ReleaseMode)
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))
	if cfg.AllowsAnyOrigin() {
		Log.Warn("WebSocket upgrades accepted from any origin", zap.Strings("allowed_origins", cfg.AllowedOrigins))
	}

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Optional presence audit feed: Redis stream ➜ Postgres
	var sink relay.PresenceSink
	if cfg.AuditEnabled {
		redisClient, err := redis_client.NewRedisClient(ctx, cfg.RedisHost, int(cfg.RedisPort))
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		pgDb, err := db_client.Open(ctx, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()
		if err := syncsession.EnsureSchema(ctx, pgDb); err != nil {
			Log.Fatal("pg-schema", zap.Error(err))
		}

		feed := presencefeed.New(redisClient, cfg.AuditStream)
		go feed.Run(ctx)
		syncsession.Run(ctx, redisClient, pgDb, cfg.AuditStream)
		sink = feed
		Log.Info("Presence audit feed enabled", zap.String("stream", cfg.AuditStream))
	}

	// 4. Relay core: registry, rooms and per-connection mailboxes
	rl := relay.New(cfg.WsSendBuffer, sink)

	// 5. Initialize the WS server
	wsSrv := ws.NewWsServer(rl, ws.Options{
		MaxMessageSize: cfg.WsMaxMessageSize,
		PingPeriod:     cfg.WsPingPeriod,
		RatePerSecond:  cfg.RateLimitPerSecond,
		RateBurst:      cfg.RateLimitBurst,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// 6. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, rl)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	Log.Info("Server stopped")
}
