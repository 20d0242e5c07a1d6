package redis_client

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// NewRedisClient connects to the Redis instance that carries the presence
// stream and checks it answers PING before returning.
func NewRedisClient(ctx context.Context, host string, port int) (*redis.Client, error) {
	// The feed writer and the stream reader are the only users; a small pool
	// is plenty.
	pool := min(runtime.NumCPU()*2, 32)

	rc := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%d", host, port),
		ClientName: "chatrelay",
		PoolSize:   pool,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		zap.L().Error("redis_connect", zap.String("addr", rc.Options().Addr), zap.Error(err))
		return nil, fmt.Errorf("redis connect %s:%d: %w", host, port, err)
	}
	return rc, nil
}
