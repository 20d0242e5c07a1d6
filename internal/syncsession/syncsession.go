package syncsession

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"chatrelay/internal/presencefeed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	batchSize  = 100
	readBlock  = 2000 * time.Millisecond
	retryDelay = time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS presence_events (
	stream_id  TEXT PRIMARY KEY,
	kind       TEXT        NOT NULL,
	conn_id    TEXT        NOT NULL,
	username   TEXT        NOT NULL,
	at         TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the presence_events table if it is missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create presence_events: %w", err)
	}
	return nil
}

// Run tails the presence stream from its first entry and persists every
// entry. Replays are harmless: rows are keyed by stream id. A batch that fails
// to commit is read again.
func Run(ctx context.Context, rdc redis.Cmdable, db *sql.DB, stream string) {
	run(ctx, rdc, db, stream, retryDelay)
}

func run(ctx context.Context, rdc redis.Cmdable, db *sql.DB, stream string, retry time.Duration) {
	go func() {
		lastID := "0-0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   batchSize,
				Block:   readBlock,
			}).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("syncsession.xread", zap.Error(err))
				backoff(ctx, retry)
				continue
			}
			if len(res) == 0 || len(res[0].Messages) == 0 {
				continue
			}
			entries := res[0].Messages
			if err := persist(ctx, db, entries); err != nil {
				zap.L().Error("syncsession.persist", zap.Int("entries", len(entries)), zap.Error(err))
				backoff(ctx, retry)
				continue
			}
			lastID = entries[len(entries)-1].ID
		}
	}()
}

func backoff(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO presence_events (stream_id, kind, conn_id, username, at)
	             VALUES ($1, $2, $3, $4, $5)
	             ON CONFLICT DO NOTHING`
	for _, m := range msgs {
		kind := field(m, presencefeed.FieldKind)
		conn := field(m, presencefeed.FieldConn)
		if kind == "" || conn == "" {
			zap.L().Debug("syncsession.skip", zap.String("id", m.ID))
			continue
		}
		ms, _ := strconv.ParseInt(field(m, presencefeed.FieldAt), 10, 64)
		at := time.UnixMilli(ms).UTC()

		if _, err := tx.ExecContext(ctx, ins, m.ID, kind, conn, field(m, presencefeed.FieldUsername), at); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func field(m redis.XMessage, key string) string {
	s, _ := m.Values[key].(string)
	return s
}
