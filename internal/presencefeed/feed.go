// Package presencefeed appends connection lifecycle events to a Redis stream
// so that tools outside the relay can follow who joined and left. Chat
// messages never go through it.
package presencefeed

import (
	"context"
	"strconv"
	"time"

	"chatrelay/internal/presence"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultStream = "presence_stream"
	streamMaxLen  = 10000
	queueSize     = 1024
	flushTimeout  = 2 * time.Second
)

// Stream entry field names, shared with syncsession.
const (
	FieldKind     = "kind"
	FieldConn     = "conn"
	FieldUsername = "username"
	FieldAt       = "at"
)

// Feed is a relay.PresenceSink backed by a Redis stream. Publish only
// enqueues; Run does the Redis writes.
type Feed struct {
	rdc    redis.Cmdable
	stream string
	queue  chan presence.Event
}

func New(rdc redis.Cmdable, stream string) *Feed {
	if stream == "" {
		stream = DefaultStream
	}
	return &Feed{
		rdc:    rdc,
		stream: stream,
		queue:  make(chan presence.Event, queueSize),
	}
}

// Publish queues ev without blocking; events are dropped when the queue is full.
func (f *Feed) Publish(ev presence.Event) {
	select {
	case f.queue <- ev:
	default:
		zap.L().Warn("presencefeed.drop",
			zap.String("kind", string(ev.Kind)),
			zap.String("conn", ev.ConnID),
		)
	}
}

// Run writes queued events until ctx is cancelled, then makes one last
// attempt to write whatever is still queued.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			f.flush(flushCtx)
			cancel()
			return
		case ev := <-f.queue:
			f.write(ctx, ev)
		}
	}
}

// flush writes the events queued right now and returns how many it took.
func (f *Feed) flush(ctx context.Context) int {
	n := 0
	for {
		select {
		case ev := <-f.queue:
			f.write(ctx, ev)
			n++
		default:
			return n
		}
	}
}

func (f *Feed) write(ctx context.Context, ev presence.Event) {
	if err := f.append(ctx, ev); err != nil {
		zap.L().Warn("presencefeed.xadd", zap.String("conn", ev.ConnID), zap.Error(err))
	}
}

func (f *Feed) append(ctx context.Context, ev presence.Event) error {
	return f.rdc.XAdd(ctx, xaddArgs(f.stream, ev)).Err()
}

func xaddArgs(stream string, ev presence.Event) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: []interface{}{
			FieldKind, string(ev.Kind),
			FieldConn, ev.ConnID,
			FieldUsername, ev.Username,
			FieldAt, strconv.FormatInt(ev.At.UnixMilli(), 10),
		},
	}
}
