package ws

import (
	"sync"
	"time"

	"chatrelay/internal/relay"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// clientConn is one accepted socket. Only the writer goroutine writes frames;
// the mutex guards Close and control frames sent from elsewhere.
type clientConn struct {
	id      string
	addr    string
	rawConn *websocket.Conn
	limiter *rate.Limiter

	mu        sync.Mutex
	closeOnce sync.Once
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}

func (c *clientConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *clientConn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.rawConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		c.mu.Unlock()
		_ = c.rawConn.Close()
	})
}

// allow reports whether another inbound frame fits the rate limit.
func (c *clientConn) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// writePump drains the connection's mailbox onto the socket and keeps it
// alive with pings. A user list that overflowed the queue is written as soon
// as it is signalled; older lists still queued behind it are skipped. It returns once the mailbox is closed or a write fails.
func (c *clientConn) writePump(mb *relay.Mailbox, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close(websocket.CloseNormalClosure, "")
	}()

	for {
		select {
		case ev, ok := <-mb.C():
			if !ok {
				return
			}
			if !mb.Admit(ev) {
				continue
			}
			if err := c.writeJSON(ev); err != nil {
				zap.L().Debug("ws.write", zap.String("conn", c.id), zap.Error(err))
				return
			}
		case <-mb.Latest():
			ev, ok := mb.TakeLatest()
			if !ok || !mb.Admit(ev) {
				continue
			}
			if err := c.writeJSON(ev); err != nil {
				zap.L().Debug("ws.write", zap.String("conn", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				zap.L().Debug("ws.ping", zap.String("conn", c.id), zap.Error(err))
				return
			}
		}
	}
}
