package http_server

import (
	"chatrelay/internal/http/presencehandler"
	"chatrelay/internal/relay"
	"chatrelay/internal/ws"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type httpServer struct {
	listenPort uint16
	srv        http.Server
	ln         net.Listener
	relay      *relay.Relay
	wsSrv      *ws.WsServer
	ctx        context.Context
}

func NewHttpServer(ctx context.Context, listenPort uint16, wsSrv *ws.WsServer, rl *relay.Relay) *httpServer {
	return &httpServer{
		listenPort: listenPort,
		wsSrv:      wsSrv,
		relay:      rl,
		ctx:        ctx,
	}
}

// Engine builds the gin router: the websocket endpoint plus the read-only
// presence API.
func (h *httpServer) Engine() *gin.Engine {
	routerEngine := gin.New()

	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// websocket endpoint
	routerEngine.GET("/ws", h.wsSrv.Handle)

	// REST API
	ph := presencehandler.New(h.relay)
	ph.Register(routerEngine)

	return routerEngine
}

// Start serves until the server's context is cancelled, then shuts down.
func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	zap.L().Info("http.listen", zap.String("addr", h.ln.Addr().String()))

	h.srv = http.Server{
		Handler:           h.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-h.ctx.Done()
		_ = h.Dispose()
	}()

	if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in‑flight requests to finish.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err // e.g. active conns didn’t finish in time
	}
	return nil
}
