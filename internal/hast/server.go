// Package hast implements the surrogate Home Assistant WebSocket
// endpoint: a mock server that replays recorded event logs to connected
// clients for offline end-to-end testing, in place of a real HA instance.
package hast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/hass/internal/shutdown"
	"github.com/nugget/hass/internal/wsmsg"
)

// Server listens for WebSocket clients on 127.0.0.1 and runs one
// independent connection state machine per accepted socket.
type Server struct {
	cfg    Config
	mgr    *shutdown.Manager
	logger *slog.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	ln       net.Listener
}

// NewServer builds a Server from cfg. Call Listen (or just Run, which
// calls it for you) to actually bind a port.
func NewServer(cfg Config, mgr *shutdown.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		mgr:    mgr,
		logger: logger,
		upgrader: websocket.Upgrader{
			// The surrogate is a local test fixture, never exposed past
			// 127.0.0.1; there is no cross-origin boundary to enforce.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", s.handleWebsocket)
	s.httpSrv = &http.Server{Handler: mux}
	return s
}

// Listen binds the listener without serving, so a caller using an
// ephemeral port (Config.Port == 0) can read Addr before any client
// could possibly connect.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address. Valid after Listen.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Run serves accepted connections until the shutdown manager fires, then
// gracefully stops the HTTP server and returns. Each accepted connection
// independently observes the same shutdown signal, so Run does not wait
// on them directly — the manager's own fan-in sentinel does that.
func (s *Server) Run(_ context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	sub := s.mgr.Subscribe()
	defer sub.Release()

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.Serve(s.ln) }()

	select {
	case <-sub.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", "err", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "err", err)
		return
	}

	c := &conn{
		ws:     ws,
		server: s,
		outbox: newUnbounded[wsmsg.Message](),
		sub:    s.mgr.Subscribe(),
		logger: s.logger,
	}
	go c.run()
}
