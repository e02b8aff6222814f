package ipc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// upgrader accepts any origin: the server binds to localhost only and the
// widget connects from a file:// or app:// page with no stable origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server hosts the websocket endpoint for the widget.
type Server struct {
	addr   string
	hub    *Hub
	logger *zap.Logger

	httpSrv *http.Server
}

// NewServer binds the hub to addr ("localhost:8012" by default upstream).
func NewServer(addr string, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, hub: hub, logger: logger}
}

// handleWS upgrades one widget connection and starts its pumps.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{hub: s.hub, conn: conn, send: make(chan Frame, clientSendDepth)}
	s.hub.register <- c

	go c.writePump()
	go c.readPump()
}

// ListenAndServe runs the hub and the HTTP listener until ctx is done. A bind
// failure is returned immediately: the agent is useless without its UI
// channel.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info("ipc server listening", zap.String("addr", s.addr))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Handler: mux}

	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
