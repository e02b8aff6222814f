package ipc

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pingInterval is how often the server pings each widget.
	pingInterval = 20 * time.Second
	// pongWait is how long to wait for a pong before dropping the client.
	pongWait = pingInterval + writeWait

	maxInboundBytes = 4096
	clientSendDepth = 32
)

// client is one connected widget.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Frame
}

// Hub owns the connected-client set. All set mutation happens on the run
// goroutine; the public surface is channels and thread-safe methods.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan Frame

	// actions carries parsed user_action payloads to the orchestrator.
	actions chan UserAction

	clients map[*client]struct{}
	// done is closed when Run exits, releasing pumps that would otherwise
	// block on an unregister send during shutdown.
	done   chan struct{}
	logger *zap.Logger
}

// NewHub builds an empty hub. Run must be started before serving clients.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Frame, 16),
		actions:    make(chan UserAction, 16),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Actions is the inbound user-action stream.
func (h *Hub) Actions() <-chan UserAction {
	return h.actions
}

// Broadcast queues a frame for every connected widget. Non-blocking: if the
// hub's queue is full the frame is dropped, because a stale UI update is
// worthless once a newer one exists.
func (h *Hub) Broadcast(f Frame) {
	select {
	case h.broadcast <- f:
	default:
		h.logger.Warn("broadcast queue full, ui frame dropped", zap.String("type", f.Type))
	}
}

// BroadcastUIUpdate wraps data in a ui_update envelope and broadcasts it.
func (h *Hub) BroadcastUIUpdate(data any) error {
	f, err := NewFrame(TypeUIUpdate, data)
	if err != nil {
		return err
	}
	h.Broadcast(f)
	return nil
}

// Run loops until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			close(h.done)
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Info("widget connected", zap.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Info("widget disconnected", zap.Int("clients", len(h.clients)))
			}

		case f := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- f:
				default:
					// Slow widget: skip this frame rather than stall the rest.
					h.logger.Warn("client send buffer full, frame skipped")
				}
			}
		}
	}
}
