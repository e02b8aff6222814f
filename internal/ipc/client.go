package ipc

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// readPump parses inbound frames and routes them. It owns reads on the
// connection and unregisters the client when the peer goes away.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("widget read error", zap.Error(err))
			}
			return
		}
		c.route(f)
	}
}

// route dispatches one inbound frame.
func (c *client) route(f Frame) {
	switch f.Type {
	case TypeUserAction:
		var action UserAction
		if err := json.Unmarshal(f.Data, &action); err != nil {
			c.hub.logger.Warn("malformed user_action payload", zap.Error(err))
			return
		}
		select {
		case c.hub.actions <- action:
		default:
			c.hub.logger.Warn("action queue full, user action dropped",
				zap.String("action", action.Action))
		}

	case TypePing:
		pong, err := NewFrame(TypePong, struct{}{})
		if err != nil {
			return
		}
		select {
		case c.send <- pong:
		default:
		}

	default:
		c.hub.logger.Warn("unknown frame type ignored", zap.String("type", f.Type))
	}
}

// writePump serialises all writes on the connection: queued frames plus the
// periodic protocol-level ping. A write failure drops the client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel; say goodbye properly.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.hub.logger.Warn("widget write failed, dropping client", zap.Error(err))
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
