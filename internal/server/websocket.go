package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/zengine/internal/core/observability/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// authorize checks the configured token against the query or bearer header.
func (n *Notifier) authorize(r *http.Request) error {
	if n.config.Token == "" {
		return nil
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token != n.config.Token {
		return ErrUnauthorized
	}
	return nil
}

func (n *Notifier) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := n.authorize(r); err != nil {
		n.logger.Warn("rejected connection", log.String("remote", r.RemoteAddr), log.Error(err))
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.logger.Warn("websocket upgrade failed", log.String("remote", r.RemoteAddr), log.Error(err))
		return
	}
	c, err := n.register(conn.RemoteAddr().String())
	if err != nil {
		_ = conn.Close()
		return
	}

	n.workers.Add(1)
	go n.writeLoop(conn, c)
	n.readLoop(conn, c)
}

// writeLoop drains the client queue until unregister closes it.
func (n *Notifier) writeLoop(conn *websocket.Conn, c *client) {
	defer n.workers.Done()
	defer conn.Close()
	for b := range c.send {
		if n.config.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(n.config.WriteTimeout))
		}
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			n.logger.Debug("write failed", log.String("client", c.id), log.Error(err))
			n.unregister(c)
			for range c.send {
			}
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
}

// readLoop discards client input and unregisters on disconnect.
func (n *Notifier) readLoop(conn *websocket.Conn, c *client) {
	defer n.unregister(c)
	if n.config.MaxReadSize > 0 {
		conn.SetReadLimit(n.config.MaxReadSize)
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
