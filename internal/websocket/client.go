package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Client is one connected progress observer. Observers only listen; the
// read pump exists to notice disconnects and answer pings.
type Client struct {
	ID      string
	conn    *websocket.Conn
	manager *Manager
	send    chan []byte
}

// Attach registers a new observer connection and starts its pumps.
// Returns false if the manager refused the connection.
func (m *Manager) Attach(id string, conn *websocket.Conn) bool {
	client := &Client{
		ID:      id,
		conn:    conn,
		manager: m,
		send:    make(chan []byte, 64),
	}
	if !m.register(client) {
		conn.Close()
		return false
	}
	go client.writePump()
	go client.readPump()
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.manager.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.logger.Printf("[ws] read error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.manager.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
