package consolefeed

import (
	"time"

	"github.com/gorilla/websocket"
)

// client is one connected console. Outbound messages are buffered on
// send; readPump only exists to detect disconnects and enforce the
// idle-connection timeout, since the feed is one-directional.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards anything the client sends and tears the connection
// down on any read error, including a close frame. The feed never reads
// commands from a console.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
			// Hub.Run already exited (shutdown); nothing left to notify.
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump serializes every write to the connection: one goroutine per
// client, per gorilla/websocket's concurrency contract that a connection
// supports at most one concurrent writer.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
