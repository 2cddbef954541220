package ws

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/shared/id"
)

// Client is a middleman between one websocket connection and the hub
type Client struct {
	id   string
	uri  string
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames, closed by the hub
	send chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, uri string) *Client {
	return &Client{
		id:   id.NewClientID().String(),
		uri:  uri,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.cfg.SendBuffer),
	}
}

// ID returns the client id
func (c *Client) ID() string {
	return c.id
}

type inbound struct {
	Type string `json:"type"`
}

// readPump handles client frames until the connection fails
func (c *Client) readPump(onFlush func()) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	pongWait := c.hub.cfg.PingInterval * 10 / 9
	c.conn.SetReadLimit(c.hub.cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("WebSocket read error",
					zap.String("client", c.id),
					zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.hub.recorder.Frame("in", "invalid")
			c.hub.reply(c, controlFrame{Type: FrameError, Error: "invalid message"})
			continue
		}
		c.hub.recorder.Frame("in", msg.Type)

		switch msg.Type {
		case "ping":
			c.hub.reply(c, controlFrame{Type: FramePong})
		case "flush":
			if onFlush != nil {
				onFlush()
			}
		default:
			c.hub.reply(c, controlFrame{Type: FrameError, Error: "unknown message type: " + msg.Type})
		}
	}
}

// writePump writes queued frames and keepalive pings
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
