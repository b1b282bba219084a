package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/models"
)

// Client events
const (
	EventSubscribe   = "subscribe:guild"
	EventUnsubscribe = "unsubscribe:guild"
	EventPing        = "ping"
	EventPong        = "pong"
	EventError       = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one WebSocket connection registered with a hub
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	closeChan chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:        id,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		logger:    logger.With(zap.String("client_id", id)),
		closeChan: make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.id
}

// Close unregisters the client and closes the connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("failed to close connection", zap.Error(err))
		}
		c.logger.Debug("connection closed")
	})
}

// readPump handles client events until the connection fails
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.logger.Debug("ignoring malformed frame", zap.Error(err))
			c.reply(EventError, "Malformed message")
			continue
		}

		c.handle(&frame)
	}
}

func (c *Client) handle(frame *Frame) {
	switch frame.Event {
	case EventSubscribe, EventUnsubscribe:
		var guildID string
		if err := json.Unmarshal(frame.Data, &guildID); err != nil || !models.IsSnowflake(guildID) {
			c.reply(EventError, "Invalid guild ID")
			return
		}
		if frame.Event == EventSubscribe {
			c.hub.Join(c, guildID)
		} else {
			c.hub.Leave(c, guildID)
		}
	case EventPing:
		c.reply(EventPong, nil)
	default:
		c.logger.Debug("ignoring unknown event", zap.String("event", frame.Event))
	}
}

func (c *Client) reply(event string, data any) {
	frame, err := NewFrame(event, data)
	if err != nil {
		c.logger.Error("failed to encode reply", zap.Error(err))
		return
	}
	c.hub.sendTo(c, frame)
}

// writePump writes queued frames and keepalive pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closeChan:
			return
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the queue
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("failed to write frame", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
