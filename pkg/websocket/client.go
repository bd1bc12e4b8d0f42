package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"im-social/pkg/logger"
	"im-social/pkg/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Frame is the JSON envelope of every server to client message
type Frame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Client is one websocket connection of a user
type Client struct {
	ID          string
	UserID      uint
	ConnectedAt time.Time

	conn      *websocket.Conn
	send      chan []byte
	limiter   *rate.Limiter
	closeOnce sync.Once
}

func newClient(id string, userID uint, conn *websocket.Conn, buffer int, limiter *rate.Limiter) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:          id,
		UserID:      userID,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, buffer),
		limiter:     limiter,
	}
}

// Send queues payload without blocking. A full buffer drops the frame.
func (c *Client) Send(payload []byte) (ok bool) {
	defer func() {
		// send on a channel closed by a concurrent Leave
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- payload:
		return true
	default:
		metrics.EventsDropped.Inc()
		logger.Warn("client send buffer full, frame dropped",
			zap.Uint("user_id", c.UserID), zap.String("conn_id", c.ID))
		return false
	}
}

// SendFrame marshals and queues a frame
func (c *Client) SendFrame(frameType string, data interface{}) bool {
	payload, err := json.Marshal(Frame{Type: frameType, Data: data, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		logger.Error("marshal frame failed", zap.String("type", frameType), zap.Error(err))
		return false
	}
	return c.Send(payload)
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// writePump drains the send channel and keeps the connection alive with
// pings. It returns when the channel is closed or a write fails.
func (c *Client) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
