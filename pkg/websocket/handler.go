package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"im-social/config"
	"im-social/pkg/apperr"
	"im-social/pkg/logger"
	"im-social/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	FrameHeartbeat    = "heartbeat"
	FrameHeartbeatAck = "heartbeat_ack"
	FrameError        = "error"

	dispatchTimeout = 10 * time.Second
)

// Authenticator resolves a token to an active user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uint, error)
}

// Lifecycle receives connection events after the gateway has updated the
// presence registry and the broadcast groups.
type Lifecycle interface {
	OnConnect(ctx context.Context, userID uint, connID string)
	OnDisconnect(ctx context.Context, userID uint, connID string)
	OnHeartbeat(ctx context.Context, userID uint)
}

// HandlerFunc handles one inbound frame type
type HandlerFunc func(ctx context.Context, userID uint, data json.RawMessage) error

// Inbound is the envelope of client frames
type Inbound struct {
	Type string          `json:"type" validate:"required,max=64"`
	Data json.RawMessage `json:"data"`
}

var validate = validator.New()

// Bind decodes frame data into v and validates its struct tags
func Bind(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validation("ws.bind", "malformed payload: %v", err)
	}
	if err := validate.Struct(v); err != nil {
		return apperr.Validation("ws.bind", "invalid payload: %v", err)
	}
	return nil
}

// Gateway upgrades authenticated requests and routes their frames
type Gateway struct {
	hub       *Hub
	presence  *Presence
	auth      Authenticator
	lifecycle Lifecycle
	cfg       config.WebSocketConfig
	handlers  map[string]HandlerFunc
	upgrader  websocket.Upgrader
	active    sync.WaitGroup
}

// NewGateway creates the websocket entry point
func NewGateway(hub *Hub, presence *Presence, auth Authenticator, lifecycle Lifecycle, cfg config.WebSocketConfig) *Gateway {
	return &Gateway{
		hub:       hub,
		presence:  presence,
		auth:      auth,
		lifecycle: lifecycle,
		cfg:       cfg,
		handlers:  make(map[string]HandlerFunc),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle registers fn for frames of msgType. Call before serving.
func (g *Gateway) Handle(msgType string, fn HandlerFunc) {
	g.handlers[msgType] = fn
}

func tokenFrom(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Sec-WebSocket-Protocol"), "Bearer "))
}

// ServeWS is the gin handler of the websocket endpoint
func (g *Gateway) ServeWS(c *gin.Context) {
	// 1. authenticate before upgrading
	token := tokenFrom(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing token"})
		return
	}
	userID, err := g.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		logger.Warn("websocket auth rejected", zap.String("ip", c.ClientIP()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid token or inactive account"})
		return
	}

	// echo the subprotocol so browsers accept the handshake
	respHeader := http.Header{}
	if protocol := c.GetHeader("Sec-WebSocket-Protocol"); protocol != "" {
		respHeader.Set("Sec-WebSocket-Protocol", protocol)
	}
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Uint("user_id", userID), zap.Error(err))
		return
	}

	g.active.Add(1)
	defer g.active.Done()

	limiter := rate.NewLimiter(rate.Limit(g.cfg.RatePerSecond), g.cfg.RateBurst)
	client := newClient(uuid.NewString(), userID, conn, g.cfg.SendBuffer, limiter)

	// 2. presence registry, 3. broadcast group
	g.presence.Connect(userID, ConnDescriptor{ConnID: client.ID, ConnectedAt: client.ConnectedAt})
	g.hub.Join(client)
	metrics.Connections.Inc()
	logger.Info("websocket connected", zap.Uint("user_id", userID), zap.String("conn_id", client.ID))

	go client.writePump(g.cfg.PingInterval, g.cfg.WriteTimeout)

	// 4. sweep and 5. announcements
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	g.lifecycle.OnConnect(ctx, userID, client.ID)
	cancel()

	defer g.disconnect(client)

	// 6. read loop
	g.readPump(client)
}

// Shutdown closes every connection and waits until their disconnect
// hooks have returned, or ctx is done.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.hub.Close()

	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) disconnect(client *Client) {
	g.hub.Leave(client)
	g.presence.Disconnect(client.UserID)
	metrics.Connections.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	g.lifecycle.OnDisconnect(ctx, client.UserID, client.ID)

	logger.Info("websocket disconnected", zap.Uint("user_id", client.UserID), zap.String("conn_id", client.ID))
}

func (g *Gateway) readPump(client *Client) {
	conn := client.conn
	if g.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(g.cfg.MaxMessageSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read ended", zap.Uint("user_id", client.UserID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))

		g.dispatch(client, payload)
	}
}

// dispatch routes one inbound payload. Failures are answered with an
// error frame on the same connection.
func (g *Gateway) dispatch(client *Client, payload []byte) {
	if client.limiter != nil && !client.limiter.Allow() {
		client.SendFrame(FrameError, gin.H{"code": "RATE_LIMITED", "message": "too many frames"})
		return
	}

	var in Inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		client.SendFrame(FrameError, gin.H{"code": apperr.CodeValidation, "message": "malformed frame"})
		return
	}
	if err := validate.Struct(&in); err != nil {
		client.SendFrame(FrameError, gin.H{"code": apperr.CodeValidation, "message": "frame type is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if in.Type == FrameHeartbeat {
		g.lifecycle.OnHeartbeat(ctx, client.UserID)
		client.SendFrame(FrameHeartbeatAck, nil)
		return
	}

	handler, ok := g.handlers[in.Type]
	if !ok {
		client.SendFrame(FrameError, gin.H{"code": apperr.CodeValidation, "message": "unknown frame type", "type": in.Type})
		return
	}

	if err := handler(ctx, client.UserID, in.Data); err != nil {
		code := apperr.CodeOf(err)
		message := "internal error"
		var appErr *apperr.AppError
		if errors.As(err, &appErr) && code != apperr.CodeInternal {
			message = appErr.Message
		} else {
			logger.Error("websocket handler failed", zap.String("type", in.Type), zap.Uint("user_id", client.UserID), zap.Error(err))
		}
		client.SendFrame(FrameError, gin.H{"code": code, "message": message, "type": in.Type})
	}
}
