// Package websocket 负责 WebSocket 传输层
// 1. 升级 HTTP 连接并在注册表中登记
// 2. 每个连接一个读协程和一个写协程，写协程消费注册表分配的发送队列
// 3. 入站帧按 type 分发给实时核心
package websocket

import (
	"context"
	"net/http"
	"time"

	"chatsphere_server/internal/config"
	"chatsphere_server/internal/metrics"
	"chatsphere_server/internal/service/auth"
	"chatsphere_server/internal/service/chat"
	"chatsphere_server/internal/service/registry"
	"chatsphere_server/pkg/errorx"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	// 跨域由网关前置的 CORS 规则控制，这里放行所有来源
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway WebSocket 网关
type Gateway struct {
	registry   *registry.Registry
	router     *chat.Router
	auth       auth.Authenticator
	pingPeriod time.Duration
	idle       time.Duration
	frameRate  rate.Limit
	frameBurst int
	handlers   map[InboundType]handlerFunc
}

// NewGateway 创建网关
func NewGateway(reg *registry.Registry, router *chat.Router, authn auth.Authenticator, conf config.ChatConfig) *Gateway {
	g := &Gateway{
		registry:   reg,
		router:     router,
		auth:       authn,
		pingPeriod: conf.HeartbeatInterval,
		idle:       conf.InactivityTimeout,
		frameRate:  rate.Limit(conf.FrameRate),
		frameBurst: conf.FrameBurst,
	}
	if g.pingPeriod <= 0 {
		g.pingPeriod = 30 * time.Second
	}
	if g.idle <= g.pingPeriod {
		g.idle = 2 * g.pingPeriod
	}
	g.handlers = g.routes()
	return g
}

// client 一条 WebSocket 连接
type client struct {
	gw      *Gateway
	conn    *websocket.Conn
	handle  *registry.Handle
	limiter *rate.Limiter
}

// Serve 升级连接并启动读写协程；token 非空时在升级后立即认证
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, token string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Error("websocket 升级失败", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c := &client{
		gw:      g,
		conn:    conn,
		handle:  g.registry.Register(conn.RemoteAddr().String()),
		limiter: rate.NewLimiter(g.frameRate, g.frameBurst),
	}
	metrics.WsConnections.Inc()

	if token != "" {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		err := g.authenticate(ctx, c.handle, Envelope{Type: InAuthenticate}, token)
		cancel()
		if err != nil {
			g.fail(c.handle, Envelope{Type: InAuthenticate}, err)
		}
	}

	go c.Read()
	go c.Write()
	zap.L().Info("ws连接成功", zap.String("handle", c.handle.ID()), zap.String("remote", c.handle.RemoteAddr()))
}

// Read 读取入站帧并分发，读失败即断开
func (c *client) Read() {
	defer c.gw.registry.Disconnect(c.handle, registry.ReasonClosed)

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.gw.idle))
	c.conn.SetPongHandler(func(string) error {
		c.gw.registry.Touch(c.handle)
		return c.conn.SetReadDeadline(time.Now().Add(c.gw.idle))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Warn("ws 读取失败", zap.String("handle", c.handle.ID()), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.gw.idle))

		if !c.limiter.Allow() {
			metrics.RateLimitedTotal.WithLabelValues("frame").Inc()
			c.gw.fail(c.handle, Envelope{}, errorx.New(errorx.CodeRateLimited, "发送过快，请稍后重试"))
			continue
		}
		c.gw.Handle(c.handle, frame)
	}
}

// Write 把发送队列中的事件写到客户端，并定时发送 ping
func (c *client) Write() {
	ticker := time.NewTicker(c.gw.pingPeriod)
	defer func() {
		ticker.Stop()
		c.gw.registry.Disconnect(c.handle, registry.ReasonClosed)
		_ = c.conn.Close()
		metrics.WsConnections.Dec()
	}()

	for {
		select {
		case ev := <-c.handle.Queue():
			if err := c.write(ev); err != nil {
				zap.L().Warn("ws 写入失败", zap.String("handle", c.handle.ID()), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.handle.Done():
			c.flush()
			reason := c.handle.Reason()
			msg := websocket.FormatCloseMessage(closeCode(reason), reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func (c *client) write(ev registry.Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

// flush 连接关闭前尽量写完已排队的事件，例如 room_closed
func (c *client) flush() {
	for {
		select {
		case ev := <-c.handle.Queue():
			if err := c.write(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

func closeCode(reason string) int {
	switch reason {
	case registry.ReasonShutdown:
		return websocket.CloseGoingAway
	case registry.ReasonSlowConsumer:
		return websocket.CloseTryAgainLater
	case registry.ReasonInactive:
		return websocket.ClosePolicyViolation
	}
	return websocket.CloseNormalClosure
}
