// Package chat 是实时通信核心的唯一入口
// 把已认证连接发来的请求变成房间状态变更，再通过连接注册表广播给房间成员
//
// 处理顺序固定为：成员身份/权限（room.Store）-> 限流 -> 内容审核 -> 写入房间 -> 广播。
// 广播只写入各连接自己的发送队列，不在房间锁内进行
package chat

import (
	"context"
	"time"

	"chatsphere_server/internal/infrastructure/mq"
	"chatsphere_server/internal/metrics"
	"chatsphere_server/internal/service/moderation"
	"chatsphere_server/internal/service/payment"
	"chatsphere_server/internal/service/ratelimit"
	"chatsphere_server/internal/service/registry"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/internal/service/session"
	"chatsphere_server/pkg/errorx"

	"go.uber.org/zap"
)

// Deps Router 的依赖，Exporter 可为 nil
type Deps struct {
	Store    *room.Store
	Registry *registry.Registry
	Limiter  *ratelimit.Limiter
	Pipeline *moderation.Pipeline
	Settler  payment.Settler
	Sessions *session.Negotiator
	Exporter *mq.Exporter
}

// Router 消息路由
type Router struct {
	store    *room.Store
	registry *registry.Registry
	limiter  *ratelimit.Limiter
	pipeline *moderation.Pipeline
	settler  payment.Settler
	sessions *session.Negotiator
	exporter *mq.Exporter
	now      func() time.Time
}

// NewRouter 创建消息路由并接管连接断开后的清理
func NewRouter(d Deps) *Router {
	r := &Router{
		store:    d.Store,
		registry: d.Registry,
		limiter:  d.Limiter,
		pipeline: d.Pipeline,
		settler:  d.Settler,
		sessions: d.Sessions,
		exporter: d.Exporter,
		now:      time.Now,
	}
	if r.pipeline == nil {
		r.pipeline = moderation.NewDefaultPipeline()
	}
	if r.sessions == nil {
		r.sessions = session.NewNegotiator(r.store)
	}
	r.registry.OnDisconnect(r.handleDisconnect)
	return r
}

// Store 房间存储，供 HTTP 查询接口使用
func (r *Router) Store() *room.Store { return r.store }

// Sessions 会话协商器
func (r *Router) Sessions() *session.Negotiator { return r.sessions }

// admit 限流闸门，ceiling<=0 使用该类型的默认上限
func (r *Router) admit(identity string, kind ratelimit.Kind, ceiling int) error {
	if r.limiter.AllowWithin(identity, kind, ceiling) {
		return nil
	}
	metrics.RateLimitedTotal.WithLabelValues(string(kind)).Inc()
	return errorx.Newf(errorx.CodeRateLimited, "%s 操作过于频繁", kind)
}

func (r *Router) broadcast(aud room.Audience, typ registry.EventType, data any, exclude ...string) {
	r.registry.Broadcast(aud.RoomID, aud.Members, registry.NewEvent(typ, aud.RoomID, data), exclude...)
}

// notifyModerators 发给审核员以及 extra 中的身份，每个身份只投递一次
func (r *Router) notifyModerators(aud room.Audience, typ registry.EventType, data any, extra ...string) {
	seen := make(map[string]struct{}, len(aud.Moderators)+len(extra))
	recipients := make([]string, 0, len(aud.Moderators)+len(extra))
	for _, id := range append(append([]string{}, aud.Moderators...), extra...) {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}
	r.registry.Broadcast(aud.RoomID, recipients, registry.NewEvent(typ, aud.RoomID, data))
}

func (r *Router) broadcastViewerCount(aud room.Audience) {
	v, err := r.store.Get(aud.RoomID)
	if err != nil {
		return
	}
	r.broadcast(aud, registry.EventViewerCount, ViewerCountPayload{Count: v.ViewerCount})
}

// RunReaper 按间隔回收空闲房间，ttl<=0 时直接返回
func (r *Router) RunReaper(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 || interval > ttl {
		interval = ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.ReapIdle(r.now(), ttl); n > 0 {
				zap.L().Info("回收空闲房间", zap.Int("count", n))
			}
		}
	}
}
