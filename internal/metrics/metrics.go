// Package metrics 定义 Prometheus 指标，由 /metrics 暴露
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsphere_ws_connections",
		Help: "Current number of active websocket connections",
	})
	Rooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsphere_rooms",
		Help: "Current number of open rooms",
	})
	PeerSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsphere_peer_sessions",
		Help: "Current number of active peer sessions",
	})
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsphere_messages_total",
		Help: "Messages resolved by moderation, by kind and status",
	}, []string{"kind", "status"})
	TipVolumeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsphere_tip_volume_total",
		Help: "Settled tip volume by currency",
	}, []string{"currency"})
	ModerationActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsphere_moderation_actions_total",
		Help: "Moderation actions by kind and origin",
	}, []string{"kind", "automated"})
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsphere_rate_limited_total",
		Help: "Requests rejected by the admission gate",
	}, []string{"kind"})
	EventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_events_dropped_total",
		Help: "Outbound events dropped because the connection was closed or too slow",
	})
	RoomViewers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chatsphere_room_viewers",
		Help: "Online members per room at the last analytics snapshot",
	}, []string{"room_id"})
	RoomEngagement = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chatsphere_room_engagement",
		Help: "Engagement score per room at the last analytics snapshot",
	}, []string{"room_id"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, Rooms, PeerSessions,
		MessagesTotal, TipVolumeTotal, ModerationActionsTotal, RateLimitedTotal, EventsDroppedTotal,
		RoomViewers, RoomEngagement,
		HttpRequestsTotal, HttpRequestDuration,
	)
}

// ObserveModeration 统计一次审核动作
func ObserveModeration(kind string, automated bool) {
	ModerationActionsTotal.WithLabelValues(kind, strconv.FormatBool(automated)).Inc()
}

// ForgetRoom 房间关闭后删除按房间区分的指标
func ForgetRoom(roomID string) {
	RoomViewers.DeleteLabelValues(roomID)
	RoomEngagement.DeleteLabelValues(roomID)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
