package constants

const (
	CHANNEL_SIZE          = 256 // 每个连接的发送队列大小
	REDIS_TIMEOUT         = 10  // 分析快照缓存时间 (分钟)
	SYSTEM_SENDER         = "system"
	AUTOMATED_MODERATOR   = "automated"
	ANONYMOUS_SENDER      = "anonymous"
	DEFAULT_CURRENCY      = "USD"
	ANALYTICS_KEY_PREFIX  = "room_analytics_"
	VIP_LIFETIME_VALUE    = 1000 // 预测终身价值超过该值判定为 VIP
	PREMIUM_LOYALTY_LEVEL = 0.8  // 忠诚度超过该值判定为 Premium
)
