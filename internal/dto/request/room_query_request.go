package request

// HistoryRequest 历史消息查询
// 使用位置:
//   - internal/handler/room_handler.go: History
type HistoryRequest struct {
	Limit int `form:"limit" binding:"omitempty,gte=1,lte=500"`
}

// ModerationLogRequest 审核记录查询，Persisted 为 true 时附带数据库中的持久化记录
// 使用位置:
//   - internal/handler/room_handler.go: ModerationLog
type ModerationLogRequest struct {
	Persisted bool `form:"persisted"`
	Limit     int  `form:"limit" binding:"omitempty,gte=1,lte=500"`
}
