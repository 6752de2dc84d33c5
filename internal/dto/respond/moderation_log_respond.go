package respond

import (
	"chatsphere_server/internal/model"
	"chatsphere_server/internal/service/room"
)

// ModerationLogRespond 房间审核记录
// 使用位置:
//   - internal/handler/room_handler.go: ModerationLog
type ModerationLogRespond struct {
	Actions []room.ModerationAction  `json:"actions"`
	Removed []room.Message           `json:"removed"`
	Bans    []string                 `json:"bans"`
	Records []model.ModerationRecord `json:"records,omitempty"`
}

// UnbanRespond 解除封禁结果，Unbanned 为 false 表示本来就没有被封禁
type UnbanRespond struct {
	UserID   string `json:"user_id"`
	Unbanned bool   `json:"unbanned"`
}
