// Package mysql 定义审计持久化接口和聚合结构
// 聊天核心的权威状态在内存中，这里只落审核记录和封禁名单
package mysql

import (
	"context"

	"chatsphere_server/internal/model"
)

// AuditRepository 审核记录数据访问接口
type AuditRepository interface {
	// CreateRecord 写入一条审核动作记录
	CreateRecord(ctx context.Context, record *model.ModerationRecord) error
	// ListByRoom 按时间倒序查询房间的审核记录
	ListByRoom(ctx context.Context, roomId string, limit int) ([]model.ModerationRecord, error)
}

// BanRepository 封禁名单数据访问接口
type BanRepository interface {
	// SaveBan 写入封禁，重复封禁覆盖原记录
	SaveBan(ctx context.Context, ban *model.RoomBan) error
	// DeleteBan 解除封禁，不存在时不报错
	DeleteBan(ctx context.Context, roomId, userId string) error
	// DeleteByRoom 删除房间的全部封禁（房间关闭时）
	DeleteByRoom(ctx context.Context, roomId string) error
}
