// Package model 定义数据库实体模型
// 本文件定义审核记录模型，每一次审核动作（含自动审核）都会落表供审计使用
package model

import (
	"time"

	"gorm.io/gorm"
)

// ModerationRecord 审核动作记录
// 对应数据库 moderation_record 表
type ModerationRecord struct {
	gorm.Model

	// ActionId 审核动作 UUID
	ActionId string `gorm:"column:action_id;uniqueIndex;type:char(36);not null;comment:审核动作uuid"`

	// RoomId 房间 UUID
	RoomId string `gorm:"column:room_id;index;type:char(36);not null;comment:房间uuid"`

	// TargetId 被处理的用户
	TargetId string `gorm:"column:target_id;index;type:varchar(64);not null;comment:被处理用户"`

	// ActorId 执行人，自动审核为 "automated"
	ActorId string `gorm:"column:actor_id;type:varchar(64);not null;comment:执行人"`

	// Kind 动作类型：warn, mute, kick, ban, message_delete
	Kind string `gorm:"column:kind;type:varchar(20);not null;comment:动作类型"`

	// Reason 处理原因，如 toxic、spam 或人工填写的原因
	Reason string `gorm:"column:reason;type:varchar(255);comment:原因"`

	// MessageId 关联消息（message_delete 时有值）
	MessageId string `gorm:"column:message_id;type:varchar(32);comment:关联消息"`

	// DurationSeconds 持续时间（秒），0 表示无期限
	DurationSeconds int64 `gorm:"column:duration_seconds;comment:持续时间秒"`

	// Automated 是否自动审核产生
	Automated bool `gorm:"column:automated;comment:是否自动"`

	// Appealable 是否可申诉
	Appealable bool `gorm:"column:appealable;comment:是否可申诉"`

	// Enacted 是否已实际执行（目标不在房间时为 false）
	Enacted bool `gorm:"column:enacted;comment:是否已执行"`

	// ActedAt 动作发生时间
	ActedAt time.Time `gorm:"column:acted_at;index;not null;comment:动作时间"`
}

// TableName 指定表名
func (ModerationRecord) TableName() string {
	return "moderation_record"
}
