package model

import "time"

// RoomBan 房间封禁记录
// 对应数据库 room_ban 表，(room_id, user_id) 唯一；解封时硬删除
// 房间关闭时随房间一起删除
type RoomBan struct {
	ID       uint      `gorm:"primarykey"`
	RoomId   string    `gorm:"column:room_id;uniqueIndex:idx_room_user;type:char(36);not null;comment:房间uuid"`
	UserId   string    `gorm:"column:user_id;uniqueIndex:idx_room_user;type:varchar(64);not null;comment:被封禁用户"`
	ActorId  string    `gorm:"column:actor_id;type:varchar(64);not null;comment:执行人"`
	Reason   string    `gorm:"column:reason;type:varchar(255);comment:原因"`
	BannedAt time.Time `gorm:"column:banned_at;not null;comment:封禁时间"`
}

// TableName 指定表名
func (RoomBan) TableName() string {
	return "room_ban"
}
