package mysql

import (
	"context"

	"chatsphere_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository 创建审核记录 Repository
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) CreateRecord(ctx context.Context, record *model.ModerationRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return wrapDBErrorf(err, "写入审核记录 action_id=%s", record.ActionId)
	}
	return nil
}

func (r *auditRepository) ListByRoom(ctx context.Context, roomId string, limit int) ([]model.ModerationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []model.ModerationRecord
	if err := r.db.WithContext(ctx).
		Where("room_id = ?", roomId).
		Order("acted_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询审核记录 room_id=%s", roomId)
	}
	return records, nil
}

type banRepository struct {
	db *gorm.DB
}

// NewBanRepository 创建封禁名单 Repository
func NewBanRepository(db *gorm.DB) BanRepository {
	return &banRepository{db: db}
}

func (r *banRepository) SaveBan(ctx context.Context, ban *model.RoomBan) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"actor_id", "reason", "banned_at"}),
	}).Create(ban).Error
	if err != nil {
		return wrapDBErrorf(err, "写入封禁 room_id=%s user_id=%s", ban.RoomId, ban.UserId)
	}
	return nil
}

func (r *banRepository) DeleteBan(ctx context.Context, roomId, userId string) error {
	if err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomId, userId).
		Delete(&model.RoomBan{}).Error; err != nil {
		return wrapDBErrorf(err, "解除封禁 room_id=%s user_id=%s", roomId, userId)
	}
	return nil
}

func (r *banRepository) DeleteByRoom(ctx context.Context, roomId string) error {
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomId).Delete(&model.RoomBan{}).Error; err != nil {
		return wrapDBErrorf(err, "删除房间封禁 room_id=%s", roomId)
	}
	return nil
}
