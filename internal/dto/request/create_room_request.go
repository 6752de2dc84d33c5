package request

import (
	"time"

	"chatsphere_server/internal/service/room"
)

// CreateRoomRequest 创建房间请求
// 使用位置:
//   - internal/handler/room_handler.go: CreateRoom
//
// 指针字段为空时使用按房间类型生成的默认值
type CreateRoomRequest struct {
	Name                 string   `json:"name" binding:"max=64"`
	Type                 string   `json:"type" binding:"required,room_type"`
	IsPublic             *bool    `json:"is_public"`
	RequiresSubscription *bool    `json:"requires_subscription"`
	MinimumTipAmount     *float64 `json:"minimum_tip_amount" binding:"omitempty,gte=0"`
	MaxParticipants      *int     `json:"max_participants" binding:"omitempty,gt=0"`
	EncryptionEnabled    *bool    `json:"encryption_enabled"`
	RecordingPolicy      *string  `json:"recording_policy" binding:"omitempty,recording_policy"`
	HistoryEnabled       *bool    `json:"history_enabled"`
	AutoModeration       *bool    `json:"auto_moderation"`
	ToxicityThreshold    *float64 `json:"toxicity_threshold" binding:"omitempty,gte=0,lte=1"`
	ReportThreshold      *int     `json:"report_threshold" binding:"omitempty,gt=0"`
	BanDurationSeconds   *int     `json:"ban_duration_seconds" binding:"omitempty,gt=0"`
}

// Options 转换为房间存储的创建选项
func (r *CreateRoomRequest) Options() room.Options {
	opts := room.Options{
		Name:                 r.Name,
		IsPublic:             r.IsPublic,
		RequiresSubscription: r.RequiresSubscription,
		MinimumTipAmount:     r.MinimumTipAmount,
		MaxParticipants:      r.MaxParticipants,
		EncryptionEnabled:    r.EncryptionEnabled,
		HistoryEnabled:       r.HistoryEnabled,
		AutoModeration:       r.AutoModeration,
		ToxicityThreshold:    r.ToxicityThreshold,
		ReportThreshold:      r.ReportThreshold,
	}
	if r.RecordingPolicy != nil {
		p := room.RecordingPolicy(*r.RecordingPolicy)
		opts.RecordingPolicy = &p
	}
	if r.BanDurationSeconds != nil {
		d := time.Duration(*r.BanDurationSeconds) * time.Second
		opts.BanDuration = &d
	}
	return opts
}
