// Package audit 把房间内发生的审核动作落到数据库和导出主题
// 房间存储在锁内调用 Record*，这里只入队，写库由后台 Worker 完成
package audit

import (
	"context"
	"sync"
	"time"

	"chatsphere_server/internal/dao/mysql"
	"chatsphere_server/internal/infrastructure/mq"
	"chatsphere_server/internal/metrics"
	"chatsphere_server/internal/model"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/errorx"

	"go.uber.org/zap"
)

const (
	defaultBuffer  = 1024
	defaultTimeout = 5 * time.Second
)

type task struct {
	name string
	run  func(ctx context.Context) error
}

// Recorder 审核记录落点，实现 room.AuditSink
// audit、bans 为空时只做指标和导出
type Recorder struct {
	audit    mysql.AuditRepository
	bans     mysql.BanRepository
	exporter *mq.Exporter
	timeout  time.Duration

	tasks     chan task
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewRecorder 创建审核记录落点并启动 Worker
// repos 可为 nil（未配置 MySQL），exporter 可为 nil（未配置导出）
func NewRecorder(repos *mysql.Repositories, exporter *mq.Exporter, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	r := &Recorder{
		exporter: exporter,
		timeout:  defaultTimeout,
		tasks:    make(chan task, buffer),
	}
	if repos != nil {
		r.audit = repos.Audit
		r.bans = repos.Ban
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for t := range r.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := t.run(ctx); err != nil {
			zap.L().Error("审核记录落库失败", zap.String("task", t.name), zap.Error(err))
		}
		cancel()
	}
}

func (r *Recorder) submit(name string, run func(ctx context.Context) error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.tasks <- task{name: name, run: run}:
	default:
		zap.L().Warn("审核记录队列已满，丢弃任务", zap.String("task", name))
	}
}

// RecordAction 统计、导出并落库一条审核动作
func (r *Recorder) RecordAction(a room.ModerationAction) {
	metrics.ObserveModeration(string(a.Kind), a.Automated)
	r.exporter.ExportModeration(a.RoomID, a.ID, a)
	if r.audit == nil {
		return
	}
	record := toRecord(a)
	r.submit("create_record", func(ctx context.Context) error {
		return r.audit.CreateRecord(ctx, record)
	})
}

// RecordBan 落库封禁名单
func (r *Recorder) RecordBan(roomID, userID, actorID, reason string, at time.Time) {
	if r.bans == nil {
		return
	}
	ban := &model.RoomBan{RoomId: roomID, UserId: userID, ActorId: actorID, Reason: reason, BannedAt: at}
	r.submit("save_ban", func(ctx context.Context) error {
		return r.bans.SaveBan(ctx, ban)
	})
}

// RecordUnban 删除封禁记录
func (r *Recorder) RecordUnban(roomID, userID string) {
	if r.bans == nil {
		return
	}
	r.submit("delete_ban", func(ctx context.Context) error {
		return r.bans.DeleteBan(ctx, roomID, userID)
	})
}

// RecordRoomClosed 房间关闭后清理封禁记录，审核记录保留
func (r *Recorder) RecordRoomClosed(roomID string) {
	metrics.ForgetRoom(roomID)
	if r.bans == nil {
		return
	}
	r.submit("delete_room_bans", func(ctx context.Context) error {
		return r.bans.DeleteByRoom(ctx, roomID)
	})
}

// History 查询已落库的审核记录，未配置 MySQL 时返回 NotFound
func (r *Recorder) History(ctx context.Context, roomID string, limit int) ([]model.ModerationRecord, error) {
	if r.audit == nil {
		return nil, errorx.New(errorx.CodeNotFound, "未启用审核记录持久化")
	}
	return r.audit.ListByRoom(ctx, roomID, limit)
}

// Close 排空队列
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.tasks)
		r.mu.Unlock()
		r.wg.Wait()
	})
}

func toRecord(a room.ModerationAction) *model.ModerationRecord {
	return &model.ModerationRecord{
		ActionId:        a.ID,
		RoomId:          a.RoomID,
		TargetId:        a.TargetID,
		ActorId:         a.ActorID,
		Kind:            string(a.Kind),
		Reason:          a.Reason,
		MessageId:       a.MessageID,
		DurationSeconds: int64(a.Duration / time.Second),
		Automated:       a.Automated,
		Appealable:      a.Appealable,
		Enacted:         a.Enacted,
		ActedAt:         a.CreatedAt,
	}
}
