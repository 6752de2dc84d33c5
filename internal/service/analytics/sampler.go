// Package analytics 周期性地把房间计数器整理成只读快照
// 快照是派生数据，从不回写房间存储
package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	myredis "chatsphere_server/internal/dao/redis"
	"chatsphere_server/internal/metrics"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/constants"
	"chatsphere_server/pkg/errorx"

	"go.uber.org/zap"
)

// indexKey 当前有快照的房间集合
const indexKey = constants.ANALYTICS_KEY_PREFIX + "index"

// Snapshot 单个房间的分析快照
type Snapshot struct {
	RoomID             string    `json:"room_id"`
	Type               room.Type `json:"type"`
	Messages           int       `json:"messages"`
	Removed            int       `json:"removed"`
	Flagged            int       `json:"flagged"`
	Tips               int       `json:"tips"`
	TipVolume          float64   `json:"tip_volume"`
	Reactions          int       `json:"reactions"`
	Votes              int       `json:"votes"`
	UniqueParticipants int       `json:"unique_participants"`
	PeakViewers        int       `json:"peak_viewers"`
	CurrentViewers     int       `json:"current_viewers"`
	Engagement         float64   `json:"engagement"`
	LastActivity       time.Time `json:"last_activity"`
	SampledAt          time.Time `json:"sampled_at"`
}

// StatsSource 房间计数器来源
type StatsSource interface {
	Stats() []room.Stats
}

// Sampler 分析采样器
type Sampler struct {
	source   StatsSource
	cache    myredis.AsyncCacheService // 可为 nil
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	latest map[string]Snapshot
}

// NewSampler 创建分析采样器
func NewSampler(source StatsSource, cache myredis.AsyncCacheService, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sampler{
		source:   source,
		cache:    cache,
		interval: interval,
		ttl:      constants.REDIS_TIMEOUT * time.Minute,
		now:      time.Now,
		latest:   make(map[string]Snapshot),
	}
}

// Engagement 参与度：(消息 + 2*打赏 + 回应 + 投票) / (10 * max(1, 独立参与者))，截断到 [0, 1]
func Engagement(c room.Counters) float64 {
	unique := c.UniqueParticipants
	if unique < 1 {
		unique = 1
	}
	score := float64(c.Messages+2*c.Tips+c.Reactions+c.Votes) / float64(10*unique)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Sample 生成一轮快照，已关闭房间的快照被丢弃
func (s *Sampler) Sample() []Snapshot {
	now := s.now()
	stats := s.source.Stats()
	snaps := make([]Snapshot, 0, len(stats))
	next := make(map[string]Snapshot, len(stats))
	for _, st := range stats {
		snap := Snapshot{
			RoomID:             st.RoomID,
			Type:               st.Type,
			Messages:           st.Messages,
			Removed:            st.Removed,
			Flagged:            st.Flagged,
			Tips:               st.Tips,
			TipVolume:          st.TipVolume,
			Reactions:          st.Reactions,
			Votes:              st.Votes,
			UniqueParticipants: st.UniqueParticipants,
			PeakViewers:        st.PeakViewers,
			CurrentViewers:     st.CurrentViewers,
			Engagement:         Engagement(st.Counters),
			LastActivity:       st.LastActivity,
			SampledAt:          now,
		}
		snaps = append(snaps, snap)
		next[snap.RoomID] = snap
		metrics.RoomViewers.WithLabelValues(snap.RoomID).Set(float64(snap.CurrentViewers))
		metrics.RoomEngagement.WithLabelValues(snap.RoomID).Set(snap.Engagement)
	}

	s.mu.Lock()
	var gone []string
	for id := range s.latest {
		if _, ok := next[id]; !ok {
			gone = append(gone, id)
		}
	}
	s.latest = next
	s.mu.Unlock()

	metrics.Rooms.Set(float64(len(snaps)))
	s.publish(snaps, gone)
	return snaps
}

// publish 异步写入缓存，失败只记录日志
func (s *Sampler) publish(snaps []Snapshot, gone []string) {
	if s.cache == nil {
		return
	}
	s.cache.SubmitTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ids := make([]string, 0, len(snaps))
		for _, snap := range snaps {
			raw, err := json.Marshal(snap)
			if err != nil {
				zap.L().Error("序列化分析快照失败", zap.String("room_id", snap.RoomID), zap.Error(err))
				continue
			}
			if err := s.cache.Set(ctx, constants.ANALYTICS_KEY_PREFIX+snap.RoomID, string(raw), s.ttl); err != nil {
				zap.L().Warn("写入分析快照缓存失败", zap.String("room_id", snap.RoomID), zap.Error(err))
				continue
			}
			ids = append(ids, snap.RoomID)
		}
		if len(ids) > 0 {
			if err := s.cache.AddToSet(ctx, indexKey, ids...); err != nil {
				zap.L().Warn("更新分析快照索引失败", zap.Error(err))
			}
		}
		for _, id := range gone {
			if err := s.cache.Delete(ctx, constants.ANALYTICS_KEY_PREFIX+id); err != nil {
				zap.L().Warn("删除分析快照缓存失败", zap.String("room_id", id), zap.Error(err))
			}
		}
		if len(gone) > 0 {
			if err := s.cache.RemoveFromSet(ctx, indexKey, gone...); err != nil {
				zap.L().Warn("更新分析快照索引失败", zap.Error(err))
			}
		}
	})
}

// Latest 房间最近一次快照；还没有采样过时返回 NotFound
func (s *Sampler) Latest(roomID string) (Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.latest[roomID]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, errorx.Newf(errorx.CodeNotFound, "房间 %s 暂无分析快照", roomID)
	}
	return snap, nil
}

// Cached 从缓存读取快照，用于跨实例查询
func (s *Sampler) Cached(ctx context.Context, roomID string) (Snapshot, error) {
	if s.cache == nil {
		return s.Latest(roomID)
	}
	raw, err := s.cache.GetOrError(ctx, constants.ANALYTICS_KEY_PREFIX+roomID)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, errorx.Wrap(err, errorx.CodeCacheError, "解析分析快照失败")
	}
	return snap, nil
}

// Indexed 缓存中有快照的房间
func (s *Sampler) Indexed(ctx context.Context) ([]string, error) {
	if s.cache == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		ids := make([]string, 0, len(s.latest))
		for id := range s.latest {
			ids = append(ids, id)
		}
		return ids, nil
	}
	return s.cache.GetSetMembers(ctx, indexKey)
}

// Run 按间隔采样，直到 ctx 取消
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snaps := s.Sample()
			zap.L().Debug("分析快照完成", zap.Int("rooms", len(snaps)))
		}
	}
}
