// Package service 提供业务逻辑层
// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"context"
	"sync"

	"chatsphere_server/internal/config"
	"chatsphere_server/internal/dao/mysql"
	myredis "chatsphere_server/internal/dao/redis"
	"chatsphere_server/internal/infrastructure/mq"
	"chatsphere_server/internal/service/analytics"
	"chatsphere_server/internal/service/audit"
	"chatsphere_server/internal/service/auth"
	"chatsphere_server/internal/service/chat"
	"chatsphere_server/internal/service/payment"
	"chatsphere_server/internal/service/ratelimit"
	"chatsphere_server/internal/service/registry"
	"chatsphere_server/internal/service/room"

	"go.uber.org/zap"
)

// Services 聚合实时核心的全部组件
// Handler 层和 WebSocket 网关通过它访问各个 Service
type Services struct {
	Store    *room.Store
	Registry *registry.Registry
	Limiter  *ratelimit.Limiter
	Chat     *chat.Router
	Auth     *auth.Service
	Sampler  *analytics.Sampler
	Recorder *audit.Recorder
	Exporter *mq.Exporter
	Cache    myredis.AsyncCacheService
	Repos    *mysql.Repositories

	conf config.ChatConfig
	wg   sync.WaitGroup
}

// NewServices 创建并注入所有 Service 实例
// 依赖注入流程：
//  1. 审核记录器作为房间存储的审计出口
//  2. 创建房间存储、连接注册表、限流器
//  3. 由路由器把它们串起来，并注册断线清理回调
//  4. 分析采样读取房间计数器，快照写入缓存
//
// repos 为 nil 表示不落库；cache 不能为 nil，未配置 Redis 时传入内存缓存
func NewServices(conf *config.Config, repos *mysql.Repositories, cache myredis.AsyncCacheService, exporter *mq.Exporter) *Services {
	chatConf := conf.ChatConfig
	recorder := audit.NewRecorder(repos, exporter, chatConf.AuditCapacity)
	store := room.NewStore(chatConf, room.WithAuditSink(recorder))
	reg := registry.New(chatConf)
	limiter := ratelimit.New(chatConf)

	router := chat.NewRouter(chat.Deps{
		Store:    store,
		Registry: reg,
		Limiter:  limiter,
		Settler:  payment.NewLedgerSettler(0),
		Exporter: exporter,
	})

	return &Services{
		Store:    store,
		Registry: reg,
		Limiter:  limiter,
		Chat:     router,
		Auth:     auth.NewAuthService(cache),
		Sampler:  analytics.NewSampler(store, cache, chatConf.AnalyticsInterval),
		Recorder: recorder,
		Exporter: exporter,
		Cache:    cache,
		Repos:    repos,
		conf:     chatConf,
	}
}

// Run 启动心跳巡检、限流窗口清理、分析采样和空闲房间回收，ctx 取消后全部退出
func (s *Services) Run(ctx context.Context) {
	loops := []func(){
		func() { s.Registry.Run(ctx) },
		func() { s.Limiter.Run(ctx) },
		func() { s.Sampler.Run(ctx) },
		func() { s.Chat.RunReaper(ctx, s.conf.RoomIdleTTL, s.conf.HeartbeatInterval) },
	}
	for _, loop := range loops {
		s.wg.Add(1)
		go func(run func()) {
			defer s.wg.Done()
			run()
		}(loop)
	}
}

// Close 等待后台任务退出后依次释放审计、导出、缓存和数据库
func (s *Services) Close() {
	s.wg.Wait()
	s.Recorder.Close()
	if s.Exporter != nil {
		if err := s.Exporter.Close(); err != nil {
			zap.L().Warn("关闭事件导出失败", zap.Error(err))
		}
	}
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			zap.L().Warn("关闭缓存失败", zap.Error(err))
		}
	}
	if s.Repos != nil {
		if err := s.Repos.Close(); err != nil {
			zap.L().Warn("关闭数据库失败", zap.Error(err))
		}
	}
}
