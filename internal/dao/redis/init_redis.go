package redis

import (
	"context"
	"net"
	"strconv"
	"time"

	"chatsphere_server/internal/config"
	"chatsphere_server/pkg/errorx"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Init 按配置创建缓存服务
// 未配置 Host 时返回进程内缓存；配置了但无法连通时返回错误
func Init(conf config.RedisConfig) (AsyncCacheService, error) {
	if conf.Host == "" {
		zap.L().Info("redis 未配置，分析快照仅保存在内存")
		return NewMemoryCache(), nil
	}

	port := conf.Port
	if port == 0 {
		port = 6379
	}
	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(conf.Host, strconv.Itoa(port)),
		Password:     conf.Password,
		DB:           conf.Db,
		PoolSize:     50,
		MinIdleConns: conf.Workers,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errorx.Wrap(err, errorx.CodeCacheError, "redis ping")
	}
	return NewRedisCache(client, conf.Workers, conf.Buffer), nil
}
