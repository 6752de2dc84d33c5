// Package auth 把连接携带的凭证解析为稳定身份和画像信号
// 凭证由外部身份系统签发，本服务只做 JWT 校验和吊销检查
package auth

import (
	"context"

	myredis "chatsphere_server/internal/dao/redis"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/errorx"
	"chatsphere_server/pkg/util/jwt"

	"go.uber.org/zap"
)

// revokedKeyPrefix 被吊销 Token 的缓存 key 前缀，值为任意非空字符串
const revokedKeyPrefix = "revoked_token:"

// Identity 认证结果
type Identity struct {
	UserID   string
	Username string
	TokenID  string
	Profile  room.Profile
}

// Authenticator 身份认证能力
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// Service JWT 认证实现
type Service struct {
	cache myredis.CacheService // 缓存服务（依赖倒置），可为 nil
}

// NewAuthService 创建认证服务实例
// cache: 缓存服务接口实例，用于查询 Token 吊销名单
func NewAuthService(cache myredis.CacheService) *Service {
	return &Service{
		cache: cache,
	}
}

// Authenticate 校验 Token 并返回身份
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, errorx.New(errorx.CodeUnauthorized, "缺少认证凭证")
	}
	claims, err := jwt.ParseToken(token)
	if err != nil {
		return Identity{}, errorx.Wrap(err, errorx.CodeUnauthorized, "认证凭证无效")
	}
	if claims.UserID == "" {
		return Identity{}, errorx.New(errorx.CodeUnauthorized, "认证凭证缺少用户")
	}
	if claims.Subject != "access_token" {
		return Identity{}, errorx.New(errorx.CodeUnauthorized, "请使用 Access Token")
	}

	revoked, err := s.Revoked(ctx, claims.ID)
	if err != nil {
		// 吊销名单不可用时放行，只记录日志
		zap.L().Warn("查询 Token 吊销名单失败", zap.String("user_id", claims.UserID), zap.Error(err))
	} else if revoked {
		return Identity{}, errorx.New(errorx.CodeUnauthorized, "认证凭证已被吊销")
	}

	return Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		TokenID:  claims.ID,
		Profile: room.Profile{
			Tier:                   claims.Tier,
			PredictedLifetimeValue: claims.PredictedLifetimeValue,
			LoyaltyLevel:           claims.LoyaltyLevel,
			Subscribed:             claims.Subscribed,
		},
	}, nil
}

// Revoked Token 是否在吊销名单中
func (s *Service) Revoked(ctx context.Context, tokenID string) (bool, error) {
	if s.cache == nil || tokenID == "" {
		return false, nil
	}
	v, err := s.cache.Get(ctx, revokedKeyPrefix+tokenID)
	if err != nil {
		return false, err
	}
	return v != "", nil
}
