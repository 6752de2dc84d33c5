package auth

import (
	"context"
	"errors"
	"testing"

	myredis "chatsphere_server/internal/dao/redis"
	"chatsphere_server/pkg/errorx"
	"chatsphere_server/pkg/util/jwt"
)

func TestAuthenticate(t *testing.T) {
	jwt.Init("auth-test-secret-0123456789abcdef", "chatsphere-test", 5)
	cache := myredis.NewMemoryCache()
	svc := NewAuthService(cache)
	ctx := context.Background()

	token, err := jwt.GenerateAccessToken("U1", "alice", jwt.Profile{PredictedLifetimeValue: 2000, Subscribed: true})
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	id, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.UserID != "U1" || id.Username != "alice" || !id.Profile.Subscribed || id.Profile.PredictedLifetimeValue != 2000 {
		t.Fatalf("identity = %+v", id)
	}

	_ = cache.Set(ctx, revokedKeyPrefix+id.TokenID, "1", 0)
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, errorx.ErrUnauthorized) {
		t.Fatalf("revoked token error = %v, want unauthorized", err)
	}

	if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, errorx.ErrUnauthorized) {
		t.Fatalf("garbage token error = %v, want unauthorized", err)
	}
	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, errorx.ErrUnauthorized) {
		t.Fatalf("empty token error = %v, want unauthorized", err)
	}
}
