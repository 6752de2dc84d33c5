package ratelimit

import (
	"testing"
	"time"

	"chatsphere_server/internal/config"
)

func newTestLimiter(window time.Duration, ceiling int) (*Limiter, *time.Time) {
	conf := config.Default().ChatConfig
	conf.RateWindow = window
	conf.MessageCeiling = ceiling
	conf.TipCeiling = ceiling
	now := time.Unix(1_700_000_000, 0)
	return New(conf, WithClock(func() time.Time { return now })), &now
}

func TestWindowReset(t *testing.T) {
	const n = 10
	l, now := newTestLimiter(time.Minute, n)

	for i := 0; i < n; i++ {
		if !l.Allow("U2", KindMessage) {
			t.Fatalf("call %d rejected, want allowed", i+1)
		}
		*now = now.Add(time.Second)
	}
	if l.Allow("U2", KindMessage) {
		t.Fatalf("call %d allowed, want rejected", n+1)
	}

	// 窗口从第一次调用开始计时
	*now = time.Unix(1_700_000_000, 0).Add(time.Minute)
	if !l.Allow("U2", KindMessage) {
		t.Fatal("call after window elapsed rejected")
	}
}

func TestKindsAndIdentitiesIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 1)

	if !l.Allow("U1", KindMessage) || l.Allow("U1", KindMessage) {
		t.Fatal("message ceiling of 1 not enforced")
	}
	if !l.Allow("U1", KindTip) {
		t.Fatal("tips share the message counter")
	}
	if !l.Allow("U2", KindMessage) {
		t.Fatal("U2 shares U1's counter")
	}
}

func TestAllowWithinOverridesCeiling(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 100)
	for i := 0; i < 3; i++ {
		if !l.AllowWithin("U1", KindMessage, 3) {
			t.Fatalf("call %d rejected", i+1)
		}
	}
	if l.AllowWithin("U1", KindMessage, 3) {
		t.Fatal("ceiling override not enforced")
	}
}

func TestCleanupAndReset(t *testing.T) {
	l, now := newTestLimiter(time.Minute, 1)
	l.Allow("U1", KindMessage)
	l.Allow("U2", KindMessage)

	l.Reset("U1")
	if !l.Allow("U1", KindMessage) {
		t.Fatal("Reset() did not clear the window")
	}

	*now = now.Add(time.Minute)
	if got := l.Cleanup(); got != 2 {
		t.Fatalf("Cleanup() = %d, want 2", got)
	}
}
