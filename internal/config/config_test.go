package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultFillsEveryChatKnob(t *testing.T) {
	c := Default()
	ch := c.ChatConfig
	if ch.RateWindow != time.Minute {
		t.Fatalf("RateWindow = %v, want 1m", ch.RateWindow)
	}
	if ch.HeartbeatInterval != 30*time.Second || ch.InactivityTimeout != 5*time.Minute {
		t.Fatalf("heartbeat = %v, inactivity = %v", ch.HeartbeatInterval, ch.InactivityTimeout)
	}
	if ch.RoomIdleTTL != 0 {
		t.Fatalf("RoomIdleTTL = %v, want 0", ch.RoomIdleTTL)
	}
	if c.MQConfig.Mode != "none" || c.MQConfig.Timeout != 5*time.Second {
		t.Fatalf("mq = %+v", c.MQConfig)
	}
	if c.MainConfig.Port != 8000 || c.AppName != "chatsphere" {
		t.Fatalf("main = %+v", c.MainConfig)
	}
}

func TestLoadFileConvertsSeconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[mainConfig]
port = 9100
forceTLS = true

[chatConfig]
rateWindow = 30
inactivityTimeout = 90
roomIdleTTL = 600
messageCeiling = 5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	c := GetConfig()
	if c.MainConfig.Port != 9100 || !c.MainConfig.ForceTLS {
		t.Fatalf("main = %+v", c.MainConfig)
	}
	ch := c.ChatConfig
	if ch.RateWindow != 30*time.Second || ch.InactivityTimeout != 90*time.Second || ch.RoomIdleTTL != 10*time.Minute {
		t.Fatalf("durations = %v %v %v", ch.RateWindow, ch.InactivityTimeout, ch.RoomIdleTTL)
	}
	if ch.MessageCeiling != 5 || ch.TipCeiling != 10 {
		t.Fatalf("ceilings = %d %d", ch.MessageCeiling, ch.TipCeiling)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if err := LoadFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("LoadFile() on a missing file should fail")
	}
}

func TestSecondsKeepsFullDurations(t *testing.T) {
	if got := seconds(2*time.Minute, 7); got != 2*time.Minute {
		t.Fatalf("seconds(2m) = %v", got)
	}
	if got := seconds(0, 7); got != 7*time.Second {
		t.Fatalf("seconds(0, 7) = %v", got)
	}
}
