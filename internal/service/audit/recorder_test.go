package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatsphere_server/internal/dao/mysql"
	"chatsphere_server/internal/model"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/errorx"
)

type fakeAudit struct {
	mu      sync.Mutex
	records []*model.ModerationRecord
}

func (f *fakeAudit) CreateRecord(_ context.Context, rec *model.ModerationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAudit) ListByRoom(_ context.Context, roomId string, _ int) ([]model.ModerationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ModerationRecord
	for _, r := range f.records {
		if r.RoomId == roomId {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeBans struct {
	mu   sync.Mutex
	bans map[string]model.RoomBan
}

func (f *fakeBans) SaveBan(_ context.Context, ban *model.RoomBan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bans[ban.RoomId+"/"+ban.UserId] = *ban
	return nil
}

func (f *fakeBans) DeleteBan(_ context.Context, roomId, userId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bans, roomId+"/"+userId)
	return nil
}

func (f *fakeBans) DeleteByRoom(_ context.Context, roomId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, b := range f.bans {
		if b.RoomId == roomId {
			delete(f.bans, k)
		}
	}
	return nil
}

func TestRecorderPersists(t *testing.T) {
	audit := &fakeAudit{}
	bans := &fakeBans{bans: make(map[string]model.RoomBan)}
	rec := NewRecorder(&mysql.Repositories{Audit: audit, Ban: bans}, nil, 0)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec.RecordAction(room.ModerationAction{
		ID: "A1", RoomID: "R1", TargetID: "u1", ActorID: "mod", Kind: room.ActionMute,
		Duration: 90 * time.Second, CreatedAt: now, Enacted: true,
	})
	rec.RecordBan("R1", "u1", "mod", "spam", now)
	rec.RecordBan("R1", "u2", "mod", "spam", now)
	rec.RecordUnban("R1", "u2")
	rec.RecordBan("R2", "u3", "mod", "spam", now)
	rec.RecordRoomClosed("R2")
	rec.Close()

	if len(audit.records) != 1 {
		t.Fatalf("records = %d, want 1", len(audit.records))
	}
	got := audit.records[0]
	if got.ActionId != "A1" || got.Kind != "mute" || got.DurationSeconds != 90 || !got.Enacted || !got.ActedAt.Equal(now) {
		t.Fatalf("record = %+v", got)
	}
	if len(bans.bans) != 1 {
		t.Fatalf("bans = %v, want only R1/u1", bans.bans)
	}
	if _, ok := bans.bans["R1/u1"]; !ok {
		t.Fatalf("bans = %v, want R1/u1", bans.bans)
	}

	history, err := rec.History(context.Background(), "R1", 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("History() = %v, %v", history, err)
	}

	// 关闭后再提交不应 panic
	rec.RecordAction(room.ModerationAction{ID: "A2", RoomID: "R1", Kind: room.ActionWarn})
}

func TestRecorderWithoutRepositories(t *testing.T) {
	rec := NewRecorder(nil, nil, 1)
	rec.RecordAction(room.ModerationAction{ID: "A1", RoomID: "R1", Kind: room.ActionWarn})
	rec.RecordBan("R1", "u1", "mod", "", time.Now())
	rec.RecordRoomClosed("R1")
	rec.Close()

	if _, err := rec.History(context.Background(), "R1", 10); !errors.Is(err, errorx.ErrNotFound) {
		t.Fatalf("History() error = %v, want not found", err)
	}
}
