package room

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatsphere_server/internal/config"
	"chatsphere_server/pkg/errorx"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingSink struct {
	actions []ModerationAction
	bans    []string
	unbans  []string
	closed  []string
}

func (s *recordingSink) RecordAction(a ModerationAction) { s.actions = append(s.actions, a) }
func (s *recordingSink) RecordBan(_, userID, _, _ string, _ time.Time) {
	s.bans = append(s.bans, userID)
}
func (s *recordingSink) RecordUnban(_, userID string) { s.unbans = append(s.unbans, userID) }
func (s *recordingSink) RecordRoomClosed(roomID string) {
	s.closed = append(s.closed, roomID)
}

func newTestStore(t *testing.T) (*Store, *fakeClock, *recordingSink) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	sink := &recordingSink{}
	return NewStore(config.Default().ChatConfig, WithClock(clock.now), WithAuditSink(sink)), clock, sink
}

func createRoom(t *testing.T, s *Store, owner string, typ Type) string {
	t.Helper()
	v, err := s.CreateRoom(owner, typ, Options{})
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	return v.ID
}

func join(t *testing.T, s *Store, roomID, userID string) JoinResult {
	t.Helper()
	res, err := s.Join(roomID, userID, nil)
	if err != nil {
		t.Fatalf("Join(%s) error = %v", userID, err)
	}
	return res
}

func textMessage(id, roomID, sender, body string, status Status) *Message {
	return &Message{
		ID:       id,
		RoomID:   roomID,
		SenderID: sender,
		Kind:     KindText,
		Status:   status,
		Payload:  &TextPayload{Body: body},
	}
}

func TestCreateRoomDefaults(t *testing.T) {
	s, _, _ := newTestStore(t)
	for typ, want := range map[Type]int{
		TypePrivate: 2, TypeGroup: 50, TypePublic: 500,
		TypeLiveStream: 10000, TypeVideoCall: 10, TypeFanClub: 100,
	} {
		v, err := s.CreateRoom("U1", typ, Options{})
		if err != nil {
			t.Fatalf("CreateRoom(%s) error = %v", typ, err)
		}
		if v.Settings.MaxParticipants != want {
			t.Errorf("%s capacity = %d, want %d", typ, v.Settings.MaxParticipants, want)
		}
		if len(v.Moderation.Moderators) != 1 || v.Moderation.Moderators[0] != "U1" {
			t.Errorf("%s moderators = %v, want [U1]", typ, v.Moderation.Moderators)
		}
		if v.Moderation.ToxicityThreshold != 0.7 || v.Moderation.ReportThreshold != 3 || v.Moderation.BanDuration != time.Hour {
			t.Errorf("%s moderation defaults = %+v", typ, v.Moderation)
		}
	}

	if _, err := s.CreateRoom("U1", Type("arena"), Options{}); !errors.Is(err, errorx.ErrInvalidParam) {
		t.Fatalf("CreateRoom(unknown type) error = %v, want invalid param", err)
	}
	cap3 := 3
	v, err := s.CreateRoom("U1", TypeGroup, Options{MaxParticipants: &cap3})
	if err != nil || v.Settings.MaxParticipants != 3 {
		t.Fatalf("CreateRoom(override) = %d, %v", v.Settings.MaxParticipants, err)
	}
}

func TestJoinRolesAndApprovedMessage(t *testing.T) {
	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)

	owner := join(t, s, roomID, "U1")
	if owner.Member.Role != RoleOwner || !owner.Rejoined {
		t.Fatalf("owner join = %+v, want rejoined owner", owner.Member)
	}
	if owner.Member.Permissions != PermissionsFor(RoleOwner) {
		t.Fatalf("owner permissions = %+v", owner.Member.Permissions)
	}

	u2 := join(t, s, roomID, "U2")
	if u2.Member.Role != RoleRegular || u2.Rejoined {
		t.Fatalf("U2 join = %+v, want new regular", u2.Member)
	}
	if u2.ViewerCount != 2 {
		t.Fatalf("viewer count = %d, want 2", u2.ViewerCount)
	}

	msg := textMessage("M1", roomID, "U2", "hello everyone", StatusPending)
	if _, err := s.AuthorizeMessage(roomID, msg); err != nil {
		t.Fatalf("AuthorizeMessage() error = %v", err)
	}
	msg.Status = StatusApproved
	aud, err := s.AppendMessage(roomID, msg)
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if len(aud.Members) != 2 || aud.Members[0] != "U1" || aud.Members[1] != "U2" {
		t.Fatalf("audience = %v, want [U1 U2]", aud.Members)
	}

	hist, _ := s.History(roomID, 0)
	if len(hist) != 1 || hist[0].ID != "M1" || hist[0].Status != StatusApproved {
		t.Fatalf("history = %+v", hist)
	}
}

func TestJoinProfileSignals(t *testing.T) {
	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)

	vip, _ := s.Join(roomID, "V", &Profile{PredictedLifetimeValue: 1500})
	prem, _ := s.Join(roomID, "P", &Profile{LoyaltyLevel: 0.9})
	reg, _ := s.Join(roomID, "R", &Profile{PredictedLifetimeValue: 1000, LoyaltyLevel: 0.8})
	if vip.Member.Role != RoleVIP || prem.Member.Role != RolePremium || reg.Member.Role != RoleRegular {
		t.Fatalf("roles = %s %s %s", vip.Member.Role, prem.Member.Role, reg.Member.Role)
	}
}

func TestJoinRejectsFullRoom(t *testing.T) {
	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePrivate)
	join(t, s, roomID, "U1")
	join(t, s, roomID, "U2")

	if _, err := s.Join(roomID, "U5", nil); !errors.Is(err, errorx.ErrRoomFull) {
		t.Fatalf("Join(U5) error = %v, want room full", err)
	}
	// 已有成员重新加入不受容量影响
	if _, err := s.Join(roomID, "U2", nil); err != nil {
		t.Fatalf("rejoin error = %v", err)
	}
	if _, err := s.Join("missing", "U2", nil); !errors.Is(err, errorx.ErrNotFound) {
		t.Fatalf("Join(missing) error = %v, want not found", err)
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	s, _, _ := newTestStore(t)
	limit := 5
	v, _ := s.CreateRoom("owner", TypeGroup, Options{MaxParticipants: &limit})
	for i := 0; i < 20; i++ {
		_, _ = s.Join(v.ID, fmt.Sprintf("user-%d", i%8), nil)
		if i%3 == 0 {
			_, _, _ = s.Leave(v.ID, fmt.Sprintf("user-%d", i%5))
		}
		got, _ := s.Get(v.ID)
		if len(got.Members) > limit {
			t.Fatalf("after step %d members = %d, want <= %d", i, len(got.Members), limit)
		}
	}
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	s, _, _ := newTestStore(t)
	limit := 4
	v, _ := s.CreateRoom("owner", TypeGroup, Options{MaxParticipants: &limit})

	var ok, full int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Join(v.ID, fmt.Sprintf("user-%d", i), nil)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, errorx.ErrRoomFull):
				atomic.AddInt32(&full, 1)
			default:
				t.Errorf("Join(user-%d) error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	// 房主创建时已占一个席位
	if ok != int32(limit-1) || full != int32(32-limit+1) {
		t.Fatalf("joins ok = %d, full = %d, want %d and %d", ok, full, limit-1, 32-limit+1)
	}
	got, _ := s.Get(v.ID)
	if len(got.Members) != limit {
		t.Fatalf("members = %d, want %d", len(got.Members), limit)
	}
}

func TestSanctionsSurviveRejoin(t *testing.T) {
	s, clock, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	join(t, s, roomID, "U1")
	join(t, s, roomID, "U2")
	join(t, s, roomID, "U3")

	if _, err := s.ApplyModerationAction(roomID, ModerationAction{TargetID: "U2", Kind: ActionMute, Duration: time.Hour}); err != nil {
		t.Fatalf("mute error = %v", err)
	}
	_, _, _ = s.Leave(roomID, "U2")
	join(t, s, roomID, "U2")
	msg := textMessage("M1", roomID, "U2", "back again", StatusPending)
	if _, err := s.AuthorizeMessage(roomID, msg); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("send after leave and rejoin error = %v, want forbidden", err)
	}

	clock.advance(time.Hour)
	_, _, _ = s.Leave(roomID, "U2")
	join(t, s, roomID, "U2")
	if _, err := s.AuthorizeMessage(roomID, msg); err != nil {
		t.Fatalf("send after mute expiry error = %v", err)
	}

	if _, _, err := s.SetRole(roomID, "U1", "U3", RoleRestricted); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	_, _, _ = s.Leave(roomID, "U3")
	if res := join(t, s, roomID, "U3"); res.Member.Role != RoleRestricted {
		t.Fatalf("role after rejoin = %s, want restricted", res.Member.Role)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypeGroup)
	join(t, s, roomID, "U1")
	join(t, s, roomID, "U2")

	if _, changed, err := s.Leave(roomID, "U2"); err != nil || !changed {
		t.Fatalf("first Leave() = %v, %v", changed, err)
	}
	if _, changed, err := s.Leave(roomID, "U2"); err != nil || changed {
		t.Fatalf("second Leave() = %v, %v, want no-op", changed, err)
	}

	// 房主离开只会下线，成员记录保留
	_, _, _ = s.Leave(roomID, "U1")
	_, _, _ = s.Leave(roomID, "U1")
	v, _ := s.Get(roomID)
	if v.ViewerCount != 0 || len(v.Members) != 1 || v.Members[0].Status != PresenceOffline {
		t.Fatalf("after leaves view = %+v", v)
	}
}

func TestRemovedMessageAndDeleteIsNotBan(t *testing.T) {
	s, _, sink := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	join(t, s, roomID, "U3")

	removed := textMessage("M1", roomID, "U3", "buy now scam", StatusRemoved)
	if _, err := s.AppendMessage(roomID, removed); err != nil {
		t.Fatalf("AppendMessage(removed) error = %v", err)
	}
	res, err := s.ApplyModerationAction(roomID, ModerationAction{
		TargetID: "U3", Kind: ActionMessageDelete, Reason: "spam", MessageID: "M1",
	})
	if err != nil {
		t.Fatalf("ApplyModerationAction() error = %v", err)
	}
	if !res.Action.Automated || res.Action.ActorID != "automated" || res.Evicted {
		t.Fatalf("action = %+v", res)
	}
	if len(sink.actions) != 1 {
		t.Fatalf("sink actions = %d, want 1", len(sink.actions))
	}

	if hist, _ := s.History(roomID, 0); len(hist) != 0 {
		t.Fatalf("history = %+v, want empty", hist)
	}
	next := textMessage("M2", roomID, "U3", "sorry", StatusApproved)
	if _, err := s.AppendMessage(roomID, next); err != nil {
		t.Fatalf("send after delete error = %v", err)
	}
	quarantined, _ := s.Removed(roomID, "U1")
	if len(quarantined) != 1 || quarantined[0].ID != "M1" {
		t.Fatalf("quarantine = %+v", quarantined)
	}
}

func TestBanPreventsRejoin(t *testing.T) {
	s, _, sink := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	join(t, s, roomID, "U6")

	res, err := s.ApplyModerationAction(roomID, ModerationAction{TargetID: "U6", Kind: ActionBan, Reason: "abuse"})
	if err != nil || !res.Evicted || !res.Action.Enacted {
		t.Fatalf("ban = %+v, %v", res, err)
	}
	if _, err := s.Join(roomID, "U6", nil); !errors.Is(err, errorx.ErrBanned) {
		t.Fatalf("Join after ban error = %v, want banned", err)
	}
	if _, err := s.Member(roomID, "U6"); !errors.Is(err, errorx.ErrNotMember) {
		t.Fatalf("Member after ban error = %v, want not member", err)
	}
	if len(sink.bans) != 1 || sink.bans[0] != "U6" {
		t.Fatalf("sink bans = %v", sink.bans)
	}

	if ok, err := s.Unban(roomID, "U1", "U6"); err != nil || !ok {
		t.Fatalf("Unban() = %v, %v", ok, err)
	}
	if _, err := s.Join(roomID, "U6", nil); err != nil {
		t.Fatalf("Join after unban error = %v", err)
	}
}

func TestOwnerIsImmune(t *testing.T) {
	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	res, err := s.ApplyModerationAction(roomID, ModerationAction{TargetID: "U1", Kind: ActionBan})
	if err != nil || res.Action.Enacted {
		t.Fatalf("ban of owner = %+v, %v, want not enacted", res.Action, err)
	}
	log, _ := s.AuditLog(roomID, "U1")
	if len(log) != 1 {
		t.Fatalf("audit log = %d entries, want 1", len(log))
	}
	if _, err := s.Join(roomID, "U1", nil); err != nil {
		t.Fatalf("owner rejoin error = %v", err)
	}
}

func TestMuteOverlay(t *testing.T) {
	s, clock, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	join(t, s, roomID, "U2")

	if _, err := s.ApplyModerationAction(roomID, ModerationAction{TargetID: "U2", Kind: ActionMute, Duration: time.Minute}); err != nil {
		t.Fatalf("mute error = %v", err)
	}
	msg := textMessage("M1", roomID, "U2", "hi", StatusPending)
	if _, err := s.AuthorizeMessage(roomID, msg); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("muted send error = %v, want forbidden", err)
	}
	m, _ := s.Member(roomID, "U2")
	if m.Permissions != PermissionsFor(RoleRegular) {
		t.Fatalf("role table edited by mute: %+v", m.Permissions)
	}

	clock.advance(time.Minute)
	if _, err := s.AuthorizeMessage(roomID, msg); err != nil {
		t.Fatalf("send after mute expiry error = %v", err)
	}
}

func TestModeratePermissions(t *testing.T) {
	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	join(t, s, roomID, "U2")
	join(t, s, roomID, "U3")

	if _, err := s.Moderate(roomID, "U2", ModerationAction{TargetID: "U3", Kind: ActionKick}); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("regular kick error = %v, want forbidden", err)
	}
	if _, _, err := s.SetRole(roomID, "U1", "U2", RoleModerator); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	if _, err := s.Moderate(roomID, "U2", ModerationAction{TargetID: "U1", Kind: ActionKick}); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("kick owner error = %v, want forbidden", err)
	}
	res, err := s.Moderate(roomID, "U2", ModerationAction{TargetID: "U3", Kind: ActionKick, Reason: "off topic"})
	if err != nil || !res.Evicted || res.Action.Automated {
		t.Fatalf("moderator kick = %+v, %v", res, err)
	}
	// kick 不是 ban，可以重新加入
	if _, err := s.Join(roomID, "U3", nil); err != nil {
		t.Fatalf("rejoin after kick error = %v", err)
	}
}

func TestModerateMessageDelete(t *testing.T) {
	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	join(t, s, roomID, "U2")
	_, _ = s.AppendMessage(roomID, textMessage("M1", roomID, "U2", "hello", StatusApproved))

	if _, err := s.Moderate(roomID, "U1", ModerationAction{Kind: ActionMessageDelete, MessageID: "nope"}); !errors.Is(err, errorx.ErrNotFound) {
		t.Fatalf("delete missing error = %v, want not found", err)
	}
	res, err := s.Moderate(roomID, "U1", ModerationAction{Kind: ActionMessageDelete, MessageID: "M1"})
	if err != nil || res.DeletedMessage != "M1" || res.Action.TargetID != "U2" {
		t.Fatalf("delete = %+v, %v", res, err)
	}
	if hist, _ := s.History(roomID, 0); len(hist) != 0 {
		t.Fatalf("history after delete = %+v", hist)
	}
}

func TestPermissionMonotonicity(t *testing.T) {
	order := []Role{RoleRestricted, RoleNewcomer, RoleRegular, RolePremium, RoleVIP}
	for i := 1; i < len(order); i++ {
		lo, hi := PermissionsFor(order[i-1]), PermissionsFor(order[i])
		flags := []struct {
			name   string
			lo, hi bool
		}{
			{"send", lo.CanSendMessages, hi.CanSendMessages},
			{"media", lo.CanSendMedia, hi.CanSendMedia},
			{"gifs", lo.CanSendGifs, hi.CanSendGifs},
			{"tip", lo.CanTip, hi.CanTip},
			{"private", lo.CanPrivateMessage, hi.CanPrivateMessage},
			{"voice", lo.CanUseVoice, hi.CanUseVoice},
			{"video", lo.CanUseVideo, hi.CanUseVideo},
		}
		for _, f := range flags {
			if f.lo && !f.hi {
				t.Errorf("%s -> %s drops %s", order[i-1], order[i], f.name)
			}
		}
		if hi.MaxMessageLength < lo.MaxMessageLength || hi.MessagesPerMinute < lo.MessagesPerMinute {
			t.Errorf("%s -> %s lowers limits", order[i-1], order[i])
		}
	}

	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	join(t, s, roomID, "U2")
	m, _, err := s.SetRole(roomID, "U1", "U2", RoleVIP)
	if err != nil || m.Permissions != PermissionsFor(RoleVIP) {
		t.Fatalf("SetRole(vip) = %+v, %v", m.Permissions, err)
	}
	if _, _, err := s.SetRole(roomID, "U1", "U2", RoleOwner); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("SetRole(owner) error = %v, want forbidden", err)
	}
}

func TestMessageLengthLimit(t *testing.T) {
	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	join(t, s, roomID, "U2")

	long := make([]rune, 201)
	for i := range long {
		long[i] = '字'
	}
	if _, err := s.AuthorizeMessage(roomID, textMessage("M1", roomID, "U2", string(long), StatusPending)); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("over-length error = %v, want forbidden", err)
	}
	if _, err := s.AuthorizeMessage(roomID, textMessage("M2", roomID, "U2", string(long[:200]), StatusPending)); err != nil {
		t.Fatalf("max-length error = %v", err)
	}
	media := &Message{SenderID: "U2", Kind: KindMedia, Payload: &MediaPayload{URL: "https://cdn/x.png", MediaType: "image"}}
	if _, err := s.AuthorizeMessage(roomID, media); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("regular media error = %v, want forbidden", err)
	}
	gif := &Message{SenderID: "U2", Kind: KindMedia, Payload: &MediaPayload{URL: "https://cdn/x.gif", MediaType: "gif"}}
	if _, err := s.AuthorizeMessage(roomID, gif); err != nil {
		t.Fatalf("regular gif error = %v", err)
	}
}

func TestHistoryBounded(t *testing.T) {
	conf := config.Default().ChatConfig
	conf.HistoryCapacity = 3
	conf.ReplayCount = 2
	s := NewStore(conf)
	roomID := createRoom(t, s, "U1", TypeGroup)
	for i := 1; i <= 5; i++ {
		_, _ = s.AppendMessage(roomID, textMessage(fmt.Sprintf("M%d", i), roomID, "U1", "x", StatusApproved))
	}
	hist, _ := s.History(roomID, 0)
	if len(hist) != 3 || hist[0].ID != "M3" || hist[2].ID != "M5" {
		t.Fatalf("history = %v", ids(hist))
	}
	res := join(t, s, roomID, "U2")
	if len(res.Replay) != 2 || res.Replay[0].ID != "M4" {
		t.Fatalf("replay = %v", ids(res.Replay))
	}
}

func ids(ms []Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestAuthorizeTip(t *testing.T) {
	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	join(t, s, roomID, "U4")

	if _, err := s.AuthorizeTip(roomID, "U4", "U1", 0.5); !errors.Is(err, errorx.ErrInvalidParam) {
		t.Fatalf("tip below minimum error = %v, want invalid param", err)
	}
	if _, err := s.AuthorizeTip(roomID, "U4", "U9", 5); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("tip non-owner error = %v, want forbidden", err)
	}
	if _, err := s.AuthorizeTip(roomID, "U4", "U1", 1); err != nil {
		t.Fatalf("tip error = %v", err)
	}
}

func TestReportThresholdMutes(t *testing.T) {
	s, _, _ := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypePublic)
	for _, u := range []string{"T", "R1", "R2", "R3"} {
		join(t, s, roomID, u)
	}

	r1, _ := s.Report(roomID, "R1", "T", "rude")
	r1again, _ := s.Report(roomID, "R1", "T", "rude")
	if r1.Count != 1 || r1again.Count != 1 {
		t.Fatalf("duplicate reporter counted: %d, %d", r1.Count, r1again.Count)
	}
	_, _ = s.Report(roomID, "R2", "T", "rude")
	r3, err := s.Report(roomID, "R3", "T", "rude")
	if err != nil || r3.Action == nil || r3.Action.Action.Kind != ActionMute {
		t.Fatalf("third report = %+v, %v", r3, err)
	}
	if r3.Action.Action.Duration != time.Hour {
		t.Fatalf("mute duration = %v, want 1h", r3.Action.Action.Duration)
	}
	if _, err := s.AuthorizeMessage(roomID, textMessage("M", roomID, "T", "hi", StatusPending)); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("reported member send error = %v, want forbidden", err)
	}
	again, _ := s.Report(roomID, "R1", "T", "rude")
	if again.Count != 1 {
		t.Fatalf("count after reset = %d, want 1", again.Count)
	}
}

func TestCloseRoomAndReapIdle(t *testing.T) {
	s, clock, sink := newTestStore(t)
	roomID := createRoom(t, s, "U1", TypeGroup)
	join(t, s, roomID, "U2")

	if _, err := s.CloseRoom(roomID, "U2"); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("non-owner close error = %v, want forbidden", err)
	}
	aud, err := s.CloseRoom(roomID, "U1")
	if err != nil || len(aud.Members) != 2 {
		t.Fatalf("CloseRoom() = %+v, %v", aud, err)
	}
	if _, err := s.Get(roomID); !errors.Is(err, errorx.ErrNotFound) {
		t.Fatalf("Get after close error = %v, want not found", err)
	}

	idle := createRoom(t, s, "U1", TypeGroup)
	busy := createRoom(t, s, "U1", TypeGroup)
	join(t, s, busy, "U2")
	clock.advance(2 * time.Hour)
	closed := s.ReapIdle(clock.now(), time.Hour)
	if len(closed) != 1 || closed[0].RoomID != idle {
		t.Fatalf("ReapIdle() = %+v, want only %s", closed, idle)
	}
	if !s.Exists(busy) || s.Exists(idle) {
		t.Fatal("wrong room reaped")
	}
	if len(sink.closed) != 2 {
		t.Fatalf("sink closed = %v", sink.closed)
	}
}
