package session

import (
	"errors"
	"testing"

	"chatsphere_server/internal/config"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/errorx"
)

func setup(t *testing.T, opts room.Options) (*Negotiator, *room.Store, string) {
	t.Helper()
	store := room.NewStore(config.Default().ChatConfig)
	v, err := store.CreateRoom("owner", room.TypeVideoCall, opts)
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	for _, u := range []string{"owner", "vip", "regular"} {
		var p *room.Profile
		if u == "vip" {
			p = &room.Profile{PredictedLifetimeValue: 5000}
		}
		if _, err := store.Join(v.ID, u, p); err != nil {
			t.Fatalf("Join(%s) error = %v", u, err)
		}
	}
	return NewNegotiator(store), store, v.ID
}

func TestStartRequiresPermission(t *testing.T) {
	n, _, roomID := setup(t, room.Options{})

	if _, err := n.Start(StartRequest{RoomID: roomID, Initiator: "regular", Type: TypeVideoCall}); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("regular video call error = %v, want forbidden", err)
	}
	if _, err := n.Start(StartRequest{RoomID: roomID, Initiator: "vip", Type: TypeScreenShare}); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("vip screen share error = %v, want forbidden", err)
	}
	if _, err := n.Start(StartRequest{RoomID: roomID, Initiator: "stranger", Type: TypeAudioCall}); !errors.Is(err, errorx.ErrNotMember) {
		t.Fatalf("non-member error = %v, want not member", err)
	}

	c, err := n.Start(StartRequest{RoomID: roomID, Initiator: "vip", Type: TypeVideoCall, Media: Media{Audio: true, Video: true, Screen: true}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(c.Session.Participants) != 1 || c.Session.Participants[0].UserID != "vip" {
		t.Fatalf("participants = %+v", c.Session.Participants)
	}
	if got := c.Session.Participants[0].Media; !got.Audio || !got.Video || got.Screen {
		t.Fatalf("initiator media = %+v, want audio+video only", got)
	}
	if c.Session.Quality != DefaultQuality {
		t.Fatalf("quality = %+v", c.Session.Quality)
	}
	if len(c.Audience.Members) != 3 {
		t.Fatalf("audience = %v", c.Audience.Members)
	}
}

func TestJoinLeaveAutoCloses(t *testing.T) {
	n, _, roomID := setup(t, room.Options{})
	c, _ := n.Start(StartRequest{RoomID: roomID, Initiator: "owner", Type: TypeVideoCall})
	id := c.Session.ID

	joined, err := n.Join(id, "regular", Media{Audio: true, Video: true})
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	var reg Participant
	for _, p := range joined.Session.Participants {
		if p.UserID == "regular" {
			reg = p
		}
	}
	if reg.Media.Audio || reg.Media.Video {
		t.Fatalf("regular media = %+v, want none", reg.Media)
	}

	if _, changed, _ := n.Leave(id, "owner"); !changed {
		t.Fatal("owner leave not applied")
	}
	if _, changed, _ := n.Leave(id, "owner"); changed {
		t.Fatal("second leave changed state")
	}
	last, changed, err := n.Leave(id, "regular")
	if err != nil || !changed || !last.Session.Ended {
		t.Fatalf("last leave = %+v, %v, %v", last.Session, changed, err)
	}
	if _, err := n.Get(id); !errors.Is(err, errorx.ErrNotFound) {
		t.Fatalf("Get after auto close error = %v, want not found", err)
	}
	if n.Active() != 0 {
		t.Fatalf("Active() = %d", n.Active())
	}
}

func TestRecordingPolicy(t *testing.T) {
	never := room.RecordingNever
	n, _, roomID := setup(t, room.Options{RecordingPolicy: &never})
	if _, err := n.Start(StartRequest{RoomID: roomID, Initiator: "owner", Type: TypeVideoCall, Recording: true}); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("recording under never error = %v, want forbidden", err)
	}

	n, _, roomID = setup(t, room.Options{})
	if _, err := n.Start(StartRequest{RoomID: roomID, Initiator: "vip", Type: TypeVideoCall, Recording: true}); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("vip recording error = %v, want forbidden", err)
	}
	c, err := n.Start(StartRequest{RoomID: roomID, Initiator: "owner", Type: TypeVideoCall, Recording: true})
	if err != nil || !c.Session.Recording || c.Session.RecordingID == "" {
		t.Fatalf("owner recording = %+v, %v", c.Session, err)
	}

	always := room.RecordingAlways
	n, _, roomID = setup(t, room.Options{RecordingPolicy: &always})
	c, _ = n.Start(StartRequest{RoomID: roomID, Initiator: "vip", Type: TypeAudioCall})
	if !c.Session.Recording {
		t.Fatal("always policy did not force recording")
	}
}

func TestEndAndRelay(t *testing.T) {
	n, _, roomID := setup(t, room.Options{})
	c, _ := n.Start(StartRequest{RoomID: roomID, Initiator: "vip", Type: TypeAudioCall})
	id := c.Session.ID
	_, _ = n.Join(id, "regular", Media{})

	if _, err := n.Relay(Signal{SessionID: id, From: "vip", To: "regular", Kind: "offer"}); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}
	if _, err := n.Relay(Signal{SessionID: id, From: "vip", To: "owner", Kind: "offer"}); !errors.Is(err, errorx.ErrNotFound) {
		t.Fatalf("relay to non-participant error = %v, want not found", err)
	}

	if _, err := n.End(id, "regular"); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("regular End() error = %v, want forbidden", err)
	}
	ended, err := n.End(id, "owner")
	if err != nil || !ended.Session.Ended {
		t.Fatalf("moderator End() = %+v, %v", ended.Session, err)
	}
}

func TestLeaveRoomsAndEndRoom(t *testing.T) {
	n, _, roomID := setup(t, room.Options{})
	a, _ := n.Start(StartRequest{RoomID: roomID, Initiator: "owner", Type: TypeAudioCall})
	b, _ := n.Start(StartRequest{RoomID: roomID, Initiator: "vip", Type: TypeAudioCall})
	_, _ = n.Join(a.Session.ID, "vip", Media{})

	changes := n.LeaveRooms("vip", []string{roomID})
	if len(changes) != 2 {
		t.Fatalf("LeaveRooms() changes = %d, want 2", len(changes))
	}
	if _, err := n.Get(b.Session.ID); !errors.Is(err, errorx.ErrNotFound) {
		t.Fatal("vip-only session not auto closed")
	}

	ended := n.EndRoom(roomID)
	if len(ended) != 1 || ended[0].ID != a.Session.ID || !ended[0].Ended {
		t.Fatalf("EndRoom() = %+v", ended)
	}
	if len(n.ByRoom(roomID)) != 0 {
		t.Fatal("sessions left after EndRoom")
	}
}
