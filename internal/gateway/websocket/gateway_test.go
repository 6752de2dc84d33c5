package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"chatsphere_server/internal/config"
	"chatsphere_server/internal/infrastructure/validate"
	"chatsphere_server/internal/service/auth"
	"chatsphere_server/internal/service/chat"
	"chatsphere_server/internal/service/payment"
	"chatsphere_server/internal/service/ratelimit"
	"chatsphere_server/internal/service/registry"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/errorx"

	"github.com/gorilla/websocket"
)

func TestMain(m *testing.M) {
	if err := validate.Init("zh"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// tokenAuth 把 "token-<id>" 解析为身份 <id>
type tokenAuth struct{}

func (tokenAuth) Authenticate(_ context.Context, token string) (auth.Identity, error) {
	id, ok := strings.CutPrefix(token, "token-")
	if !ok || id == "" {
		return auth.Identity{}, errorx.New(errorx.CodeUnauthorized, "认证凭证无效")
	}
	return auth.Identity{UserID: id, Username: strings.ToLower(id)}, nil
}

type harness struct {
	gw       *Gateway
	registry *registry.Registry
	roomID   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conf := config.Default().ChatConfig
	store := room.NewStore(conf)
	reg := registry.New(conf)
	router := chat.NewRouter(chat.Deps{
		Store:    store,
		Registry: reg,
		Limiter:  ratelimit.New(conf),
		Settler:  payment.NewLedgerSettler(0),
	})
	v, err := router.CreateRoom("U1", room.TypePublic, room.Options{})
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	return &harness{gw: NewGateway(reg, router, tokenAuth{}, conf), registry: reg, roomID: v.ID}
}

func (hs *harness) send(h *registry.Handle, frame string) []registry.Event {
	hs.gw.Handle(h, []byte(frame))
	var out []registry.Event
	for {
		select {
		case ev := <-h.Queue():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (hs *harness) login(t *testing.T, identity string) *registry.Handle {
	t.Helper()
	h := hs.registry.Register("127.0.0.1:0")
	evs := hs.send(h, fmt.Sprintf(`{"type":"authenticate","request_id":"a1","data":{"token":"token-%s"}}`, identity))
	if len(evs) != 1 || evs[0].Type != registry.EventAuthenticated || evs[0].RequestID != "a1" {
		t.Fatalf("authenticate events = %+v", evs)
	}
	if got := evs[0].Data.(AuthenticatedPayload); got.UserID != identity || got.ConnectionID != h.ID() {
		t.Fatalf("authenticated payload = %+v", got)
	}
	return h
}

func errorCode(t *testing.T, evs []registry.Event, requestID string) int {
	t.Helper()
	for _, ev := range evs {
		if ev.Type == registry.EventError {
			if ev.RequestID != requestID {
				t.Fatalf("error request_id = %q, want %q", ev.RequestID, requestID)
			}
			return ev.Data.(registry.ErrorPayload).Code
		}
	}
	t.Fatalf("no error event in %+v", evs)
	return 0
}

func TestHandleRequiresAuthentication(t *testing.T) {
	hs := newHarness(t)
	h := hs.registry.Register("127.0.0.1:0")

	evs := hs.send(h, fmt.Sprintf(`{"type":"join_room","request_id":"r1","room_id":%q}`, hs.roomID))
	if code := errorCode(t, evs, "r1"); code != errorx.CodeUnauthorized {
		t.Fatalf("code = %d, want %d", code, errorx.CodeUnauthorized)
	}

	evs = hs.send(h, `{"type":"heartbeat","request_id":"hb"}`)
	if len(evs) != 1 || evs[0].Type != registry.EventHeartbeatAck || evs[0].RequestID != "hb" {
		t.Fatalf("heartbeat events = %+v", evs)
	}

	evs = hs.send(h, `{"type":"authenticate","request_id":"a0","data":{"token":"bogus"}}`)
	if code := errorCode(t, evs, "a0"); code != errorx.CodeUnauthorized {
		t.Fatalf("bad token code = %d", code)
	}
}

func TestAuthenticateTwiceFails(t *testing.T) {
	hs := newHarness(t)
	h := hs.login(t, "U2")
	evs := hs.send(h, `{"type":"authenticate","request_id":"a2","data":{"token":"token-U3"}}`)
	if code := errorCode(t, evs, "a2"); code != errorx.CodeAlreadyAuthenticated {
		t.Fatalf("code = %d, want %d", code, errorx.CodeAlreadyAuthenticated)
	}
}

func TestJoinSendAndLeave(t *testing.T) {
	hs := newHarness(t)
	owner := hs.login(t, "U1")
	guest := hs.login(t, "U2")

	evs := hs.send(owner, fmt.Sprintf(`{"type":"join_room","request_id":"j1","room_id":%q}`, hs.roomID))
	if len(evs) == 0 || evs[len(evs)-1].Type != registry.EventRoomJoined || evs[len(evs)-1].RequestID != "j1" {
		t.Fatalf("owner join events = %+v", evs)
	}
	hs.send(guest, fmt.Sprintf(`{"type":"join_room","request_id":"j2","room_id":%q}`, hs.roomID))

	evs = hs.send(guest, fmt.Sprintf(`{"type":"send_message","request_id":"m1","room_id":%q,"data":{"body":"hello there"}}`, hs.roomID))
	var got *room.Message
	for _, ev := range evs {
		if ev.Type == registry.EventNewMessage {
			m := ev.Data.(room.Message)
			got = &m
		}
	}
	if got == nil || got.SenderID != "U2" || got.Text().Body != "hello there" {
		t.Fatalf("guest events = %+v", evs)
	}

	evs = hs.send(guest, fmt.Sprintf(`{"type":"leave_room","request_id":"l1","room_id":%q}`, hs.roomID))
	if len(evs) != 1 || evs[0].Type != registry.EventRoomLeft || evs[0].RequestID != "l1" {
		t.Fatalf("leave events = %+v", evs)
	}
	if len(guest.Rooms()) != 0 {
		t.Fatalf("guest rooms = %v", guest.Rooms())
	}
}

func TestHandleRejectsBadFrames(t *testing.T) {
	hs := newHarness(t)
	h := hs.login(t, "U1")

	cases := []struct {
		name  string
		frame string
		reqID string
	}{
		{"malformed json", `{"type":`, ""},
		{"missing type", `{"request_id":"x1"}`, "x1"},
		{"unknown type", `{"type":"dance","request_id":"x2"}`, "x2"},
		{"missing room", `{"type":"send_message","request_id":"x3","data":{"body":"hi"}}`, "x3"},
		{"zero tip", fmt.Sprintf(`{"type":"send_tip","request_id":"x4","room_id":%q,"data":{"recipient":"U1","amount":0}}`, hs.roomID), "x4"},
		{"bad signal kind", `{"type":"session_signal","request_id":"x5","data":{"session_id":"s","to":"U2","kind":"hello"}}`, "x5"},
		{"media without body", fmt.Sprintf(`{"type":"send_message","request_id":"x6","room_id":%q,"data":{"kind":"media"}}`, hs.roomID), "x6"},
		{"unknown role", fmt.Sprintf(`{"type":"set_role","request_id":"x7","room_id":%q,"data":{"target_id":"U2","role":"emperor"}}`, hs.roomID), "x7"},
		{"unknown action", fmt.Sprintf(`{"type":"moderate","request_id":"x8","room_id":%q,"data":{"kind":"smite","target_id":"U2"}}`, hs.roomID), "x8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evs := hs.send(h, tc.frame)
			if code := errorCode(t, evs, tc.reqID); code != errorx.CodeInvalidParam {
				t.Fatalf("code = %d, want %d", code, errorx.CodeInvalidParam)
			}
		})
	}
}

func TestSendRepliesCarryRequestID(t *testing.T) {
	hs := newHarness(t)
	owner := hs.login(t, "U1")
	guest := hs.login(t, "U2")
	hs.send(owner, fmt.Sprintf(`{"type":"join_room","request_id":"j1","room_id":%q}`, hs.roomID))
	hs.send(guest, fmt.Sprintf(`{"type":"join_room","request_id":"j2","room_id":%q}`, hs.roomID))
	other := hs.registry.Register("127.0.0.1:1")
	if err := hs.registry.Authenticate(other, "U2", registry.Metadata{}); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	evs := hs.send(guest, fmt.Sprintf(`{"type":"send_message","request_id":"m1","room_id":%q,"data":{"body":"good morning"}}`, hs.roomID))
	ack := findEvent(evs, registry.EventMessageAccepted)
	if ack == nil || ack.RequestID != "m1" || ack.Data.(chat.AcceptedPayload).Status != room.StatusApproved {
		t.Fatalf("accept reply = %+v in %+v", ack, evs)
	}

	evs = hs.send(guest, fmt.Sprintf(`{"type":"send_message","request_id":"m2","room_id":%q,"data":{"body":"hate scam"}}`, hs.roomID))
	rej := findEvent(evs, registry.EventMessageRejected)
	if rej == nil || rej.RequestID != "m2" || rej.Data.(chat.RejectedPayload).Reason == "" {
		t.Fatalf("reject reply = %+v in %+v", rej, evs)
	}
	if findEvent(evs, registry.EventNewMessage) != nil {
		t.Fatal("removed message was broadcast to its sender")
	}
	if evs := hs.send(other, `{"type":"heartbeat","request_id":"hb"}`); len(evs) != 1 || evs[0].Type != registry.EventHeartbeatAck {
		t.Fatalf("connection outside the room got %+v", evs)
	}

	evs = hs.send(guest, fmt.Sprintf(`{"type":"send_tip","request_id":"t1","room_id":%q,"data":{"recipient":"U1","amount":5}}`, hs.roomID))
	tip := findEvent(evs, registry.EventMessageAccepted)
	if tip == nil || tip.RequestID != "t1" || tip.Data.(chat.AcceptedPayload).SettlementRef == "" {
		t.Fatalf("tip reply = %+v in %+v", tip, evs)
	}
}

func findEvent(evs []registry.Event, typ registry.EventType) *registry.Event {
	for i := range evs {
		if evs[i].Type == typ {
			return &evs[i]
		}
	}
	return nil
}

func TestServeOverWebsocket(t *testing.T) {
	hs := newHarness(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs.gw.Serve(w, r, r.URL.Query().Get("token"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/wss?token=token-U7"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev struct {
		Type      registry.EventType `json:"type"`
		RequestID string             `json:"request_id"`
		Data      struct {
			UserID string `json:"user_id"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if ev.Type != registry.EventAuthenticated || ev.Data.UserID != "U7" {
		t.Fatalf("first event = %+v", ev)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat","request_id":"hb1"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if ev.Type != registry.EventHeartbeatAck || ev.RequestID != "hb1" {
		t.Fatalf("heartbeat reply = %+v", ev)
	}
	if !hs.registry.Online("U7") {
		t.Fatal("U7 should be online")
	}
}
