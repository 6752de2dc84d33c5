package moderation

import (
	"testing"

	"chatsphere_server/internal/service/room"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		tox, spam  float64
		threshold  float64
		enabled    bool
		wantStatus room.Status
		wantKind   room.ActionKind
		wantReason string
	}{
		{"disabled", 1, 1, 0.7, false, room.StatusApproved, "", ""},
		{"clean", 0.1, 0, 0.7, true, room.StatusApproved, "", ""},
		{"at flag boundary", 0.5, 0, 0.7, true, room.StatusApproved, "", ""},
		{"flagged", 0.6, 0.2, 0.7, true, room.StatusFlagged, "", "review"},
		{"at threshold", 0.7, 0, 0.7, true, room.StatusFlagged, "", "review"},
		{"removed warn toxic", 0.8, 0.1, 0.7, true, room.StatusRemoved, room.ActionWarn, ReasonToxic},
		{"removed warn spam", 0.2, 0.85, 0.7, true, room.StatusRemoved, room.ActionWarn, ReasonSpam},
		{"removed delete", 0.95, 0, 0.7, true, room.StatusRemoved, room.ActionMessageDelete, ReasonToxic},
		{"tie goes to spam", 0.95, 0.95, 0.7, true, room.StatusRemoved, room.ActionMessageDelete, ReasonSpam},
		{"low threshold", 0.4, 0, 0.3, true, room.StatusRemoved, room.ActionWarn, ReasonToxic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.tox, tt.spam, tt.threshold, tt.enabled)
			again := Decide(tt.tox, tt.spam, tt.threshold, tt.enabled)
			if got.Status != again.Status || got.Reason != again.Reason {
				t.Fatalf("Decide() not deterministic: %+v vs %+v", got, again)
			}
			if got.Status != tt.wantStatus {
				t.Fatalf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if tt.wantKind == "" {
				if got.Action != nil {
					t.Fatalf("unexpected action %+v", got.Action)
				}
			} else if got.Action == nil || got.Action.Kind != tt.wantKind || !got.Action.Automated {
				t.Fatalf("action = %+v, want automated %s", got.Action, tt.wantKind)
			}
			if got.Reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestEvaluateFillsAction(t *testing.T) {
	p := NewPipeline(Fixed(0.95), nil)
	msg := &room.Message{ID: "M1", RoomID: "R1", SenderID: "U3", Kind: room.KindText, Payload: &room.TextPayload{Body: "x"}}
	v := p.Evaluate(msg, true, 0.7)
	if v.Status != room.StatusRemoved || v.Action == nil {
		t.Fatalf("Evaluate() = %+v", v)
	}
	if v.Action.TargetID != "U3" || v.Action.MessageID != "M1" || v.Action.ActorID != "automated" {
		t.Fatalf("action = %+v", v.Action)
	}

	tip := &room.Message{SenderID: "U3", Kind: room.KindTip, Payload: &room.TipPayload{Amount: 5}}
	if v := p.Evaluate(tip, true, 0.7); v.Status != room.StatusApproved {
		t.Fatalf("tip status = %s, want approved", v.Status)
	}
	if v := p.Evaluate(msg, false, 0.7); v.Status != room.StatusApproved {
		t.Fatalf("auto moderation off status = %s, want approved", v.Status)
	}
}

func TestDefaultClassifiers(t *testing.T) {
	tox := NewKeywordToxicity()
	if got := tox.Score("hello there friend"); got != 0 {
		t.Fatalf("clean toxicity = %v", got)
	}
	if got := tox.Score("this is a scam, fake!"); got != 1 {
		t.Fatalf("toxic score = %v, want 1", got)
	}
	if got := tox.Score(""); got != 0 {
		t.Fatalf("empty toxicity = %v", got)
	}

	spam := HeuristicSpam{}
	if got := spam.Score("see you tomorrow"); got != 0 {
		t.Fatalf("clean spam = %v", got)
	}
	if got := spam.Score("visit https://x.io"); got != 0.3 {
		t.Fatalf("one link spam = %v, want 0.3", got)
	}
	if got := spam.Score("BUY NOW at www.deal.io for $5 click here"); got != 1 {
		t.Fatalf("stacked spam = %v, want 1", got)
	}
	if !repeated("abcdeabcdeabcdeabcdeab") || repeated("hello hello hello hello") {
		t.Fatal("repetition detector wrong")
	}

	p := NewDefaultPipeline()
	msg := &room.Message{SenderID: "U2", Kind: room.KindText, Payload: &room.TextPayload{Body: "nice stream tonight"}}
	if v := p.Evaluate(msg, true, 0.7); v.Status != room.StatusApproved {
		t.Fatalf("clean message = %+v", v)
	}
}
