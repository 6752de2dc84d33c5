package validate

import (
	"strings"
	"testing"

	"github.com/gin-gonic/gin/binding"
)

type createRoom struct {
	Name string `json:"name" binding:"max=8"`
	Type string `json:"type" binding:"required,room_type"`
}

type moderate struct {
	Kind   string  `json:"kind" binding:"required,action_kind"`
	Policy *string `json:"recording_policy" binding:"omitempty,recording_policy"`
}

func TestCustomRulesAndTranslation(t *testing.T) {
	if err := Init("zh"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := binding.Validator.ValidateStruct(&createRoom{Type: "fan_club"}); err != nil {
		t.Fatalf("valid room type rejected: %v", err)
	}
	err := binding.Validator.ValidateStruct(&createRoom{Name: "far too long", Type: "disco"})
	fields, ok := Translate(err)
	if !ok {
		t.Fatalf("Translate(%v) not a validation error", err)
	}
	if got := fields["type"]; got != "type不是有效的房间类型" {
		t.Fatalf("type message = %q", got)
	}
	if _, ok := fields["name"]; !ok {
		t.Fatalf("missing name message in %v", fields)
	}
	if msg := Message(err); !strings.Contains(msg, "; ") {
		t.Fatalf("Message() = %q, want both fields", msg)
	}

	bad := "sometimes"
	if err := binding.Validator.ValidateStruct(&moderate{Kind: "ban", Policy: &bad}); err == nil {
		t.Fatal("bad recording policy accepted")
	}
	if err := binding.Validator.ValidateStruct(&moderate{Kind: "ban"}); err != nil {
		t.Fatalf("omitted policy rejected: %v", err)
	}
}

func TestTranslateIgnoresOtherErrors(t *testing.T) {
	if _, ok := Translate(nil); ok {
		t.Fatal("Translate(nil) reported a validation error")
	}
}
