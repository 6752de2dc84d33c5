package mysql

import (
	"errors"
	"testing"

	"chatsphere_server/pkg/errorx"

	"gorm.io/gorm"
)

func TestWrapDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"record not found", gorm.ErrRecordNotFound, errorx.CodeNotFound},
		{"other", errors.New("deadlock"), errorx.CodeDBError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapDBErrorf(tt.err, "查询 room_id=%s", "R1")
			if errorx.GetCode(got) != tt.want {
				t.Fatalf("code = %d, want %d", errorx.GetCode(got), tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Fatal("cause lost")
			}
		})
	}
	if wrapDBError(nil, "noop") != nil {
		t.Fatal("wrapDBError(nil) != nil")
	}
}
