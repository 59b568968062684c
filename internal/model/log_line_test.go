package model

import (
	"testing"
	"time"
)

func TestLogLineTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		line    LogLine
		want    time.Time
		wantErr bool
	}{
		{"valid", "15.03.24 11:00:00 PPPoE error: dropped", time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC), false},
		{"exact-width", "01.12.23 23:59:59", time.Date(2023, 12, 1, 23, 59, 59, 0, time.UTC), false},
		{"short", "15.03.24", time.Time{}, true},
		{"garbage", "not a timestamp at all", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.line.Timestamp(time.UTC)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tt.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Timestamp()=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogLineMessage(t *testing.T) {
	tests := []struct {
		line LogLine
		want string
	}{
		{"15.03.24 11:00:00 PPPoE error: dropped", "PPPoE error: dropped"},
		{"15.03.24 11:00:00", ""},
		{"short", ""},
	}
	for _, tt := range tests {
		if got := tt.line.Message(); got != tt.want {
			t.Errorf("Message(%q)=%q, want %q", tt.line, got, tt.want)
		}
	}
}
