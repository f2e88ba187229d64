package ratelimit

import (
	"testing"
	"time"
)

func TestFormatKey(t *testing.T) {
	tests := []struct {
		keyType KeyType
		value   string
		want    string
	}{
		{KeyTypeReauth, "u1", "ratelimit:reauth:u1"},
		{KeyTypeSignIn, "a@example.com", "ratelimit:signin:a@example.com"},
	}
	for _, tt := range tests {
		if got := FormatKey(tt.keyType, tt.value); got != tt.want {
			t.Errorf("FormatKey(%q, %q) = %q, want %q", tt.keyType, tt.value, got, tt.want)
		}
	}
}

func TestRateLimitConfig_Enabled(t *testing.T) {
	if (RateLimitConfig{}).Enabled() {
		t.Error("zero config should be disabled")
	}
	if !(RateLimitConfig{Rate: 5, Period: time.Minute}).Enabled() {
		t.Error("config with rate and period should be enabled")
	}
}
