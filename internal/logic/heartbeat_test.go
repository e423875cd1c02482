package logic

import (
	"testing"
	"time"
)

func TestHeartbeatDisabled(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(start)
	if hb := h.Check(start.Add(time.Hour), 0); hb != nil {
		t.Error("should not return heartbeat when interval is 0")
	}
	if hb := h.Check(start.Add(time.Hour), -time.Minute); hb != nil {
		t.Error("should not return heartbeat when interval is negative")
	}
}

func TestHeartbeatInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(start)

	if hb := h.Check(start.Add(14*time.Minute), 15*time.Minute); hb != nil {
		t.Error("should not return heartbeat before interval")
	}

	t1 := start.Add(15 * time.Minute)
	hb := h.Check(t1, 15*time.Minute)
	if hb == nil {
		t.Fatal("should return heartbeat at interval")
	}
	if !hb.Timestamp.Equal(t1) {
		t.Errorf("timestamp: got %v, want %v", hb.Timestamp, t1)
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("uptime: got %v, want 15m", hb.Uptime)
	}

	if hb := h.Check(t1.Add(time.Second), 15*time.Minute); hb != nil {
		t.Error("should not return heartbeat immediately after previous")
	}
	if hb := h.Check(t1.Add(15*time.Minute), 15*time.Minute); hb == nil {
		t.Error("should return second heartbeat")
	} else if hb.Uptime != 30*time.Minute {
		t.Errorf("second uptime: got %v, want 30m", hb.Uptime)
	}
}
