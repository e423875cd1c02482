package modes

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, s State) (*Manager, *MemoryStore) {
	t.Helper()
	store := &MemoryStore{}
	if err := store.Save(s); err != nil {
		t.Fatal(err)
	}
	store.Saves = 0
	return NewManager(store, zap.NewNop()), store
}

func TestExpire(t *testing.T) {
	now := t0.Unix()
	tests := []struct {
		name   string
		state  State
		want   State
		change bool
	}{
		{
			name:   "temporary manual expired",
			state:  State{TemporaryManualMode: true, TemporaryManualModeOffTime: now - 1},
			want:   State{},
			change: true,
		},
		{
			name:   "temporary manual expires exactly at offTime",
			state:  State{TemporaryManualMode: true, TemporaryManualModeOffTime: now},
			want:   State{},
			change: true,
		},
		{
			name:  "temporary manual still active",
			state: State{TemporaryManualMode: true, TemporaryManualModeOffTime: now + 1},
			want:  State{TemporaryManualMode: true, TemporaryManualModeOffTime: now + 1},
		},
		{
			name:   "boost expired",
			state:  State{TemporaryBoostMode: true, TemporaryBoostModeOffTime: now - 60},
			want:   State{},
			change: true,
		},
		{
			name:  "inactive mode is left alone",
			state: State{TemporaryBoostModeOffTime: now - 60, Bypass: true},
			want:  State{TemporaryBoostModeOffTime: now - 60, Bypass: true},
		},
		{
			name:  "manual mode never expires",
			state: State{ManualMode: true},
			want:  State{ManualMode: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := newManager(t, tt.state)
			if got := m.Expire(t0); got != tt.change {
				t.Errorf("changed: got %v, want %v", got, tt.change)
			}
			if got := m.Snapshot(); got != tt.want {
				t.Errorf("state: got %+v, want %+v", got, tt.want)
			}
			wantSaves := 0
			if tt.change {
				wantSaves = 1
			}
			if store.Saves != wantSaves {
				t.Errorf("saves: got %d, want %d", store.Saves, wantSaves)
			}
		})
	}
}

func TestExpireIsIdempotent(t *testing.T) {
	m, _ := newManager(t, State{TemporaryBoostMode: true, TemporaryBoostModeOffTime: t0.Unix() - 1})
	if !m.Expire(t0) {
		t.Fatal("first expiry should change state")
	}
	if m.Expire(t0) || m.Expire(t0.Add(time.Minute)) {
		t.Error("repeated expiry should be a no-op")
	}
}

func TestSetTemporaryManualMode(t *testing.T) {
	m, _ := newManager(t, State{ManualMode: true, TemporaryBoostMode: true, TemporaryBoostModeOffTime: t0.Unix() + 300})

	if !m.SetTemporaryManualMode(true, t0, 8*time.Hour) {
		t.Fatal("expected change")
	}
	s := m.Snapshot()
	want := State{TemporaryManualMode: true, TemporaryManualModeOffTime: t0.Add(8 * time.Hour).Unix()}
	if s != want {
		t.Errorf("got %+v, want %+v", s, want)
	}

	m.SetTemporaryManualMode(false, t0, 8*time.Hour)
	if s := m.Snapshot(); s.TemporaryManualMode || s.TemporaryManualModeOffTime != 0 {
		t.Errorf("deactivation: got %+v", s)
	}
}

func TestSetTemporaryBoostModeResetsManual(t *testing.T) {
	m, _ := newManager(t, State{TemporaryManualMode: true, TemporaryManualModeOffTime: t0.Unix() + 3600})

	m.SetTemporaryBoostMode(true, t0, 10*time.Minute)
	s := m.Snapshot()
	if !s.TemporaryBoostMode || s.TemporaryBoostModeOffTime != t0.Add(10*time.Minute).Unix() {
		t.Errorf("boost: got %+v", s)
	}
	if s.TemporaryManualMode || s.TemporaryManualModeOffTime != 0 {
		t.Errorf("temporary manual should be reset: got %+v", s)
	}
}

func TestSetManualModeCancelsTemporaryModes(t *testing.T) {
	m, _ := newManager(t, State{TemporaryBoostMode: true, TemporaryBoostModeOffTime: t0.Unix() + 300, Bypass: true})

	m.SetManualMode(true)
	want := State{ManualMode: true, Bypass: true}
	if s := m.Snapshot(); s != want {
		t.Errorf("got %+v, want %+v", s, want)
	}

	m.SetManualMode(false)
	if s := m.Snapshot(); s.ManualMode {
		t.Error("manual mode should be off")
	}
}

func TestManualPowerChanged(t *testing.T) {
	m, _ := newManager(t, State{})
	if !m.ManualPowerChanged(t0, time.Hour) {
		t.Fatal("expected temporary manual activation")
	}
	if s := m.Snapshot(); !s.TemporaryManualMode || s.TemporaryManualModeOffTime != t0.Add(time.Hour).Unix() {
		t.Errorf("got %+v", s)
	}

	m, _ = newManager(t, State{ManualMode: true})
	if m.ManualPowerChanged(t0, time.Hour) {
		t.Error("manual mode on: should not activate temporary manual")
	}
}

func TestSetBypassUnchangedDoesNotPersist(t *testing.T) {
	m, store := newManager(t, State{Bypass: true})
	if m.SetBypass(true) {
		t.Error("unchanged bypass reported a change")
	}
	if store.Saves != 0 {
		t.Errorf("saves: got %d, want 0", store.Saves)
	}
	if !m.SetBypass(false) || store.Saves != 1 {
		t.Errorf("bypass change: saves %d", store.Saves)
	}
}

func TestSaveFailureKeepsInMemoryState(t *testing.T) {
	m, store := newManager(t, State{})
	store.SaveError = errors.New("disk full")

	m.SetManualMode(true)
	if !m.Snapshot().ManualMode {
		t.Error("in-memory state should apply even when persisting fails")
	}
}
