package modes

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager is the single handle through which modes change. The control
// pipeline only ever sees copies returned by Snapshot.
type Manager struct {
	mu     sync.Mutex
	state  State
	store  Store
	logger *zap.Logger
}

// NewManager loads the persisted record. A load failure is logged and the
// manager starts from the zero State.
func NewManager(store Store, logger *zap.Logger) *Manager {
	m := &Manager{store: store, logger: logger}
	s, err := store.Load()
	if err != nil {
		logger.Warn("failed to load mode state, starting with defaults", zap.Error(err))
	}
	m.state = s
	return m
}

// Snapshot returns a copy of the current modes.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// update applies fn and persists when the record changed.
func (m *Manager) update(fn func(s *State)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state
	fn(&next)
	if next == m.state {
		return false
	}
	m.state = next
	if err := m.store.Save(next); err != nil {
		m.logger.Error("failed to persist mode state", zap.Error(err))
	}
	return true
}

// SetManualMode switches permanent manual mode. Enabling it cancels both
// temporary modes.
func (m *Manager) SetManualMode(on bool) bool {
	return m.update(func(s *State) {
		s.ManualMode = on
		if on {
			s.TemporaryManualMode = false
			s.TemporaryManualModeOffTime = 0
			s.TemporaryBoostMode = false
			s.TemporaryBoostModeOffTime = 0
		}
	})
}

// SetTemporaryManualMode switches the temporary manual mode. Activation
// expires it after duration and cancels manual and boost modes.
func (m *Manager) SetTemporaryManualMode(on bool, now time.Time, duration time.Duration) bool {
	return m.update(func(s *State) {
		s.TemporaryManualMode = on
		if !on {
			s.TemporaryManualModeOffTime = 0
			return
		}
		s.TemporaryManualModeOffTime = now.Add(duration).Unix()
		s.ManualMode = false
		s.TemporaryBoostMode = false
		s.TemporaryBoostModeOffTime = 0
	})
}

// SetTemporaryBoostMode switches the temporary boost mode. Activation
// expires it after duration and cancels manual and temporary manual modes.
func (m *Manager) SetTemporaryBoostMode(on bool, now time.Time, duration time.Duration) bool {
	return m.update(func(s *State) {
		s.TemporaryBoostMode = on
		if !on {
			s.TemporaryBoostModeOffTime = 0
			return
		}
		s.TemporaryBoostModeOffTime = now.Add(duration).Unix()
		s.ManualMode = false
		s.TemporaryManualMode = false
		s.TemporaryManualModeOffTime = 0
	})
}

// ManualPowerChanged reacts to the operator moving the power slider: unless
// manual mode is on, the new power is held for duration.
func (m *Manager) ManualPowerChanged(now time.Time, duration time.Duration) bool {
	if m.Snapshot().ManualMode {
		return false
	}
	return m.SetTemporaryManualMode(true, now, duration)
}

// SetBypass records the valve state decided by the last evaluation.
func (m *Manager) SetBypass(on bool) bool {
	return m.update(func(s *State) { s.Bypass = on })
}

// Expire deactivates temporary modes whose offTime has passed. It never
// activates anything and is a no-op for inactive modes.
func (m *Manager) Expire(now time.Time) bool {
	sec := now.Unix()
	return m.update(func(s *State) {
		if s.TemporaryManualMode && sec >= s.TemporaryManualModeOffTime {
			s.TemporaryManualMode = false
			s.TemporaryManualModeOffTime = 0
		}
		if s.TemporaryBoostMode && sec >= s.TemporaryBoostModeOffTime {
			s.TemporaryBoostMode = false
			s.TemporaryBoostModeOffTime = 0
		}
	})
}
