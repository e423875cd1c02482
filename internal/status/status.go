// Package status provides a thread-safe status tracker for the controller.
// It is read by the HTTP handlers and the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/hrv-controller/internal/logic"
	"github.com/sweeney/hrv-controller/internal/modes"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker         string
	TopicPrefix    string
	HTTPAddr       string
	StateFile      string
	HeartbeatMs    int64
	CurrentEnabled bool
	CO2Enabled     bool
}

// Evaluation is the result of the latest control cycle.
type Evaluation struct {
	At             time.Time
	Env            logic.EnvironmentalSnapshot
	Rule           logic.PowerRule
	Outputs        logic.OutputSnapshot
	SourceGpio18   logic.GpioSource
	SourceGpio19   logic.GpioSource
	ControlEnabled bool
}

// CO2 is the latest CO2 sensor reading.
type CO2 struct {
	PPM         int
	Temperature int
	At          time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Evaluated   bool
	Evaluations int
	Last        Evaluation
	Modes       modes.State

	Current     map[string]int
	CO2         *CO2
	Temperature map[string]float64
	Digital     map[string]logic.State
	Baselined   bool

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:   startTime,
			Config:      cfg,
			Current:     make(map[string]int),
			Temperature: make(map[string]float64),
			Digital:     make(map[string]logic.State),
		},
		now: time.Now,
	}
}

// RecordEvaluation stores the outcome of one control cycle.
func (t *Tracker) RecordEvaluation(e Evaluation, m modes.State) {
	t.mu.Lock()
	t.snap.Evaluated = true
	t.snap.Evaluations++
	t.snap.Last = e
	t.snap.Modes = m
	t.mu.Unlock()
}

// SetModes updates the mode flags outside an evaluation (e.g. after expiry).
func (t *Tracker) SetModes(m modes.State) {
	t.mu.Lock()
	t.snap.Modes = m
	t.mu.Unlock()
}

// SetCurrent stores the last published power of a current channel.
func (t *Tracker) SetCurrent(name string, watts int) {
	t.mu.Lock()
	t.snap.Current[name] = watts
	t.mu.Unlock()
}

// SetCO2 stores the last CO2 reading.
func (t *Tracker) SetCO2(ppm, temperature int, at time.Time) {
	t.mu.Lock()
	t.snap.CO2 = &CO2{PPM: ppm, Temperature: temperature, At: at}
	t.mu.Unlock()
}

// SetTemperature stores the last reading of a 1-Wire sensor.
func (t *Tracker) SetTemperature(id string, celsius float64) {
	t.mu.Lock()
	t.snap.Temperature[id] = celsius
	t.mu.Unlock()
}

// SetDigital stores the debounced state of a digital input.
func (t *Tracker) SetDigital(name string, state logic.State, baselined bool) {
	t.mu.Lock()
	t.snap.Digital[name] = state
	t.snap.Baselined = baselined
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Current = copyMap(t.snap.Current)
	s.Temperature = copyMap(t.snap.Temperature)
	s.Digital = copyMap(t.snap.Digital)
	if t.snap.CO2 != nil {
		c := *t.snap.CO2
		s.CO2 = &c
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
