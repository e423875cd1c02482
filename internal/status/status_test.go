package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/hrv-controller/internal/logic"
	"github.com/sweeney/hrv-controller/internal/modes"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleEvaluation() Evaluation {
	return Evaluation{
		At:             start.Add(time.Minute),
		Env:            logic.EnvironmentalSnapshot{InsideTemperature: 23.5, CO2: 820, AirHumidity: 45},
		Rule:           logic.RuleCO2Mid,
		Outputs:        logic.OutputSnapshot{Power: 50, Intake: 50, Exhaust: 50, Gpio18: 48, Gpio19: 48},
		SourceGpio18:   logic.SourceIntake,
		SourceGpio19:   logic.SourceExhaust,
		ControlEnabled: true,
	}
}

func TestNewTracker(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883", HTTPAddr: ":8080", TopicPrefix: "homehab/hrv"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.Evaluated {
		t.Error("expected Evaluated=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.CO2 != nil {
		t.Error("expected no CO2 reading initially")
	}
}

func TestRecordEvaluation(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.RecordEvaluation(sampleEvaluation(), modes.State{TemporaryBoostMode: true})
	tr.RecordEvaluation(sampleEvaluation(), modes.State{})

	snap := tr.Snapshot()
	if !snap.Evaluated || snap.Evaluations != 2 {
		t.Errorf("evaluations: got %v/%d, want true/2", snap.Evaluated, snap.Evaluations)
	}
	if snap.Last.Rule != logic.RuleCO2Mid {
		t.Errorf("rule: got %s", snap.Last.Rule)
	}
	if snap.Modes.TemporaryBoostMode {
		t.Error("modes should reflect the last evaluation")
	}
}

func TestSetters(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.SetCurrent("ad0", 115)
	tr.SetCO2(640, 24, start)
	tr.SetTemperature("28-aa", 21.4)
	tr.SetDigital("smoke", logic.StateOff, true)
	tr.SetMQTTConnected(true)
	tr.SetModes(modes.State{ManualMode: true})

	snap := tr.Snapshot()
	if snap.Current["ad0"] != 115 {
		t.Errorf("current: got %v", snap.Current)
	}
	if snap.CO2 == nil || snap.CO2.PPM != 640 {
		t.Errorf("co2: got %+v", snap.CO2)
	}
	if snap.Temperature["28-aa"] != 21.4 {
		t.Errorf("temperature: got %v", snap.Temperature)
	}
	if snap.Digital["smoke"] != logic.StateOff || !snap.Baselined {
		t.Errorf("digital: got %v baselined=%v", snap.Digital, snap.Baselined)
	}
	if !snap.MQTTConnected || !snap.Modes.ManualMode {
		t.Error("connection or modes not recorded")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.SetCurrent("ad0", 100)
	tr.SetCO2(500, 20, start)

	snap1 := tr.Snapshot()
	snap1.Current["ad0"] = 1
	snap1.CO2.PPM = 1

	tr.SetCurrent("ad0", 200)

	if snap1.Current["ad0"] != 1 {
		t.Error("snapshot map should not follow later updates")
	}
	snap2 := tr.Snapshot()
	if snap2.Current["ad0"] != 200 {
		t.Errorf("tracker: got %d, want 200", snap2.Current["ad0"])
	}
	if snap2.CO2.PPM != 500 {
		t.Error("mutating a snapshot changed the tracker")
	}
}

func TestFormatJSON(t *testing.T) {
	tr := NewTracker(start, Config{Broker: "tcp://localhost:1883", HeartbeatMs: 900000})
	tr.now = func() time.Time { return start.Add(15 * time.Minute) }
	tr.SetMQTTConnected(true)
	tr.SetCurrent("ad0", 115)
	tr.RecordEvaluation(sampleEvaluation(), modes.State{
		TemporaryManualMode:        true,
		TemporaryManualModeOffTime: start.Add(8 * time.Hour).Unix(),
	})

	data := FormatJSON(tr.Snapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status
	if !s.Ready {
		t.Error("expected Ready=true")
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Modes.TemporaryManualOff != "2026-01-01T08:00:00Z" {
		t.Errorf("TemporaryManualOff: got %q", s.Modes.TemporaryManualOff)
	}
	if s.Modes.TemporaryBoostOff != "" {
		t.Errorf("inactive offTime should be omitted, got %q", s.Modes.TemporaryBoostOff)
	}
	if s.Evaluation == nil {
		t.Fatal("expected evaluation")
	}
	if s.Evaluation.Outputs[logic.FieldGpio18] != "48" || s.Evaluation.Outputs[logic.FieldBypass] != "OFF" {
		t.Errorf("outputs: got %v", s.Evaluation.Outputs)
	}
	if s.Evaluation.Sources[logic.FieldGpio19] != "EXHAUST" {
		t.Errorf("sources: got %v", s.Evaluation.Sources)
	}
	if s.Current["ad0"] != 115 {
		t.Errorf("current: got %v", s.Current)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("web format should omit event and reason")
	}
}

func TestFormatJSONBeforeFirstEvaluation(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Status.Ready {
		t.Error("expected Ready=false")
	}
	if parsed.Status.Evaluation != nil {
		t.Error("evaluation should be omitted before the first cycle")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(start, Config{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			tr.SetCurrent("ad0", i)
		}(i)
		go func() {
			defer wg.Done()
			tr.RecordEvaluation(sampleEvaluation(), modes.State{})
		}()
		go func() {
			defer wg.Done()
			FormatJSON(tr.Snapshot())
		}()
	}
	wg.Wait()
	if tr.Snapshot().Evaluations != 50 {
		t.Errorf("evaluations: got %d, want 50", tr.Snapshot().Evaluations)
	}
}
