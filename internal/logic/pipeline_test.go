package logic

import (
	"testing"

	"github.com/sweeney/hrv-controller/internal/calibration"
)

func baseInput() Input {
	return Input{
		Env: EnvironmentalSnapshot{
			InsideTemperature:  21,
			OutsideTemperature: 5,
			Pressure:           1000,
			CO2:                750,
		},
		Modes: ControlModes{
			DualMotorMode: true,
		},
		Thresholds: DefaultThresholds(),
		Gpio18:     Channel{Source: SourceIntake},
		Gpio19:     Channel{Source: SourceExhaust},
	}
}

func TestEvaluate(t *testing.T) {
	in := baseInput()
	in.Modes.IntakeExhaustRatio = 10

	out := Evaluate(in)

	want := OutputSnapshot{Power: 50, Intake: 55, Exhaust: 50, Test: 0, Gpio18: 55, Gpio19: 50, Bypass: false}
	if out != want {
		t.Errorf("got %+v, want %+v", out, want)
	}
}

func TestEvaluateSingleMotorSkipsBalance(t *testing.T) {
	in := baseInput()
	in.Modes.DualMotorMode = false
	in.Modes.IntakeExhaustRatio = 10

	out := Evaluate(in)
	if out.Intake != 50 || out.Exhaust != 50 {
		t.Errorf("got intake=%d exhaust=%d, want 50/50", out.Intake, out.Exhaust)
	}
}

func TestEvaluateRoutesTestAndOff(t *testing.T) {
	in := baseInput()
	in.TestOutput = 33
	in.Gpio18 = Channel{Source: SourceTest, Calibration: calibration.Table{Points: []calibration.Point{{Duty: 0, Voltage: 0}, {Duty: 100, Voltage: 5}}}}
	in.Gpio19 = Channel{Source: SourceOff}

	out := Evaluate(in)
	if out.Test != 33 {
		t.Errorf("Test: got %d, want 33", out.Test)
	}
	if out.Gpio18 != 33 {
		t.Errorf("Gpio18: got %d, want 33 (uncalibrated)", out.Gpio18)
	}
	if out.Gpio19 != 0 {
		t.Errorf("Gpio19: got %d, want 0", out.Gpio19)
	}
}

func TestEvaluateBypassFeedsBack(t *testing.T) {
	in := baseInput()
	in.Env.InsideTemperature = 25
	in.Env.OutsideTemperature = 12

	out := Evaluate(in)
	if !out.Bypass {
		t.Fatal("expected bypass to open")
	}

	// Next cycle in the dead zone keeps it open.
	in.Modes.Bypass = out.Bypass
	in.Env.InsideTemperature = 22.5
	if out := Evaluate(in); !out.Bypass {
		t.Error("bypass closed inside dead zone")
	}
}

func TestEvaluateDoesNotMutateInput(t *testing.T) {
	in := baseInput()
	in.Modes.IntakeExhaustRatio = -10
	before := in
	Evaluate(in)
	if in.Modes != before.Modes || in.Env != before.Env || in.Thresholds != before.Thresholds {
		t.Error("Evaluate mutated its input")
	}
}

func TestOutputSnapshotValues(t *testing.T) {
	out := OutputSnapshot{Power: 50, Intake: 55, Exhaust: 45, Test: 1, Gpio18: 60, Gpio19: 40, Bypass: true}
	v := out.Values()
	if len(v) != len(OutputFields) {
		t.Fatalf("values: got %d keys, want %d", len(v), len(OutputFields))
	}
	for _, f := range OutputFields {
		if _, ok := v[f]; !ok {
			t.Errorf("missing field %s", f)
		}
	}
	if v[FieldBypass] != "ON" {
		t.Errorf("bypass: got %s, want ON", v[FieldBypass])
	}
	if v[FieldGpio18] != "60" {
		t.Errorf("gpio18: got %s, want 60", v[FieldGpio18])
	}
}
