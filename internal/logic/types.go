// Package logic contains the pure ventilation control calculations.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Every function works on value snapshots; time is always injected.
package logic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sweeney/hrv-controller/internal/calibration"
)

// EnvironmentalSnapshot is the aggregated sensor state for one evaluation.
type EnvironmentalSnapshot struct {
	InsideTemperature  float64
	OutsideTemperature float64
	Pressure           float64
	AirHumidity        int
	CO2                int
	OpenWindows        int
	Smoke              bool
	Gas                bool
}

// ControlModes carries user modes and the persisted valve state for one evaluation.
type ControlModes struct {
	ManualMode          bool
	TemporaryManualMode bool
	TemporaryBoostMode  bool

	TemporaryManualModeDurationSec int
	TemporaryBoostModeDurationSec  int

	// Absolute expiry in epoch seconds, 0 = inactive.
	TemporaryManualModeOffTime int64
	TemporaryBoostModeOffTime  int64

	DualMotorMode      bool
	IntakeExhaustRatio int
	Bypass             bool
}

// Thresholds holds the tunable decision levels.
type Thresholds struct {
	HumidityThreshold    int
	CO2ThresholdLow      int
	CO2ThresholdMid      int
	CO2ThresholdHigh     int
	ManualPower          int
	PowerLow             int
	PowerMid             int
	PowerHigh            int
	PreferredTemperature float64
	BypassHysteresis     float64
}

// DefaultThresholds returns the levels used when nothing is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HumidityThreshold:    60,
		CO2ThresholdLow:      500,
		CO2ThresholdMid:      700,
		CO2ThresholdHigh:     900,
		ManualPower:          50,
		PowerLow:             15,
		PowerMid:             50,
		PowerHigh:            95,
		PreferredTemperature: 22,
		BypassHysteresis:     2,
	}
}

// GpioSource selects which logical quantity drives a PWM channel.
type GpioSource string

const (
	SourcePower   GpioSource = "POWER"
	SourceIntake  GpioSource = "INTAKE"
	SourceExhaust GpioSource = "EXHAUST"
	SourceTest    GpioSource = "TEST"
	SourceOff     GpioSource = "OFF"
)

// ParseGpioSource accepts the source names case-insensitively.
func ParseGpioSource(s string) (GpioSource, error) {
	switch src := GpioSource(strings.ToUpper(strings.TrimSpace(s))); src {
	case SourcePower, SourceIntake, SourceExhaust, SourceTest, SourceOff:
		return src, nil
	}
	return "", fmt.Errorf("unknown gpio source %q", s)
}

// Channel is the configuration of one physical PWM output.
type Channel struct {
	Source      GpioSource
	Calibration calibration.Table
}

// Input is everything one evaluation needs.
type Input struct {
	Env        EnvironmentalSnapshot
	Modes      ControlModes
	Thresholds Thresholds
	// TestOutput is the operator-supplied level routed by SourceTest.
	TestOutput int
	Gpio18     Channel
	Gpio19     Channel
}

// Output field names, in the order sinks are written.
const (
	FieldPower   = "hrvOutputPower"
	FieldIntake  = "hrvOutputIntake"
	FieldExhaust = "hrvOutputExhaust"
	FieldTest    = "hrvOutputTest"
	FieldGpio18  = "hrvOutputGpio18"
	FieldGpio19  = "hrvOutputGpio19"
	FieldBypass  = "bypass"
)

// OutputFields lists every output slot a sink must expose.
var OutputFields = []string{
	FieldPower,
	FieldIntake,
	FieldExhaust,
	FieldTest,
	FieldGpio18,
	FieldGpio19,
	FieldBypass,
}

// OutputSnapshot is the result of one evaluation. Gpio18/Gpio19 are the
// final calibrated duty cycles.
type OutputSnapshot struct {
	Power   int
	Intake  int
	Exhaust int
	Test    int
	Gpio18  int
	Gpio19  int
	Bypass  bool
}

// Values encodes the snapshot for a sink, keyed by output field name.
func (o OutputSnapshot) Values() map[string]string {
	return map[string]string{
		FieldPower:   strconv.Itoa(o.Power),
		FieldIntake:  strconv.Itoa(o.Intake),
		FieldExhaust: strconv.Itoa(o.Exhaust),
		FieldTest:    strconv.Itoa(o.Test),
		FieldGpio18:  strconv.Itoa(o.Gpio18),
		FieldGpio19:  strconv.Itoa(o.Gpio19),
		FieldBypass:  OnOff(o.Bypass),
	}
}

// OnOff renders a boolean the way the panel and host expect it.
func OnOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
