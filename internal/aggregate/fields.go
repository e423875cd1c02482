// Package aggregate turns raw readings from any number of sources into one
// value per canonical field.
package aggregate

import (
	"fmt"
	"strings"
)

// Kind is how multiple raw readings of one field are combined.
type Kind string

const (
	AVG Kind = "AVG"
	MIN Kind = "MIN"
	MAX Kind = "MAX"
	SUM Kind = "SUM"
	OR  Kind = "OR"
)

// ParseKind accepts kind names case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case AVG, MIN, MAX, SUM, OR:
		return k, nil
	}
	return "", fmt.Errorf("unknown aggregation %q", s)
}

// Type is the value type of a canonical field.
type Type int

const (
	Float Type = iota
	Int
	Bool
	Text
)

func (t Type) String() string {
	switch t {
	case Float:
		return "float"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Text:
		return "text"
	}
	return "unknown"
}

// Value holds one aggregated field. Only the member matching the field Type is meaningful.
type Value struct {
	Num  float64
	Bool bool
	Text string
}

// Field describes a canonical field.
type Field struct {
	Name    string
	Type    Type
	Kind    Kind
	Default Value
	// Min and Max clamp numeric results when Max > Min.
	Min, Max float64
}

func (f Field) clamp(v float64) float64 {
	if f.Max <= f.Min {
		return v
	}
	if v < f.Min {
		return f.Min
	}
	if v > f.Max {
		return f.Max
	}
	return v
}

// Canonical field names.
const (
	InsideTemperature  = "insideTemperature"
	OutsideTemperature = "outsideTemperature"
	Pressure           = "pressure"
	AirHumidity        = "airHumidity"
	CO2                = "co2"
	OpenWindows        = "openWindows"
	Smoke              = "smoke"
	Gas                = "gas"

	HumidityThreshold    = "humidityThreshold"
	CO2ThresholdLow      = "co2ThresholdLow"
	CO2ThresholdMid      = "co2ThresholdMid"
	CO2ThresholdHigh     = "co2ThresholdHigh"
	ManualPower          = "manualPower"
	PowerLow             = "powerLow"
	PowerMid             = "powerMid"
	PowerHigh            = "powerHigh"
	PreferredTemperature = "preferredTemperature"
	BypassHysteresis     = "bypassHysteresis"

	IntakeExhaustRatio             = "intakeExhaustRatio"
	DualMotorMode                  = "dualMotorMode"
	TemporaryManualModeDurationSec = "temporaryManualModeDurationSec"
	TemporaryBoostModeDurationSec  = "temporaryBoostModeDurationSec"
	SourceGpio18                   = "sourceGpio18"
	SourceGpio19                   = "sourceGpio19"
	HrvOutputTest                  = "hrvOutputTest"
	ControlEnabled                 = "controlEnabled"
)

func num(v float64) Value { return Value{Num: v} }

// Registry lists every canonical field with its type, default aggregation and default value.
var Registry = []Field{
	{Name: InsideTemperature, Type: Float, Kind: AVG, Default: num(20)},
	{Name: OutsideTemperature, Type: Float, Kind: AVG, Default: num(0)},
	{Name: Pressure, Type: Float, Kind: AVG, Default: num(1000)},
	{Name: AirHumidity, Type: Int, Kind: MAX, Default: num(0)},
	{Name: CO2, Type: Int, Kind: MAX, Default: num(500)},
	{Name: OpenWindows, Type: Int, Kind: SUM, Default: num(0)},
	{Name: Smoke, Type: Bool, Kind: OR},
	{Name: Gas, Type: Bool, Kind: OR},

	{Name: HumidityThreshold, Type: Int, Kind: MAX, Default: num(60)},
	{Name: CO2ThresholdLow, Type: Int, Kind: MAX, Default: num(500)},
	{Name: CO2ThresholdMid, Type: Int, Kind: MAX, Default: num(700)},
	{Name: CO2ThresholdHigh, Type: Int, Kind: MAX, Default: num(900)},
	{Name: ManualPower, Type: Int, Kind: MAX, Default: num(50), Min: 0, Max: 100},
	{Name: PowerLow, Type: Int, Kind: MAX, Default: num(15), Min: 0, Max: 100},
	{Name: PowerMid, Type: Int, Kind: MAX, Default: num(50), Min: 0, Max: 100},
	{Name: PowerHigh, Type: Int, Kind: MAX, Default: num(95), Min: 0, Max: 100},
	{Name: PreferredTemperature, Type: Float, Kind: AVG, Default: num(22)},
	{Name: BypassHysteresis, Type: Float, Kind: AVG, Default: num(2)},

	{Name: IntakeExhaustRatio, Type: Int, Kind: AVG, Default: num(0), Min: -10, Max: 10},
	{Name: DualMotorMode, Type: Bool, Kind: OR, Default: Value{Bool: true}},
	{Name: TemporaryManualModeDurationSec, Type: Int, Kind: MAX, Default: num(8 * 60 * 60), Min: 60 * 60, Max: 12 * 60 * 60},
	{Name: TemporaryBoostModeDurationSec, Type: Int, Kind: MAX, Default: num(10 * 60), Min: 5 * 60, Max: 60 * 60},
	{Name: SourceGpio18, Type: Text, Default: Value{Text: "INTAKE"}},
	{Name: SourceGpio19, Type: Text, Default: Value{Text: "EXHAUST"}},
	{Name: HrvOutputTest, Type: Int, Kind: MAX, Default: num(0), Min: 0, Max: 100},
	{Name: ControlEnabled, Type: Bool, Kind: OR, Default: Value{Bool: true}},
}

// Lookup returns the registry entry for name.
func Lookup(name string) (Field, bool) {
	for _, f := range Registry {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
