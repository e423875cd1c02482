package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sweeney/hrv-controller/internal/logic"
)

// Binding maps one canonical field to its raw sources. Empty Kind and
// Default keep the registry values.
type Binding struct {
	Sources []string
	Kind    string
	Default string
}

type boundField struct {
	Field
	sources []string
}

// Aggregator resolves the mapping table once and then aggregates raw
// snapshots. It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	fields []boundField
}

// New builds an Aggregator from the mapping table. Unknown field names,
// unknown kinds, kinds that do not fit the field type, and unparseable
// defaults are rejected.
func New(bindings map[string]Binding) (*Aggregator, error) {
	for name := range bindings {
		if _, ok := Lookup(name); !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
	}

	a := &Aggregator{}
	for _, f := range Registry {
		bf := boundField{Field: f}
		if b, ok := bindings[f.Name]; ok {
			bf.sources = append([]string(nil), b.Sources...)
			if b.Kind != "" {
				k, err := ParseKind(b.Kind)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", f.Name, err)
				}
				bf.Kind = k
			}
			if b.Default != "" {
				v, ok := parse(f.Type, b.Default)
				if !ok {
					return nil, fmt.Errorf("field %s: invalid default %q for %s", f.Name, b.Default, f.Type)
				}
				bf.Default = v
			}
		}
		if err := checkKind(bf.Field); err != nil {
			return nil, err
		}
		a.fields = append(a.fields, bf)
	}
	return a, nil
}

func checkKind(f Field) error {
	switch f.Type {
	case Bool:
		if f.Kind != OR {
			return fmt.Errorf("field %s: bool fields only support OR, got %s", f.Name, f.Kind)
		}
	case Float, Int:
		if f.Kind == OR {
			return fmt.Errorf("field %s: OR is not defined for numeric fields", f.Name)
		}
	}
	return nil
}

// Sources returns every raw key referenced by the mapping table, sorted.
func (a *Aggregator) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range a.fields {
		for _, s := range f.sources {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Aggregate combines raw values into one Value per canonical field. Missing
// or unparseable raw values are skipped; a field with nothing present gets
// its default.
func (a *Aggregator) Aggregate(raw map[string]string) Values {
	out := make(Values, len(a.fields))
	for _, f := range a.fields {
		out[f.Name] = f.aggregate(raw)
	}
	return out
}

func (f boundField) aggregate(raw map[string]string) Value {
	switch f.Type {
	case Bool:
		present, anyTrue := false, false
		for _, src := range f.sources {
			v, ok := parse(Bool, raw[src])
			if !ok {
				continue
			}
			present = true
			anyTrue = anyTrue || v.Bool
		}
		if !present {
			return f.Default
		}
		return Value{Bool: anyTrue}

	case Text:
		var last Value
		present := false
		for _, src := range f.sources {
			if v, ok := parse(Text, raw[src]); ok {
				last, present = v, true
			}
		}
		if !present {
			return f.Default
		}
		return last

	default:
		var nums []float64
		for _, src := range f.sources {
			if v, ok := parse(Float, raw[src]); ok {
				nums = append(nums, v.Num)
			}
		}
		if len(nums) == 0 {
			return f.Default
		}
		r := reduce(f.Kind, nums)
		if f.Type == Int {
			// Truncate after aggregation, never before.
			r = math.Trunc(r)
		}
		return Value{Num: f.clamp(r)}
	}
}

func reduce(k Kind, nums []float64) float64 {
	r := nums[0]
	switch k {
	case MIN:
		for _, n := range nums[1:] {
			r = math.Min(r, n)
		}
	case MAX:
		for _, n := range nums[1:] {
			r = math.Max(r, n)
		}
	case SUM:
		for _, n := range nums[1:] {
			r += n
		}
	default:
		for _, n := range nums[1:] {
			r += n
		}
		r /= float64(len(nums))
	}
	return r
}

// missing reports payloads the host uses for "no value".
func missing(s string) bool {
	switch strings.ToUpper(s) {
	case "", "NULL", "UNDEF", "NAN":
		return true
	}
	return false
}

func parse(t Type, s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if missing(s) {
		return Value{}, false
	}
	switch t {
	case Bool:
		switch strings.ToUpper(s) {
		case "ON", "OPEN", "TRUE", "1":
			return Value{Bool: true}, true
		case "OFF", "CLOSED", "FALSE", "0":
			return Value{Bool: false}, true
		}
		return Value{}, false
	case Text:
		return Value{Text: s}, true
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return Value{}, false
		}
		return Value{Num: f}, true
	}
}

// Values is one aggregated snapshot keyed by canonical field name.
type Values map[string]Value

// Float returns a numeric field.
func (v Values) Float(name string) float64 { return v[name].Num }

// Int returns a numeric field as int.
func (v Values) Int(name string) int { return int(v[name].Num) }

// Bool returns a boolean field.
func (v Values) Bool(name string) bool { return v[name].Bool }

// Text returns a text field.
func (v Values) Text(name string) string { return v[name].Text }

// Environment builds the immutable environmental snapshot.
func (v Values) Environment() logic.EnvironmentalSnapshot {
	return logic.EnvironmentalSnapshot{
		InsideTemperature:  v.Float(InsideTemperature),
		OutsideTemperature: v.Float(OutsideTemperature),
		Pressure:           v.Float(Pressure),
		AirHumidity:        v.Int(AirHumidity),
		CO2:                v.Int(CO2),
		OpenWindows:        v.Int(OpenWindows),
		Smoke:              v.Bool(Smoke),
		Gas:                v.Bool(Gas),
	}
}

// Thresholds builds the decision thresholds.
func (v Values) Thresholds() logic.Thresholds {
	return logic.Thresholds{
		HumidityThreshold:    v.Int(HumidityThreshold),
		CO2ThresholdLow:      v.Int(CO2ThresholdLow),
		CO2ThresholdMid:      v.Int(CO2ThresholdMid),
		CO2ThresholdHigh:     v.Int(CO2ThresholdHigh),
		ManualPower:          v.Int(ManualPower),
		PowerLow:             v.Int(PowerLow),
		PowerMid:             v.Int(PowerMid),
		PowerHigh:            v.Int(PowerHigh),
		PreferredTemperature: v.Float(PreferredTemperature),
		BypassHysteresis:     v.Float(BypassHysteresis),
	}
}

// Settings are the remaining operator-tunable fields.
type Settings struct {
	DualMotorMode                  bool
	IntakeExhaustRatio             int
	TemporaryManualModeDurationSec int
	TemporaryBoostModeDurationSec  int
	SourceGpio18                   string
	SourceGpio19                   string
	TestOutput                     int
	ControlEnabled                 bool
}

// Settings extracts the operator settings.
func (v Values) Settings() Settings {
	return Settings{
		DualMotorMode:                  v.Bool(DualMotorMode),
		IntakeExhaustRatio:             v.Int(IntakeExhaustRatio),
		TemporaryManualModeDurationSec: v.Int(TemporaryManualModeDurationSec),
		TemporaryBoostModeDurationSec:  v.Int(TemporaryBoostModeDurationSec),
		SourceGpio18:                   v.Text(SourceGpio18),
		SourceGpio19:                   v.Text(SourceGpio19),
		TestOutput:                     v.Int(HrvOutputTest),
		ControlEnabled:                 v.Bool(ControlEnabled),
	}
}
