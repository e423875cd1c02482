// Package calibration holds duty-cycle to voltage tables measured on the
// PWM-to-analog converters and the interpolation used to linearize them.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrInvalidPoint is returned for keys that are not integers in 0..100
	// or voltages that are negative or not finite.
	ErrInvalidPoint = errors.New("calibration: invalid point")

	// ErrNotMonotonic is returned when voltage decreases as duty increases.
	ErrNotMonotonic = errors.New("calibration: voltage not monotonic in duty")
)

// Point is one measured sample: the commanded duty cycle and the voltage it produced.
type Point struct {
	Duty    int
	Voltage float64
}

// Table is a duty-sorted list of calibration points. The zero value is the
// empty (linear) table.
type Table struct {
	Points []Point
}

// Parse decodes the external JSON form, e.g. {"0":0.0,"50":6.2,"100":10.0}.
// Blank input and {} yield the empty table.
func Parse(data []byte) (Table, error) {
	if strings.TrimSpace(string(data)) == "" {
		return Table{}, nil
	}

	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return Table{}, fmt.Errorf("decode calibration table: %w", err)
	}

	points := make([]Point, 0, len(raw))
	for k, v := range raw {
		duty, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || duty < 0 || duty > 100 {
			return Table{}, fmt.Errorf("%w: duty key %q", ErrInvalidPoint, k)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Table{}, fmt.Errorf("%w: voltage %v at duty %d", ErrInvalidPoint, v, duty)
		}
		points = append(points, Point{Duty: duty, Voltage: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Duty < points[j].Duty })

	t := Table{Points: points}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// ParseOrEmpty parses data and falls back to the empty table on any error,
// logging a warning. name identifies the channel in the log.
func ParseOrEmpty(name string, data []byte, logger *zap.Logger) Table {
	t, err := Parse(data)
	if err != nil {
		logger.Warn("calibration table rejected, using linear output",
			zap.String("channel", name),
			zap.Error(err))
		return Table{}
	}
	return t
}

// Validate checks duty is strictly increasing and voltage non-decreasing.
func (t Table) Validate() error {
	for i := 1; i < len(t.Points); i++ {
		prev, cur := t.Points[i-1], t.Points[i]
		if cur.Duty <= prev.Duty {
			return fmt.Errorf("%w: duplicate duty %d", ErrNotMonotonic, cur.Duty)
		}
		if cur.Voltage < prev.Voltage {
			return fmt.Errorf("%w: %.3fV at %d%% after %.3fV at %d%%",
				ErrNotMonotonic, cur.Voltage, cur.Duty, prev.Voltage, prev.Duty)
		}
	}
	return nil
}

// Empty reports whether the table carries too few points to interpolate.
func (t Table) Empty() bool {
	return len(t.Points) < 2
}

// MaxVoltage returns the highest measured voltage, or 0 for an empty table.
func (t Table) MaxVoltage() float64 {
	var max float64
	for _, p := range t.Points {
		if p.Voltage > max {
			max = p.Voltage
		}
	}
	return max
}

// VoltageAt interpolates the voltage produced by duty.
func (t Table) VoltageAt(duty float64) float64 {
	if t.Empty() {
		return duty
	}
	pts := t.Points
	if duty <= float64(pts[0].Duty) {
		return pts[0].Voltage
	}
	last := pts[len(pts)-1]
	if duty >= float64(last.Duty) {
		return last.Voltage
	}
	for i := 1; i < len(pts); i++ {
		lo, hi := pts[i-1], pts[i]
		if duty <= float64(hi.Duty) {
			frac := (duty - float64(lo.Duty)) / float64(hi.Duty-lo.Duty)
			return lo.Voltage + frac*(hi.Voltage-lo.Voltage)
		}
	}
	return last.Voltage
}

// DutyFor returns the duty cycle that produces voltage, clamped to the
// duty of the nearest endpoint when voltage is outside the measured range.
// Flat segments resolve to their lowest duty.
func (t Table) DutyFor(voltage float64) float64 {
	if t.Empty() {
		return voltage
	}
	pts := t.Points
	if voltage <= pts[0].Voltage {
		return float64(pts[0].Duty)
	}
	last := pts[len(pts)-1]
	if voltage >= last.Voltage {
		return float64(last.Duty)
	}
	for i := 1; i < len(pts); i++ {
		lo, hi := pts[i-1], pts[i]
		if voltage > hi.Voltage {
			continue
		}
		if hi.Voltage == lo.Voltage {
			return float64(lo.Duty)
		}
		frac := (voltage - lo.Voltage) / (hi.Voltage - lo.Voltage)
		return float64(lo.Duty) + frac*float64(hi.Duty-lo.Duty)
	}
	return float64(last.Duty)
}

// String renders the table in its external JSON form.
func (t Table) String() string {
	if len(t.Points) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, p := range t.Points {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%s", strconv.Itoa(p.Duty), strconv.FormatFloat(p.Voltage, 'f', -1, 64))
	}
	b.WriteByte('}')
	return b.String()
}
