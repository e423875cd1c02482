// Package metrics buffers controller samples and ships them to a Prometheus
// remote_write endpoint.
package metrics

import (
	"time"

	"github.com/sweeney/hrv-controller/internal/current"
	"github.com/sweeney/hrv-controller/internal/logic"
)

// Metric names.
const (
	MetricOutputPercent  = "hrv_output_percent"
	MetricBypass         = "hrv_bypass_open"
	MetricCurrentWatts   = "hrv_current_watts"
	MetricCO2PPM         = "hrv_co2_ppm"
	MetricCO2Temperature = "hrv_co2_sensor_temperature_celsius"
)

// Label is one name/value pair attached to a sample.
type Label struct {
	Name  string
	Value string
}

// Sample is one recorded value.
type Sample struct {
	Name   string
	Labels []Label
	Value  float64
	Time   time.Time
}

// Recorder turns controller events into samples in the shared buffer.
// A nil *Recorder discards everything.
type Recorder struct {
	buf *RingBuffer[Sample]
}

// NewRecorder returns a recorder appending to buf.
func NewRecorder(buf *RingBuffer[Sample]) *Recorder {
	return &Recorder{buf: buf}
}

func (r *Recorder) add(name string, v float64, at time.Time, labels ...Label) {
	if r == nil || r.buf == nil {
		return
	}
	r.buf.Add(Sample{Name: name, Labels: labels, Value: v, Time: at})
}

// RecordOutputs records every output level of one evaluation.
func (r *Recorder) RecordOutputs(out logic.OutputSnapshot, at time.Time) {
	levels := []struct {
		output string
		value  int
	}{
		{"power", out.Power},
		{"intake", out.Intake},
		{"exhaust", out.Exhaust},
		{"test", out.Test},
		{"gpio18", out.Gpio18},
		{"gpio19", out.Gpio19},
	}
	for _, l := range levels {
		r.add(MetricOutputPercent, float64(l.value), at, Label{"output", l.output})
	}
	bypass := 0.0
	if out.Bypass {
		bypass = 1
	}
	r.add(MetricBypass, bypass, at)
}

// RecordCurrent records one published power reading.
func (r *Recorder) RecordCurrent(p current.Publish) {
	r.add(MetricCurrentWatts, float64(p.Watts), p.Time, Label{"channel", p.Channel})
}

// RecordCO2 records one CO2 sensor reading.
func (r *Recorder) RecordCO2(ppm, temperature int, at time.Time) {
	r.add(MetricCO2PPM, float64(ppm), at)
	r.add(MetricCO2Temperature, float64(temperature), at)
}
