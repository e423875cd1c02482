// Package current turns raw clamp-sensor voltages into stable power readings.
package current

import (
	"math"
	"sort"
	"time"
)

// Config holds the sampling and conditioning parameters shared by all channels.
type Config struct {
	SampleRate        int
	MeasurementWindow time.Duration
	PublishWindow     time.Duration
	Heartbeat         time.Duration

	NoiseFloor    float64 // watts below this read as 0
	Ceiling       float64 // watts above this mean a disconnected sensor
	Alpha         float64 // EMA weight of the newest measurement
	StepThreshold float64 // watts; larger steps skip smoothing

	MainsVoltage float64
	AmpsPerVolt  float64 // clamp sensor ratio, 5 A/V for an SCT013-005
}

// DefaultConfig returns the parameters tuned for SCT013 clamps on the
// Waveshare AD/DA board.
func DefaultConfig() Config {
	return Config{
		SampleRate:        2000,
		MeasurementWindow: 200 * time.Millisecond,
		PublishWindow:     time.Second,
		Heartbeat:         60 * time.Second,
		NoiseFloor:        3,
		Ceiling:           500,
		Alpha:             0.3,
		StepThreshold:     50,
		MainsVoltage:      230,
		AmpsPerVolt:       5,
	}
}

// SampleInterval is the time between two samples of one channel.
func (c Config) SampleInterval() time.Duration {
	if c.SampleRate <= 0 {
		return time.Millisecond
	}
	return time.Second / time.Duration(c.SampleRate)
}

// SamplesPerMeasurement is the raw window size.
func (c Config) SamplesPerMeasurement() int {
	n := int(int64(c.SampleRate) * int64(c.MeasurementWindow) / int64(time.Second))
	if n < 1 {
		return 1
	}
	return n
}

// MeasurementsPerPublish is the median window size.
func (c Config) MeasurementsPerPublish() int {
	if c.MeasurementWindow <= 0 {
		return 1
	}
	n := int(c.PublishWindow / c.MeasurementWindow)
	if n < 1 {
		return 1
	}
	return n
}

// PercentileFilter drops samples outside the 10th..90th percentile. Windows
// shorter than 10 samples are returned unchanged. The result is sorted.
func PercentileFilter(samples []float64) []float64 {
	n := len(samples)
	if n < 10 {
		return samples
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	trim := n * 10 / 100
	if trim < 1 {
		trim = 1
	}
	return sorted[trim : n-trim]
}

// ACRMS returns the RMS of samples after removing their mean (the DC bias
// of the sensor circuit).
func ACRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	offset := sum / float64(len(samples))

	var sq float64
	for _, s := range samples {
		d := s - offset
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(samples)))
}

// RawPower converts one window of voltages into watts, before conditioning.
func (c Config) RawPower(samples []float64, factor float64) float64 {
	rms := ACRMS(PercentileFilter(samples))
	amps := rms * c.AmpsPerVolt
	return amps * c.MainsVoltage * factor
}

// Power is RawPower after Condition.
func (c Config) Power(samples []float64, factor float64) float64 {
	return c.Condition(c.RawPower(samples, factor))
}

// Condition applies the noise floor and the disconnected-sensor ceiling.
func (c Config) Condition(watts float64) float64 {
	if watts < c.NoiseFloor || watts > c.Ceiling {
		return 0
	}
	return watts
}

func median(values []int) int {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}
