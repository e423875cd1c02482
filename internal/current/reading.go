package current

import (
	"math"
	"time"
)

// Publish reasons.
const (
	ReasonFirst      = "first"
	ReasonChange     = "change"
	ReasonTransition = "transition"
	ReasonHeartbeat  = "heartbeat"
)

// Publish is a reading due to be sent out.
type Publish struct {
	Channel string
	Watts   int
	Time    time.Time
	Reason  string
}

// Reading is the per-channel state of the sensing pipeline. It is owned by
// exactly one channel loop and is not safe for concurrent use.
type Reading struct {
	name   string
	factor float64
	cfg    Config

	window []float64 // raw samples of the current measurement
	ema    float64
	median []int // smoothed measurements awaiting the next publish

	lastPublished   int
	lastPublishTime time.Time
	hasPublished    bool
}

// NewReading creates the state for one channel. factor is the per-channel
// calibration multiplier.
func NewReading(name string, factor float64, cfg Config) *Reading {
	return &Reading{
		name:   name,
		factor: factor,
		cfg:    cfg,
		window: make([]float64, 0, cfg.SamplesPerMeasurement()),
		median: make([]int, 0, cfg.MeasurementsPerPublish()),
	}
}

// AddSample appends one voltage. When the window is full it is reduced to a
// measurement and the publish decision is made.
func (r *Reading) AddSample(volts float64, now time.Time) (Publish, bool) {
	r.window = append(r.window, volts)
	if len(r.window) < r.cfg.SamplesPerMeasurement() {
		return Publish{}, false
	}
	watts := r.cfg.RawPower(r.window, r.factor)
	r.window = r.window[:0]
	return r.AddMeasurement(watts, now)
}

// AddMeasurement conditions and smooths one power measurement and decides
// whether to publish.
func (r *Reading) AddMeasurement(rawWatts float64, now time.Time) (Publish, bool) {
	smoothed := r.smooth(r.cfg.Condition(rawWatts))

	// Load switching on or off is reported at once, bypassing the median.
	if r.hasPublished && (smoothed == 0) != (r.lastPublished == 0) {
		r.median = append(r.median[:0], smoothed)
		return r.publish(smoothed, now, ReasonTransition), true
	}

	r.median = append(r.median, smoothed)
	if len(r.median) < r.cfg.MeasurementsPerPublish() {
		return Publish{}, false
	}
	m := median(r.median)
	r.median = r.median[:0]

	switch {
	case !r.hasPublished:
		return r.publish(m, now, ReasonFirst), true
	case m != r.lastPublished:
		return r.publish(m, now, ReasonChange), true
	case now.Sub(r.lastPublishTime) >= r.cfg.Heartbeat:
		return r.publish(m, now, ReasonHeartbeat), true
	}
	return Publish{}, false
}

func (r *Reading) smooth(watts float64) int {
	switch {
	case watts == 0:
		r.ema = 0
	case r.ema == 0:
		r.ema = watts
	case math.Abs(watts-r.ema) > r.cfg.StepThreshold:
		r.ema = watts
	default:
		r.ema = r.cfg.Alpha*watts + (1-r.cfg.Alpha)*r.ema
	}
	return int(math.Round(r.ema))
}

func (r *Reading) publish(watts int, now time.Time, reason string) Publish {
	r.lastPublished = watts
	r.lastPublishTime = now
	r.hasPublished = true
	return Publish{Channel: r.name, Watts: watts, Time: now, Reason: reason}
}

// LastPublished returns the last published value and whether there is one.
func (r *Reading) LastPublished() (int, bool) {
	return r.lastPublished, r.hasPublished
}
