// Package controller runs the control loop: it aggregates raw inputs,
// evaluates the ventilation pipeline, applies operator commands and writes
// changed outputs to the sink and the actuator.
package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/sweeney/hrv-controller/internal/aggregate"
	"github.com/sweeney/hrv-controller/internal/calibration"
	"github.com/sweeney/hrv-controller/internal/gpio"
	"github.com/sweeney/hrv-controller/internal/inputs"
	"github.com/sweeney/hrv-controller/internal/logic"
	"github.com/sweeney/hrv-controller/internal/modes"
	"github.com/sweeney/hrv-controller/internal/mqtt"
	"github.com/sweeney/hrv-controller/internal/status"
)

// Sink receives output snapshots. Its Names must match logic.OutputFields.
type Sink interface {
	Names() []string
	Write(values map[string]string) error
}

// Actuator drives the physical outputs.
type Actuator interface {
	SetDuty(channel string, duty int) error
	SetBypass(on bool) error
}

// Recorder receives evaluated outputs for metrics.
type Recorder interface {
	RecordOutputs(out logic.OutputSnapshot, at time.Time)
}

// Command is an operator request such as switching a mode.
type Command struct {
	Name    string
	Payload string
}

type request struct {
	cmd   Command
	reply chan error
}

// Options wires a Controller. Actuator, Tracker, Recorder and Echo are optional.
type Options struct {
	Aggregator     *aggregate.Aggregator
	Inputs         *inputs.Store
	Modes          *modes.Manager
	Sink           Sink
	Actuator       Actuator
	Calibration18  calibration.Table
	Calibration19  calibration.Table
	ManualPowerKey string
	Tracker        *status.Tracker
	Recorder       Recorder
	Echo           mqtt.Publisher
	Topics         mqtt.Topics
	Now            func() time.Time
	Logger         *zap.Logger
}

// Controller owns the single evaluation goroutine. Every evaluation and
// command runs on it, so none of the fields below need locking.
type Controller struct {
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	commands chan request
	trigger  chan struct{}

	source18 sourceState
	source19 sourceState

	last    logic.OutputSnapshot
	written bool
	echoed  *modes.State
}

// New validates the sink and returns a controller ready to Run.
func New(opts Options) (*Controller, error) {
	if opts.Aggregator == nil || opts.Inputs == nil || opts.Modes == nil || opts.Sink == nil {
		return nil, fmt.Errorf("controller: aggregator, inputs, modes and sink are required")
	}
	if err := ValidateSink(opts.Sink.Names()); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		opts:     opts,
		logger:   opts.Logger,
		now:      opts.Now,
		commands: make(chan request, 16),
		trigger:  make(chan struct{}, 1),
		source18: sourceState{current: logic.SourceIntake},
		source19: sourceState{current: logic.SourceExhaust},
	}, nil
}

// Run evaluates once and then on every input change, mode change or
// command until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.safely("startup", func() {
		c.echoModes()
		c.evaluate(ctx, "startup")
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.opts.Inputs.Changes():
			c.safely("input", func() { c.evaluate(ctx, "input") })
		case <-c.trigger:
			c.safely("modes", func() {
				c.echoModes()
				c.evaluate(ctx, "modes")
			})
		case req := <-c.commands:
			var err error
			c.safely("command", func() { err = c.handle(req.cmd) })
			req.reply <- err
			if err == nil {
				c.safely("command", func() {
					c.echoModes()
					c.evaluate(ctx, "command")
				})
			}
		}
	}
}

// Trigger requests a re-evaluation, e.g. after a scheduled mode expiry.
// Multiple triggers before the loop wakes collapse into one.
func (c *Controller) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Submit queues cmd and waits for it to be applied.
func (c *Controller) Submit(ctx context.Context, cmd Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case c.commands <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue queues cmd without waiting. It is used from MQTT callbacks,
// which must not block.
func (c *Controller) Enqueue(cmd Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case c.commands <- req:
		go func() {
			if err := <-req.reply; err != nil {
				c.logger.Warn("command rejected", zap.String("command", cmd.Name), zap.String("payload", cmd.Payload), zap.Error(err))
			}
		}()
		return nil
	default:
		return ErrBusy
	}
}

// safely runs fn and recovers a panic so one bad event cannot stop the loop.
func (c *Controller) safely(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("recovered from panic",
				zap.String("event", event),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	fn()
}

func (c *Controller) handle(cmd Command) error {
	now := c.now()
	settings := c.opts.Aggregator.Aggregate(c.opts.Inputs.Snapshot()).Settings()
	manualDur := time.Duration(settings.TemporaryManualModeDurationSec) * time.Second
	boostDur := time.Duration(settings.TemporaryBoostModeDurationSec) * time.Second

	switch cmd.Name {
	case mqtt.CommandManualMode, mqtt.CommandTemporaryManualMode, mqtt.CommandTemporaryBoostMode:
		on, ok := parseSwitch(cmd.Payload)
		if !ok {
			return invalidPayload(cmd.Name, cmd.Payload)
		}
		var changed bool
		switch cmd.Name {
		case mqtt.CommandManualMode:
			changed = c.opts.Modes.SetManualMode(on)
		case mqtt.CommandTemporaryManualMode:
			changed = c.opts.Modes.SetTemporaryManualMode(on, now, manualDur)
		default:
			changed = c.opts.Modes.SetTemporaryBoostMode(on, now, boostDur)
		}
		c.logger.Info("mode command", zap.String("command", cmd.Name), zap.Bool("on", on), zap.Bool("changed", changed))
		return nil

	case mqtt.CommandManualPower:
		p, err := strconv.Atoi(strings.TrimSpace(cmd.Payload))
		if err != nil || p < 0 || p > 100 {
			return invalidPayload(cmd.Name, cmd.Payload)
		}
		if !c.opts.Inputs.Put(c.opts.ManualPowerKey, strconv.Itoa(p), now) {
			return nil
		}
		activated := c.opts.Modes.ManualPowerChanged(now, manualDur)
		c.logger.Info("manual power changed", zap.Int("power", p), zap.Bool("temporary_manual_activated", activated))
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
}

func parseSwitch(s string) (bool, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "TRUE", "1":
		return true, true
	case "OFF", "FALSE", "0":
		return false, true
	}
	return false, false
}

// sourceState is the last valid GpioSource of a channel and the raw value
// last rejected for it.
type sourceState struct {
	current  logic.GpioSource
	rejected string
}

// resolveSource parses a configured GpioSource, keeping the previous valid
// value when the new one is rejected. A rejected value is logged once until
// it changes.
func (c *Controller) resolveSource(channel, raw string, st *sourceState) logic.GpioSource {
	src, err := logic.ParseGpioSource(raw)
	if err != nil {
		if raw != st.rejected {
			c.logger.Warn("gpio source rejected, keeping previous",
				zap.String("channel", channel),
				zap.String("value", raw),
				zap.String("previous", string(st.current)))
			st.rejected = raw
		}
		return st.current
	}
	st.current, st.rejected = src, ""
	return src
}

func (c *Controller) evaluate(ctx context.Context, reason string) {
	_, span := otel.Tracer("controller").Start(ctx, "controller.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("reason", reason))

	now := c.now()
	values := c.opts.Aggregator.Aggregate(c.opts.Inputs.Snapshot())
	settings := values.Settings()
	m := c.opts.Modes.Snapshot()

	in := logic.Input{
		Env: values.Environment(),
		Modes: logic.ControlModes{
			ManualMode:                     m.ManualMode,
			TemporaryManualMode:            m.TemporaryManualMode,
			TemporaryBoostMode:             m.TemporaryBoostMode,
			TemporaryManualModeDurationSec: settings.TemporaryManualModeDurationSec,
			TemporaryBoostModeDurationSec:  settings.TemporaryBoostModeDurationSec,
			TemporaryManualModeOffTime:     m.TemporaryManualModeOffTime,
			TemporaryBoostModeOffTime:      m.TemporaryBoostModeOffTime,
			DualMotorMode:                  settings.DualMotorMode,
			IntakeExhaustRatio:             settings.IntakeExhaustRatio,
			Bypass:                         m.Bypass,
		},
		Thresholds: values.Thresholds(),
		TestOutput: settings.TestOutput,
		Gpio18: logic.Channel{
			Source:      c.resolveSource(logic.FieldGpio18, settings.SourceGpio18, &c.source18),
			Calibration: c.opts.Calibration18,
		},
		Gpio19: logic.Channel{
			Source:      c.resolveSource(logic.FieldGpio19, settings.SourceGpio19, &c.source19),
			Calibration: c.opts.Calibration19,
		},
	}

	out := logic.Evaluate(in)
	_, rule := logic.DecidePower(in.Env, in.Modes, in.Thresholds)

	if out.Bypass != m.Bypass {
		c.opts.Modes.SetBypass(out.Bypass)
		m = c.opts.Modes.Snapshot()
		c.echoModes()
		c.logger.Info("bypass changed", zap.Bool("bypass", out.Bypass))
	}

	span.SetAttributes(
		attribute.String("rule", string(rule)),
		attribute.Int("power", out.Power),
		attribute.Int("gpio18", out.Gpio18),
		attribute.Int("gpio19", out.Gpio19),
		attribute.Bool("bypass", out.Bypass),
	)

	if settings.ControlEnabled && (!c.written || out != c.last) {
		if err := c.write(out); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "output write failed")
			c.logger.Error("output write failed", zap.Error(err))
		} else {
			c.last, c.written = out, true
			c.logger.Info("outputs written",
				zap.String("reason", reason),
				zap.String("rule", string(rule)),
				zap.Int("power", out.Power),
				zap.Int("intake", out.Intake),
				zap.Int("exhaust", out.Exhaust),
				zap.Int("gpio18", out.Gpio18),
				zap.Int("gpio19", out.Gpio19),
				zap.Bool("bypass", out.Bypass))
		}
	}

	if c.opts.Tracker != nil {
		c.opts.Tracker.RecordEvaluation(status.Evaluation{
			At:             now,
			Env:            in.Env,
			Rule:           rule,
			Outputs:        out,
			SourceGpio18:   in.Gpio18.Source,
			SourceGpio19:   in.Gpio19.Source,
			ControlEnabled: settings.ControlEnabled,
		}, m)
	}
	if c.opts.Recorder != nil {
		c.opts.Recorder.RecordOutputs(out, now)
	}
}

// write sends out to the sink, then to the actuator. Actuator failures are
// logged; only a sink failure makes the write retry on the next evaluation.
func (c *Controller) write(out logic.OutputSnapshot) error {
	if err := c.opts.Sink.Write(out.Values()); err != nil {
		return err
	}
	if c.opts.Actuator == nil {
		return nil
	}
	duties := []struct {
		channel string
		duty    int
	}{
		{gpio.ChannelGpio18, out.Gpio18},
		{gpio.ChannelGpio19, out.Gpio19},
	}
	for _, d := range duties {
		if err := c.opts.Actuator.SetDuty(d.channel, d.duty); err != nil {
			c.logger.Error("set duty failed", zap.String("channel", d.channel), zap.Error(err))
		}
	}
	if err := c.opts.Actuator.SetBypass(out.Bypass); err != nil {
		c.logger.Error("set bypass failed", zap.Error(err))
	}
	return nil
}

// echoModes publishes mode flags that changed since the last echo, retained,
// so the panel can show them.
func (c *Controller) echoModes() {
	m := c.opts.Modes.Snapshot()
	if c.opts.Tracker != nil {
		c.opts.Tracker.SetModes(m)
	}
	if c.opts.Echo == nil {
		return
	}
	flags := []struct {
		name   string
		now    bool
		before bool
	}{
		{"manualMode", m.ManualMode, false},
		{"temporaryManualMode", m.TemporaryManualMode, false},
		{"temporaryBoostMode", m.TemporaryBoostMode, false},
		{"bypass", m.Bypass, false},
	}
	if c.echoed != nil {
		flags[0].before = c.echoed.ManualMode
		flags[1].before = c.echoed.TemporaryManualMode
		flags[2].before = c.echoed.TemporaryBoostMode
		flags[3].before = c.echoed.Bypass
	}
	for _, f := range flags {
		if c.echoed != nil && f.now == f.before {
			continue
		}
		if err := c.opts.Echo.Publish(c.opts.Topics.State(f.name), []byte(logic.OnOff(f.now)), true); err != nil {
			c.logger.Warn("mode echo failed", zap.String("mode", f.name), zap.Error(err))
		}
	}
	c.echoed = &m
}
