//go:build linux

package gpio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"github.com/warthog618/go-gpiocdev"
)

const chipName = "gpiochip0"

// RealReader reads inputs from actual hardware using the Linux GPIO character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines map[string]*gpiocdev.Line
}

// NewRealReader requests every input line. Active-low inputs are inverted
// by the kernel so Read always returns the logical state.
func NewRealReader(inputs []Input) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealReader{chip: chip, lines: make(map[string]*gpiocdev.Line)}
	for _, in := range inputs {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
		if in.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
		} else {
			opts = append(opts, gpiocdev.WithPullDown)
		}
		line, err := chip.RequestLine(in.Line, opts...)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", in.Name, in.Line, err)
		}
		r.lines[in.Name] = line
	}
	return r, nil
}

// Read returns the logical state of every input.
func (r *RealReader) Read() (map[string]bool, error) {
	out := make(map[string]bool, len(r.lines))
	for name, line := range r.lines {
		v, err := line.Value()
		if err != nil {
			return nil, fmt.Errorf("read %s pin: %w", name, err)
		}
		out[name] = v == 1
	}
	return out, nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (r *RealReader) Close() error {
	var errs []error
	names := make([]string, 0, len(r.lines))
	for name := range r.lines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		line := r.lines[name]
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealWriter drives the hardware PWM pins through the BCM2835 peripheral
// and the bypass relay through the GPIO character device.
type RealWriter struct {
	mu     sync.Mutex
	pwm    map[string]rpio.Pin
	bypass *gpiocdev.Line
}

// NewRealWriter maps the GPIO memory, puts both PWM pins into PWM mode at
// PWMFrequency with 0% duty and claims the bypass line low.
func NewRealWriter(bypassPin int) (*RealWriter, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}

	w := &RealWriter{pwm: make(map[string]rpio.Pin)}
	for name, bcm := range PWMPins() {
		pin := rpio.Pin(bcm)
		pin.Mode(rpio.Pwm)
		// The PWM clock runs at freq*cycle so one cycle of 100 steps lasts 1/freq.
		pin.Freq(PWMFrequency * 100)
		pin.DutyCycle(0, 100)
		w.pwm[name] = pin
	}

	line, err := gpiocdev.RequestLine(chipName, bypassPin, gpiocdev.AsOutput(0))
	if err != nil {
		rpio.Close()
		return nil, fmt.Errorf("request bypass pin %d: %w", bypassPin, err)
	}
	w.bypass = line
	return w, nil
}

// SetDuty sets the duty cycle of a logical channel, clamped to 0..100.
func (w *RealWriter) SetDuty(channel string, duty int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	pin, ok := w.pwm[channel]
	if !ok {
		return fmt.Errorf("unknown pwm channel %q", channel)
	}
	pin.DutyCycle(uint32(clampDuty(duty)), 100)
	return nil
}

// SetBypass switches the bypass relay.
func (w *RealWriter) SetBypass(on bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := 0
	if on {
		v = 1
	}
	if err := w.bypass.SetValue(v); err != nil {
		return fmt.Errorf("set bypass: %w", err)
	}
	return nil
}

// Close stops both fans, releases the relay and unmaps GPIO memory.
func (w *RealWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for _, pin := range w.pwm {
		pin.DutyCycle(0, 100)
		pin.Output()
		pin.Low()
	}
	if w.bypass != nil {
		if err := w.bypass.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("reset bypass pin: %w", err))
		}
		if err := w.bypass.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure bypass pin: %w", err))
		}
		if err := w.bypass.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bypass pin: %w", err))
		}
	}
	if err := rpio.Close(); err != nil {
		errs = append(errs, fmt.Errorf("unmap gpio memory: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
