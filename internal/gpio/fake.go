package gpio

import (
	"errors"
	"fmt"
	"sync"
)

// FakeReader is a test double that returns scripted input states.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted states. Each call to Read() consumes the
	// next sample; the last one repeats.
	Samples []map[string]bool

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...map[string]bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns a copy of the next scripted sample.
func (f *FakeReader) Read() (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	out := make(map[string]bool, len(sample))
	for k, v := range sample {
		out[k] = v
	}
	return out, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Closed = false
	f.mu.Unlock()
}

// WriteCall records one output change.
type WriteCall struct {
	Channel string // "bypass" for relay calls
	Value   int
}

// FakeWriter records output calls.
type FakeWriter struct {
	mu     sync.Mutex
	calls  []WriteCall
	duty   map[string]int
	bypass bool

	Closed bool
	// WriteError, if set, fails every call.
	WriteError error
}

// NewFakeWriter creates a FakeWriter with both PWM channels at 0.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{duty: map[string]int{ChannelGpio18: 0, ChannelGpio19: 0}}
}

// SetDuty records the call.
func (f *FakeWriter) SetDuty(channel string, duty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	if _, ok := f.duty[channel]; !ok {
		return fmt.Errorf("unknown pwm channel %q", channel)
	}
	duty = clampDuty(duty)
	f.duty[channel] = duty
	f.calls = append(f.calls, WriteCall{Channel: channel, Value: duty})
	return nil
}

// SetBypass records the call.
func (f *FakeWriter) SetBypass(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.bypass = on
	v := 0
	if on {
		v = 1
	}
	f.calls = append(f.calls, WriteCall{Channel: "bypass", Value: v})
	return nil
}

// Close zeroes the outputs and marks the writer closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.duty {
		f.duty[k] = 0
	}
	f.bypass = false
	f.Closed = true
	return nil
}

// Duty returns the current duty of channel.
func (f *FakeWriter) Duty(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duty[channel]
}

// Bypass returns the current relay state.
func (f *FakeWriter) Bypass() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bypass
}

// Calls returns a copy of every recorded call.
func (f *FakeWriter) Calls() []WriteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]WriteCall(nil), f.calls...)
}
