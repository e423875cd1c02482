package current

import (
	"errors"
	"sync"
)

// FakeSampler is a test double returning scripted voltages per channel.
// Each channel cycles through its samples.
type FakeSampler struct {
	mu      sync.Mutex
	samples map[int][]float64
	index   map[int]int
	// ReadError, if set, is returned by every read.
	ReadError error
	Closed    bool
}

// NewFakeSampler creates a FakeSampler with no channels configured.
func NewFakeSampler() *FakeSampler {
	return &FakeSampler{samples: make(map[int][]float64), index: make(map[int]int)}
}

// SetSamples replaces the waveform of channel.
func (f *FakeSampler) SetSamples(channel int, samples []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[channel] = append([]float64(nil), samples...)
	f.index[channel] = 0
}

// ReadVoltage returns the next scripted sample of channel.
func (f *FakeSampler) ReadVoltage(channel int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	s := f.samples[channel]
	if len(s) == 0 {
		return 0, errors.New("no samples configured")
	}
	i := f.index[channel]
	f.index[channel] = (i + 1) % len(s)
	return s[i], nil
}

// Close marks the sampler as closed.
func (f *FakeSampler) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// SquareWave returns n samples alternating between bias+amplitude and
// bias-amplitude. Its AC RMS equals amplitude.
func SquareWave(n int, bias, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = bias + amplitude
		} else {
			out[i] = bias - amplitude
		}
	}
	return out
}
