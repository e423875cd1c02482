package current

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.MeasurementWindow = 10 * time.Millisecond // 20 samples
	cfg.PublishWindow = 50 * time.Millisecond     // 5 measurements
	return cfg
}

func TestNewPipelineValidatesChannels(t *testing.T) {
	tests := []struct {
		name     string
		channels []ChannelConfig
	}{
		{"missing name", []ChannelConfig{{Index: 0, Factor: 1}}},
		{"duplicate name", []ChannelConfig{{Index: 0, Name: "a", Factor: 1}, {Index: 1, Name: "a", Factor: 1}}},
		{"zero factor", []ChannelConfig{{Index: 0, Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipeline(NewFakeSampler(), tt.channels, DefaultConfig(), func(Publish) {}, zap.NewNop())
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPipelinePublishesPerChannel(t *testing.T) {
	cfg := fastConfig()
	sampler := NewFakeSampler()
	sampler.SetSamples(0, SquareWave(cfg.SamplesPerMeasurement(), 2.5, 0.1))
	sampler.SetSamples(1, SquareWave(cfg.SamplesPerMeasurement(), 2.5, 0.2))

	var mu sync.Mutex
	got := make(map[string]int)
	done := make(chan struct{})
	publish := func(p Publish) {
		mu.Lock()
		defer mu.Unlock()
		if _, seen := got[p.Channel]; seen {
			return
		}
		got[p.Channel] = p.Watts
		if len(got) == 2 {
			close(done)
		}
	}

	p, err := NewPipeline(sampler, []ChannelConfig{
		{Index: 0, Name: "supply", Factor: 1},
		{Index: 1, Name: "heater", Factor: 1},
	}, cfg, publish, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for readings")
	}
	cancel()
	<-stopped

	mu.Lock()
	defer mu.Unlock()
	if got["supply"] != 115 {
		t.Errorf("supply: got %d, want 115", got["supply"])
	}
	if got["heater"] != 230 {
		t.Errorf("heater: got %d, want 230", got["heater"])
	}
}

type panicSampler struct{}

func (panicSampler) ReadVoltage(int) (float64, error) { panic("spi gone") }

func TestSampleOnceRecoversPanic(t *testing.T) {
	p, err := NewPipeline(panicSampler{}, nil, DefaultConfig(), func(Publish) {}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	r := NewReading("x", 1, DefaultConfig())
	if err := p.sampleOnce(r, ChannelConfig{Index: 2, Name: "x", Factor: 1}); err == nil {
		t.Error("expected panic to surface as error")
	}
}

func TestSampleOnceReturnsReadError(t *testing.T) {
	s := NewFakeSampler()
	s.ReadError = errors.New("timeout")
	p, _ := NewPipeline(s, nil, DefaultConfig(), func(Publish) {}, zap.NewNop())
	r := NewReading("x", 1, DefaultConfig())
	if err := p.sampleOnce(r, ChannelConfig{Index: 0, Name: "x", Factor: 1}); err == nil {
		t.Error("expected read error")
	}
}
