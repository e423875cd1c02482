package current

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sampler reads one voltage from an ADC input.
type Sampler interface {
	ReadVoltage(channel int) (float64, error)
}

// ChannelConfig describes one clamp sensor.
type ChannelConfig struct {
	Index  int     // ADC input
	Name   string  // reading name, used in topics and metrics
	Factor float64 // calibration multiplier
}

// Publisher receives readings due for publishing. It is called from the
// channel goroutines and must be safe for concurrent use.
type Publisher func(Publish)

// errorLogEvery rate-limits repeated read errors per channel.
const errorLogEvery = 1000

// Pipeline samples every configured channel and publishes conditioned readings.
type Pipeline struct {
	sampler  Sampler
	channels []ChannelConfig
	cfg      Config
	publish  Publisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewPipeline validates channels and returns a pipeline ready to Run.
func NewPipeline(sampler Sampler, channels []ChannelConfig, cfg Config, publish Publisher, logger *zap.Logger) (*Pipeline, error) {
	seen := make(map[string]bool)
	for _, ch := range channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("current channel %d has no name", ch.Index)
		}
		if seen[ch.Name] {
			return nil, fmt.Errorf("duplicate current channel name %q", ch.Name)
		}
		seen[ch.Name] = true
		if ch.Factor <= 0 {
			return nil, fmt.Errorf("current channel %s: factor must be positive, got %v", ch.Name, ch.Factor)
		}
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("current sample rate must be positive, got %d", cfg.SampleRate)
	}
	return &Pipeline{
		sampler:  sampler,
		channels: channels,
		cfg:      cfg,
		publish:  publish,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run samples until ctx is cancelled. It blocks until every channel
// goroutine has returned.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ch := range p.channels {
		wg.Add(1)
		go func(ch ChannelConfig) {
			defer wg.Done()
			p.runChannel(ctx, ch)
		}(ch)
	}
	wg.Wait()
}

func (p *Pipeline) runChannel(ctx context.Context, ch ChannelConfig) {
	reading := NewReading(ch.Name, ch.Factor, p.cfg)
	log := p.logger.With(zap.String("channel", ch.Name), zap.Int("input", ch.Index))
	log.Info("current channel started",
		zap.Int("samples_per_measurement", p.cfg.SamplesPerMeasurement()),
		zap.Int("measurements_per_publish", p.cfg.MeasurementsPerPublish()))

	ticker := time.NewTicker(p.cfg.SampleInterval())
	defer ticker.Stop()

	var errCount int
	for {
		select {
		case <-ctx.Done():
			log.Info("current channel stopped")
			return
		case <-ticker.C:
			if err := p.sampleOnce(reading, ch); err != nil {
				errCount++
				if errCount%errorLogEvery == 1 {
					log.Warn("current sample failed", zap.Error(err), zap.Int("errors", errCount))
				}
			}
		}
	}
}

// sampleOnce reads and processes one sample, converting a panic in the
// driver into an error so one bad channel cannot stop the others.
func (p *Pipeline) sampleOnce(reading *Reading, ch ChannelConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reading channel %d: %v", ch.Index, r)
		}
	}()

	v, err := p.sampler.ReadVoltage(ch.Index)
	if err != nil {
		return err
	}
	if pub, ok := reading.AddSample(v, p.now()); ok {
		p.publish(pub)
	}
	return nil
}
