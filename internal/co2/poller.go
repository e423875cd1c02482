package co2

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is how often the sensor is polled.
const DefaultInterval = 30 * time.Second

// Reader is satisfied by Sensor.
type Reader interface {
	Read() (Reading, error)
}

// Poller reads the sensor on a fixed interval and hands valid readings to a callback.
type Poller struct {
	reader   Reader
	interval time.Duration
	onRead   func(Reading)
	logger   *zap.Logger
}

// NewPoller creates a poller. A non-positive interval uses DefaultInterval.
func NewPoller(reader Reader, interval time.Duration, onRead func(Reading), logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{reader: reader, interval: interval, onRead: onRead, logger: logger}
}

// Run polls once immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recovered from panic in co2 poll", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	r, err := p.reader.Read()
	if err != nil {
		p.logger.Warn("co2 read failed", zap.Error(err))
		return
	}
	p.logger.Debug("co2 reading", zap.Int("ppm", r.PPM), zap.Int("temperature", r.Temperature))
	p.onRead(r)
}
