package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const pushAttempts = 3

// Config configures a Pusher.
type Config struct {
	URL          string
	Username     string
	Password     string
	PushInterval time.Duration
	BatchSize    int
	Builder      TimeSeriesBuilder
}

// Pusher periodically drains the buffer and sends it to a remote_write endpoint.
type Pusher struct {
	url          string
	username     string
	password     string
	client       *http.Client
	buffer       *RingBuffer[Sample]
	pushInterval time.Duration
	batchSize    int
	builder      TimeSeriesBuilder
	logger       *zap.Logger

	// backoff is the wait before retry attempt n+1.
	backoff func(attempt int) time.Duration
}

// NewPusher builds a Pusher with an otelhttp-instrumented client.
func NewPusher(cfg Config, buf *RingBuffer[Sample], logger *zap.Logger) *Pusher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 500
	}
	if cfg.Builder == nil {
		cfg.Builder = BuildTimeSeries()
	}
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(string, *http.Request) string {
				return "prometheus.remote_write"
			}),
		),
	}
	return &Pusher{
		url:          cfg.URL,
		username:     cfg.Username,
		password:     cfg.Password,
		client:       client,
		buffer:       buf,
		pushInterval: cfg.PushInterval,
		batchSize:    cfg.BatchSize,
		builder:      cfg.Builder,
		logger:       logger,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<(attempt-1)) * time.Second
		},
	}
}

// Start pushes every interval until ctx is cancelled, then makes one final
// attempt to flush what is left.
func (p *Pusher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pushInterval)
	defer ticker.Stop()

	p.logger.Info("metrics pusher started",
		zap.String("url", p.url),
		zap.Duration("push_interval", p.pushInterval),
		zap.Int("batch_size", p.batchSize))

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.Flush(flushCtx)
			cancel()
			p.logger.Info("metrics pusher stopped")
			return
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush drains the buffer and pushes it in batches. On failure the failed
// batch and everything after it go back into the buffer.
func (p *Pusher) Flush(ctx context.Context) {
	samples := p.buffer.GetAllAndClear()
	if len(samples) == 0 {
		return
	}
	for start := 0; start < len(samples); start += p.batchSize {
		end := min(start+p.batchSize, len(samples))
		if err := p.Push(ctx, samples[start:end]); err != nil {
			p.logger.Error("metrics push failed, re-buffering",
				zap.Error(err),
				zap.Int("samples", len(samples)-start))
			for _, s := range samples[start:] {
				p.buffer.Add(s)
			}
			return
		}
	}
}

// Push sends one batch, retrying with exponential backoff.
func (p *Pusher) Push(ctx context.Context, samples []Sample) error {
	ctx, span := otel.Tracer("metrics").Start(ctx, "metrics.Push",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("metrics.samples", len(samples))))
	defer span.End()

	if len(samples) == 0 {
		return nil
	}

	series, err := p.builder(ctx, samples)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return fmt.Errorf("build time series: %w", err)
	}
	req := &prompb.WriteRequest{Timeseries: series}

	var lastErr error
	for attempt := 1; attempt <= pushAttempts; attempt++ {
		if lastErr = p.pushOnce(ctx, req); lastErr == nil {
			p.logger.Debug("metrics pushed",
				zap.Int("samples", len(samples)),
				zap.Int("series", len(series)),
				zap.Int("attempt", attempt))
			span.SetAttributes(attribute.Int("metrics.successful_attempt", attempt))
			return nil
		}
		p.logger.Warn("metrics push attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < pushAttempts {
			select {
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				span.SetStatus(codes.Error, "cancelled")
				return ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "push failed")
	return fmt.Errorf("push metrics after %d attempts: %w", pushAttempts, lastErr)
}

func (p *Pusher) pushOnce(ctx context.Context, wr *prompb.WriteRequest) error {
	data, err := proto.Marshal(wr)
	if err != nil {
		return fmt.Errorf("marshal write request: %w", err)
	}
	body := snappy.Encode(nil, data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.username != "" {
		req.SetBasicAuth(p.username, p.password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote write returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
