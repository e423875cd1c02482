package main

import (
	"os"
	"sort"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/hrv-controller/internal/co2"
	"github.com/sweeney/hrv-controller/internal/current"
	"github.com/sweeney/hrv-controller/internal/gpio"
	"github.com/sweeney/hrv-controller/internal/inputs"
	"github.com/sweeney/hrv-controller/internal/logic"
	"github.com/sweeney/hrv-controller/internal/metrics"
	"github.com/sweeney/hrv-controller/internal/mqtt"
	"github.com/sweeney/hrv-controller/internal/status"
)

// feeds hands local sensor readings to the broker, the input store, the
// status tracker and the metrics recorder. Only readings whose topic is in
// sources reach the store, so a reading no field aggregates never wakes
// the controller.
type feeds struct {
	pub      mqtt.Publisher
	store    *inputs.Store
	sources  map[string]bool
	tracker  *status.Tracker
	recorder *metrics.Recorder
	topics   mqtt.Topics
	logger   *zap.Logger
}

func (f *feeds) publish(topic, payload string, at time.Time) {
	if f.sources[topic] {
		f.store.Put(topic, payload, at)
	}
	if err := f.pub.Publish(topic, []byte(payload), true); err != nil {
		f.logger.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (f *feeds) current(p current.Publish) {
	f.logger.Debug("current reading",
		zap.String("channel", p.Channel),
		zap.Int("watts", p.Watts),
		zap.String("reason", p.Reason))
	f.publish(f.topics.Current(p.Channel), strconv.Itoa(p.Watts), p.Time)
	f.tracker.SetCurrent(p.Channel, p.Watts)
	f.recorder.RecordCurrent(p)
}

func (f *feeds) co2(r co2.Reading) {
	now := time.Now()
	f.publish(f.topics.CO2(), strconv.Itoa(r.PPM), now)
	f.publish(f.topics.CO2Temperature(), strconv.Itoa(r.Temperature), now)
	f.tracker.SetCO2(r.PPM, r.Temperature, now)
	f.recorder.RecordCO2(r.PPM, r.Temperature, now)
}

func (f *feeds) temperatures(readings map[string]float64) {
	ids := make([]string, 0, len(readings))
	for id := range readings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now()
	for _, id := range ids {
		c := readings[id]
		f.publish(f.topics.OneWire(id), strconv.FormatFloat(c, 'f', 1, 64), now)
		f.tracker.SetTemperature(id, c)
	}
}

func (f *feeds) digital(tr logic.Transition, baselined bool) {
	f.logger.Info("digital input",
		zap.String("input", tr.Channel),
		zap.String("state", string(tr.State)),
		zap.Bool("baseline", tr.Baseline))
	f.publish(f.topics.Gpio(tr.Channel), string(tr.State), tr.Timestamp)
	f.tracker.SetDigital(tr.Channel, tr.State, baselined)
}

// loop holds what runLoop needs. reader is nil when no digital inputs are
// configured; the loop then only emits heartbeats.
type loop struct {
	reader    gpio.Reader
	debouncer *logic.Debouncer
	feeds     *feeds
	system    mqtt.Publisher
	conn      mqtt.ConnectionStatus
	heartbeat time.Duration
	logger    *zap.Logger
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func (l loop) refreshConnection() {
	if l.conn != nil {
		l.feeds.tracker.SetMQTTConnected(l.conn.IsConnected())
	}
}

func runLoop(l loop, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := logic.NewHeartbeat(now())
	tracker := l.feeds.tracker

	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			l.logger.Info("shutting down", zap.String("signal", reason))
			l.refreshConnection()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason),
			}
			if err := l.system.PublishSystem(event); err != nil {
				l.logger.Warn("failed to publish shutdown event", zap.Error(err))
			} else {
				l.logger.Info("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			if l.reader != nil {
				values, err := l.reader.Read()
				if err != nil {
					l.logger.Warn("gpio read error", zap.Error(err))
				} else {
					for _, tr := range l.debouncer.Process(values, t) {
						l.feeds.digital(tr, l.debouncer.IsBaselined())
					}
				}
			}

			l.refreshConnection()

			if data := hb.Check(t, l.heartbeat); data != nil {
				snap := tracker.Snapshot()
				l.logger.Info("heartbeat",
					zap.Duration("uptime", data.Uptime),
					zap.Int("evaluations", snap.Evaluations),
					zap.Bool("mqtt_connected", snap.MQTTConnected))
				event := mqtt.SystemEvent{
					Timestamp:  data.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := l.system.PublishSystem(event); err != nil {
					l.logger.Warn("heartbeat publish error", zap.Error(err))
				}
			}
		}
	}
}
