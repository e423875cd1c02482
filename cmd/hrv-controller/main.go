// Command hrv-controller drives a heat recovery ventilation unit from
// aggregated sensor readings and publishes its state to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sweeney/hrv-controller/internal/aggregate"
	"github.com/sweeney/hrv-controller/internal/calibration"
	"github.com/sweeney/hrv-controller/internal/co2"
	"github.com/sweeney/hrv-controller/internal/config"
	"github.com/sweeney/hrv-controller/internal/controller"
	"github.com/sweeney/hrv-controller/internal/current"
	"github.com/sweeney/hrv-controller/internal/gpio"
	"github.com/sweeney/hrv-controller/internal/inputs"
	"github.com/sweeney/hrv-controller/internal/logic"
	"github.com/sweeney/hrv-controller/internal/metrics"
	"github.com/sweeney/hrv-controller/internal/modes"
	"github.com/sweeney/hrv-controller/internal/mqtt"
	"github.com/sweeney/hrv-controller/internal/onewire"
	"github.com/sweeney/hrv-controller/internal/status"
	"github.com/sweeney/hrv-controller/internal/telemetry"
	"github.com/sweeney/hrv-controller/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML configuration file")
	printState := flag.Bool("print-state", false, "Print the digital input states and exit")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if *printState {
		if err := printInputs(cfg); err != nil {
			logger.Fatal("print state failed", zap.Error(err))
		}
		return
	}

	logger.Info("starting hrv-controller", zap.String("version", version))
	cfg.PrintConfig(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func printInputs(cfg *config.Config) error {
	if cfg.GPIO.Disabled || len(cfg.GPIO.Inputs) == 0 {
		return errors.New("no digital inputs configured")
	}
	reader, err := gpio.NewRealReader(cfg.GPIOInputs())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	values, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, logic.OnOff(values[name]))
	}
	return nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracing, err := telemetry.Init(ctx, cfg.TracingConfig(version), logger.Named("telemetry"))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	profiler, err := telemetry.StartProfiler(cfg.ProfilingSettings(), logger.Named("profiling"))
	if err != nil {
		return fmt.Errorf("start profiler: %w", err)
	}
	defer profiler.Stop() //nolint:errcheck

	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
	agg, err := aggregate.New(cfg.Bindings(topics))
	if err != nil {
		return fmt.Errorf("build aggregation table: %w", err)
	}
	store := inputs.NewStore()
	manager := modes.NewManager(modes.NewFileStore(cfg.State.File), logger.Named("modes"))

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:         cfg.MQTT.Broker,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
		HTTPAddr:       httpAddr(cfg),
		StateFile:      cfg.State.File,
		HeartbeatMs:    cfg.Heartbeat.Milliseconds(),
		CurrentEnabled: cfg.Current.Enabled,
		CO2Enabled:     cfg.CO2.Enabled,
	})
	tracker.SetModes(manager.Snapshot())

	client, err := mqtt.NewRealClient(cfg.MQTTOptions(), logger.Named("mqtt"))
	if err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	defer client.Close()

	var actuator controller.Actuator
	var reader gpio.Reader
	if !cfg.GPIO.Disabled {
		writer, err := gpio.NewRealWriter(cfg.GPIO.BypassPin)
		if err != nil {
			return fmt.Errorf("init gpio outputs: %w", err)
		}
		defer writer.Close()
		actuator = writer

		if len(cfg.GPIO.Inputs) > 0 {
			r, err := gpio.NewRealReader(cfg.GPIOInputs())
			if err != nil {
				return fmt.Errorf("init gpio inputs: %w", err)
			}
			defer r.Close()
			reader = r
		}
	}

	var recorder *metrics.Recorder
	if cfg.Prometheus.Enabled {
		buf := metrics.NewRingBuffer[metrics.Sample](cfg.Prometheus.BufferSize, logger.Named("metrics"))
		recorder = metrics.NewRecorder(buf)
		pusher := metrics.NewPusher(cfg.MetricsConfig(), buf, logger.Named("metrics"))
		pushDone := make(chan struct{})
		go func() {
			defer close(pushDone)
			pusher.Start(ctx)
		}()
		// Wait for the final flush after cancel.
		defer func() { <-pushDone }()
		defer cancel()
	}

	ctrl, err := controller.New(controller.Options{
		Aggregator:     agg,
		Inputs:         store,
		Modes:          manager,
		Sink:           mqtt.NewSink(client, cfg.OutputTopics(topics)),
		Actuator:       actuator,
		Calibration18:  calibration.ParseOrEmpty("gpio18", []byte(cfg.Calibration.Gpio18), logger),
		Calibration19:  calibration.ParseOrEmpty("gpio19", []byte(cfg.Calibration.Gpio19), logger),
		ManualPowerKey: cfg.ManualPowerKey(topics),
		Tracker:        tracker,
		Recorder:       recorder,
		Echo:           client,
		Topics:         topics,
		Logger:         logger.Named("controller"),
	})
	if err != nil {
		return err
	}

	sources := make(map[string]bool)
	for _, src := range agg.Sources() {
		sources[src] = true
	}
	f := &feeds{
		pub:      client,
		store:    store,
		sources:  sources,
		tracker:  tracker,
		recorder: recorder,
		topics:   topics,
		logger:   logger,
	}
	if err := subscribe(client, agg, localSources(cfg, topics), store, ctrl, topics, logger.Named("mqtt")); err != nil {
		return err
	}

	go ctrl.Run(ctx)

	scheduler, err := modes.NewScheduler(manager, time.Now, ctrl.Trigger, logger.Named("modes"))
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Current.Enabled {
		adc, err := current.NewADS1256(cfg.Current.Gain, cfg.Current.DataRate)
		if err != nil {
			return fmt.Errorf("init current sensor adc: %w", err)
		}
		defer adc.Close()
		pipeline, err := current.NewPipeline(adc, cfg.CurrentChannels(), cfg.CurrentDSP(), f.current, logger.Named("current"))
		if err != nil {
			return err
		}
		go pipeline.Run(ctx)
	}

	if cfg.CO2.Enabled {
		sensor, err := co2.Open(cfg.CO2.Device)
		if err != nil {
			return fmt.Errorf("open co2 sensor: %w", err)
		}
		defer sensor.Close()
		go co2.NewPoller(sensor, cfg.CO2.Interval, f.co2, logger.Named("co2")).Run(ctx)
	}

	if cfg.OneWire.Enabled {
		bus := onewire.NewBus(cfg.OneWire.Path, logger.Named("onewire"))
		sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := sched.AddFunc(fmt.Sprintf("@every %s", cfg.OneWire.Interval), func() {
			f.temperatures(bus.ReadAll())
		}); err != nil {
			return fmt.Errorf("schedule 1-wire reads: %w", err)
		}
		f.temperatures(bus.ReadAll())
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startup); err != nil {
		logger.Warn("failed to publish startup event", zap.Error(err))
	} else {
		logger.Info("published startup event")
	}

	if !cfg.HTTP.Disabled {
		srv := web.New(cfg.HTTP.Addr, tracker, store, ctrl, logger.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background()) //nolint:errcheck
		logger.Info("http status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	logger.Info("started",
		zap.Duration("poll", cfg.GPIO.Poll),
		zap.Duration("debounce", cfg.GPIO.Debounce),
		zap.Duration("heartbeat", cfg.Heartbeat),
		zap.Int("sources", len(agg.Sources())))

	ticker := time.NewTicker(cfg.GPIO.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := loop{
		reader:    reader,
		debouncer: logic.NewDebouncer(cfg.GPIO.Debounce, cfg.GPIOInputNames()),
		feeds:     f,
		system:    client,
		conn:      client,
		heartbeat: cfg.Heartbeat,
		logger:    logger,
	}
	return runLoop(l, time.Now, ticker.C, sigCh)
}

func httpAddr(cfg *config.Config) string {
	if cfg.HTTP.Disabled {
		return ""
	}
	return cfg.HTTP.Addr
}

// localSources lists the raw keys this process fills itself. They are not
// subscribed to, so retained values from an earlier run cannot overwrite
// fresh local readings.
func localSources(cfg *config.Config, topics mqtt.Topics) map[string]bool {
	local := map[string]bool{cfg.ManualPowerKey(topics): true}
	if cfg.CO2.Enabled {
		local[topics.CO2()] = true
	}
	for _, in := range cfg.GPIO.Inputs {
		local[topics.Gpio(in.Name)] = true
	}
	if cfg.OneWire.Enabled {
		for id := range cfg.OneWire.Sensors {
			local[topics.OneWire(id)] = true
		}
	}
	return local
}

// enqueuer is satisfied by *controller.Controller.
type enqueuer interface {
	Enqueue(cmd controller.Command) error
}

// subscribe routes raw source topics into the input store and command
// topics to the controller.
func subscribe(client mqtt.Client, agg *aggregate.Aggregator, local map[string]bool, store *inputs.Store, ctrl enqueuer, topics mqtt.Topics, logger *zap.Logger) error {
	for _, src := range agg.Sources() {
		if local[src] {
			continue
		}
		if err := client.Subscribe(src, func(topic string, payload []byte) {
			if store.Put(topic, string(payload), time.Now()) {
				logger.Debug("input changed", zap.String("topic", topic), zap.ByteString("value", payload))
			}
		}); err != nil {
			return fmt.Errorf("subscribe %s: %w", src, err)
		}
	}

	return client.Subscribe(topics.Commands(), func(topic string, payload []byte) {
		name, ok := topics.ParseCommand(topic)
		if !ok {
			logger.Warn("ignoring unknown command", zap.String("topic", topic))
			return
		}
		if err := ctrl.Enqueue(controller.Command{Name: name, Payload: string(payload)}); err != nil {
			logger.Warn("command dropped", zap.String("command", name), zap.Error(err))
		}
	})
}
