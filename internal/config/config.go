// Package config loads the daemon configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	"github.com/sweeney/hrv-controller/internal/aggregate"
	"github.com/sweeney/hrv-controller/internal/current"
	"github.com/sweeney/hrv-controller/internal/gpio"
	"github.com/sweeney/hrv-controller/internal/logic"
	"github.com/sweeney/hrv-controller/internal/metrics"
	"github.com/sweeney/hrv-controller/internal/mqtt"
	"github.com/sweeney/hrv-controller/internal/telemetry"
)

// DefaultPath is used when no -config flag is given.
const DefaultPath = "/etc/hrv-controller/config.yaml"

// Config is the complete daemon configuration.
type Config struct {
	Logging     LoggingConfig          `yaml:"logging"`
	MQTT        MQTTConfig             `yaml:"mqtt"`
	HTTP        HTTPConfig             `yaml:"http"`
	State       StateConfig            `yaml:"state"`
	Heartbeat   time.Duration          `yaml:"heartbeat" env:"HEARTBEAT" env-default:"15m"`
	Fields      map[string]FieldConfig `yaml:"fields"`
	Outputs     map[string]string      `yaml:"outputs"`
	Calibration CalibrationConfig      `yaml:"calibration"`
	GPIO        GPIOConfig             `yaml:"gpio"`
	Current     CurrentConfig          `yaml:"current"`
	CO2         CO2Config              `yaml:"co2"`
	OneWire     OneWireConfig          `yaml:"onewire"`
	Prometheus  PrometheusConfig       `yaml:"prometheus"`
	Telemetry   TelemetryConfig        `yaml:"telemetry"`
	Profiling   ProfilingConfig        `yaml:"profiling"`
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker      string `yaml:"broker" env:"MQTT_BROKER" env-default:"tcp://localhost:1883"`
	ClientID    string `yaml:"clientId" env:"MQTT_CLIENT_ID" env-default:"hrv-controller"`
	Username    string `yaml:"username" env:"MQTT_USERNAME"`
	Password    string `yaml:"password" env:"MQTT_PASSWORD"`
	TopicPrefix string `yaml:"topicPrefix" env:"MQTT_TOPIC_PREFIX" env-default:"hrv"`
	QoS         int    `yaml:"qos" env:"MQTT_QOS" env-default:"1"`
	BufferSize  int    `yaml:"bufferSize" env:"MQTT_BUFFER_SIZE" env-default:"1000"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Disabled bool   `yaml:"disabled" env:"HTTP_DISABLED"`
	Addr     string `yaml:"addr" env:"HTTP_ADDR" env-default:":80"`
}

// StateConfig locates the persisted mode state.
type StateConfig struct {
	File string `yaml:"file" env:"STATE_FILE" env-default:"/var/lib/hrv-controller/state.yaml"`
}

// FieldConfig binds one canonical field to its raw sources.
type FieldConfig struct {
	Sources     []string `yaml:"sources"`
	Aggregation string   `yaml:"aggregation"`
	Default     string   `yaml:"default"`
}

// CalibrationConfig holds the duty to voltage tables in their JSON form.
type CalibrationConfig struct {
	Gpio18 string `yaml:"gpio18" env:"CALIBRATION_GPIO18"`
	Gpio19 string `yaml:"gpio19" env:"CALIBRATION_GPIO19"`
}

// GPIOConfig configures the PWM outputs, the bypass relay and the digital
// inputs. Disabled runs without touching hardware, outputs go to MQTT only.
type GPIOConfig struct {
	Disabled  bool              `yaml:"disabled" env:"GPIO_DISABLED"`
	BypassPin int               `yaml:"bypassPin" env:"GPIO_BYPASS_PIN" env-default:"5"`
	Debounce  time.Duration     `yaml:"debounce" env:"GPIO_DEBOUNCE" env-default:"250ms"`
	Poll      time.Duration     `yaml:"poll" env:"GPIO_POLL" env-default:"100ms"`
	Inputs    []GPIOInputConfig `yaml:"inputs"`
}

// GPIOInputConfig is one digital input. Field, when set, names the
// canonical field the debounced state feeds.
type GPIOInputConfig struct {
	Name      string `yaml:"name"`
	Pin       int    `yaml:"pin"`
	ActiveLow bool   `yaml:"activeLow"`
	Field     string `yaml:"field"`
}

// CurrentConfig configures the clamp sensor pipeline.
type CurrentConfig struct {
	Enabled           bool            `yaml:"enabled" env:"CURRENT_ENABLED" env-default:"false"`
	SampleRate        int             `yaml:"sampleRate" env-default:"2000"`
	MeasurementWindow time.Duration   `yaml:"measurementWindow" env-default:"200ms"`
	PublishWindow     time.Duration   `yaml:"publishWindow" env-default:"1s"`
	Heartbeat         time.Duration   `yaml:"heartbeat" env-default:"60s"`
	NoiseFloor        float64         `yaml:"noiseFloor" env-default:"3"`
	Ceiling           float64         `yaml:"ceiling" env-default:"500"`
	Alpha             float64         `yaml:"alpha" env-default:"0.3"`
	StepThreshold     float64         `yaml:"stepThreshold" env-default:"50"`
	MainsVoltage      float64         `yaml:"mainsVoltage" env-default:"230"`
	AmpsPerVolt       float64         `yaml:"ampsPerVolt" env-default:"5"`
	Gain              int             `yaml:"gain" env-default:"1"`
	DataRate          int             `yaml:"dataRate" env-default:"3750"`
	Channels          []ChannelConfig `yaml:"channels"`
}

// ChannelConfig is one clamp sensor on the ADC.
type ChannelConfig struct {
	Index  int     `yaml:"index"`
	Name   string  `yaml:"name"`
	Factor float64 `yaml:"factor"`
}

// CO2Config configures the UART CO2 sensor.
type CO2Config struct {
	Enabled  bool          `yaml:"enabled" env:"CO2_ENABLED" env-default:"false"`
	Device   string        `yaml:"device" env:"CO2_DEVICE" env-default:"/dev/serial0"`
	Interval time.Duration `yaml:"interval" env:"CO2_INTERVAL" env-default:"30s"`
}

// OneWireConfig configures the DS18B20 bus. Sensors maps a device id to
// the canonical field it feeds; unmapped devices are still published.
type OneWireConfig struct {
	Enabled  bool              `yaml:"enabled" env:"ONEWIRE_ENABLED" env-default:"false"`
	Path     string            `yaml:"path" env:"ONEWIRE_PATH" env-default:"/sys/bus/w1/devices"`
	Interval time.Duration     `yaml:"interval" env:"ONEWIRE_INTERVAL" env-default:"30s"`
	Sensors  map[string]string `yaml:"sensors"`
}

// PrometheusConfig configures the remote_write pusher.
type PrometheusConfig struct {
	Enabled      bool          `yaml:"enabled" env:"PROMETHEUS_ENABLED" env-default:"false"`
	URL          string        `yaml:"url" env:"PROMETHEUS_URL"`
	Username     string        `yaml:"username" env:"PROMETHEUS_USERNAME"`
	Password     string        `yaml:"password" env:"PROMETHEUS_PASSWORD"`
	Instance     string        `yaml:"instance" env:"PROMETHEUS_INSTANCE" env-default:"hrv"`
	PushInterval time.Duration `yaml:"pushInterval" env:"PROMETHEUS_PUSH_INTERVAL" env-default:"15s"`
	BufferSize   int           `yaml:"bufferSize" env:"PROMETHEUS_BUFFER_SIZE" env-default:"5000"`
	BatchSize    int           `yaml:"batchSize" env:"PROMETHEUS_BATCH_SIZE" env-default:"500"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled       bool              `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	Endpoint      string            `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName   string            `yaml:"serviceName" env:"OTEL_SERVICE_NAME" env-default:"hrv-controller"`
	SamplingRatio float64           `yaml:"samplingRatio" env:"OTEL_TRACES_SAMPLING_RATIO" env-default:"1.0"`
	Headers       map[string]string `yaml:"headers"`
}

// ProfilingConfig configures the Pyroscope profiler.
type ProfilingConfig struct {
	Enabled           bool              `yaml:"enabled" env:"PYROSCOPE_ENABLED" env-default:"false"`
	ServerAddress     string            `yaml:"serverAddress" env:"PYROSCOPE_SERVER_ADDRESS"`
	ApplicationName   string            `yaml:"applicationName" env:"PYROSCOPE_APPLICATION_NAME" env-default:"hrv-controller"`
	BasicAuthUser     string            `yaml:"basicAuthUser" env:"PYROSCOPE_BASIC_AUTH_USER"`
	BasicAuthPassword string            `yaml:"basicAuthPassword" env:"PYROSCOPE_BASIC_AUTH_PASSWORD"`
	Tags              map[string]string `yaml:"tags"`
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration and normalises logging settings.
// Calibration tables are not checked here; a malformed table is replaced by
// linear output with a warning when the controller is built.
func (c *Config) Validate() error {
	if err := ValidateLogging(&c.Logging); err != nil {
		return err
	}

	if c.MQTT.Broker == "" {
		return errors.New("mqtt broker is required")
	}
	if c.MQTT.TopicPrefix == "" {
		return errors.New("mqtt topicPrefix is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Heartbeat < 0 {
		return errors.New("heartbeat must not be negative")
	}

	if _, err := aggregate.New(c.Bindings(mqtt.Topics{Prefix: c.MQTT.TopicPrefix})); err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	if err := c.validateThresholds(); err != nil {
		return err
	}
	for name, f := range c.Fields {
		isSource := name == aggregate.SourceGpio18 || name == aggregate.SourceGpio19
		if !isSource || f.Default == "" {
			continue
		}
		if _, err := logic.ParseGpioSource(f.Default); err != nil {
			return fmt.Errorf("fields.%s: %w", name, err)
		}
	}

	if err := validateOutputs(c.Outputs); err != nil {
		return err
	}

	if !c.GPIO.Disabled && c.GPIO.Poll <= 0 {
		return errors.New("gpio poll interval must be positive")
	}
	seen := make(map[string]bool)
	for i, in := range c.GPIO.Inputs {
		if in.Name == "" {
			return fmt.Errorf("gpio input %d: name is required", i)
		}
		if seen[in.Name] {
			return fmt.Errorf("gpio input %s: duplicate name", in.Name)
		}
		seen[in.Name] = true
		if in.Field != "" {
			if _, ok := aggregate.Lookup(in.Field); !ok {
				return fmt.Errorf("gpio input %s: unknown field %q", in.Name, in.Field)
			}
		}
	}

	if c.Current.Enabled {
		if len(c.Current.Channels) == 0 {
			return errors.New("current sensing enabled but no channels configured")
		}
		cc := c.CurrentDSP()
		if cc.MeasurementWindow <= 0 || cc.PublishWindow < cc.MeasurementWindow || cc.SampleRate <= 0 {
			return errors.New("current: sampleRate and windows must be positive, publishWindow >= measurementWindow")
		}
	}
	if c.CO2.Enabled && c.CO2.Interval <= 0 {
		return errors.New("co2 interval must be positive")
	}
	if c.OneWire.Enabled && c.OneWire.Interval <= 0 {
		return errors.New("onewire interval must be positive")
	}
	for id, field := range c.OneWire.Sensors {
		if _, ok := aggregate.Lookup(field); !ok {
			return fmt.Errorf("onewire sensor %s: unknown field %q", id, field)
		}
	}

	if c.Prometheus.Enabled {
		if c.Prometheus.URL == "" {
			return errors.New("prometheus url is required when enabled")
		}
		if c.Prometheus.PushInterval <= 0 || c.Prometheus.BufferSize < 1 || c.Prometheus.BatchSize < 1 {
			return errors.New("prometheus pushInterval, bufferSize and batchSize must be positive")
		}
	}
	if c.Telemetry.Enabled && (c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1) {
		return fmt.Errorf("telemetry samplingRatio must be within 0..1, got %v", c.Telemetry.SamplingRatio)
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return errors.New("profiling serverAddress is required when enabled")
	}
	return nil
}

// validateThresholds checks co2ThresholdLow < Mid < High over the
// effective defaults.
func (c *Config) validateThresholds() error {
	level := func(name string) (float64, error) {
		f, _ := aggregate.Lookup(name)
		d := f.Default.Num
		if fc, ok := c.Fields[name]; ok && fc.Default != "" {
			if _, err := fmt.Sscanf(fc.Default, "%g", &d); err != nil {
				return 0, fmt.Errorf("fields.%s: invalid default %q", name, fc.Default)
			}
		}
		return d, nil
	}
	low, err := level(aggregate.CO2ThresholdLow)
	if err != nil {
		return err
	}
	mid, err := level(aggregate.CO2ThresholdMid)
	if err != nil {
		return err
	}
	high, err := level(aggregate.CO2ThresholdHigh)
	if err != nil {
		return err
	}
	if !(low < mid && mid < high) {
		return fmt.Errorf("co2 thresholds must satisfy low < mid < high, got %v/%v/%v", low, mid, high)
	}
	return nil
}

func validateOutputs(outputs map[string]string) error {
	if len(outputs) == 0 {
		return nil
	}
	known := make(map[string]bool, len(logic.OutputFields))
	for _, f := range logic.OutputFields {
		known[f] = true
	}
	for name, topic := range outputs {
		if !known[name] {
			return fmt.Errorf("outputs: unknown output %q", name)
		}
		if topic == "" {
			return fmt.Errorf("outputs.%s: topic is required", name)
		}
	}
	return nil
}

// Bindings returns the aggregation table. Local sensors are added as
// sources of the fields they are configured to feed, and the manualPower
// command topic always feeds manualPower.
func (c *Config) Bindings(topics mqtt.Topics) map[string]aggregate.Binding {
	out := make(map[string]aggregate.Binding, len(c.Fields))
	for name, f := range c.Fields {
		out[name] = aggregate.Binding{
			Sources: append([]string(nil), f.Sources...),
			Kind:    f.Aggregation,
			Default: f.Default,
		}
	}
	add := func(field, source string) {
		b := out[field]
		for _, s := range b.Sources {
			if s == source {
				return
			}
		}
		b.Sources = append(b.Sources, source)
		out[field] = b
	}

	add(aggregate.ManualPower, c.ManualPowerKey(topics))
	if c.CO2.Enabled {
		add(aggregate.CO2, topics.CO2())
	}
	for _, in := range c.GPIO.Inputs {
		if in.Field != "" {
			add(in.Field, topics.Gpio(in.Name))
		}
	}
	ids := make([]string, 0, len(c.OneWire.Sensors))
	for id := range c.OneWire.Sensors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		add(c.OneWire.Sensors[id], topics.OneWire(id))
	}
	return out
}

// ManualPowerKey is the raw input key a manualPower command is stored under.
func (c *Config) ManualPowerKey(topics mqtt.Topics) string {
	return topics.Command(mqtt.CommandManualPower)
}

// OutputTopics returns the sink table, filling every unset output with
// {prefix}/output/{field}.
func (c *Config) OutputTopics(topics mqtt.Topics) map[string]string {
	out := make(map[string]string, len(logic.OutputFields))
	for _, f := range logic.OutputFields {
		if t, ok := c.Outputs[f]; ok {
			out[f] = t
			continue
		}
		out[f] = strings.TrimSuffix(topics.Prefix, "/") + "/output/" + f
	}
	return out
}

// MQTTOptions converts the mqtt section.
func (c *Config) MQTTOptions() mqtt.Options {
	return mqtt.Options{
		Broker:     c.MQTT.Broker,
		ClientID:   c.MQTT.ClientID,
		Username:   c.MQTT.Username,
		Password:   c.MQTT.Password,
		Prefix:     c.MQTT.TopicPrefix,
		QoS:        byte(c.MQTT.QoS),
		BufferSize: c.MQTT.BufferSize,
	}
}

// CurrentDSP converts the current section into DSP settings.
func (c *Config) CurrentDSP() current.Config {
	cc := current.DefaultConfig()
	cur := c.Current
	if cur.SampleRate > 0 {
		cc.SampleRate = cur.SampleRate
	}
	if cur.MeasurementWindow > 0 {
		cc.MeasurementWindow = cur.MeasurementWindow
	}
	if cur.PublishWindow > 0 {
		cc.PublishWindow = cur.PublishWindow
	}
	if cur.Heartbeat > 0 {
		cc.Heartbeat = cur.Heartbeat
	}
	if cur.NoiseFloor > 0 {
		cc.NoiseFloor = cur.NoiseFloor
	}
	if cur.Ceiling > 0 {
		cc.Ceiling = cur.Ceiling
	}
	if cur.Alpha > 0 {
		cc.Alpha = cur.Alpha
	}
	if cur.StepThreshold > 0 {
		cc.StepThreshold = cur.StepThreshold
	}
	if cur.MainsVoltage > 0 {
		cc.MainsVoltage = cur.MainsVoltage
	}
	if cur.AmpsPerVolt > 0 {
		cc.AmpsPerVolt = cur.AmpsPerVolt
	}
	return cc
}

// CurrentChannels converts the configured clamp channels.
func (c *Config) CurrentChannels() []current.ChannelConfig {
	out := make([]current.ChannelConfig, 0, len(c.Current.Channels))
	for _, ch := range c.Current.Channels {
		f := ch.Factor
		if f == 0 {
			f = 1
		}
		out = append(out, current.ChannelConfig{Index: ch.Index, Name: ch.Name, Factor: f})
	}
	return out
}

// GPIOInputs converts the configured digital inputs.
func (c *Config) GPIOInputs() []gpio.Input {
	out := make([]gpio.Input, 0, len(c.GPIO.Inputs))
	for _, in := range c.GPIO.Inputs {
		out = append(out, gpio.Input{Name: in.Name, Line: in.Pin, ActiveLow: in.ActiveLow})
	}
	return out
}

// GPIOInputNames returns the digital input names in configuration order.
func (c *Config) GPIOInputNames() []string {
	out := make([]string, 0, len(c.GPIO.Inputs))
	for _, in := range c.GPIO.Inputs {
		out = append(out, in.Name)
	}
	return out
}

// MetricsConfig converts the prometheus section.
func (c *Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		URL:          c.Prometheus.URL,
		Username:     c.Prometheus.Username,
		Password:     c.Prometheus.Password,
		PushInterval: c.Prometheus.PushInterval,
		BatchSize:    c.Prometheus.BatchSize,
		Builder:      metrics.BuildTimeSeries(metrics.Label{Name: "instance", Value: c.Prometheus.Instance}),
	}
}

// TracingConfig converts the telemetry section.
func (c *Config) TracingConfig(version string) telemetry.TracingConfig {
	return telemetry.TracingConfig{
		Enabled:       c.Telemetry.Enabled,
		Endpoint:      c.Telemetry.Endpoint,
		ServiceName:   c.Telemetry.ServiceName,
		Version:       version,
		SamplingRatio: c.Telemetry.SamplingRatio,
		Headers:       c.Telemetry.Headers,
	}
}

// ProfilingSettings converts the profiling section.
func (c *Config) ProfilingSettings() telemetry.ProfilingConfig {
	return telemetry.ProfilingConfig{
		Enabled:           c.Profiling.Enabled,
		ServerAddress:     c.Profiling.ServerAddress,
		ApplicationName:   c.Profiling.ApplicationName,
		BasicAuthUser:     c.Profiling.BasicAuthUser,
		BasicAuthPassword: c.Profiling.BasicAuthPassword,
		Tags:              c.Profiling.Tags,
	}
}

// PrintConfig logs the effective configuration with secrets masked.
func (c *Config) PrintConfig(logger *zap.Logger) {
	fields := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	logger.Info("configuration loaded",
		zap.String("log_format", c.Logging.Format),
		zap.String("log_level", c.Logging.Level),
		zap.String("mqtt_broker", c.MQTT.Broker),
		zap.String("mqtt_client_id", c.MQTT.ClientID),
		zap.String("mqtt_username", c.MQTT.Username),
		zap.Bool("mqtt_password_set", c.MQTT.Password != ""),
		zap.String("topic_prefix", c.MQTT.TopicPrefix),
		zap.String("http_addr", c.HTTP.Addr),
		zap.Bool("http_disabled", c.HTTP.Disabled),
		zap.String("state_file", c.State.File),
		zap.Duration("heartbeat", c.Heartbeat),
		zap.Strings("fields", fields),
		zap.Bool("gpio_disabled", c.GPIO.Disabled),
		zap.Strings("gpio_inputs", c.GPIOInputNames()),
		zap.Bool("current_enabled", c.Current.Enabled),
		zap.Int("current_channels", len(c.Current.Channels)),
		zap.Bool("co2_enabled", c.CO2.Enabled),
		zap.Bool("onewire_enabled", c.OneWire.Enabled),
		zap.Bool("prometheus_enabled", c.Prometheus.Enabled),
		zap.String("prometheus_url", c.Prometheus.URL),
		zap.Bool("prometheus_password_set", c.Prometheus.Password != ""),
		zap.Bool("telemetry_enabled", c.Telemetry.Enabled),
		zap.Bool("profiling_enabled", c.Profiling.Enabled),
	)
}
