package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/hrv-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string             `json:"event,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Ready         bool               `json:"ready"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	StartTime     string             `json:"start_time"`
	Timestamp     string             `json:"timestamp"`
	MQTT          MQTTStatus         `json:"mqtt"`
	Modes         ModesJSON          `json:"modes"`
	Evaluation    *EvaluationJSON    `json:"evaluation,omitempty"`
	Current       map[string]int     `json:"current_watts"`
	CO2           *CO2JSON           `json:"co2,omitempty"`
	Temperature   map[string]float64 `json:"temperatures"`
	Digital       map[string]string  `json:"digital_inputs"`
	Config        ConfigJSON         `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ModesJSON is the JSON representation of the persisted modes.
type ModesJSON struct {
	ManualMode          bool   `json:"manual_mode"`
	TemporaryManualMode bool   `json:"temporary_manual_mode"`
	TemporaryBoostMode  bool   `json:"temporary_boost_mode"`
	TemporaryManualOff  string `json:"temporary_manual_off,omitempty"`
	TemporaryBoostOff   string `json:"temporary_boost_off,omitempty"`
	Bypass              bool   `json:"bypass"`
}

// EvaluationJSON is the JSON representation of the last control cycle.
type EvaluationJSON struct {
	Timestamp      string            `json:"timestamp"`
	Count          int               `json:"count"`
	Rule           string            `json:"rule"`
	ControlEnabled bool              `json:"control_enabled"`
	Sources        map[string]string `json:"sources"`
	Outputs        map[string]string `json:"outputs"`
	Environment    EnvironmentJSON   `json:"environment"`
}

// EnvironmentJSON is the JSON representation of the aggregated environment.
type EnvironmentJSON struct {
	InsideTemperature  float64 `json:"inside_temperature"`
	OutsideTemperature float64 `json:"outside_temperature"`
	Pressure           float64 `json:"pressure"`
	AirHumidity        int     `json:"air_humidity"`
	CO2                int     `json:"co2"`
	OpenWindows        int     `json:"open_windows"`
	Smoke              bool    `json:"smoke"`
	Gas                bool    `json:"gas"`
}

// CO2JSON is the JSON representation of a CO2 reading.
type CO2JSON struct {
	PPM         int    `json:"ppm"`
	Temperature int    `json:"temperature"`
	Timestamp   string `json:"timestamp"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker         string `json:"broker"`
	TopicPrefix    string `json:"topic_prefix"`
	HTTPAddr       string `json:"http_addr"`
	StateFile      string `json:"state_file"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	CurrentEnabled bool   `json:"current_enabled"`
	CO2Enabled     bool   `json:"co2_enabled"`
}

func epochRFC3339(sec int64) string {
	if sec == 0 {
		return ""
	}
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Evaluated,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Modes: ModesJSON{
			ManualMode:          snap.Modes.ManualMode,
			TemporaryManualMode: snap.Modes.TemporaryManualMode,
			TemporaryBoostMode:  snap.Modes.TemporaryBoostMode,
			TemporaryManualOff:  epochRFC3339(snap.Modes.TemporaryManualModeOffTime),
			TemporaryBoostOff:   epochRFC3339(snap.Modes.TemporaryBoostModeOffTime),
			Bypass:              snap.Modes.Bypass,
		},
		Current:     snap.Current,
		Temperature: snap.Temperature,
		Digital:     make(map[string]string, len(snap.Digital)),
		Config: ConfigJSON{
			Broker:         snap.Config.Broker,
			TopicPrefix:    snap.Config.TopicPrefix,
			HTTPAddr:       snap.Config.HTTPAddr,
			StateFile:      snap.Config.StateFile,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			CurrentEnabled: snap.Config.CurrentEnabled,
			CO2Enabled:     snap.Config.CO2Enabled,
		},
	}
	for k, v := range snap.Digital {
		inner.Digital[k] = string(v)
	}
	if snap.CO2 != nil {
		inner.CO2 = &CO2JSON{
			PPM:         snap.CO2.PPM,
			Temperature: snap.CO2.Temperature,
			Timestamp:   snap.CO2.At.UTC().Format(time.RFC3339),
		}
	}
	if snap.Evaluated {
		e := snap.Last
		inner.Evaluation = &EvaluationJSON{
			Timestamp:      e.At.UTC().Format(time.RFC3339),
			Count:          snap.Evaluations,
			Rule:           string(e.Rule),
			ControlEnabled: e.ControlEnabled,
			Sources: map[string]string{
				logic.FieldGpio18: string(e.SourceGpio18),
				logic.FieldGpio19: string(e.SourceGpio19),
			},
			Outputs: e.Outputs.Values(),
			Environment: EnvironmentJSON{
				InsideTemperature:  e.Env.InsideTemperature,
				OutsideTemperature: e.Env.OutsideTemperature,
				Pressure:           e.Env.Pressure,
				AirHumidity:        e.Env.AirHumidity,
				CO2:                e.Env.CO2,
				OpenWindows:        e.Env.OpenWindows,
				Smoke:              e.Env.Smoke,
				Gas:                e.Env.Gas,
			},
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
