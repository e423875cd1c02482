package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/sweeney/hrv-controller/internal/logic"
	"github.com/sweeney/hrv-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"onoff": logic.OnOff,
	"epoch": func(sec int64) string {
		if sec == 0 {
			return "-"
		}
		return time.Unix(sec, 0).UTC().Format("15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>HRV Controller</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 45%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>HRV Controller</h1>

<h2>Outputs</h2>
{{if .Evaluated}}<table>
<tr><th>Rule</th><td>{{.Last.Rule}}</td></tr>
<tr><th>Power</th><td>{{.Last.Outputs.Power}}%</td></tr>
<tr><th>Intake</th><td>{{.Last.Outputs.Intake}}%</td></tr>
<tr><th>Exhaust</th><td>{{.Last.Outputs.Exhaust}}%</td></tr>
<tr><th>GPIO18 ({{.Last.SourceGpio18}})</th><td>{{.Last.Outputs.Gpio18}}%</td></tr>
<tr><th>GPIO19 ({{.Last.SourceGpio19}})</th><td>{{.Last.Outputs.Gpio19}}%</td></tr>
<tr><th>Bypass</th><td class="{{if .Last.Outputs.Bypass}}on{{else}}off{{end}}">{{onoff .Last.Outputs.Bypass}}</td></tr>
<tr><th>Control</th><td>{{if .Last.ControlEnabled}}enabled{{else}}disabled{{end}}</td></tr>
</table>{{else}}<p>waiting for first evaluation</p>{{end}}

<h2>Modes</h2>
<table>
<tr><th>Manual</th><td class="{{if .Modes.ManualMode}}on{{else}}off{{end}}">{{onoff .Modes.ManualMode}}</td></tr>
<tr><th>Temporary manual</th><td class="{{if .Modes.TemporaryManualMode}}on{{else}}off{{end}}">{{onoff .Modes.TemporaryManualMode}} (until {{epoch .Modes.TemporaryManualModeOffTime}})</td></tr>
<tr><th>Boost</th><td class="{{if .Modes.TemporaryBoostMode}}on{{else}}off{{end}}">{{onoff .Modes.TemporaryBoostMode}} (until {{epoch .Modes.TemporaryBoostModeOffTime}})</td></tr>
</table>

{{if .Evaluated}}<h2>Environment</h2>
<table>
<tr><th>Inside</th><td>{{printf "%.1f" .Last.Env.InsideTemperature}} °C</td></tr>
<tr><th>Outside</th><td>{{printf "%.1f" .Last.Env.OutsideTemperature}} °C</td></tr>
<tr><th>Humidity</th><td>{{.Last.Env.AirHumidity}}%</td></tr>
<tr><th>CO2</th><td>{{.Last.Env.CO2}} ppm</td></tr>
<tr><th>Open windows</th><td>{{.Last.Env.OpenWindows}}</td></tr>
<tr><th>Smoke / Gas</th><td>{{onoff .Last.Env.Smoke}} / {{onoff .Last.Env.Gas}}</td></tr>
</table>{{end}}

{{if or .Readings .CO2}}<h2>Sensors</h2>
<table>
{{range .Readings}}<tr><th>{{.Name}}</th><td>{{.Value}}</td></tr>
{{end}}{{if .CO2}}<tr><th>CO2 sensor</th><td>{{.CO2.PPM}} ppm, {{.CO2.Temperature}} °C</td></tr>{{end}}
</table>{{end}}

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
<tr><th>Evaluations</th><td>{{.Evaluations}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/api/inputs">inputs</a></p>
</body>
</html>
`

type reading struct {
	Name  string
	Value string
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	var readings []reading
	for name, watts := range snap.Current {
		readings = append(readings, reading{Name: "current " + name, Value: fmt.Sprintf("%d W", watts)})
	}
	for id, c := range snap.Temperature {
		readings = append(readings, reading{Name: "w1 " + id, Value: fmt.Sprintf("%.1f °C", c)})
	}
	for name, st := range snap.Digital {
		readings = append(readings, reading{Name: "input " + name, Value: string(st)})
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Name < readings[j].Name })

	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Readings []reading
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Readings: readings,
	}
	return indexTmpl.Execute(w, data)
}
