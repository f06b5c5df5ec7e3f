package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/sweeney/greenhouse-sensor/internal/status"
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
	"fixed": func(v float64) string {
		if math.IsNaN(v) {
			return "n/a"
		}
		return fmt.Sprintf("%.2f", v)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="60">
<title>Greenhouse Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.invalid { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Greenhouse Sensor</h1>

<h2>Readings</h2>
{{if .Readings}}<table>
<tr><th>Sensor</th><th>Humidity (%)</th><th>Temperature</th></tr>
{{range .Readings}}<tr{{if not .Valid}} class="invalid"{{end}}><td>{{.Name}}</td><td>{{fixed .Humidity}}</td><td>{{fixed .Temperature}} °{{.Unit.Symbol}}</td></tr>
{{end}}</table>
<p>Sampled {{stamp .SampledAt}}</p>{{else}}<p>No readings yet.</p>{{end}}

<h2>Log</h2>
<table>
<tr><th>File</th><td>{{if .LogFile}}{{.LogFile}}{{else}}none{{end}}</td></tr>
<tr><th>Iteration</th><td>{{.Iteration}}</td></tr>
<tr><th>Last update</th><td>{{stamp .LastUpdate}}</td></tr>
{{if .ImagePath}}<tr><th>Latest image</th><td>{{.ImagePath}} ({{stamp .LastImage}})</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Status endpoint</th><td>{{.Config.Endpoint}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>State</th><td>{{stateOrUnknown .State}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Status requests</th><td>{{.Hits}}</td></tr>
<tr><th>Update interval</th><td>{{.Config.UpdateInterval}}</td></tr>
<tr><th>Reads per sample</th><td>{{.Config.ReadsPerSample}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a>{{if .History}} · <a href="/history.json">History</a>{{end}} · <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, hasHistory bool) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		History bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		History:  hasHistory,
	}
	return indexTmpl.Execute(w, data)
}
