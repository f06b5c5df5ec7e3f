package controller

import (
	"html/template"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/greenhouse-sensor/internal/sensor"
)

var responseTmpl = template.Must(template.New("response").Funcs(template.FuncMap{
	"fixed": formatFixed,
	"date": func(t time.Time) string {
		return t.Format(time.UnixDate)
	},
}).Parse(responseHTML))

const responseHTML = `Current time: {{date .Now}}
<hr>
{{- range .Readings}}
<br>{{.Name}} Humidity (%): {{fixed .Humidity}}
<br>{{.Name}} Temperature: {{fixed .Temperature}} °{{.Unit.Symbol}}
<br>
{{- end}}
<hr>
<br>Running since {{date .Since}}
<br>Hits so far: {{.Hits}}
{{- if .Image}}
<br>Latest image: {{.Image}}
{{- end}}
`

type responseData struct {
	Now      time.Time
	Since    time.Time
	Readings []sensor.Reading
	Hits     uint64
	Image    string
}

func renderResponse(d responseData) (string, error) {
	var b strings.Builder
	if err := responseTmpl.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}

func formatFixed(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
