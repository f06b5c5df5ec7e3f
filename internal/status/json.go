package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/greenhouse-sensor/internal/sensor"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	State         string        `json:"state"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	SampledAt     string        `json:"sampled_at,omitempty"`
	Readings      []ReadingJSON `json:"readings"`
	Log           LogJSON       `json:"log"`
	Image         *ImageJSON    `json:"image,omitempty"`
	Hits          uint64        `json:"hits"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

// ReadingJSON is one sensor's averaged reading. Values are null when the
// last cycle produced no successful read.
type ReadingJSON struct {
	Name        string   `json:"name"`
	Humidity    *float64 `json:"humidity"`
	Temperature *float64 `json:"temperature"`
	Unit        string   `json:"unit"`
	Samples     int      `json:"samples"`
	Attempts    int      `json:"attempts"`
}

// LogJSON reports the rotating log position.
type LogJSON struct {
	File       string `json:"file,omitempty"`
	Iteration  uint64 `json:"iteration"`
	LastUpdate string `json:"last_update,omitempty"`
}

// ImageJSON reports the latest captured still.
type ImageJSON struct {
	Path string `json:"path"`
	At   string `json:"at"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	UpdateIntervalMs int64  `json:"update_interval_ms"`
	ImageIntervalMs  int64  `json:"image_interval_ms"`
	ReadsPerSample   int    `json:"reads_per_sample"`
	Unit             string `json:"unit"`
	Endpoint         string `json:"endpoint"`
	Broker           string `json:"broker"`
	HTTPAddr         string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func value(v float64, valid bool) *float64 {
	if !valid || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Readings converts readings to their JSON form.
func Readings(rs []sensor.Reading) []ReadingJSON {
	out := make([]ReadingJSON, 0, len(rs))
	for _, r := range rs {
		out = append(out, ReadingJSON{
			Name:        r.Name,
			Humidity:    value(r.Humidity, r.Valid),
			Temperature: value(r.Temperature, r.Valid),
			Unit:        r.Unit.Symbol(),
			Samples:     r.Samples,
			Attempts:    r.Attempts,
		})
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	state := snap.State
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		SampledAt:     formatTime(snap.SampledAt),
		Readings:      Readings(snap.Readings),
		Log: LogJSON{
			File:       snap.LogFile,
			Iteration:  snap.Iteration,
			LastUpdate: formatTime(snap.LastUpdate),
		},
		Hits: snap.Hits,
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			UpdateIntervalMs: snap.Config.UpdateInterval.Milliseconds(),
			ImageIntervalMs:  snap.Config.ImageInterval.Milliseconds(),
			ReadsPerSample:   snap.Config.ReadsPerSample,
			Unit:             string(snap.Config.Unit),
			Endpoint:         snap.Config.Endpoint,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}
	if snap.ImagePath != "" {
		inner.Image = &ImageJSON{Path: snap.ImagePath, At: formatTime(snap.LastImage)}
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
