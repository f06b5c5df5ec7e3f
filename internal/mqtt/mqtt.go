// Package mqtt mirrors persisted greenhouse records and daemon lifecycle
// events to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sweeney/greenhouse-sensor/internal/sensor"
	"github.com/sweeney/greenhouse-sensor/internal/status"
)

// Topics.
const (
	Topic       = "greenhouse/sensor/readings"
	TopicSystem = "greenhouse/sensor/system"
)

// Publisher sends records and lifecycle events. Implementations must not
// block the caller for long when the broker is unreachable.
type Publisher interface {
	Publish(rec sensor.Record) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// Sink feeds persisted records from the controller to a Publisher.
type Sink struct {
	Publisher Publisher
}

// Record publishes rec.
func (s Sink) Record(_ context.Context, rec sensor.Record) error {
	return s.Publisher.Publish(rec)
}

// SystemEvent is a STARTUP or SHUTDOWN notice. When RawPayload is set it is
// sent as is; otherwise a minimal system payload is built.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // signal name on SHUTDOWN
	RawPayload []byte
	Retained   bool
}

// Payload is the body published on Topic.
type Payload struct {
	Greenhouse GreenhousePayload `json:"greenhouse"`
}

// GreenhousePayload contains one persisted record.
type GreenhousePayload struct {
	Timestamp string               `json:"timestamp"`
	Unix      int64                `json:"unix"`
	Readings  []status.ReadingJSON `json:"readings"`
}

// FormatPayload encodes rec. Invalid readings become nulls.
func FormatPayload(rec sensor.Record) ([]byte, error) {
	return json.Marshal(Payload{
		Greenhouse: GreenhousePayload{
			Timestamp: rec.At.UTC().Format(time.RFC3339),
			Unix:      rec.At.Unix(),
			Readings:  status.Readings(rec.Readings),
		},
	})
}

// SystemPayload is the minimal body used for the will message.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload encodes event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
