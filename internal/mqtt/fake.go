package mqtt

import (
	"github.com/sweeney/greenhouse-sensor/internal/sensor"
)

// FakePublisher records what would have been sent to the broker.
type FakePublisher struct {
	Records      []sensor.Record
	Payloads     [][]byte
	SystemEvents []SystemEvent

	// PublishError and PublishSystemError fail the matching call without recording.
	PublishError       error
	PublishSystemError error

	Connected bool
	Closed    bool
}

// NewFakePublisher returns an empty FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish formats and records rec.
func (f *FakePublisher) Publish(rec sensor.Record) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(rec)
	if err != nil {
		return err
	}
	f.Records = append(f.Records, rec)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}
