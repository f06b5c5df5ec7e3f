// Package status provides a thread-safe status tracker for the greenhouse daemon.
// It is written by the controller and read by HTTP handlers and MQTT events.
package status

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/sweeney/greenhouse-sensor/internal/sensor"
)

// Config contains daemon configuration for display.
type Config struct {
	UpdateInterval time.Duration
	ImageInterval  time.Duration
	ReadsPerSample int
	Unit           sensor.Unit
	Endpoint       string
	Broker         string
	HTTPAddr       string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	State         string
	Readings      []sensor.Reading
	SampledAt     time.Time
	LastUpdate    time.Time
	LogFile       string
	Iteration     uint64
	ImagePath     string
	LastImage     time.Time
	Hits          uint64
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	clock clock.PassiveClock
	snap  Snapshot
}

// NewTracker creates a Tracker. The start time is taken from clk.
func NewTracker(clk clock.PassiveClock, cfg Config) *Tracker {
	return &Tracker{
		clock: clk,
		snap: Snapshot{
			StartTime: clk.Now(),
			Config:    cfg,
		},
	}
}

// SetReadings stores the readings of the latest sampling pass.
func (t *Tracker) SetReadings(at time.Time, readings []sensor.Reading) {
	cp := make([]sensor.Reading, len(readings))
	copy(cp, readings)
	t.mu.Lock()
	t.snap.Readings = cp
	t.snap.SampledAt = at
	t.mu.Unlock()
}

// SetPersisted records a completed log write.
func (t *Tracker) SetPersisted(at time.Time, file string, iteration uint64) {
	t.mu.Lock()
	t.snap.LastUpdate = at
	t.snap.LogFile = file
	t.snap.Iteration = iteration
	t.mu.Unlock()
}

// SetImage records the latest captured still.
func (t *Tracker) SetImage(at time.Time, path string) {
	t.mu.Lock()
	t.snap.LastImage = at
	t.snap.ImagePath = path
	t.mu.Unlock()
}

// SetHits sets the number of answered status requests.
func (t *Tracker) SetHits(hits uint64) {
	t.mu.Lock()
	t.snap.Hits = hits
	t.mu.Unlock()
}

// SetState sets the controller state name.
func (t *Tracker) SetState(state string) {
	t.mu.Lock()
	t.snap.State = state
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set from the tracker's clock at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Readings = append([]sensor.Reading(nil), t.snap.Readings...)
	t.mu.RUnlock()
	s.Now = t.clock.Now()
	return s
}
