// Package controller runs the sampling loop as an explicit state machine.
//
// Each Tick runs exactly one phase:
//
//	Idle        poll for a status request, check whether a log update is due
//	Sampling    interleaved sampling pass over every sensor
//	Publishing  answer the held status request
//	Persisting  append the record to the log and advance the counter
//
// Errors are logged and absorbed; a failed phase is retried on a later tick.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/sweeney/greenhouse-sensor/internal/camera"
	"github.com/sweeney/greenhouse-sensor/internal/endpoint"
	"github.com/sweeney/greenhouse-sensor/internal/metrics"
	"github.com/sweeney/greenhouse-sensor/internal/sensor"
	"github.com/sweeney/greenhouse-sensor/internal/status"
)

// CommandTemperature requests fresh readings.
const CommandTemperature = "temperature"

// Defaults.
const (
	DefaultReadsPerSample = 3
	DefaultUpdateInterval = 5 * time.Minute
	DefaultImageInterval  = 30 * time.Minute
	DefaultPollDelay      = 50 * time.Millisecond
	DefaultRequestRate    = 1.0
	DefaultRequestBurst   = 3
)

// Config holds loop timing and log location.
type Config struct {
	ReadsPerSample int
	UpdateInterval time.Duration
	ImageInterval  time.Duration
	PollDelay      time.Duration
	LogDir         string
	LogPrefix      string
	RequestRate    float64 // status requests per second
	RequestBurst   int
}

// Sampler is one sensor's begin/sample/end cycle.
type Sampler interface {
	Name() string
	BeginSampling()
	Sample() error
	EndSampling() (sensor.Reading, error)
}

// Rotator yields the current log file and advances after each write.
type Rotator interface {
	FileName(dir, prefix string) (string, error)
	Advance() (uint64, error)
}

// LogWriter appends a record to a log file.
type LogWriter interface {
	Append(path string, rec sensor.Record) error
}

// Sink receives every record that was written to the log.
type Sink interface {
	Record(ctx context.Context, rec sensor.Record) error
}

// Deps are the controller's collaborators. Camera, Sinks and Tracker are optional.
type Deps struct {
	Samplers []Sampler
	Inbox    endpoint.Inbox
	Counter  Rotator
	Log      LogWriter
	Camera   camera.Capturer
	Sinks    []Sink
	Tracker  *status.Tracker
	Clock    clock.Clock
	Logger   zerolog.Logger
}

// Controller owns the run state and drives the collaborators.
type Controller struct {
	cfg     Config
	deps    Deps
	log     zerolog.Logger
	limiter *rate.Limiter
	started time.Time

	rs   RunState
	held endpoint.Request
	last sensor.Record
}

func (c *Config) setDefaults() {
	if c.ReadsPerSample <= 0 {
		c.ReadsPerSample = DefaultReadsPerSample
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.ImageInterval <= 0 {
		c.ImageInterval = DefaultImageInterval
	}
	if c.PollDelay <= 0 {
		c.PollDelay = DefaultPollDelay
	}
	if c.RequestRate <= 0 {
		c.RequestRate = DefaultRequestRate
	}
	if c.RequestBurst <= 0 {
		c.RequestBurst = DefaultRequestBurst
	}
}

// New creates a Controller in the Idle state.
func New(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case len(deps.Samplers) == 0:
		return nil, errors.New("controller: no samplers")
	case deps.Inbox == nil:
		return nil, errors.New("controller: no inbox")
	case deps.Counter == nil:
		return nil, errors.New("controller: no counter")
	case deps.Log == nil:
		return nil, errors.New("controller: no log writer")
	case deps.Clock == nil:
		return nil, errors.New("controller: no clock")
	}
	cfg.setDefaults()

	return &Controller{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestRate), cfg.RequestBurst),
		started: deps.Clock.Now(),
	}, nil
}

// State returns the phase the next Tick will run.
func (c *Controller) State() State { return c.rs.State }

// Pending returns the outstanding work.
func (c *Controller) Pending() Pending { return c.rs.Pending }

// Flags returns the four-flag view of the run state.
func (c *Controller) Flags() Flags { return c.rs.Flags() }

// RunState returns a copy of the run state.
func (c *Controller) RunState() RunState { return c.rs }

// LastRecord returns the readings of the latest sampling pass.
func (c *Controller) LastRecord() sensor.Record { return c.last }

// Run ticks until ctx is cancelled. A request still held at shutdown is
// closed without a reply.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info().
		Int("sensors", len(c.deps.Samplers)).
		Dur("update_interval", c.cfg.UpdateInterval).
		Msg("controller started")
	defer func() {
		if c.held != nil {
			c.held.Close()
			c.held = nil
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("controller stopped")
			return nil
		default:
		}
		c.Tick(ctx)
	}
}

// Tick runs one phase and moves to the next state.
func (c *Controller) Tick(ctx context.Context) {
	state := c.rs.State
	metrics.Tick(state.String())

	switch state {
	case Sampling:
		c.sample(ctx)
	case Publishing:
		c.publish()
	case Persisting:
		c.persist(ctx)
	default:
		c.idle(ctx)
	}

	if c.rs.State != state {
		c.log.Debug().Str("from", state.String()).Str("state", c.rs.State.String()).Msg("transition")
	}
	if t := c.deps.Tracker; t != nil {
		t.SetState(c.rs.State.String())
	}
}

func (c *Controller) updateDue(now time.Time) bool {
	return c.rs.LastUpdate.IsZero() || now.Sub(c.rs.LastUpdate) > c.cfg.UpdateInterval
}

func (c *Controller) imageDue(now time.Time) bool {
	return c.deps.Camera != nil &&
		(c.rs.LastImage.IsZero() || now.Sub(c.rs.LastImage) > c.cfg.ImageInterval)
}

func (c *Controller) idle(ctx context.Context) {
	now := c.deps.Clock.Now()

	if c.held == nil {
		c.poll(now)
	}

	if c.updateDue(now) {
		c.rs.Pending.Persist = true
	}
	if c.rs.Pending.Respond || c.rs.Pending.Persist {
		c.rs.State = Sampling
	}

	if c.imageDue(now) {
		c.capture(ctx, now)
	}

	c.deps.Clock.Sleep(c.cfg.PollDelay)
}

// poll accepts at most one status request.
func (c *Controller) poll(now time.Time) {
	req, err := c.deps.Inbox.Poll()
	if err != nil {
		c.log.Debug().Err(err).Msg("status endpoint poll failed")
		return
	}
	if req == nil {
		return
	}

	cmd, err := req.Command()
	if err != nil {
		c.log.Debug().Err(err).Msg("status request read failed")
		metrics.StatusRequest("error")
		req.Close()
		return
	}

	if cmd != CommandTemperature {
		c.log.Debug().Str("command", cmd).Msg("unknown status command")
		metrics.StatusRequest("unknown")
		c.reply(req, "unknown command "+strconv.Quote(cmd)+"\n")
		return
	}

	if !c.limiter.AllowN(now, 1) {
		metrics.StatusRequest("limited")
		c.reply(req, "busy\n")
		return
	}

	metrics.StatusRequest("accepted")
	c.held = req
	c.rs.Pending.Respond = true
}

func (c *Controller) reply(req endpoint.Request, body string) {
	if err := req.Respond(body); err != nil {
		c.log.Debug().Err(err).Msg("status reply failed")
	}
}

func (c *Controller) capture(ctx context.Context, now time.Time) {
	// Stamp first so a failing camera is retried once per interval.
	c.rs.LastImage = now

	path, err := c.deps.Camera.Capture(ctx, now)
	if err != nil {
		c.log.Warn().Err(err).Msg("image capture failed")
		return
	}
	c.rs.ImagePath = path
	c.log.Info().Str("path", path).Msg("image captured")
	if t := c.deps.Tracker; t != nil {
		t.SetImage(now, path)
	}
}

// sample runs the interleaved pass: every sensor is begun, then sampled
// round-robin, then ended, so each sensor rests while the others warm up.
func (c *Controller) sample(ctx context.Context) {
	samplers := c.deps.Samplers
	for _, s := range samplers {
		s.BeginSampling()
	}

rounds:
	for round := 0; round < c.cfg.ReadsPerSample; round++ {
		for _, s := range samplers {
			if ctx.Err() != nil {
				break rounds
			}
			if err := s.Sample(); err != nil {
				c.log.Warn().Err(err).Str("sensor", s.Name()).Msg("sample failed")
			}
		}
	}

	readings := make([]sensor.Reading, 0, len(samplers))
	for _, s := range samplers {
		r, err := s.EndSampling()
		if err != nil {
			c.log.Warn().Err(err).Str("sensor", s.Name()).Msg("no valid reading")
		} else {
			c.log.Debug().
				Str("sensor", r.Name).
				Float64("humidity", r.Humidity).
				Float64("temperature", r.Temperature).
				Int("samples", r.Samples).
				Msg("sampled")
		}
		metrics.SetReading(r.Name, r.Unit.Symbol(), r.Humidity, r.Temperature, r.Valid)
		readings = append(readings, r)
	}

	now := c.deps.Clock.Now()
	c.last = sensor.Record{At: now, Readings: readings}
	if t := c.deps.Tracker; t != nil {
		t.SetReadings(now, readings)
	}

	c.rs.State = c.rs.Pending.next()
}

func (c *Controller) publish() {
	body, err := renderResponse(responseData{
		Now:      c.deps.Clock.Now(),
		Since:    c.started,
		Readings: c.last.Readings,
		Hits:     c.rs.Hits,
		Image:    c.rs.ImagePath,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("render status response")
		body = "error\n"
	}

	if c.held != nil {
		c.reply(c.held, body)
		c.held = nil
	}
	c.rs.Pending.Respond = false
	c.rs.Hits++
	if t := c.deps.Tracker; t != nil {
		t.SetHits(c.rs.Hits)
	}

	c.rs.State = c.rs.Pending.next()
}

func (c *Controller) persist(ctx context.Context) {
	defer func() {
		// The interval's data is dropped on failure rather than retried.
		c.rs.LastUpdate = c.deps.Clock.Now()
		c.rs.Pending.Persist = false
		c.rs.State = c.rs.Pending.next()
	}()

	if err := c.writeRecord(ctx); err != nil {
		metrics.LogWrite(false)
		c.log.Error().Err(err).Msg("log update failed")
	}
}

func (c *Controller) writeRecord(ctx context.Context) error {
	path, err := c.deps.Counter.FileName(c.cfg.LogDir, c.cfg.LogPrefix)
	if err != nil {
		return fmt.Errorf("resolve log file: %w", err)
	}
	c.rs.LogFile = path

	if err := c.deps.Log.Append(path, c.last); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	metrics.LogWrite(true)

	iter, err := c.deps.Counter.Advance()
	if err != nil {
		return fmt.Errorf("advance counter: %w", err)
	}
	c.rs.Iteration = iter
	metrics.SetIteration(iter)
	if t := c.deps.Tracker; t != nil {
		t.SetPersisted(c.last.At, path, iter)
	}
	c.log.Info().Str("path", path).Uint64("iteration", iter).Msg("record written")

	for _, s := range c.deps.Sinks {
		if err := s.Record(ctx, c.last); err != nil {
			c.log.Warn().Err(err).Msg("record sink failed")
		}
	}
	return nil
}
