package sensor

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/sweeney/greenhouse-sensor/internal/gpio"
	"github.com/sweeney/greenhouse-sensor/internal/metrics"
)

// DefaultStabilizationDelay is how long a device needs after power-up.
const DefaultStabilizationDelay = 2 * time.Second

// Options configures a Sampler.
type Options struct {
	StabilizationDelay time.Duration
	Unit               Unit
	Logger             zerolog.Logger
}

// Sampler owns one device and its power line and averages reads over a
// sampling cycle.
type Sampler struct {
	name  string
	power gpio.PowerLine
	dev   Device
	clk   clock.Clock
	delay time.Duration
	unit  Unit
	log   zerolog.Logger

	sampling bool
	humSum   float64
	tempSum  float64
	samples  int
	attempts int
	last     Reading
}

// NewSampler creates a Sampler. A zero delay uses DefaultStabilizationDelay
// and an empty unit uses Fahrenheit.
func NewSampler(name string, power gpio.PowerLine, dev Device, clk clock.Clock, opts Options) *Sampler {
	if opts.StabilizationDelay <= 0 {
		opts.StabilizationDelay = DefaultStabilizationDelay
	}
	if opts.Unit == "" {
		opts.Unit = Fahrenheit
	}
	return &Sampler{
		name:  name,
		power: power,
		dev:   dev,
		clk:   clk,
		delay: opts.StabilizationDelay,
		unit:  opts.Unit,
		log:   opts.Logger.With().Str("sensor", name).Logger(),
		last: Reading{
			Name:        name,
			Unit:        opts.Unit,
			Humidity:    math.NaN(),
			Temperature: math.NaN(),
		},
	}
}

// Name returns the sensor's display name.
func (s *Sampler) Name() string { return s.name }

// BeginSampling clears the running sums and opens a cycle.
func (s *Sampler) BeginSampling() {
	s.sampling = true
	s.humSum = 0
	s.tempSum = 0
	s.samples = 0
	s.attempts = 0
}

// Sample powers the device, waits for it to stabilize, takes one read and
// powers it down again. A failed read is logged and left out of the average.
func (s *Sampler) Sample() error {
	if !s.sampling {
		return ErrNotSampling
	}
	s.attempts++

	if err := s.power.Set(true); err != nil {
		s.log.Warn().Err(err).Msg("power on failed")
		metrics.SensorRead(s.name, false)
		return nil
	}
	s.clk.Sleep(s.delay)

	raw, err := s.dev.Read()

	if perr := s.power.Set(false); perr != nil {
		s.log.Warn().Err(perr).Msg("power off failed")
	}

	if err != nil || math.IsNaN(raw.Humidity) || math.IsNaN(raw.Celsius) {
		if err == nil {
			err = fmt.Errorf("device returned NaN")
		}
		s.log.Debug().Err(err).Int("attempt", s.attempts).Msg("read failed")
		metrics.SensorRead(s.name, false)
		return nil
	}

	s.humSum += raw.Humidity
	s.tempSum += s.unit.Convert(raw.Celsius)
	s.samples++
	metrics.SensorRead(s.name, true)
	return nil
}

// EndSampling closes the cycle and computes the averages. Only successful
// reads count toward the divisor; with none the reading is invalid and
// ErrNoSamples is returned.
func (s *Sampler) EndSampling() (Reading, error) {
	s.sampling = false

	r := Reading{
		Name:     s.name,
		Unit:     s.unit,
		Samples:  s.samples,
		Attempts: s.attempts,
	}
	if s.samples == 0 {
		r.Humidity = math.NaN()
		r.Temperature = math.NaN()
		s.last = r
		return r, fmt.Errorf("%s: %w (%d attempts)", s.name, ErrNoSamples, s.attempts)
	}

	r.Humidity = s.humSum / float64(s.samples)
	r.Temperature = s.tempSum / float64(s.samples)
	r.Valid = true
	s.last = r
	return r, nil
}

// Sampling reports whether a cycle is open.
func (s *Sampler) Sampling() bool { return s.sampling }

// Reading returns the result of the last completed cycle.
func (s *Sampler) Reading() Reading { return s.last }

// AverageHumidity returns the last averaged humidity, NaN if invalid.
func (s *Sampler) AverageHumidity() float64 { return s.last.Humidity }

// AverageTemperature returns the last averaged temperature, NaN if invalid.
func (s *Sampler) AverageTemperature() float64 { return s.last.Temperature }

// Close powers the sensor down and releases the line.
func (s *Sampler) Close() error {
	if err := s.power.Set(false); err != nil {
		s.log.Debug().Err(err).Msg("power off on close failed")
	}
	return s.power.Close()
}
