// Package sensor samples humidity/temperature devices that are powered up
// only while being read.
package sensor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotSampling is returned by Sample outside a BeginSampling/EndSampling cycle.
	ErrNotSampling = errors.New("sensor: not sampling")

	// ErrNoSamples is returned by EndSampling when every read in the cycle failed.
	ErrNoSamples = errors.New("sensor: no successful samples")
)

// Raw is one device reading in native units.
type Raw struct {
	Humidity float64 // %RH
	Celsius  float64
}

// Device performs a single raw read. The device is assumed powered.
type Device interface {
	Read() (Raw, error)
}

// Unit is the temperature unit readings are reported in.
type Unit string

const (
	Fahrenheit Unit = "fahrenheit"
	Celsius    Unit = "celsius"
)

// ParseUnit accepts fahrenheit/f and celsius/c.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fahrenheit", "f":
		return Fahrenheit, nil
	case "celsius", "c":
		return Celsius, nil
	default:
		return "", fmt.Errorf("unknown temperature unit %q", s)
	}
}

// Convert converts a Celsius value to u.
func (u Unit) Convert(celsius float64) float64 {
	if u == Celsius {
		return celsius
	}
	return celsius*9/5 + 32
}

// Symbol returns the short label, F or C.
func (u Unit) Symbol() string {
	if u == Celsius {
		return "C"
	}
	return "F"
}

// Reading is the averaged result of one sampling cycle.
type Reading struct {
	Name        string
	Humidity    float64
	Temperature float64
	Unit        Unit
	Samples     int
	Attempts    int
	Valid       bool
}

// Record is a set of readings taken together.
type Record struct {
	At       time.Time
	Readings []Reading
}
