// Package gpio switches sensor power through GPIO output lines. RealLine uses
// the Linux GPIO character device; FakeLine records levels for tests.
package gpio

import "errors"

// PowerLine switches power to one sensor.
type PowerLine interface {
	Set(on bool) error
	Close() error
}

// ErrUnsupported is returned by RealLine on platforms without gpiochip devices.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Default power lines (BCM numbering).
const (
	PinInnerPower = 17 // Greenhouse sensor
	PinOuterPower = 27 // Outside sensor
)
