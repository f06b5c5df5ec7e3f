package sensor

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// DefaultAddress is the BME280 address with SDO tied low.
const DefaultAddress = 0x76

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// PeriphDevice reads a BME280 over I²C. The chip loses its configuration
// whenever its power line drops, so every Read opens and configures it again.
type PeriphDevice struct {
	bus  string
	addr uint16
}

// OpenPeriph initializes the periph host drivers and returns a device on the
// named bus ("" selects the first one).
func OpenPeriph(bus string, addr uint16) (*PeriphDevice, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	if addr == 0 {
		addr = DefaultAddress
	}
	return &PeriphDevice{bus: bus, addr: addr}, nil
}

// Read takes one forced measurement.
func (d *PeriphDevice) Read() (Raw, error) {
	b, err := i2creg.Open(d.bus)
	if err != nil {
		return Raw{}, fmt.Errorf("open i2c bus %q: %w", d.bus, err)
	}
	defer b.Close()

	dev, err := bmxx80.NewI2C(b, d.addr, &bmxx80.DefaultOpts)
	if err != nil {
		return Raw{}, fmt.Errorf("bmxx80 at 0x%02x: %w", d.addr, err)
	}
	defer dev.Halt()

	var env physic.Env
	if err := dev.Sense(&env); err != nil {
		return Raw{}, fmt.Errorf("sense: %w", err)
	}

	return Raw{
		Humidity: float64(env.Humidity) / float64(physic.PercentRH),
		Celsius:  env.Temperature.Celsius(),
	}, nil
}
