// Package periphgpio runs the bit-banged bus on host GPIO pins through
// periph.io, e.g. on a Raspberry Pi with the devices wired to two free pins.
package periphgpio

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"iicbang/core"
)

// Pin numbers of the two lines on a Driver.
const (
	SCL core.GPIOPin = 0
	SDA core.GPIOPin = 1
)

var ErrUnknownPin = errors.New("periphgpio: unknown pin")

// Driver is a core.GPIODriver over two periph pins. Open drain is emulated:
// a released line is an input with pull-up, a driven line outputs low.
type Driver struct {
	pins [2]gpio.PinIO
}

// NewDriver wraps already resolved pins.
func NewDriver(scl, sda gpio.PinIO) *Driver {
	return &Driver{pins: [2]gpio.PinIO{scl, sda}}
}

// Open initializes the host drivers and resolves the pins by name.
func Open(scl, sda string) (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	p := gpioreg.ByName(scl)
	if p == nil {
		return nil, fmt.Errorf("no pin named %q", scl)
	}
	q := gpioreg.ByName(sda)
	if q == nil {
		return nil, fmt.Errorf("no pin named %q", sda)
	}
	return NewDriver(p, q), nil
}

func (d *Driver) pin(n core.GPIOPin) (gpio.PinIO, error) {
	if int(n) >= len(d.pins) {
		return nil, ErrUnknownPin
	}
	return d.pins[n], nil
}

// ConfigureOutput leaves the line released; SetPin switches it.
func (d *Driver) ConfigureOutput(n core.GPIOPin) error {
	return d.ConfigureInputPullUp(n)
}

func (d *Driver) ConfigureInputPullUp(n core.GPIOPin) error {
	p, err := d.pin(n)
	if err != nil {
		return err
	}
	return p.In(gpio.PullUp, gpio.NoEdge)
}

func (d *Driver) SetPin(n core.GPIOPin, value bool) error {
	p, err := d.pin(n)
	if err != nil {
		return err
	}
	if value {
		return p.In(gpio.PullUp, gpio.NoEdge)
	}
	return p.Out(gpio.Low)
}

func (d *Driver) GetPin(n core.GPIOPin) (bool, error) {
	p, err := d.pin(n)
	if err != nil {
		return false, err
	}
	return p.Read() == gpio.High, nil
}

// Bus returns a configured bus on the two pins.
func (d *Driver) Bus(delay core.Delayer) (*core.Bus, error) {
	bus := core.NewBus(d, SCL, SDA, delay)
	if err := bus.Configure(); err != nil {
		return nil, err
	}
	return bus, nil
}

// I2C exposes a controller as a periph i2c.Bus so periph device drivers
// can run on the bit-banged lines.
type I2C struct {
	ctrl *core.Controller
}

var _ i2c.Bus = (*I2C)(nil)

func NewI2C(ctrl *core.Controller) *I2C {
	return &I2C{ctrl: ctrl}
}

func (b *I2C) Tx(addr uint16, w, r []byte) error {
	return b.ctrl.Tx(addr, w, r)
}

// SetSpeed recalibrates the delay unit. Speeds above 100kHz are clamped.
func (b *I2C) SetSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("invalid speed %s", f)
	}
	return b.ctrl.SetSpeedHz(uint32(f / physic.Hertz))
}

func (b *I2C) String() string {
	return b.ctrl.String()
}
