//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"iicbang/core"
)

var errPinNotConfigured = errors.New("pin not configured")

// RPGPIODriver drives the bus lines open-drain: a released pin is an input
// with pull-up, a driven pin is an output held low.
type RPGPIODriver struct {
	configuredPins map[core.GPIOPin]machine.Pin
	low            map[core.GPIOPin]bool
}

func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
		low:            make(map[core.GPIOPin]bool),
	}
}

// ConfigureOutput configures the pin released; SetPin drives it.
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	return d.ConfigureInputPullUp(pin)
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	// RP2040 GPIO numbers map directly to machine.Pin
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	d.configuredPins[pin] = p
	d.low[pin] = false
	return nil
}

func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p, ok := d.configuredPins[pin]
	if !ok {
		return errPinNotConfigured
	}
	if d.low[pin] == !value {
		return nil
	}
	if value {
		p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	} else {
		p.Low()
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
	d.low[pin] = !value
	return nil
}

// GetPin reads the line, whoever drives it.
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	p, ok := d.configuredPins[pin]
	if !ok {
		return false, errPinNotConfigured
	}
	return p.Get(), nil
}
