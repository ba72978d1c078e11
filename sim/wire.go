// Package sim emulates an I2C bus at the signal level: two open-drain lines
// with pull-ups, slave devices clocked by the master's edges, and a virtual
// clock so timing-dependent device behaviour is deterministic.
package sim

import (
	"errors"
	"sync"

	"iicbang/core"
)

var ErrUnknownPin = errors.New("sim: unknown pin")

// Listener sees the bus conditions a Wire detects.
type Listener interface {
	// Condition reports a start (SDA falling with SCL high) or a stop (SDA
	// rising with SCL high).
	Condition(start bool)
	// ClockRise reports SCL going high with the SDA level at that moment.
	ClockRise(sda bool)
	// ClockFall reports SCL going low. Targets change SDA here.
	ClockFall()
}

// Wire is a core.GPIODriver modelling SCL and SDA as wired-AND lines: a
// line is high only while the master and every attached target release it.
// The emulated slaves never stretch the clock.
type Wire struct {
	mu        sync.Mutex
	scl, sda  core.GPIOPin
	masterSCL bool
	masterSDA bool
	targets   []*target
	listeners []Listener
	clock     *Clock
	fail      map[core.GPIOPin]error
}

// NewWire creates an idle bus on the given pin numbers. Devices that model
// time read it from clock.
func NewWire(scl, sda core.GPIOPin, clock *Clock) *Wire {
	if clock == nil {
		clock = NewClock(core.DefaultUnit)
	}
	return &Wire{
		scl:       scl,
		sda:       sda,
		masterSCL: true,
		masterSDA: true,
		clock:     clock,
		fail:      make(map[core.GPIOPin]error),
	}
}

// Clock returns the wire's virtual clock.
func (w *Wire) Clock() *Clock {
	return w.clock
}

// Attach connects a slave device to the bus.
func (w *Wire) Attach(d Device) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := &target{dev: d, clock: w.clock}
	w.targets = append(w.targets, t)
	w.listeners = append(w.listeners, t)
}

// Watch adds a passive listener such as a Monitor.
func (w *Wire) Watch(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// Fail makes every later access to pin return err. A nil err clears it.
func (w *Wire) Fail(pin core.GPIOPin, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		delete(w.fail, pin)
		return
	}
	w.fail[pin] = err
}

func (w *Wire) check(pin core.GPIOPin) error {
	if err := w.fail[pin]; err != nil {
		return err
	}
	if pin != w.scl && pin != w.sda {
		return ErrUnknownPin
	}
	return nil
}

func (w *Wire) ConfigureOutput(pin core.GPIOPin) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.check(pin)
}

func (w *Wire) ConfigureInputPullUp(pin core.GPIOPin) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.check(pin)
}

// SetPin drives pin low (false) or releases it (true).
func (w *Wire) SetPin(pin core.GPIOPin, value bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.check(pin); err != nil {
		return err
	}

	if pin == w.scl {
		if w.masterSCL == value {
			return nil
		}
		w.masterSCL = value
		if value {
			sda := w.sdaLevel()
			for _, l := range w.listeners {
				l.ClockRise(sda)
			}
		} else {
			for _, l := range w.listeners {
				l.ClockFall()
			}
		}
		return nil
	}

	before := w.sdaLevel()
	w.masterSDA = value
	after := w.sdaLevel()
	if w.masterSCL && before != after {
		for _, l := range w.listeners {
			l.Condition(!after)
		}
	}
	return nil
}

// GetPin reads the level of the line.
func (w *Wire) GetPin(pin core.GPIOPin) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.check(pin); err != nil {
		return false, err
	}
	if pin == w.scl {
		return w.masterSCL, nil
	}
	return w.sdaLevel(), nil
}

// Idle reports whether both lines are high.
func (w *Wire) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.masterSCL && w.sdaLevel()
}

func (w *Wire) sdaLevel() bool {
	if !w.masterSDA {
		return false
	}
	for _, t := range w.targets {
		if t.pullSDA {
			return false
		}
	}
	return true
}
