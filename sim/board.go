package sim

import (
	"time"

	"iicbang/core"
)

// Pins used by Board.
const (
	BoardSCL core.GPIOPin = 0
	BoardSDA core.GPIOPin = 1
)

// Board is the reference board: a PCF8591 and an AT24C02 on one bus, with a
// monitor attached.
type Board struct {
	Clock   *Clock
	Wire    *Wire
	ADC     *PCF8591
	EEPROM  *EEPROM
	Monitor *Monitor
}

// NewBoard builds the board with the default delay unit.
func NewBoard() *Board {
	return NewBoardUnit(core.DefaultUnit)
}

// NewBoardUnit builds the board on a clock with the given delay unit.
func NewBoardUnit(unit time.Duration) *Board {
	clock := NewClock(unit)
	w := NewWire(BoardSCL, BoardSDA, clock)
	b := &Board{
		Clock:  clock,
		Wire:   w,
		ADC:    NewPCF8591(),
		EEPROM: NewAT24C02(clock),
	}
	w.Attach(b.ADC)
	w.Attach(b.EEPROM)
	b.Monitor = NewMonitor(w)
	return b
}

// Bus returns a configured core.Bus on the board's wire, timed by its
// virtual clock.
func (b *Board) Bus() (*core.Bus, error) {
	bus := core.NewBus(b.Wire, BoardSCL, BoardSDA, b.Clock)
	if err := bus.Configure(); err != nil {
		return nil, err
	}
	return bus, nil
}

// Controller returns a controller on a fresh bus.
func (b *Board) Controller(cfg core.ControllerConfig) (*core.Controller, error) {
	bus, err := b.Bus()
	if err != nil {
		return nil, err
	}
	return core.NewController(bus, cfg), nil
}
