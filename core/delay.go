package core

import "time"

// Delay counts used by the bus and the EEPROM transactions. One count is one
// Delayer unit; Delay(n) waits (n+1) units.
const (
	HalfPeriod       = 5   // clock half-period
	ByteSettle       = 200 // after each EEPROM data byte
	FinalSettle      = 255 // after the EEPROM stop, repeated FinalSettleCount times
	FinalSettleCount = 10
)

// DefaultUnit gives a 12µs half-period (standard mode needs 4.7µs) and a
// final EEPROM settle of 5.12ms, longer than the 5ms AT24C02 write cycle.
const DefaultUnit = 2 * time.Microsecond

// Delayer is the timing primitive the bus is built on.
type Delayer interface {
	// Delay blocks for (n+1) units. n = 0 is the shortest delay.
	Delay(n uint8)
}

// BusyDelay busy-waits; it never yields, so a transaction is never
// suspended part way through a clock phase.
type BusyDelay struct {
	Unit time.Duration
}

// NewBusyDelay returns a busy-wait delayer with the given unit, or
// DefaultUnit when unit is zero.
func NewBusyDelay(unit time.Duration) *BusyDelay {
	if unit <= 0 {
		unit = DefaultUnit
	}
	return &BusyDelay{Unit: unit}
}

// Delay spins for (n+1) units
func (d *BusyDelay) Delay(n uint8) {
	spin(time.Duration(int(n)+1) * d.Unit)
}

func (d *BusyDelay) DelayUnit() time.Duration {
	return d.Unit
}

// UnitDelayer is a Delayer that knows how long one unit lasts.
type UnitDelayer interface {
	Delayer
	DelayUnit() time.Duration
}

// UnitForSpeed returns the unit that makes Delay(HalfPeriod) last half a
// clock period at hz. Speeds above standard mode are clamped to 100kHz.
func UnitForSpeed(hz uint32) time.Duration {
	if hz == 0 || hz > 100000 {
		hz = 100000
	}
	half := time.Second / time.Duration(2*hz)
	unit := half / (HalfPeriod + 1)
	if unit <= 0 {
		unit = 1
	}
	return unit
}

// SettleCount is the number of Delay(n) calls that cover at least d on
// delayer del, never fewer than floor. Delayers that do not report their unit
// get floor.
func SettleCount(del Delayer, n uint8, d time.Duration, floor int) int {
	ud, ok := del.(UnitDelayer)
	if !ok || d <= 0 {
		return floor
	}
	per := time.Duration(int(n)+1) * ud.DelayUnit()
	if per <= 0 {
		return floor
	}
	count := int((d + per - 1) / per)
	if count < floor {
		return floor
	}
	return count
}

// SettleDelay waits count times Delay(n). EEPROM write cycles use it since a
// single Delay is capped at 256 units.
func SettleDelay(d Delayer, n uint8, count int) {
	for i := 0; i < count; i++ {
		d.Delay(n)
	}
}
