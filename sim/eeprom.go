package sim

import "time"

// WriteCycle is the AT24C02 self-timed write cycle (tWR).
const WriteCycle = 5 * time.Millisecond

// EEPROM emulates a 24Cxx EEPROM with 8-bit word addresses.
//
// The first byte written after the address sets the word pointer, later
// bytes are stored at it. The pointer wraps at the end of memory. Once a
// stop closes a transfer that stored data, the device is busy for
// WriteCycle of virtual time and leaves its address unacknowledged.
type EEPROM struct {
	Mem []byte

	// PageSize, if nonzero, makes writes wrap within the current page as
	// on real parts.
	PageSize int

	addr      uint8
	clock     *Clock
	ptr       int
	havePtr   bool
	wrote     bool
	busyUntil time.Duration

	// Writes counts committed write cycles.
	Writes int
}

// NewAT24C02 creates a 256-byte EEPROM at 0x50, filled with 0xFF like a
// blank part.
func NewAT24C02(clock *Clock) *EEPROM {
	return NewEEPROM(0x50, 256, clock)
}

func NewEEPROM(addr uint8, size int, clock *Clock) *EEPROM {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xff
	}
	return &EEPROM{Mem: mem, addr: addr, clock: clock}
}

func (e *EEPROM) Addr() uint8 { return e.addr }

// Busy reports whether a write cycle is in progress.
func (e *EEPROM) Busy() bool {
	return e.clock != nil && e.clock.Now() < e.busyUntil
}

func (e *EEPROM) Begin(read bool) bool {
	if e.Busy() {
		return false
	}
	e.havePtr = read
	e.wrote = false
	return true
}

func (e *EEPROM) Write(b byte) bool {
	if !e.havePtr {
		e.ptr = int(b) % len(e.Mem)
		e.havePtr = true
		return true
	}
	e.Mem[e.ptr] = b
	e.wrote = true
	e.ptr = e.next(e.ptr)
	return true
}

func (e *EEPROM) next(p int) int {
	if e.PageSize > 0 && (p+1)%e.PageSize == 0 {
		return p + 1 - e.PageSize
	}
	return (p + 1) % len(e.Mem)
}

func (e *EEPROM) Read() byte {
	b := e.Mem[e.ptr]
	e.ptr = (e.ptr + 1) % len(e.Mem)
	return b
}

func (e *EEPROM) End(stop bool) {
	if stop && e.wrote {
		e.Writes++
		if e.clock != nil {
			e.busyUntil = e.clock.Now() + WriteCycle
		}
	}
	e.wrote = false
}
