package sim

// Device is the byte-level behaviour of an emulated slave. The bit-level
// protocol (address matching, acknowledgement, shifting) is handled for it.
type Device interface {
	// Addr is the 7-bit slave address.
	Addr() uint8
	// Begin starts a transfer in the given direction. Returning false
	// leaves the address unacknowledged.
	Begin(read bool) bool
	// Write receives a data byte and reports whether to acknowledge it.
	Write(b byte) bool
	// Read supplies the next byte for the master.
	Read() byte
	// End closes a transfer, on a stop or a repeated start.
	End(stop bool)
}

type targetState uint8

const (
	stateIdle targetState = iota
	stateAddress
	stateAddressAck
	stateWrite
	stateWriteAck
	stateRead
	stateReadAck
)

// target runs the slave side of the bit protocol for one Device.
type target struct {
	dev   Device
	clock *Clock

	state   targetState
	active  bool
	read    bool
	shift   byte
	bits    int
	mack    bool // master acknowledged the last byte read
	pullSDA bool
}

func (t *target) Condition(start bool) {
	if t.active {
		t.dev.End(!start)
		t.active = false
	}
	t.pullSDA = false
	t.shift, t.bits = 0, 0
	if start {
		t.state = stateAddress
	} else {
		t.state = stateIdle
	}
}

func (t *target) ClockRise(sda bool) {
	switch t.state {
	case stateAddress, stateWrite:
		t.shift <<= 1
		if sda {
			t.shift |= 1
		}
		t.bits++
	case stateReadAck:
		t.mack = !sda
	}
}

func (t *target) ClockFall() {
	switch t.state {
	case stateAddress:
		if t.bits < 8 {
			return
		}
		if t.shift>>1 != t.dev.Addr() {
			t.state = stateIdle
			return
		}
		t.read = t.shift&1 == 1
		if !t.dev.Begin(t.read) {
			t.state = stateIdle
			return
		}
		t.active = true
		t.pullSDA = true
		t.state = stateAddressAck

	case stateWrite:
		if t.bits < 8 {
			return
		}
		t.pullSDA = t.dev.Write(t.shift)
		t.state = stateWriteAck

	case stateAddressAck, stateWriteAck:
		t.pullSDA = false
		if t.read {
			t.load()
			return
		}
		t.shift, t.bits = 0, 0
		t.state = stateWrite

	case stateRead:
		t.bits++
		if t.bits == 8 {
			t.pullSDA = false
			t.state = stateReadAck
			return
		}
		t.drive()

	case stateReadAck:
		if t.mack {
			t.load()
			return
		}
		// nacked: the master is about to stop or restart
		t.state = stateIdle
	}
}

// load fetches the next byte from the device and drives its MSB.
func (t *target) load() {
	t.shift = t.dev.Read()
	t.bits = 0
	t.state = stateRead
	t.drive()
}

func (t *target) drive() {
	t.pullSDA = t.shift&(0x80>>t.bits) == 0
}
