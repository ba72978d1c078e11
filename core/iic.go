// Signal-level I2C master, bit-banged on two open-drain GPIO lines
package core

// Bus drives SCL and SDA through a GPIODriver. Every method assumes
// exclusive use of both lines for its duration; nothing here locks.
//
// SDA only changes while SCL is low, except inside Start and Stop where the
// change with SCL high is the framing condition itself.
//
// GPIO errors do not interrupt a bus operation part way through a clock
// phase. The first one is kept and reported by Err until ClearErr.
type Bus struct {
	gpio  GPIODriver
	scl   GPIOPin
	sda   GPIOPin
	delay Delayer
	err   error
}

// NewBus creates a bus on the given pins. Configure must be called before
// the first transaction.
func NewBus(gpio GPIODriver, scl, sda GPIOPin, d Delayer) *Bus {
	if d == nil {
		d = NewBusyDelay(0)
	}
	return &Bus{
		gpio:  gpio,
		scl:   scl,
		sda:   sda,
		delay: d,
	}
}

// Configure sets both pins up as released open-drain lines, leaving the bus
// idle.
func (b *Bus) Configure() error {
	for _, pin := range []GPIOPin{b.scl, b.sda} {
		if err := b.gpio.ConfigureInputPullUp(pin); err != nil {
			return err
		}
		if err := b.gpio.ConfigureOutput(pin); err != nil {
			return err
		}
	}
	b.setSDA(true)
	b.setSCL(true)
	return b.err
}

// Delayer returns the timing primitive the bus uses.
func (b *Bus) Delayer() Delayer {
	return b.delay
}

// Err returns the first GPIO error seen since the last ClearErr.
func (b *Bus) Err() error {
	return b.err
}

// ClearErr forgets a previous GPIO error.
func (b *Bus) ClearErr() {
	b.err = nil
}

func (b *Bus) setSCL(v bool) {
	if err := b.gpio.SetPin(b.scl, v); err != nil && b.err == nil {
		b.err = err
	}
}

func (b *Bus) setSDA(v bool) {
	if err := b.gpio.SetPin(b.sda, v); err != nil && b.err == nil {
		b.err = err
	}
}

func (b *Bus) getSDA() bool {
	v, err := b.gpio.GetPin(b.sda)
	if err != nil && b.err == nil {
		b.err = err
	}
	return v
}

// Start issues a start condition: SDA falls while SCL is high.
//
// On an idle bus both lines are already high. As a repeated start it is
// entered with SCL held low, and SDA is raised before SCL so the only SDA
// transition with SCL high is the falling one.
func (b *Bus) Start() {
	b.setSDA(true)
	b.setSCL(true)
	b.delay.Delay(HalfPeriod)
	b.setSDA(false)
	b.delay.Delay(HalfPeriod)
	b.setSCL(false)
}

// Stop issues a stop condition: SDA rises while SCL is high. The bus is idle
// afterwards.
func (b *Bus) Stop() {
	b.setSDA(false)
	b.setSCL(true)
	b.delay.Delay(HalfPeriod)
	b.setSDA(true)
	b.delay.Delay(HalfPeriod)
}

// SendByte shifts v out MSB first and leaves SCL low for the acknowledgement
// phase. The caller must follow it with WaitAck.
func (b *Bus) SendByte(v byte) {
	for i := 0; i < 8; i++ {
		b.setSCL(false)
		b.delay.Delay(HalfPeriod)
		b.setSDA(v&0x80 != 0)
		b.delay.Delay(HalfPeriod)
		b.setSCL(true)
		v <<= 1
		b.delay.Delay(HalfPeriod)
	}
	b.setSCL(false)
}

// ReceiveByte clocks in 8 bits MSB first. It does not acknowledge; the
// caller follows it with SendAck.
func (b *Bus) ReceiveByte() byte {
	var v byte
	// SCL is low here; release SDA so the slave can drive it.
	b.setSDA(true)
	for i := 0; i < 8; i++ {
		b.setSCL(true)
		b.delay.Delay(HalfPeriod)
		v <<= 1
		if b.getSDA() {
			v |= 0x01
		}
		b.setSCL(false)
		b.delay.Delay(HalfPeriod)
	}
	return v
}

// WaitAck clocks the acknowledgement bit from the slave: 0 means
// acknowledged, 1 means not acknowledged. A missing slave leaves SDA pulled
// high and reads as 1.
func (b *Bus) WaitAck() uint8 {
	// Release SDA while SCL is still low; otherwise a trailing 0 data bit
	// would hold the line and read as an acknowledgement.
	b.setSDA(true)
	b.setSCL(true)
	b.delay.Delay(HalfPeriod)
	var ack uint8
	if b.getSDA() {
		ack = 1
	}
	b.setSCL(false)
	b.delay.Delay(HalfPeriod)
	return ack
}

// SendAck answers a received byte: 0 asks the slave for another byte,
// nonzero ends the read.
func (b *Bus) SendAck(ack uint8) {
	b.setSCL(false)
	b.setSDA(ack != 0)
	b.delay.Delay(HalfPeriod)
	b.setSCL(true)
	b.delay.Delay(HalfPeriod)
	b.setSCL(false)
	b.setSDA(true)
	b.delay.Delay(HalfPeriod)
}
