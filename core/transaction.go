// Transaction layer: complete PCF8591 and AT24C02 transactions composed
// from the signal-level bus primitives
package core

import "sync"

// ControllerConfig selects the devices on the bus and how acknowledgement
// failures are treated.
type ControllerConfig struct {
	Policy AckPolicy

	// MaskInterrupts disables interrupts for the length of each
	// transaction. Off by default; an interrupt landing inside a clock
	// phase stretches it, which standard-mode slaves tolerate.
	MaskInterrupts bool

	ADC    ADCProfile
	EEPROM EEPROMProfile
}

// Controller runs whole transactions on a Bus. Transactions never
// interleave: each one holds the controller until its stop condition.
type Controller struct {
	mu  sync.Mutex
	bus *Bus
	cfg ControllerConfig
}

// NewController wraps bus. Zero-valued profiles default to PCF8591 and
// AT24C02.
func NewController(bus *Bus, cfg ControllerConfig) *Controller {
	if cfg.ADC.Address == 0 {
		cfg.ADC = PCF8591
	}
	if cfg.EEPROM.Size == 0 {
		cfg.EEPROM = AT24C02
	}
	return &Controller{
		bus: bus,
		cfg: cfg,
	}
}

// Bus returns the underlying signal-level driver.
func (c *Controller) Bus() *Bus {
	return c.bus
}

// Policy returns the current acknowledgement policy.
func (c *Controller) Policy() AckPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Policy
}

// SetPolicy changes the acknowledgement policy for later transactions.
func (c *Controller) SetPolicy(p AckPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Policy = p
}

// EEPROM returns the EEPROM profile in use.
func (c *Controller) EEPROM() EEPROMProfile {
	return c.cfg.EEPROM
}

// ADC returns the ADC/DAC profile in use.
func (c *Controller) ADC() ADCProfile {
	return c.cfg.ADC
}

// acquire takes the controller and, if configured, masks interrupts. The
// returned func undoes both.
func (c *Controller) acquire() func() {
	c.mu.Lock()
	if !c.cfg.MaskInterrupts {
		return c.mu.Unlock
	}
	state := disableInterrupts()
	return func() {
		restoreInterrupts(state)
		c.mu.Unlock()
	}
}

// txn tracks the acknowledgement outcome of one transaction.
type txn struct {
	bus    *Bus
	op     string
	policy AckPolicy
	err    error
}

func (c *Controller) begin(op string) *txn {
	return &txn{bus: c.bus, op: op, policy: c.cfg.Policy}
}

// ok reports whether the transaction is still running. Under the permissive
// policy it always is.
func (t *txn) ok() bool {
	return t.err == nil
}

// send writes one byte and clocks its acknowledgement.
func (t *txn) send(b byte, stage Stage, index int) bool {
	if t.err != nil {
		return false
	}
	t.bus.SendByte(b)
	if t.bus.WaitAck() == 0 {
		return true
	}
	if t.policy == AckStrict {
		t.err = &AckError{Op: t.op, Stage: stage, Index: index}
		DebugPrintln("[IIC] " + t.err.Error())
		return false
	}
	DebugPrintln("[IIC] " + t.op + ": " + stage.String() + " nack ignored")
	return true
}

// finish returns the acknowledgement error, if any, or the first GPIO error.
func (t *txn) finish() error {
	if gerr := t.bus.Err(); gerr != nil {
		t.bus.ClearErr()
		if t.err == nil {
			return gerr
		}
	}
	return t.err
}

// ADCRead samples the A/D channel selected by control and returns the
// converted byte (0-255 of full scale).
func (c *Controller) ADCRead(control byte) (byte, error) {
	defer c.acquire()()

	t := c.begin("adc read")
	addr := c.cfg.ADC.Address
	var v byte

	c.bus.Start()
	t.send(addr.WriteAddr(), StageWriteAddress, 0)
	t.send(control, StageControl, 0)
	if t.ok() {
		// Repeated start turns the bus around for the read.
		c.bus.Start()
		if t.send(addr.ReadAddr(), StageReadAddress, 0) {
			v = c.bus.ReceiveByte()
			c.bus.SendAck(1)
		}
	}
	c.bus.Stop()

	return v, t.finish()
}

// DACWrite sets the analog output to value (0-255 of full scale). The
// control byte enables the output and keeps the profile's A/D channel.
func (c *Controller) DACWrite(value byte) error {
	defer c.acquire()()

	t := c.begin("dac write")
	addr := c.cfg.ADC.Address

	c.bus.Start()
	t.send(addr.WriteAddr(), StageWriteAddress, 0)
	t.send(c.cfg.ADC.DACControl(), StageControl, 0)
	t.send(value, StageData, 0)
	c.bus.Stop()

	return t.finish()
}

// EEPROMWrite stores buf[:count] starting at word address addr.
//
// Each byte is followed by the profile's byte settle delay and the stop by
// the final settle delay, so the write cycle has completed when this
// returns. Wrapping past the end of the device is left to the device.
func (c *Controller) EEPROMWrite(buf []byte, addr uint8, count int) error {
	if count < 0 || count > len(buf) {
		return ErrShortBuffer
	}
	defer c.acquire()()

	t := c.begin("eeprom write")
	p := c.cfg.EEPROM
	d := c.bus.Delayer()

	c.bus.Start()
	t.send(p.Address.WriteAddr(), StageWriteAddress, 0)
	t.send(addr, StageRegister, 0)
	for i := 0; i < count; i++ {
		if !t.send(buf[i], StageData, i) {
			break
		}
		d.Delay(p.ByteSettle)
	}
	c.bus.Stop()
	SettleDelay(d, p.FinalSettle, p.FinalSettles(d))

	return t.finish()
}

// EEPROMRead fills buf[:count] from word address addr.
//
// The word address is set with a dummy write, then a repeated start reads
// the bytes back, acknowledging all but the last. With count 0 only the
// dummy write is issued: no repeated start and no nack without a byte.
func (c *Controller) EEPROMRead(buf []byte, addr uint8, count int) error {
	if count < 0 || count > len(buf) {
		return ErrShortBuffer
	}
	defer c.acquire()()

	t := c.begin("eeprom read")
	p := c.cfg.EEPROM

	c.bus.Start()
	t.send(p.Address.WriteAddr(), StageWriteAddress, 0)
	t.send(addr, StageRegister, 0)
	if count > 0 && t.ok() {
		c.bus.Start()
		if t.send(p.Address.ReadAddr(), StageReadAddress, 0) {
			for i := 0; i < count; i++ {
				buf[i] = c.bus.ReceiveByte()
				if i < count-1 {
					c.bus.SendAck(0)
				} else {
					c.bus.SendAck(1)
				}
			}
		}
	}
	c.bus.Stop()

	return t.finish()
}
