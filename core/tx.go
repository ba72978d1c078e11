package core

import "tinygo.org/x/drivers"

// The bit-banged controller can stand in for machine.I2C under any TinyGo
// driver.
var _ drivers.I2C = (*Controller)(nil)

// Tx performs a generic transaction with the 7-bit address addr: w is
// written first, then, after a repeated start, len(r) bytes are read with
// the last one nacked. Either buffer may be empty; with both empty the
// address alone is probed.
//
// Acknowledgements follow the controller's policy, so under AckPermissive a
// missing device yields stale data rather than an error.
func (c *Controller) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7f {
		return ErrAddress10
	}
	defer c.acquire()()

	t := c.begin("tx")
	a := Addr7(addr)

	c.bus.Start()
	if len(w) > 0 || len(r) == 0 {
		t.send(a.WriteAddr(), StageWriteAddress, 0)
		for i, b := range w {
			if !t.send(b, StageData, i) {
				break
			}
		}
		if len(r) > 0 && t.ok() {
			c.bus.Start()
		}
	}
	if len(r) > 0 && t.ok() {
		if t.send(a.ReadAddr(), StageReadAddress, 0) {
			for i := range r {
				r[i] = c.bus.ReceiveByte()
				if i < len(r)-1 {
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

// SetSpeedHz recalibrates a BusyDelay so the clock runs at about hz. Other
// delayers are left alone.
func (c *Controller) SetSpeedHz(hz uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.bus.delay.(*BusyDelay); ok {
		d.Unit = UnitForSpeed(hz)
	}
	return nil
}

// String names the bus by its pins.
func (c *Controller) String() string {
	return "iicbang(scl=" + itoa(int(c.bus.scl)) + ",sda=" + itoa(int(c.bus.sda)) + ")"
}
