package sim

import "iicbang/core"

// PCF8591 emulates the ADC/DAC. The first byte of a write is the control
// byte; later bytes set the DAC. A read returns the sample of the selected
// channel.
//
// The real part returns the previous conversion first; the emulation skips
// that pipeline stage.
type PCF8591 struct {
	Inputs  [4]byte
	Control byte
	DAC     byte

	// DACWrites counts bytes latched into the DAC.
	DACWrites int

	addr       uint8
	gotControl bool
}

// NewPCF8591 creates the device at 0x48.
func NewPCF8591() *PCF8591 {
	return &PCF8591{addr: 0x48}
}

func (p *PCF8591) Addr() uint8 { return p.addr }

// OutputEnabled reports the analog output enable bit.
func (p *PCF8591) OutputEnabled() bool {
	return p.Control&core.PCF8591OutputEnable != 0
}

// Channel is the selected A/D channel.
func (p *PCF8591) Channel() uint8 {
	return p.Control & core.PCF8591ChannelMask
}

func (p *PCF8591) Begin(read bool) bool {
	p.gotControl = false
	return true
}

func (p *PCF8591) Write(b byte) bool {
	if !p.gotControl {
		p.Control = b
		p.gotControl = true
		return true
	}
	p.DAC = b
	p.DACWrites++
	return true
}

func (p *PCF8591) Read() byte {
	return p.Inputs[p.Channel()]
}

func (p *PCF8591) End(stop bool) {}
