package core

import "time"

// Addr7 is a 7-bit I2C slave address.
type Addr7 uint8

// WriteAddr is the first transaction byte addressing the slave for writing.
func (a Addr7) WriteAddr() byte {
	return byte(a&0x7f) << 1
}

// ReadAddr is the first transaction byte addressing the slave for reading.
func (a Addr7) ReadAddr() byte {
	return byte(a&0x7f)<<1 | 0x01
}

// PCF8591 control byte layout
//
//	bit 6     analog output enable
//	bits 1..0 A/D channel
//
// 0x41 enables the DAC and selects AIN1, 0x03 selects AIN3 with the DAC off.
const (
	PCF8591OutputEnable = 0x40
	PCF8591ChannelMask  = 0x03
)

// A/D input channels of the PCF8591 as wired on the reference board.
const (
	ChannelAIN0 = 0 // external input
	ChannelAIN1 = 1 // photoresistor
	ChannelAIN2 = 2 // differential input
	ChannelAIN3 = 3 // potentiometer
)

// ControlByte assembles a PCF8591 control byte.
func ControlByte(outputEnable bool, channel uint8) byte {
	c := channel & PCF8591ChannelMask
	if outputEnable {
		c |= PCF8591OutputEnable
	}
	return c
}

// ADCProfile describes a PCF8591-style combined ADC/DAC.
type ADCProfile struct {
	Name    string
	Address Addr7
	// DACChannel is the channel selector sent alongside the output-enable
	// bit by DACWrite.
	DACChannel uint8
}

// DACControl is the control byte DACWrite sends.
func (p ADCProfile) DACControl() byte {
	return ControlByte(true, p.DACChannel)
}

// PCF8591 is the ADC/DAC on the reference board (A2..A0 grounded).
var PCF8591 = ADCProfile{
	Name:       "pcf8591",
	Address:    0x48,
	DACChannel: ChannelAIN1,
}

// EEPROMProfile describes a 24Cxx EEPROM with 8-bit word addresses.
type EEPROMProfile struct {
	Name     string
	Address  Addr7
	Size     int
	PageSize int

	// Delay counts for the write cycle. Each data byte is followed by
	// Delay(ByteSettle); the stop by at least FinalSettleCount x
	// Delay(FinalSettle).
	ByteSettle       uint8
	FinalSettle      uint8
	FinalSettleCount int

	// WriteCycle is the self-timed write time (tWR). On a UnitDelayer the
	// final settle is stretched to cover it whatever the unit.
	WriteCycle time.Duration
}

// FinalSettles is the number of Delay(FinalSettle) calls after the stop of
// a write on d.
func (p EEPROMProfile) FinalSettles(d Delayer) int {
	return SettleCount(d, p.FinalSettle, p.WriteCycle, p.FinalSettleCount)
}

// AT24C02 is the 256-byte EEPROM on the reference board (A2..A0 grounded).
var AT24C02 = EEPROMProfile{
	Name:             "at24c02",
	Address:          0x50,
	Size:             256,
	PageSize:         8,
	ByteSettle:       ByteSettle,
	FinalSettle:      FinalSettle,
	FinalSettleCount: FinalSettleCount,
	WriteCycle:       5 * time.Millisecond,
}

// DACLevel maps a voltage to the DAC value for a reference of vref volts.
func DACLevel(volts, vref float32) byte {
	if vref <= 0 || volts <= 0 {
		return 0
	}
	if volts >= vref {
		return 255
	}
	return byte(volts/vref*255 + 0.5)
}

// ADCVolts converts an 8-bit sample to volts for a reference of vref volts.
func ADCVolts(sample byte, vref float32) float32 {
	return float32(sample) * vref / 255
}
