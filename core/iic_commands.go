package core

import (
	"errors"

	"iicbang/protocol"
)

// IICMaxChunk is the most data bytes one iic_eeprom_write or
// iic_eeprom_read carries; larger transfers are split by the host.
const IICMaxChunk = 48

// Status is the result code carried by every I2C response.
type Status uint8

const (
	StatusOK Status = iota
	StatusNack
	StatusBusError
	StatusBadArgument
)

var statusNames = []string{"ok", "nack", "bus_error", "bad_argument"}

var (
	// ErrBusFault is reported for StatusBusError: the pin driver failed.
	ErrBusFault = errors.New("bus driver error")

	// ErrBadArgument is reported for StatusBadArgument.
	ErrBadArgument = errors.New("bad argument")
)

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "status " + itoa(int(s))
}

// Err maps a status received from the firmware back to an error.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusNack:
		return ErrNoAck
	case StatusBusError:
		return ErrBusFault
	case StatusBadArgument:
		return ErrBadArgument
	}
	return errors.New("unknown " + s.String())
}

// StatusOf classifies a transaction error.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNoAck):
		return StatusNack
	case errors.Is(err, ErrShortBuffer), errors.Is(err, ErrBadArgument), errors.Is(err, ErrAddress10):
		return StatusBadArgument
	}
	return StatusBusError
}

type iicCommands struct {
	fw   *Firmware
	ctrl *Controller
}

// RegisterIICCommands exposes the controller's transactions as firmware
// commands.
func RegisterIICCommands(fw *Firmware, ctrl *Controller) {
	h := &iicCommands{fw: fw, ctrl: ctrl}
	reg := fw.Registry()

	reg.Register("iic_adc_read", "ctrl=%c", h.handleADCRead)
	reg.Register("iic_dac_write", "value=%c", h.handleDACWrite)
	reg.Register("iic_eeprom_write", "addr=%c data=%*s", h.handleEEPROMWrite)
	reg.Register("iic_eeprom_read", "addr=%c count=%c", h.handleEEPROMRead)
	reg.Register("iic_set_policy", "strict=%c", h.handleSetPolicy)

	reg.RegisterResponse("iic_status", "status=%c")
	reg.RegisterResponse("iic_adc_result", "status=%c value=%c")
	reg.RegisterResponse("iic_eeprom_data", "status=%c addr=%c data=%*s")
	h.registerRaw()

	dict := fw.Dictionary()
	dict.AddConstant("IIC_MAX_CHUNK", IICMaxChunk)
	dict.AddConstant("IIC_ADC_ADDR", uint8(ctrl.ADC().Address))
	dict.AddConstant("IIC_EEPROM_ADDR", uint8(ctrl.EEPROM().Address))
	dict.AddConstant("IIC_EEPROM_SIZE", ctrl.EEPROM().Size)
	dict.AddConstant("IIC_POLICY", ctrl.Policy().String())
	dict.AddEnumeration("iic_status", statusNames)
}

func (h *iicCommands) sendStatus(s Status) error {
	return h.fw.SendResponse("iic_status", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(s))
	})
}

func (h *iicCommands) handleADCRead(data *[]byte) error {
	ctrl, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if ctrl > 0xff {
		return h.fw.SendResponse("iic_adc_result", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(StatusBadArgument))
			protocol.EncodeVLQUint(out, 0)
		})
	}
	v, err := h.ctrl.ADCRead(byte(ctrl))
	s := StatusOf(err)
	if s != StatusOK {
		DebugPrintln("[IIC] adc read " + hex8(byte(ctrl)) + ": " + s.String())
	}
	return h.fw.SendResponse("iic_adc_result", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(s))
		protocol.EncodeVLQUint(out, uint32(v))
	})
}

func (h *iicCommands) handleDACWrite(data *[]byte) error {
	v, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if v > 0xff {
		return h.sendStatus(StatusBadArgument)
	}
	return h.sendStatus(StatusOf(h.ctrl.DACWrite(byte(v))))
}

func (h *iicCommands) handleEEPROMWrite(data *[]byte) error {
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	buf, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	if addr > 0xff || len(buf) > IICMaxChunk {
		return h.sendStatus(StatusBadArgument)
	}
	err = h.ctrl.EEPROMWrite(buf, uint8(addr), len(buf))
	if err != nil {
		DebugPrintln("[IIC] eeprom write at " + hex8(byte(addr)) + ": " + err.Error())
	}
	return h.sendStatus(StatusOf(err))
}

func (h *iicCommands) handleEEPROMRead(data *[]byte) error {
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	var buf [IICMaxChunk]byte
	var s Status
	if addr > 0xff || count > IICMaxChunk {
		s = StatusBadArgument
		count = 0
	} else {
		s = StatusOf(h.ctrl.EEPROMRead(buf[:], uint8(addr), int(count)))
	}
	if s != StatusOK {
		// don't hand back stale buffer contents
		count = 0
	}
	return h.fw.SendResponse("iic_eeprom_data", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(s))
		protocol.EncodeVLQUint(out, addr)
		protocol.EncodeVLQBytes(out, buf[:count])
	})
}

func (h *iicCommands) handleSetPolicy(data *[]byte) error {
	strict, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if strict != 0 {
		h.ctrl.SetPolicy(AckStrict)
	} else {
		h.ctrl.SetPolicy(AckPermissive)
	}
	DebugPrintln("[IIC] ack policy " + h.ctrl.Policy().String())
	return h.sendStatus(StatusOK)
}
