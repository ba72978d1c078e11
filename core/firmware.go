package core

import (
	"errors"

	"iicbang/protocol"
)

// Firmware ties a command registry and its dictionary to the MCU end of the
// serial link.
type Firmware struct {
	reg       *CommandRegistry
	dict      *Dictionary
	transport *protocol.Transport
}

// NewFirmware creates the firmware command surface writing frames to out.
//
// identify_response and identify are registered first: hosts bootstrap with
// the fixed IDs 0 and 1 before they have read the dictionary.
func NewFirmware(out protocol.OutputBuffer) *Firmware {
	reg := NewCommandRegistry()
	fw := &Firmware{
		reg:  reg,
		dict: NewDictionary(reg, protocol.Version),
	}
	fw.transport = protocol.NewTransport(out, fw.dispatch)
	fw.transport.SetErrorCallback(func(id uint16, err error) {
		DebugPrintln("[CMD] " + itoa(int(id)) + ": " + err.Error())
	})

	reg.RegisterResponse("identify_response", "offset=%u data=%*s") // ID 0
	reg.Register("identify", "offset=%u count=%c", fw.handleIdentify) // ID 1
	return fw
}

func (fw *Firmware) Registry() *CommandRegistry {
	return fw.reg
}

func (fw *Firmware) Dictionary() *Dictionary {
	return fw.dict
}

func (fw *Firmware) Transport() *protocol.Transport {
	return fw.transport
}

// Receive handles every complete frame in input.
func (fw *Firmware) Receive(input protocol.InputBuffer) {
	fw.transport.Receive(input)
}

func (fw *Firmware) dispatch(id uint16, data *[]byte) error {
	return fw.reg.Dispatch(id, data)
}

// SendResponse queues the named response. args encodes its fields in format
// order.
func (fw *Firmware) SendResponse(name string, args func(output protocol.OutputBuffer)) error {
	c, ok := fw.reg.LookupName(name)
	if !ok {
		return errors.New("unknown response " + name)
	}
	return fw.transport.SendCommand(c.ID, args)
}

func (fw *Firmware) handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := fw.dict.Chunk(offset, uint8(count))
	return fw.SendResponse("identify_response", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQBytes(out, chunk)
	})
}
