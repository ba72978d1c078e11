package core

import "iicbang/protocol"

// Raw transfers let the host reach any 7-bit device on the bus, not only
// the PCF8591 and AT24C02 the typed commands know about.
//
//	iic_write addr=%c data=%*s                -> iic_status
//	iic_read addr=%c reg=%*s read_len=%c      -> iic_read_response
//
// iic_read writes reg first when it is not empty, then reads read_len bytes
// after a repeated start.
func (h *iicCommands) registerRaw() {
	reg := h.fw.Registry()
	reg.Register("iic_write", "addr=%c data=%*s", h.handleWrite)
	reg.Register("iic_read", "addr=%c reg=%*s read_len=%c", h.handleRead)
	reg.RegisterResponse("iic_read_response", "status=%c addr=%c data=%*s")
}

func (h *iicCommands) handleWrite(data *[]byte) error {
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	w, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	if addr > 0x7f || len(w) > IICMaxChunk {
		return h.sendStatus(StatusBadArgument)
	}
	err = h.ctrl.Tx(uint16(addr), w, nil)
	if err != nil {
		DebugPrintln("[IIC] write to " + hex8(byte(addr)) + ": " + err.Error())
	}
	return h.sendStatus(StatusOf(err))
}

func (h *iicCommands) handleRead(data *[]byte) error {
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	w, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	n, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	var buf [IICMaxChunk]byte
	var s Status
	if addr > 0x7f || len(w) > IICMaxChunk || n > IICMaxChunk {
		s = StatusBadArgument
	} else {
		s = StatusOf(h.ctrl.Tx(uint16(addr), w, buf[:n]))
	}
	if s != StatusOK {
		n = 0
	}
	return h.fw.SendResponse("iic_read_response", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(s))
		protocol.EncodeVLQUint(out, addr)
		protocol.EncodeVLQBytes(out, buf[:n])
	})
}
