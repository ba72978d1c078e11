// Package protocol implements the framed serial protocol between the host
// and the bus firmware. Framing follows Klipper: a length byte, a sequence
// byte, VLQ-encoded commands, a CRC16 and a 0x7E sync byte.
package protocol

// Version is the firmware protocol version reported in the dictionary
const Version = "iicbang-0.1.0"

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// Sequence byte: high nibble always MessageDest, low nibble counts
	MessageDest     = 0x10
	MessageSeqMask  = 0x0F
	MessageSeqShift = 4

	// MessageMax bounds the scratch output buffer, which may hold several
	// frames between flushes.
	MessageMax = 512

	// MessagePayloadMax is the largest payload that fits in one frame
	MessagePayloadMax = MessageLengthMax - MessageLengthMin
)

// nextSeq advances a sequence byte, wrapping within 0x10-0x1F
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
