package protocol

import "errors"

var ErrFrameTooLong = errors.New("frame exceeds maximum message length")

// Frame is one validated message block.
type Frame struct {
	Seq     uint8
	Payload []byte // aliases the scanned input
}

// IsAck reports whether the frame is a bare ACK/NAK with no commands.
func (f Frame) IsAck() bool {
	return len(f.Payload) == 0
}

// frameScanner splits a byte stream into frames. After a bad length,
// sequence, CRC or sync byte it drops input up to the next sync byte.
type frameScanner struct {
	synced bool
	// onResync runs each time a sync byte ends a desynchronized stretch
	onResync func()
}

// scan calls fn for each complete frame at the front of data and returns the
// number of bytes consumed. A trailing partial frame is left unconsumed.
func (s *frameScanner) scan(data []byte, fn func(Frame)) int {
	total := len(data)
	for len(data) > 0 {
		if !s.synced {
			i := indexSync(data)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			s.synced = true
			if s.onResync != nil {
				s.onResync()
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}
		n := int(data[MessagePositionLen])
		if n < MessageLengthMin || n > MessageLengthMax ||
			data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
			s.synced = false
			continue
		}
		if len(data) < n {
			break
		}
		if data[n-MessageTrailerSync] != MessageValueSync ||
			frameCRC(data[:n]) != CRC16(data[:n-MessageTrailerSize]) {
			s.synced = false
			continue
		}
		fn(Frame{
			Seq:     data[MessagePositionSeq],
			Payload: data[MessageHeaderSize : n-MessageTrailerSize],
		})
		data = data[n:]
	}
	return total - len(data)
}

func indexSync(data []byte) int {
	for i, b := range data {
		if b == MessageValueSync {
			return i
		}
	}
	return -1
}

func frameCRC(msg []byte) uint16 {
	i := len(msg) - MessageTrailerCRC
	return uint16(msg[i])<<8 | uint16(msg[i+1])
}

// EncodeFrame builds a complete frame with sequence seq. body writes the
// payload.
func EncodeFrame(seq uint8, body func(OutputBuffer)) ([]byte, error) {
	out := NewScratchOutput()
	out.Output([]byte{0, seq})
	if body != nil {
		body(out)
	}
	n := out.CurPosition() + MessageTrailerSize
	if n > MessageLengthMax {
		return nil, ErrFrameTooLong
	}
	out.Update(MessagePositionLen, uint8(n))
	crc := CRC16(out.Result())
	out.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
	return append([]byte(nil), out.Result()...), nil
}
