package protocol

import "sync/atomic"

// CommandHandler runs one decoded command. It consumes its arguments from
// the front of *data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware end of the link. It acknowledges every frame
// with the next expected sequence and dispatches the commands of in-order
// frames to the handler. Responses share the acknowledgement's sequence.
type Transport struct {
	nextSeq atomic.Uint32
	scanner frameScanner
	output  OutputBuffer
	handler CommandHandler

	resetCallback func()
	flushCallback func()
	errCallback   func(cmdID uint16, err error)
}

// NewTransport creates a synchronized transport expecting sequence 0x10.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		output:  output,
		handler: handler,
	}
	t.nextSeq.Store(MessageDest)
	t.scanner.synced = true
	t.scanner.onResync = t.sendAck
	return t
}

// Receive parses and handles every complete frame in input, popping the
// bytes it consumed.
func (t *Transport) Receive(input InputBuffer) {
	n := t.scanner.scan(input.Data(), t.handleFrame)
	input.Pop(n)
}

func (t *Transport) handleFrame(f Frame) {
	expected := uint8(t.nextSeq.Load())
	if f.Seq == MessageDest && expected != MessageDest {
		// host restarted its sequence
		t.nextSeq.Store(MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}
	if f.Seq == expected {
		t.nextSeq.Store(uint32(nextSeq(f.Seq)))
		t.dispatch(f.Payload)
	}
	// Out-of-order frames get the same reply, which acts as a NAK naming the
	// sequence still expected.
	t.sendAck()
}

func (t *Transport) dispatch(payload []byte) {
	defer func() {
		if recover() != nil {
			t.scanner.synced = false
		}
	}()
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			t.scanner.synced = false
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(id), &payload); err != nil {
			// arguments of the failed command can't be skipped reliably
			if t.errCallback != nil {
				t.errCallback(uint16(id), err)
			}
			return
		}
	}
}

func (t *Transport) sendAck() {
	seq := uint8(t.nextSeq.Load())
	if msg, err := EncodeFrame(seq, nil); err == nil {
		t.output.Output(msg)
	}
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand queues one response frame. It fails only when the encoded
// command does not fit in a frame.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	msg, err := EncodeFrame(uint8(t.nextSeq.Load()), func(out OutputBuffer) {
		EncodeVLQUint(out, uint32(cmdID))
		if args != nil {
			args(out)
		}
	})
	if err != nil {
		return err
	}
	t.output.Output(msg)
	return nil
}

// Reset returns to the power-on state, for example after a USB reconnect.
func (t *Transport) Reset() {
	t.scanner.synced = true
	t.nextSeq.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback registers fn to run when the host restarts its sequence.
func (t *Transport) SetResetCallback(fn func()) {
	t.resetCallback = fn
}

// SetFlushCallback registers fn to push output to the wire right after each
// acknowledgement.
func (t *Transport) SetFlushCallback(fn func()) {
	t.flushCallback = fn
}

// SetErrorCallback registers fn to see command handler errors.
func (t *Transport) SetErrorCallback(fn func(cmdID uint16, err error)) {
	t.errCallback = fn
}
