package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTimeout = errors.New("timeout")
	ErrClosed  = errors.New("transport closed")
)

// DefaultTimeout bounds the wait for an acknowledgement or response.
const DefaultTimeout = 2 * time.Second

// maxRetransmit is how often a frame is resent after a NAK.
const maxRetransmit = 3

// ResponseHandler sees every response as it arrives, before it is queued
// for ReceiveResponse.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is a response frame received from the firmware.
type Message struct {
	Sequence uint8
	Payload  []byte
}

// Command splits the payload into the command ID and its arguments.
func (m *Message) Command() (uint16, []byte, error) {
	data := m.Payload
	id, err := DecodeVLQUint(&data)
	return uint16(id), data, err
}

// HostTransport is the host end of the link: it sends one command frame at
// a time, waits for its acknowledgement and queues response frames.
type HostTransport struct {
	port io.ReadWriteCloser
	seq  atomic.Uint32

	readMu  sync.Mutex
	scanner frameScanner
	input   *FifoBuffer

	writeMu sync.Mutex

	acks      chan uint8
	responses chan *Message
	handler   atomic.Pointer[ResponseHandler]

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewHostTransport starts reading from port in the background.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		input:     NewFifoBuffer(MessageMax),
		acks:      make(chan uint8, 4),
		responses: make(chan *Message, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	t.seq.Store(MessageDest)
	t.scanner.synced = true
	go t.readLoop()
	return t
}

// SendCommand sends one command and waits for its acknowledgement.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultTimeout)
}

// SendCommandWithTimeout is SendCommand with a custom acknowledgement
// timeout. A NAK, an acknowledgement naming the same sequence, triggers a
// retransmit.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	seq := uint8(t.seq.Load())
	msg, err := EncodeFrame(seq, func(out OutputBuffer) {
		EncodeVLQUint(out, uint32(cmdID))
		if args != nil {
			args(out)
		}
	})
	if err != nil {
		return fmt.Errorf("command %d: %w", cmdID, err)
	}

	for attempt := 0; ; attempt++ {
		if _, err := t.port.Write(msg); err != nil {
			return fmt.Errorf("write command %d: %w", cmdID, err)
		}
		ack, err := t.waitAck(timeout)
		if err != nil {
			return fmt.Errorf("command %d: ack: %w", cmdID, err)
		}
		switch {
		case ack == nextSeq(seq):
			t.seq.Store(uint32(ack))
			return nil
		case ack == seq && attempt < maxRetransmit:
			continue
		default:
			return fmt.Errorf("command %d: sequence mismatch: sent 0x%02x, acked 0x%02x", cmdID, seq, ack)
		}
	}
}

func (t *HostTransport) waitAck(timeout time.Duration) (uint8, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case seq := <-t.acks:
		return seq, nil
	case <-timer.C:
		return 0, fmt.Errorf("after %v: %w", timeout, ErrTimeout)
	case <-t.stop:
		return 0, ErrClosed
	}
}

// ReceiveResponse returns the oldest queued response, waiting up to timeout
// for one to arrive.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-t.responses:
		return m, nil
	case <-timer.C:
		return nil, fmt.Errorf("response after %v: %w", timeout, ErrTimeout)
	case <-t.stop:
		return nil, ErrClosed
	}
}

// SetResponseHandler installs h, or removes the handler if h is nil.
func (t *HostTransport) SetResponseHandler(h ResponseHandler) {
	if h == nil {
		t.handler.Store(nil)
		return
	}
	t.handler.Store(&h)
}

func (t *HostTransport) readLoop() {
	defer close(t.done)
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.feed(buf[:n])
		}
		if err != nil {
			select {
			case <-t.stop:
				return
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// feed appends received bytes and dispatches complete frames.
func (t *HostTransport) feed(p []byte) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for len(p) > 0 {
		w := t.input.Write(p)
		p = p[w:]
		n := t.scanner.scan(t.input.Data(), t.dispatch)
		t.input.Pop(n)
		if w == 0 && n == 0 {
			// a full buffer with no frame in it is garbage
			t.input.Reset()
			t.scanner.synced = false
		}
	}
}

func (t *HostTransport) dispatch(f Frame) {
	if f.IsAck() {
		select {
		case t.acks <- f.Seq:
		default:
		}
		return
	}

	m := &Message{
		Sequence: f.Seq,
		Payload:  append([]byte(nil), f.Payload...),
	}
	if h := t.handler.Load(); h != nil {
		if id, args, err := m.Command(); err == nil {
			_ = (*h)(id, &args)
		}
	}
	select {
	case t.responses <- m:
	default:
		// queue full: drop the oldest
		select {
		case <-t.responses:
		default:
		}
		t.responses <- m
	}
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		err = t.port.Close()
		<-t.done
	})
	return err
}

// Reset restarts the sequence at 0x10 and drops queued acknowledgements,
// responses and partial input.
func (t *HostTransport) Reset() {
	t.seq.Store(MessageDest)
	for len(t.acks) > 0 {
		<-t.acks
	}
	for len(t.responses) > 0 {
		<-t.responses
	}
	t.readMu.Lock()
	t.input.Reset()
	t.scanner.synced = true
	t.readMu.Unlock()
}

// CurrentSequence is the sequence the next command will carry.
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(t.seq.Load())
}
