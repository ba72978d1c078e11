package protocol

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// loopPort connects a HostTransport to a firmware Transport in memory.
type loopPort struct {
	mu     sync.Mutex
	in     *FifoBuffer
	out    *ScratchOutput
	mcu    *Transport
	r      *io.PipeReader
	w      *io.PipeWriter
	writes int
	// drop makes the firmware ignore the next n writes
	drop int
	// corrupt flips the command byte of the next n writes
	corrupt int
}

func newLoopPort(handler CommandHandler) *loopPort {
	p := &loopPort{in: NewFifoBuffer(MessageMax), out: NewScratchOutput()}
	p.r, p.w = io.Pipe()
	p.mcu = NewTransport(p.out, handler)
	return p
}

func (p *loopPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.writes++
	if p.drop > 0 {
		p.drop--
		p.mu.Unlock()
		return len(b), nil
	}
	if p.corrupt > 0 {
		p.corrupt--
		b = append([]byte(nil), b...)
		b[MessageHeaderSize] ^= 0xFF
	}
	p.in.Write(b)
	p.mcu.Receive(p.in)
	reply := append([]byte(nil), p.out.Result()...)
	p.out.Reset()
	p.mu.Unlock()

	go p.w.Write(reply)
	return len(b), nil
}

func (p *loopPort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *loopPort) Close() error {
	p.w.Close()
	return p.r.Close()
}

func TestTransportRoundTrip(t *testing.T) {
	var got []uint32
	var mcu *Transport
	port := newLoopPort(func(cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		got = append(got, v)
		return mcu.SendCommand(cmdID+1, func(out OutputBuffer) {
			EncodeVLQUint(out, v*2)
		})
	})
	mcu = port.mcu
	host := NewHostTransport(port)
	defer host.Close()

	for i := uint32(1); i <= 20; i++ {
		err := host.SendCommand(5, func(out OutputBuffer) { EncodeVLQUint(out, i) })
		if err != nil {
			t.Fatalf("SendCommand %d failed: %v", i, err)
		}
		resp, err := host.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("ReceiveResponse %d failed: %v", i, err)
		}
		id, args, err := resp.Command()
		if err != nil || id != 6 {
			t.Fatalf("Expected response ID 6, got %d (%v)", id, err)
		}
		v, _ := DecodeVLQUint(&args)
		if v != i*2 {
			t.Errorf("Expected response value %d, got %d", i*2, v)
		}
	}

	// 20 commands wrap the 16-entry sequence space
	if diff := cmp.Diff([]uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, got); diff != "" {
		t.Errorf("Handled values mismatch (-want +got):\n%s", diff)
	}
	if seq := host.CurrentSequence(); seq != MessageDest|(20&MessageSeqMask) {
		t.Errorf("Expected sequence 0x%02x, got 0x%02x", MessageDest|(20&MessageSeqMask), seq)
	}
}

func TestTransportAckTimeout(t *testing.T) {
	port := newLoopPort(nil)
	port.drop = 1
	host := NewHostTransport(port)
	defer host.Close()

	err := host.SendCommandWithTimeout(1, nil, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestTransportRetransmitsOnNak(t *testing.T) {
	calls := 0
	port := newLoopPort(func(cmdID uint16, data *[]byte) error {
		calls++
		return nil
	})
	port.corrupt = 1
	host := NewHostTransport(port)
	defer host.Close()

	if err := host.SendCommand(1, nil); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if port.writes != 2 {
		t.Errorf("Expected one retransmit, got %d writes", port.writes)
	}
	if calls != 1 {
		t.Errorf("Expected the command to run once, ran %d times", calls)
	}
	if seq := host.CurrentSequence(); seq != 0x11 {
		t.Errorf("Expected sequence 0x11, got 0x%02x", seq)
	}
}

func TestTransportGivesUpAfterRetransmits(t *testing.T) {
	port := newLoopPort(func(cmdID uint16, data *[]byte) error { return nil })
	port.corrupt = 100
	host := NewHostTransport(port)
	defer host.Close()

	if err := host.SendCommand(1, nil); err == nil {
		t.Fatal("Expected an error when every frame is corrupted")
	}
	if port.writes != 1+maxRetransmit {
		t.Errorf("Expected %d writes, got %d", 1+maxRetransmit, port.writes)
	}
}

func TestTransportHostReset(t *testing.T) {
	resets := 0
	port := newLoopPort(func(cmdID uint16, data *[]byte) error { return nil })
	port.mcu.SetResetCallback(func() { resets++ })
	host := NewHostTransport(port)
	defer host.Close()

	for i := 0; i < 3; i++ {
		if err := host.SendCommand(1, nil); err != nil {
			t.Fatalf("SendCommand failed: %v", err)
		}
	}
	host.Reset()
	if err := host.SendCommand(1, nil); err != nil {
		t.Fatalf("SendCommand after reset failed: %v", err)
	}
	if resets != 1 {
		t.Errorf("Expected firmware to see one host reset, got %d", resets)
	}
}

func TestTransportHandlerError(t *testing.T) {
	var failed []uint16
	port := newLoopPort(func(cmdID uint16, data *[]byte) error {
		return errors.New("bad command")
	})
	port.mcu.SetErrorCallback(func(cmdID uint16, err error) {
		failed = append(failed, cmdID)
	})
	host := NewHostTransport(port)
	defer host.Close()

	if err := host.SendCommand(9, nil); err != nil {
		t.Fatalf("A handler error must still be acknowledged: %v", err)
	}
	if diff := cmp.Diff([]uint16{9}, failed); diff != "" {
		t.Errorf("Error callback mismatch (-want +got):\n%s", diff)
	}
}
