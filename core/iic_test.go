package core_test

import (
	"errors"
	"testing"

	"iicbang/core"
	"iicbang/sim"
)

// echoDevice acknowledges everything and reads back the last byte written.
type echoDevice struct {
	addr uint8
	last byte
}

func (d *echoDevice) Addr() uint8          { return d.addr }
func (d *echoDevice) Begin(read bool) bool { return true }
func (d *echoDevice) Write(b byte) bool    { d.last = b; return true }
func (d *echoDevice) Read() byte           { return d.last }
func (d *echoDevice) End(stop bool)        {}

func newEchoBus(t *testing.T) (*core.Bus, *sim.Wire) {
	t.Helper()
	w := sim.NewWire(sim.BoardSCL, sim.BoardSDA, nil)
	w.Attach(&echoDevice{addr: 0x22})
	bus := core.NewBus(w, sim.BoardSCL, sim.BoardSDA, w.Clock())
	if err := bus.Configure(); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	return bus, w
}

func TestSendReceiveLoopback(t *testing.T) {
	bus, w := newEchoBus(t)
	a := core.Addr7(0x22)

	for v := 0; v < 256; v++ {
		bus.Start()
		bus.SendByte(a.WriteAddr())
		if ack := bus.WaitAck(); ack != 0 {
			t.Fatalf("Value %#02x: address not acknowledged", v)
		}
		bus.SendByte(byte(v))
		if ack := bus.WaitAck(); ack != 0 {
			t.Fatalf("Value %#02x: data not acknowledged", v)
		}
		bus.Start()
		bus.SendByte(a.ReadAddr())
		if ack := bus.WaitAck(); ack != 0 {
			t.Fatalf("Value %#02x: read address not acknowledged", v)
		}
		got := bus.ReceiveByte()
		bus.SendAck(1)
		bus.Stop()

		if got != byte(v) {
			t.Errorf("Expected %#02x, got %#02x", v, got)
		}
	}

	if !w.Idle() {
		t.Error("Bus not idle after stop")
	}
	if err := bus.Err(); err != nil {
		t.Errorf("Unexpected GPIO error: %v", err)
	}
}

func TestWaitAckWithoutDevice(t *testing.T) {
	bus, _ := newEchoBus(t)

	bus.Start()
	bus.SendByte(core.Addr7(0x23).WriteAddr())
	if ack := bus.WaitAck(); ack != 1 {
		t.Errorf("Expected nack from an empty address, got %d", ack)
	}
	bus.Stop()
}

func TestWaitAckAfterZeroBit(t *testing.T) {
	bus, w := newEchoBus(t)

	// 0x46 is 0x23 for writing: the last bit sent is 0, which the master
	// must release before sampling the acknowledgement.
	bus.Start()
	bus.SendByte(0x46)
	if ack := bus.WaitAck(); ack != 1 {
		t.Errorf("Trailing zero bit read back as an acknowledgement")
	}
	bus.Stop()

	if !w.Idle() {
		t.Error("Bus not idle after stop")
	}
}

func TestStartStopConditions(t *testing.T) {
	b := sim.NewBoard()
	bus, err := b.Bus()
	if err != nil {
		t.Fatalf("Bus failed: %v", err)
	}

	bus.Start()
	bus.Start()
	bus.Stop()

	if got := b.Monitor.String(); got != "S S P" {
		t.Errorf("Expected 'S S P', got %q", got)
	}
	if !b.Wire.Idle() {
		t.Error("Bus not idle after stop")
	}
}

func TestBusStickyGPIOError(t *testing.T) {
	bus, w := newEchoBus(t)
	boom := errors.New("pin gone")

	w.Fail(sim.BoardSDA, boom)
	bus.Start()
	bus.SendByte(0x44)
	bus.WaitAck()
	bus.Stop()

	if !errors.Is(bus.Err(), boom) {
		t.Errorf("Expected sticky error %v, got %v", boom, bus.Err())
	}

	w.Fail(sim.BoardSDA, nil)
	bus.ClearErr()
	if bus.Err() != nil {
		t.Errorf("ClearErr left %v", bus.Err())
	}
}

func TestConfigureReportsPinError(t *testing.T) {
	w := sim.NewWire(sim.BoardSCL, sim.BoardSDA, nil)
	bus := core.NewBus(w, sim.BoardSCL, 7, w.Clock())

	if err := bus.Configure(); !errors.Is(err, sim.ErrUnknownPin) {
		t.Errorf("Expected ErrUnknownPin, got %v", err)
	}
}
