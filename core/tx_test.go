package core_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/tester"

	"iicbang/core"
	"iicbang/sim"
)

// registerDevice is an 8-bit register file: the first byte written selects
// the register, later bytes are written from there, reads continue from
// the selected register.
type registerDevice struct {
	addr  uint8
	regs  [tester.MaxRegisters]byte
	ptr   int
	first bool
}

func (d *registerDevice) Addr() uint8 { return d.addr }

func (d *registerDevice) Begin(read bool) bool {
	d.first = !read
	return true
}

func (d *registerDevice) Write(b byte) bool {
	if d.first {
		d.ptr = int(b)
		d.first = false
		return true
	}
	d.regs[d.ptr] = b
	d.ptr++
	return true
}

func (d *registerDevice) Read() byte {
	b := d.regs[d.ptr%len(d.regs)]
	d.ptr++
	return b
}

func (d *registerDevice) End(stop bool) {}

// TestTxMatchesReferenceDevice runs the same register transactions on the
// bit-banged bus and on the in-memory reference bus and compares results.
func TestTxMatchesReferenceDevice(t *testing.T) {
	const addr = 0x3c

	w := sim.NewWire(sim.BoardSCL, sim.BoardSDA, nil)
	dev := &registerDevice{addr: addr}
	w.Attach(dev)
	bus := core.NewBus(w, sim.BoardSCL, sim.BoardSDA, w.Clock())
	if err := bus.Configure(); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	ctrl := core.NewController(bus, core.ControllerConfig{})

	ref := tester.NewI2CBus(t)
	refDev := ref.NewDevice(addr)

	buses := []drivers.I2C{ctrl, ref}

	steps := []struct {
		w []byte
		r int
	}{
		{w: []byte{0x00, 0xde, 0xad, 0xbe, 0xef}},
		{w: []byte{0x10, 0x01, 0x02}},
		{w: []byte{0x00}, r: 4},
		{w: []byte{0x10}, r: 2},
		{w: []byte{0x02}, r: 1},
		{w: []byte{0x20}, r: 3},
	}

	for i, step := range steps {
		var results [2][]byte
		for j, b := range buses {
			r := make([]byte, step.r)
			if err := b.Tx(addr, step.w, r); err != nil {
				t.Fatalf("Step %d bus %d: Tx failed: %v", i, j, err)
			}
			results[j] = r
		}
		if diff := cmp.Diff(results[1], results[0]); diff != "" {
			t.Errorf("Step %d: bit-banged read differs from reference (-ref +got):\n%s", i, diff)
		}
	}

	if diff := cmp.Diff(refDev.Registers[:0x20], dev.regs[:0x20]); diff != "" {
		t.Errorf("Register file differs from reference (-ref +got):\n%s", diff)
	}
}

func TestTxTrace(t *testing.T) {
	b := sim.NewBoard()
	ctrl, err := b.Controller(core.ControllerConfig{})
	if err != nil {
		t.Fatalf("Controller failed: %v", err)
	}
	b.EEPROM.Mem[5] = 0x55
	b.EEPROM.Mem[6] = 0x66

	r := make([]byte, 2)
	if err := ctrl.Tx(0x50, []byte{5}, r); err != nil {
		t.Fatalf("Tx failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0x55, 0x66}, r); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}
	if got, want := b.Monitor.String(), "S a0+ 05+ S a1+ 55+ 66- P"; got != want {
		t.Errorf("Bus trace mismatch:\nwant %s\ngot  %s", want, got)
	}
}

func TestTxReadOnly(t *testing.T) {
	b := sim.NewBoard()
	ctrl, _ := b.Controller(core.ControllerConfig{})
	b.ADC.Inputs[0] = 0x42

	r := make([]byte, 1)
	if err := ctrl.Tx(0x48, nil, r); err != nil {
		t.Fatalf("Tx failed: %v", err)
	}
	if r[0] != 0x42 {
		t.Errorf("Expected 0x42, got %#02x", r[0])
	}
	if got, want := b.Monitor.String(), "S 91+ 42- P"; got != want {
		t.Errorf("Bus trace mismatch:\nwant %s\ngot  %s", want, got)
	}
}

func TestTxProbe(t *testing.T) {
	b := sim.NewBoard()
	ctrl, _ := b.Controller(core.ControllerConfig{})

	if err := ctrl.Tx(0x50, nil, nil); err != nil {
		t.Errorf("Probe of a present device failed: %v", err)
	}
	if err := ctrl.Tx(0x51, nil, nil); !errors.Is(err, core.ErrNoSuchDevice) {
		t.Errorf("Probe of an empty address: expected ErrNoSuchDevice, got %v", err)
	}
	if err := ctrl.Tx(0x150, nil, nil); !errors.Is(err, core.ErrAddress10) {
		t.Errorf("Expected ErrAddress10, got %v", err)
	}
}

func TestSetSpeedHz(t *testing.T) {
	w := sim.NewWire(sim.BoardSCL, sim.BoardSDA, nil)
	bus := core.NewBus(w, sim.BoardSCL, sim.BoardSDA, core.NewBusyDelay(0))
	ctrl := core.NewController(bus, core.ControllerConfig{})

	if err := ctrl.SetSpeedHz(50000); err != nil {
		t.Fatalf("SetSpeedHz failed: %v", err)
	}
	d := bus.Delayer().(*core.BusyDelay)
	if d.Unit != core.UnitForSpeed(50000) {
		t.Errorf("Expected unit %v, got %v", core.UnitForSpeed(50000), d.Unit)
	}

	if got := ctrl.String(); got != "iicbang(scl=0,sda=1)" {
		t.Errorf("Unexpected String(): %q", got)
	}
}
