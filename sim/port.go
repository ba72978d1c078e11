package sim

import (
	"io"
	"sync"

	"iicbang/core"
	"iicbang/protocol"
)

// Port is an in-memory serial link to firmware running in the same
// process. Host writes are handled synchronously; the firmware's replies
// are delivered to Read in order.
type Port struct {
	mu      sync.Mutex
	fw      *core.Firmware
	in      *protocol.FifoBuffer
	out     *protocol.ScratchOutput
	r       *io.PipeReader
	w       *io.PipeWriter
	replies chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewPort creates the link. setup builds the firmware around the output
// buffer the port drains.
func NewPort(setup func(out protocol.OutputBuffer) *core.Firmware) *Port {
	p := &Port{
		in:      protocol.NewFifoBuffer(protocol.MessageMax),
		out:     protocol.NewScratchOutput(),
		replies: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
	p.r, p.w = io.Pipe()
	p.fw = setup(p.out)
	go p.deliver()
	return p
}

// Serve starts firmware with the I2C command set on a controller for the
// board and returns a host link to it.
func (b *Board) Serve(cfg core.ControllerConfig) (*Port, error) {
	ctrl, err := b.Controller(cfg)
	if err != nil {
		return nil, err
	}
	return NewPort(func(out protocol.OutputBuffer) *core.Firmware {
		fw := core.NewFirmware(out)
		core.RegisterIICCommands(fw, ctrl)
		fw.Dictionary().Build()
		return fw
	}), nil
}

// Firmware returns the firmware behind the port.
func (p *Port) Firmware() *core.Firmware {
	return p.fw
}

func (p *Port) deliver() {
	for {
		select {
		case b := <-p.replies:
			if _, err := p.w.Write(b); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.in.Write(b)
	p.fw.Receive(p.in)
	if out := p.out.Result(); len(out) > 0 {
		reply := append([]byte(nil), out...)
		p.out.Reset()
		select {
		case p.replies <- reply:
		case <-p.done:
			return n, io.ErrClosedPipe
		}
	}
	return n, nil
}

func (p *Port) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *Port) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.w.Close()
	})
	return p.r.Close()
}
