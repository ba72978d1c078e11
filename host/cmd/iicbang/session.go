package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"iicbang/config"
	"iicbang/core"
	"iicbang/host/mcu"
	"iicbang/host/periphgpio"
	"iicbang/host/serial"
	"iicbang/sim"
)

// device is what the operations need from a backend.
type device interface {
	ADCRead(control byte) (byte, error)
	DACWrite(value byte) error
	EEPROMWrite(addr uint8, data []byte) error
	EEPROMRead(addr uint8, count int) ([]byte, error)
	SetPolicy(p core.AckPolicy) error
	Tx(addr uint16, w, r []byte) error
}

// localDevice runs transactions on a controller in this process.
type localDevice struct {
	ctrl *core.Controller
}

func (d localDevice) ADCRead(control byte) (byte, error) { return d.ctrl.ADCRead(control) }
func (d localDevice) DACWrite(value byte) error          { return d.ctrl.DACWrite(value) }

func (d localDevice) EEPROMWrite(addr uint8, data []byte) error {
	return d.ctrl.EEPROMWrite(data, addr, len(data))
}

func (d localDevice) EEPROMRead(addr uint8, count int) ([]byte, error) {
	buf := make([]byte, count)
	if err := d.ctrl.EEPROMRead(buf, addr, count); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d localDevice) Tx(addr uint16, w, r []byte) error { return d.ctrl.Tx(addr, w, r) }

func (d localDevice) SetPolicy(p core.AckPolicy) error {
	d.ctrl.SetPolicy(p)
	return nil
}

type session struct {
	dev   device
	mcu   *mcu.MCU   // serial and sim
	board *sim.Board // sim only
	log   *zap.Logger
}

func openSession(cfg *config.Config, log *zap.Logger) (*session, error) {
	ctrlCfg, err := cfg.Bus.Controller()
	if err != nil {
		return nil, err
	}
	core.SetDebugWriter(func(s string) { log.Debug(s) })
	core.SetDebugEnabled(log.Core().Enabled(zap.DebugLevel))

	switch cfg.Backend {
	case "serial":
		sc := serial.DefaultConfig(cfg.Serial.Device)
		sc.Baud = cfg.Serial.Baud
		sc.ReadTimeout = cfg.Serial.ReadTimeout
		m, err := mcu.Connect(sc, log)
		if err != nil {
			return nil, err
		}
		if err := m.SetPolicy(ctrlCfg.Policy); err != nil {
			m.Close()
			return nil, err
		}
		return &session{dev: m, mcu: m, log: log}, nil

	case "periph":
		drv, err := periphgpio.Open(cfg.Periph.SCL, cfg.Periph.SDA)
		if err != nil {
			return nil, err
		}
		bus, err := drv.Bus(core.NewBusyDelay(cfg.Bus.Unit()))
		if err != nil {
			return nil, err
		}
		ctrl := core.NewController(bus, ctrlCfg)
		log.Info("local bus", zap.Stringer("bus", periphgpio.NewI2C(ctrl)))
		return &session{dev: localDevice{ctrl: ctrl}, log: log}, nil

	case "sim":
		return openSim(ctrlCfg, log)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// openSim runs the firmware against the emulated board in process and
// talks to it over the same protocol as a real MCU.
func openSim(ctrlCfg core.ControllerConfig, log *zap.Logger) (*session, error) {
	b := sim.NewBoard()
	port, err := b.Serve(ctrlCfg)
	if err != nil {
		return nil, err
	}
	m := mcu.New(port, log)
	if err := m.RetrieveDictionary(); err != nil {
		m.Close()
		return nil, err
	}
	return &session{dev: m, mcu: m, board: b, log: log}, nil
}

func (s *session) Close() error {
	if s.mcu != nil {
		return s.mcu.Close()
	}
	return nil
}

// Trace turns printing of emulated bus events on or off.
func (s *session) Trace(w io.Writer, on bool) error {
	if s.board == nil {
		return errors.New("trace needs the sim backend")
	}
	if !on {
		s.board.Monitor.OnEvent = nil
		return nil
	}
	s.board.Monitor.OnEvent = func(e sim.Event) {
		fmt.Fprintf(w, "%10v %s\n", e.At, e)
	}
	return nil
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return uint8(v), nil
}

// Run executes one operation.
func (s *session) Run(w io.Writer, args []string) error {
	op, args := args[0], args[1:]
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d argument(s)", op, n)
		}
		return nil
	}

	switch op {
	case "adc":
		if err := need(1); err != nil {
			return err
		}
		ctrl, err := parseByte(args[0])
		if err != nil {
			return err
		}
		v, err := s.dev.ADCRead(ctrl)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "AIN%d = %d (%.2fV of 5V)\n", ctrl&core.PCF8591ChannelMask, v, core.ADCVolts(v, 5))

	case "dac":
		if err := need(1); err != nil {
			return err
		}
		v, err := parseByte(args[0])
		if err != nil {
			return err
		}
		if err := s.dev.DACWrite(v); err != nil {
			return err
		}
		fmt.Fprintf(w, "DAC = %d\n", v)

	case "eeprom-write":
		if err := need(2); err != nil {
			return err
		}
		addr, err := parseByte(args[0])
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}
		if err := s.dev.EEPROMWrite(addr, data); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %d bytes at %#02x\n", len(data), addr)

	case "eeprom-read":
		if err := need(2); err != nil {
			return err
		}
		addr, err := parseByte(args[0])
		if err != nil {
			return err
		}
		count, err := strconv.Atoi(args[1])
		if err != nil || count < 0 || count > 256 {
			return fmt.Errorf("invalid count %q", args[1])
		}
		data, err := s.dev.EEPROMRead(addr, count)
		if err != nil {
			return err
		}
		fmt.Fprint(w, hex.Dump(data))

	case "tx":
		if err := need(3); err != nil {
			return err
		}
		addr, err := parseByte(args[0])
		if err != nil {
			return err
		}
		var wbuf []byte
		if args[1] != "-" {
			if wbuf, err = hex.DecodeString(args[1]); err != nil {
				return fmt.Errorf("invalid hex data: %w", err)
			}
		}
		count, err := strconv.Atoi(args[2])
		if err != nil || count < 0 {
			return fmt.Errorf("invalid count %q", args[2])
		}
		r := make([]byte, count)
		if err := s.dev.Tx(uint16(addr), wbuf, r); err != nil {
			return err
		}
		fmt.Fprintf(w, "%#02x: %s\n", addr, hex.EncodeToString(r))

	case "policy":
		if err := need(1); err != nil {
			return err
		}
		p, err := core.ParseAckPolicy(args[0])
		if err != nil {
			return err
		}
		if err := s.dev.SetPolicy(p); err != nil {
			return err
		}
		fmt.Fprintf(w, "policy %s\n", p)

	case "dict":
		if s.mcu == nil {
			return errors.New("dict needs the serial or sim backend")
		}
		s.mcu.PrintDictionary(w)

	case "trace":
		if err := need(1); err != nil {
			return err
		}
		return s.Trace(w, args[0] == "on")

	default:
		return fmt.Errorf("unknown operation %q (type 'help' for available operations)", op)
	}
	return nil
}
