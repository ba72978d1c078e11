package mcu

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"iicbang/core"
	"iicbang/sim"
)

func connectSim(t *testing.T, cfg core.ControllerConfig) (*MCU, *sim.Board) {
	t.Helper()
	b := sim.NewBoard()
	port, err := b.Serve(cfg)
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	m := New(port, zaptest.NewLogger(t))
	t.Cleanup(func() { m.Close() })
	if err := m.RetrieveDictionary(); err != nil {
		t.Fatalf("RetrieveDictionary failed: %v", err)
	}
	return m, b
}

func TestRetrieveDictionary(t *testing.T) {
	m, _ := connectSim(t, core.ControllerConfig{})
	d := m.Dictionary()

	if d.Version == "" {
		t.Error("Dictionary has no version")
	}
	if d.Config["IIC_MAX_CHUNK"] != "48" {
		t.Errorf("Expected IIC_MAX_CHUNK 48, got %q", d.Config["IIC_MAX_CHUNK"])
	}
	if d.Config["IIC_EEPROM_ADDR"] != "80" {
		t.Errorf("Expected IIC_EEPROM_ADDR 80, got %q", d.Config["IIC_EEPROM_ADDR"])
	}
	if _, ok := m.commands["iic_eeprom_read"]; !ok {
		t.Error("iic_eeprom_read missing from the command index")
	}
	if d.Enumerations["iic_status"]["nack"] != int(core.StatusNack) {
		t.Errorf("Unexpected iic_status enumeration: %v", d.Enumerations["iic_status"])
	}

	var out bytes.Buffer
	m.PrintDictionary(&out)
	if !strings.Contains(out.String(), "iic_adc_read ctrl=%c") {
		t.Errorf("Summary lacks the iic_adc_read format:\n%s", out.String())
	}
}

func TestEEPROMRoundTripChunked(t *testing.T) {
	m, b := connectSim(t, core.ControllerConfig{})

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i * 3)
	}
	if err := m.EEPROMWrite(0xF0, data); err != nil {
		t.Fatalf("EEPROMWrite failed: %v", err)
	}
	if b.EEPROM.Writes != 3 {
		t.Errorf("Expected 3 write cycles for 100 bytes, got %d", b.EEPROM.Writes)
	}

	got, err := m.EEPROMRead(0xF0, len(data))
	if err != nil {
		t.Fatalf("EEPROMRead failed: %v", err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("Read back mismatch (-want +got):\n%s", diff)
	}
	// the word address wrapped past 0xFF
	if b.EEPROM.Mem[0x00] != data[0x10] {
		t.Errorf("Expected wrap into 0x00, got %#02x", b.EEPROM.Mem[0x00])
	}
}

func TestADCAndDAC(t *testing.T) {
	m, b := connectSim(t, core.ControllerConfig{})
	b.ADC.Inputs[core.ChannelAIN3] = 0x7a

	v, err := m.ADCRead(core.ControlByte(false, core.ChannelAIN3))
	if err != nil {
		t.Fatalf("ADCRead failed: %v", err)
	}
	if v != 0x7a {
		t.Errorf("Expected 0x7a, got %#02x", v)
	}

	if err := m.DACWrite(core.DACLevel(2.5, 5)); err != nil {
		t.Fatalf("DACWrite failed: %v", err)
	}
	if b.ADC.DAC != 128 {
		t.Errorf("Expected DAC 128, got %d", b.ADC.DAC)
	}
}

func TestNackStatusBecomesError(t *testing.T) {
	m, _ := connectSim(t, core.ControllerConfig{ADC: core.ADCProfile{Name: "absent", Address: 0x4f}})

	if _, err := m.ADCRead(0x00); !errors.Is(err, core.ErrNoAck) {
		t.Errorf("Expected ErrNoAck, got %v", err)
	}

	if err := m.SetPolicy(core.AckPermissive); err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}
	if _, err := m.ADCRead(0x00); err != nil {
		t.Errorf("Permissive read should not fail, got %v", err)
	}
}

func TestCallBeforeDictionary(t *testing.T) {
	b := sim.NewBoard()
	port, err := b.Serve(core.ControllerConfig{})
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	m := New(port, nil)
	defer m.Close()

	if err := m.DACWrite(1); !errors.Is(err, ErrNoDictionary) {
		t.Errorf("Expected ErrNoDictionary, got %v", err)
	}
}

func TestRawTx(t *testing.T) {
	m, b := connectSim(t, core.ControllerConfig{})
	b.ADC.Inputs[1] = 0x33

	if err := m.Tx(0x48, []byte{0x01}, nil); err != nil {
		t.Fatalf("Tx write failed: %v", err)
	}
	r := make([]byte, 1)
	if err := m.Tx(0x48, nil, r); err != nil {
		t.Fatalf("Tx read failed: %v", err)
	}
	if r[0] != 0x33 {
		t.Errorf("Expected 0x33, got %#02x", r[0])
	}

	if err := m.Tx(0x23, nil, nil); !errors.Is(err, core.ErrNoAck) {
		t.Errorf("Probe of an empty address: expected ErrNoAck, got %v", err)
	}
	if err := m.Tx(0x48, make([]byte, 49), nil); err == nil {
		t.Error("Expected an error for an oversized write")
	}
}
