package main

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"iicbang/config"
)

func newSimSession(t *testing.T) *session {
	t.Helper()
	ctrl, err := config.Default().Bus.Controller()
	if err != nil {
		t.Fatalf("Controller failed: %v", err)
	}
	s, err := openSim(ctrl, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("openSim failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunOperations(t *testing.T) {
	s := newSimSession(t)
	s.board.ADC.Inputs[3] = 255

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"adc", "0x03"}, "AIN3 = 255 (5.00V of 5V)"},
		{[]string{"dac", "128"}, "DAC = 128"},
		{[]string{"eeprom-write", "0x10", "c0ffee"}, "wrote 3 bytes at 0x10"},
		{[]string{"eeprom-read", "0x10", "3"}, "c0 ff ee"},
		{[]string{"tx", "0x50", "10", "2"}, "0x50: c0ff"},
		{[]string{"policy", "permissive"}, "policy permissive"},
		{[]string{"dict"}, "iic_eeprom_write addr=%c data=%*s"},
	}

	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			var out bytes.Buffer
			if err := s.Run(&out, tt.args); err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("Expected output containing %q, got:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	s := newSimSession(t)

	for _, args := range [][]string{
		{"adc"},
		{"adc", "256"},
		{"dac", "x"},
		{"eeprom-write", "0", "zz"},
		{"eeprom-read", "0", "-1"},
		{"policy", "lenient"},
		{"frobnicate"},
	} {
		if err := s.Run(&bytes.Buffer{}, args); err == nil {
			t.Errorf("Expected an error for %v", args)
		}
	}
}

func TestTrace(t *testing.T) {
	s := newSimSession(t)
	var out bytes.Buffer
	if err := s.Run(&out, []string{"trace", "on"}); err != nil {
		t.Fatalf("trace failed: %v", err)
	}
	if err := s.Run(&out, []string{"dac", "1"}); err != nil {
		t.Fatalf("dac failed: %v", err)
	}
	for _, want := range []string{" S\n", " 90+\n", " 41+\n", " 01+\n", " P\n"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Trace lacks %q:\n%s", strings.TrimSpace(want), out.String())
		}
	}
}

func TestLoadConfigFlags(t *testing.T) {
	*backend, *devicePath, *policy = "serial", "/dev/ttyACM1", "permissive"
	t.Cleanup(func() { *backend, *devicePath, *policy = "", "", "" })

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Backend != "serial" || cfg.Serial.Device != "/dev/ttyACM1" || cfg.Bus.Policy != "permissive" {
		t.Errorf("Flags not applied: backend %s, device %s, policy %s",
			cfg.Backend, cfg.Serial.Device, cfg.Bus.Policy)
	}

	*devicePath = ""
	if _, err := loadConfig(); err == nil {
		t.Error("Expected an error for the serial backend without a device")
	}
}
