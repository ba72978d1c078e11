// Package config loads the bus and host settings shared by the host tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"iicbang/core"
)

// BusConfig describes the bit-banged bus and its devices.
type BusConfig struct {
	// DelayUnit is the length of one Delay count. SpeedHz, if set, takes
	// precedence.
	DelayUnit time.Duration `yaml:"delay_unit"`
	SpeedHz   uint32        `yaml:"speed_hz"`

	Policy         string `yaml:"policy"`
	MaskInterrupts bool   `yaml:"mask_interrupts"`

	ADCAddress    uint8 `yaml:"adc_address"`
	EEPROMAddress uint8 `yaml:"eeprom_address"`
	EEPROMSize    int   `yaml:"eeprom_size"`

	// Write cycle delay counts. A nil FinalSettleCount keeps the default;
	// zero disables the final settle.
	ByteSettle       uint8 `yaml:"byte_settle"`
	FinalSettle      uint8 `yaml:"final_settle"`
	FinalSettleCount *int  `yaml:"final_settle_count"`

	// WriteCycle is the EEPROM tWR the final settle must cover.
	WriteCycle time.Duration `yaml:"write_cycle"`
}

// SerialConfig selects the link to a remote MCU.
type SerialConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// PeriphConfig names the host GPIO pins for the local backend.
type PeriphConfig struct {
	SCL string `yaml:"scl"`
	SDA string `yaml:"sda"`
}

// Config is the top-level configuration file.
type Config struct {
	Backend string       `yaml:"backend"`
	Bus     BusConfig    `yaml:"bus"`
	Serial  SerialConfig `yaml:"serial"`
	Periph  PeriphConfig `yaml:"periph"`
}

// LoadConfig parses a YAML (or JSON) configuration and fills in defaults.
func LoadConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses the configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadConfig(data)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Backend == "" {
		cfg.Backend = "sim"
	}

	b := &cfg.Bus
	if b.DelayUnit == 0 {
		b.DelayUnit = core.DefaultUnit
	}
	if b.Policy == "" {
		b.Policy = core.AckStrict.String()
	}
	if b.ADCAddress == 0 {
		b.ADCAddress = uint8(core.PCF8591.Address)
	}
	if b.EEPROMAddress == 0 {
		b.EEPROMAddress = uint8(core.AT24C02.Address)
	}
	if b.EEPROMSize == 0 {
		b.EEPROMSize = core.AT24C02.Size
	}
	if b.ByteSettle == 0 {
		b.ByteSettle = core.ByteSettle
	}
	if b.FinalSettle == 0 {
		b.FinalSettle = core.FinalSettle
	}
	if b.WriteCycle == 0 {
		b.WriteCycle = core.AT24C02.WriteCycle
	}
	if b.FinalSettleCount == nil {
		n := core.FinalSettleCount
		b.FinalSettleCount = &n
	}

	// USB CDC ignores the baud rate
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 250000
	}
	if cfg.Serial.ReadTimeout == 0 {
		cfg.Serial.ReadTimeout = 100 * time.Millisecond
	}

	if cfg.Periph.SCL == "" {
		cfg.Periph.SCL = "GPIO3"
	}
	if cfg.Periph.SDA == "" {
		cfg.Periph.SDA = "GPIO2"
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Backend {
	case "sim", "serial", "periph":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if _, err := core.ParseAckPolicy(c.Bus.Policy); err != nil {
		return err
	}
	if c.Bus.WriteCycle < 0 {
		return errors.New("write_cycle must not be negative")
	}
	if c.Bus.ADCAddress > 0x7f || c.Bus.EEPROMAddress > 0x7f {
		return errors.New("device addresses must fit in 7 bits")
	}
	if c.Bus.EEPROMSize > 256 {
		return fmt.Errorf("eeprom size %d needs more than 8 address bits", c.Bus.EEPROMSize)
	}
	if c.Backend == "serial" && c.Serial.Device == "" {
		return errors.New("serial backend needs serial.device")
	}
	if c.Periph.SCL == c.Periph.SDA {
		return errors.New("periph scl and sda must be different pins")
	}
	return nil
}

// Controller returns the controller configuration the bus settings
// describe.
func (b BusConfig) Controller() (core.ControllerConfig, error) {
	policy, err := core.ParseAckPolicy(b.Policy)
	if err != nil {
		return core.ControllerConfig{}, err
	}
	adc := core.PCF8591
	adc.Address = core.Addr7(b.ADCAddress)

	eeprom := core.AT24C02
	eeprom.Address = core.Addr7(b.EEPROMAddress)
	eeprom.Size = b.EEPROMSize
	eeprom.ByteSettle = b.ByteSettle
	eeprom.FinalSettle = b.FinalSettle
	eeprom.WriteCycle = b.WriteCycle
	if b.FinalSettleCount != nil {
		eeprom.FinalSettleCount = *b.FinalSettleCount
		if eeprom.FinalSettleCount == 0 {
			eeprom.WriteCycle = 0
		}
	}

	return core.ControllerConfig{
		Policy:         policy,
		MaskInterrupts: b.MaskInterrupts,
		ADC:            adc,
		EEPROM:         eeprom,
	}, nil
}

// Unit returns the delay unit, derived from SpeedHz when it is set.
func (b BusConfig) Unit() time.Duration {
	if b.SpeedHz != 0 {
		return core.UnitForSpeed(b.SpeedHz)
	}
	return b.DelayUnit
}
