// Package serial opens the link to an MCU running the iicbang firmware.
package serial

import (
	"io"
	"time"
)

// Port is a byte stream to the MCU.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data the port has buffered.
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate. USB CDC ignores it.
	Baud int

	// ReadTimeout bounds a single Read; zero blocks.
	ReadTimeout time.Duration
}

// DefaultConfig returns the settings the firmware's USB port expects.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}
