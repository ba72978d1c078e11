package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface the bit-banged bus drives.
//
// The I2C lines are open-drain: SetPin(pin, true) releases the line so the
// pull-up (or another device) decides its level, SetPin(pin, false) pulls it
// low. GetPin always reports the level actually present on the line, which is
// how the master samples data and acknowledgement bits driven by a slave.
type GPIODriver interface {
	// ConfigureOutput prepares a pin to be driven by SetPin
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as an input with pull-up resistor
	ConfigureInputPullUp(pin GPIOPin) error

	// SetPin releases (true) or pulls low (false) the pin
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current line level
	GetPin(pin GPIOPin) (bool, error)
}

// Global driver registered by target code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
// Only target start-up code calls it; the bus itself takes an explicit driver.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}
