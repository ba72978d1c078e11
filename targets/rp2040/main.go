//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"iicbang/core"
	"iicbang/protocol"
)

// Bus pins. The PCF8591 and AT24C02 share them with 4.7k pull-ups.
const (
	pinSCL = core.GPIOPin(machine.GPIO4)
	pinSDA = core.GPIOPin(machine.GPIO5)
)

// debug routes controller messages to the debug UART. Printing inside a
// transaction stretches the clock.
const debug = false

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	firmware     *core.Firmware

	// Debug counters
	messagesReceived uint32
	msgerrors        uint32

	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	InitUSB()
	InitDebugUART()
	core.SetDebugWriter(DebugPrintln)
	core.SetDebugEnabled(debug)

	gpio := NewRPGPIODriver()
	core.SetGPIODriver(gpio)

	bus := core.NewBus(core.MustGPIO(), pinSCL, pinSDA, core.NewBusyDelay(core.DefaultUnit))
	if err := bus.Configure(); err != nil {
		DebugPrintln("bus configure: " + err.Error())
	}
	ctrl := core.NewController(bus, core.ControllerConfig{})

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	firmware = core.NewFirmware(outputBuffer)
	core.RegisterIICCommands(firmware, ctrl)
	firmware.Dictionary().Build()

	transport := firmware.Transport()
	transport.SetResetCallback(func() {
		// Clear buffers on host reset
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	// acks go out before the response frames that follow them
	transport.SetFlushCallback(writeUSB)

	go usbReaderLoop()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			// the scheduler is cooperative: the reader cannot run while
			// frames are parsed out of the fifo
			if inputBuffer.Available() > 0 {
				firmware.Receive(inputBuffer)
				messagesReceived++
			}

			writeUSB()
		}()

		// Yield to the reader goroutine
		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop moves bytes from USB into the input buffer.
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			b, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(time.Millisecond)
				continue
			}

			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				firmware.Transport().Reset()
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{b}) == 0 {
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB drains the output buffer. Repeated write failures mean the host
// went away: pending data is dropped and the link restarts on the next byte.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	if len(result) > 0 {
		consecutiveWriteFailures = 0
		outputBuffer.Reset()
	}
}
