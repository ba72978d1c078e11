// Command iicbang talks to the PCF8591 and AT24C02 on a bit-banged bus,
// either through the firmware on an MCU, on local GPIO pins, or against
// the built-in emulator.
//
//	iicbang [flags] adc CTRL | dac VALUE | eeprom-write ADDR HEX | eeprom-read ADDR COUNT | tx ADDR HEX COUNT | policy NAME | dict
//
// Without an operation it reads operations from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"iicbang/config"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	backend    = flag.String("backend", "", "sim, serial or periph (overrides the config)")
	devicePath = flag.String("device", "", "Serial device path (overrides the config)")
	policy     = flag.String("policy", "", "Ack policy: strict or permissive (overrides the config)")
	trace      = flag.Bool("trace", false, "Print bus events (sim backend)")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	s, err := openSession(cfg, log)
	if err != nil {
		log.Error("open failed", zap.String("backend", cfg.Backend), zap.Error(err))
		os.Exit(1)
	}
	defer s.Close()
	if *trace {
		if err := s.Trace(os.Stdout, true); err != nil {
			log.Warn("trace unavailable", zap.Error(err))
		}
	}

	if flag.NArg() > 0 {
		if err := s.Run(os.Stdout, flag.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("Enter operations (type 'help' for available operations, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "quit", "exit", "q":
			return
		case "help", "?":
			printHelp()
			continue
		}
		if err := s.Run(os.Stdout, parts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *devicePath != "" {
		cfg.Serial.Device = *devicePath
	}
	if *policy != "" {
		cfg.Bus.Policy = *policy
	}
	return cfg, cfg.Validate()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func printHelp() {
	fmt.Println("\nAvailable operations:")
	fmt.Println("  adc CTRL                - Write the control byte, print one sample")
	fmt.Println("  dac VALUE               - Set the analog output (0-255)")
	fmt.Println("  eeprom-write ADDR HEX   - Store hex bytes from ADDR on")
	fmt.Println("  eeprom-read ADDR COUNT  - Dump COUNT bytes from ADDR on")
	fmt.Println("  tx ADDR HEX|- COUNT     - Raw transfer: write HEX, read COUNT bytes")
	fmt.Println("  policy strict|permissive")
	fmt.Println("  dict                    - Print the firmware dictionary")
	fmt.Println("  trace on|off            - Print bus events (sim)")
	fmt.Println("  quit/exit/q             - Exit the program")
	fmt.Println()
}
