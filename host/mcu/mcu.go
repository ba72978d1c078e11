// Package mcu is the host side client of the iicbang firmware: it fetches
// the command dictionary and runs the ADC, DAC and EEPROM transactions
// remotely.
package mcu

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"iicbang/core"
	"iicbang/host/serial"
	"iicbang/protocol"
)

// Bootstrap command IDs, fixed before the dictionary is known.
const (
	identifyResponseID = 0
	identifyID         = 1
)

// identifyChunk is the dictionary slice requested per identify.
const identifyChunk = 40

var ErrNoDictionary = errors.New("dictionary not loaded")

// MCU represents a connection to an iicbang microcontroller
type MCU struct {
	transport *protocol.HostTransport
	log       *zap.Logger

	// Timeout bounds the wait for each response.
	Timeout time.Duration

	// serializes command/response exchanges
	mu sync.Mutex

	dictionary     *Dictionary
	dictionaryData []byte
	commands       map[string]uint16
	responses      map[string]uint16
	maxChunk       int
}

// Dictionary represents the parsed MCU dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// New starts a client on an open link. A nil logger discards logs.
func New(port io.ReadWriteCloser, log *zap.Logger) *MCU {
	if log == nil {
		log = zap.NewNop()
	}
	m := &MCU{
		transport: protocol.NewHostTransport(port),
		log:       log,
		Timeout:   time.Second,
		maxChunk:  core.IICMaxChunk,
	}
	m.transport.SetResponseHandler(m.handleResponse)
	return m
}

// Connect opens a serial port, waits for the MCU to settle and loads the
// dictionary.
func Connect(cfg *serial.Config, log *zap.Logger) (*MCU, error) {
	if log == nil {
		log = zap.NewNop()
	}
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		log.Warn("flush failed", zap.String("device", cfg.Device), zap.Error(err))
	}
	m := New(port, log)

	// Give MCU time to initialize (if it just powered on)
	time.Sleep(100 * time.Millisecond)

	if err := m.RetrieveDictionary(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	return m.transport.Close()
}

// RetrieveDictionary retrieves the complete dictionary from the MCU
func (m *MCU) RetrieveDictionary() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf bytes.Buffer
	for {
		chunk, err := m.identify(uint32(buf.Len()), identifyChunk)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", buf.Len(), err)
		}
		buf.Write(chunk)
		if len(chunk) < identifyChunk {
			break
		}
	}
	m.log.Debug("dictionary retrieved", zap.Int("bytes", buf.Len()))

	dict := &Dictionary{}
	if err := json.Unmarshal(buf.Bytes(), dict); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	m.dictionaryData = buf.Bytes()
	m.dictionary = dict
	m.commands = nameIndex(dict.Commands)
	m.responses = nameIndex(dict.Responses)

	if v, ok := dict.Config["IIC_MAX_CHUNK"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			m.maxChunk = n
		}
	}
	m.log.Info("connected",
		zap.String("version", dict.Version),
		zap.Int("commands", len(dict.Commands)),
		zap.Int("responses", len(dict.Responses)))
	return nil
}

// nameIndex maps the first word of each message format to its ID.
func nameIndex(formats map[string]int) map[string]uint16 {
	idx := make(map[string]uint16, len(formats))
	for format, id := range formats {
		name, _, _ := strings.Cut(format, " ")
		idx[name] = uint16(id)
	}
	return idx
}

func (m *MCU) identify(offset uint32, count uint8) ([]byte, error) {
	err := m.transport.SendCommand(identifyID, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQUint(out, uint32(count))
	})
	if err != nil {
		return nil, err
	}
	payload, err := m.awaitResponse(identifyResponseID)
	if err != nil {
		return nil, err
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}
	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}
	return append([]byte(nil), data...), nil
}

// awaitResponse returns the fields of the next response with the given ID.
// Stale responses left over from an earlier timeout are skipped.
func (m *MCU) awaitResponse(id uint16) ([]byte, error) {
	deadline := time.Now().Add(m.Timeout)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, protocol.ErrTimeout
		}
		msg, err := m.transport.ReceiveResponse(wait)
		if err != nil {
			return nil, err
		}
		got, fields, err := msg.Command()
		if err != nil {
			return nil, err
		}
		if got == id {
			return fields, nil
		}
		m.log.Debug("skipping response", zap.Uint16("id", got), zap.Uint16("want", id))
	}
}

// handleResponse sees every response before it is queued.
func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	m.log.Debug("response", zap.Uint16("id", cmdID), zap.Int("len", len(*data)))
	return nil
}

// Dictionary returns the parsed dictionary, nil before RetrieveDictionary.
func (m *MCU) Dictionary() *Dictionary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionary
}

// DictionaryRaw returns the dictionary JSON as received.
func (m *MCU) DictionaryRaw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionaryData
}

// Call sends the named command and returns the fields of the named
// response.
func (m *MCU) Call(command, response string, args func(out protocol.OutputBuffer)) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dictionary == nil {
		return nil, ErrNoDictionary
	}
	cmdID, ok := m.commands[command]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", command)
	}
	respID, ok := m.responses[response]
	if !ok {
		return nil, fmt.Errorf("unknown response: %s", response)
	}
	if err := m.transport.SendCommand(cmdID, args); err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	fields, err := m.awaitResponse(respID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return fields, nil
}

// status decodes the leading status field of an I2C response.
func status(fields *[]byte) error {
	s, err := protocol.DecodeVLQUint(fields)
	if err != nil {
		return err
	}
	return core.Status(s).Err()
}

// ADCRead writes the control byte to the ADC and returns one sample.
func (m *MCU) ADCRead(control byte) (byte, error) {
	fields, err := m.Call("iic_adc_read", "iic_adc_result", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(control))
	})
	if err != nil {
		return 0, err
	}
	if err := status(&fields); err != nil {
		return 0, fmt.Errorf("adc read: %w", err)
	}
	v, err := protocol.DecodeVLQUint(&fields)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// DACWrite sets the analog output.
func (m *MCU) DACWrite(value byte) error {
	fields, err := m.Call("iic_dac_write", "iic_status", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(value))
	})
	if err != nil {
		return err
	}
	if err := status(&fields); err != nil {
		return fmt.Errorf("dac write: %w", err)
	}
	return nil
}

// EEPROMWrite stores data from addr on, one transaction per chunk. The word
// address wraps at 256.
func (m *MCU) EEPROMWrite(addr uint8, data []byte) error {
	for len(data) > 0 {
		n := min(len(data), m.maxChunk)
		chunk := data[:n]
		fields, err := m.Call("iic_eeprom_write", "iic_status", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(addr))
			protocol.EncodeVLQBytes(out, chunk)
		})
		if err != nil {
			return err
		}
		if err := status(&fields); err != nil {
			return fmt.Errorf("eeprom write at %#02x: %w", addr, err)
		}
		addr += uint8(n)
		data = data[n:]
	}
	return nil
}

// EEPROMRead reads count bytes from addr on.
func (m *MCU) EEPROMRead(addr uint8, count int) ([]byte, error) {
	buf := make([]byte, 0, count)
	for count > 0 {
		n := min(count, m.maxChunk)
		fields, err := m.Call("iic_eeprom_read", "iic_eeprom_data", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(addr))
			protocol.EncodeVLQUint(out, uint32(n))
		})
		if err != nil {
			return buf, err
		}
		if err := status(&fields); err != nil {
			return buf, fmt.Errorf("eeprom read at %#02x: %w", addr, err)
		}
		if _, err := protocol.DecodeVLQUint(&fields); err != nil {
			return buf, err
		}
		data, err := protocol.DecodeVLQBytes(&fields)
		if err != nil {
			return buf, err
		}
		if len(data) != n {
			return buf, fmt.Errorf("eeprom read at %#02x: expected %d bytes, got %d", addr, n, len(data))
		}
		buf = append(buf, data...)
		addr += uint8(n)
		count -= n
	}
	return buf, nil
}

// Tx runs a raw transfer on the MCU's bus: w is written, then len(r)
// bytes are read after a repeated start. Both are limited to one chunk.
func (m *MCU) Tx(addr uint16, w, r []byte) error {
	if len(w) > m.maxChunk || len(r) > m.maxChunk {
		return fmt.Errorf("transfer larger than %d bytes", m.maxChunk)
	}
	if len(r) == 0 {
		fields, err := m.Call("iic_write", "iic_status", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(addr))
			protocol.EncodeVLQBytes(out, w)
		})
		if err != nil {
			return err
		}
		return status(&fields)
	}

	fields, err := m.Call("iic_read", "iic_read_response", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(addr))
		protocol.EncodeVLQBytes(out, w)
		protocol.EncodeVLQUint(out, uint32(len(r)))
	})
	if err != nil {
		return err
	}
	if err := status(&fields); err != nil {
		return fmt.Errorf("read from %#02x: %w", addr, err)
	}
	if _, err := protocol.DecodeVLQUint(&fields); err != nil {
		return err
	}
	data, err := protocol.DecodeVLQBytes(&fields)
	if err != nil {
		return err
	}
	if len(data) != len(r) {
		return fmt.Errorf("read from %#02x: expected %d bytes, got %d", addr, len(r), len(data))
	}
	copy(r, data)
	return nil
}

// SetPolicy switches the firmware's acknowledgement policy.
func (m *MCU) SetPolicy(p core.AckPolicy) error {
	strict := uint32(0)
	if p == core.AckStrict {
		strict = 1
	}
	fields, err := m.Call("iic_set_policy", "iic_status", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, strict)
	})
	if err != nil {
		return err
	}
	return status(&fields)
}

// PrintDictionary writes a summary of the dictionary to w.
func (m *MCU) PrintDictionary(w io.Writer) {
	d := m.Dictionary()
	if d == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}

	fmt.Fprintf(w, "Version: %s\n", d.Version)
	fmt.Fprintf(w, "Build: %s\n", d.BuildVersions)

	fmt.Fprintln(w, "\nConfig:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, d.Config[k])
	}
	printIDs(w, "Commands", d.Commands)
	printIDs(w, "Responses", d.Responses)

	if len(d.Enumerations) > 0 {
		fmt.Fprintf(w, "\nEnumerations (%d):\n", len(d.Enumerations))
		for _, name := range sortedKeys(d.Enumerations) {
			fmt.Fprintf(w, "  %s: %d values\n", name, len(d.Enumerations[name]))
		}
	}
}

func printIDs(w io.Writer, title string, ids map[string]int) {
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(ids))
	formats := sortedKeys(ids)
	sort.SliceStable(formats, func(i, j int) bool { return ids[formats[i]] < ids[formats[j]] })
	for _, f := range formats {
		fmt.Fprintf(w, "  [%d] %s\n", ids[f], f)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
