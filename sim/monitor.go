package sim

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type EventKind uint8

const (
	EventStart EventKind = iota
	EventStop
	EventByte
)

// Event is one decoded bus event. Byte events carry the acknowledgement bit
// that followed the byte.
type Event struct {
	Kind  EventKind
	Value byte
	Ack   bool
	At    time.Duration
}

func (e Event) String() string {
	switch e.Kind {
	case EventStart:
		return "S"
	case EventStop:
		return "P"
	}
	if e.Ack {
		return fmt.Sprintf("%02x+", e.Value)
	}
	return fmt.Sprintf("%02x-", e.Value)
}

// Monitor passively decodes the bus into events. It samples SDA on every
// rising clock edge and groups nine samples into a byte and its
// acknowledgement; partial bytes are dropped at a start or stop.
type Monitor struct {
	mu     sync.Mutex
	clock  *Clock
	events []Event
	shift  uint16
	bits   int
	inside bool

	// OnEvent, if set, sees each event as it is decoded.
	OnEvent func(Event)
}

// NewMonitor creates a monitor and attaches it to w.
func NewMonitor(w *Wire) *Monitor {
	m := &Monitor{clock: w.Clock()}
	w.Watch(m)
	return m
}

func (m *Monitor) emit(e Event) {
	if m.clock != nil {
		e.At = m.clock.Now()
	}
	m.events = append(m.events, e)
	if m.OnEvent != nil {
		m.OnEvent(e)
	}
}

func (m *Monitor) Condition(start bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shift, m.bits = 0, 0
	m.inside = start
	if start {
		m.emit(Event{Kind: EventStart})
	} else {
		m.emit(Event{Kind: EventStop})
	}
}

func (m *Monitor) ClockRise(sda bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inside {
		return
	}
	m.shift <<= 1
	if sda {
		m.shift |= 1
	}
	m.bits++
	if m.bits == 9 {
		m.emit(Event{Kind: EventByte, Value: byte(m.shift >> 1), Ack: m.shift&1 == 0})
		m.shift, m.bits = 0, 0
	}
}

func (m *Monitor) ClockFall() {}

// Events returns a copy of everything decoded so far.
func (m *Monitor) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Reset forgets recorded events.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// Count returns how many events of kind k were seen.
func (m *Monitor) Count(k EventKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// String renders the events compactly, e.g. "S 90+ 41+ 80+ P".
func (m *Monitor) String() string {
	events := m.Events()
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}
