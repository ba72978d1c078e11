package core

import "errors"

var (
	// ErrNoAck signals that a slave did not acknowledge a byte.
	ErrNoAck = errors.New("NACK received")

	// ErrNoSuchDevice signals that no device acknowledged its address.
	ErrNoSuchDevice = errors.New("no such device")

	// ErrShortBuffer is returned when count exceeds the caller's buffer.
	ErrShortBuffer = errors.New("buffer shorter than count")

	// ErrAddress10 is returned by Tx for addresses wider than 7 bits.
	ErrAddress10 = errors.New("only 7 bit addresses are supported")
)

// AckPolicy selects what the transaction layer does with a nack.
type AckPolicy uint8

const (
	// AckStrict aborts the transaction on the first nack, releases the bus
	// with a stop and reports the failure.
	AckStrict AckPolicy = iota

	// AckPermissive runs every transaction to completion whatever the slave
	// answers. A missing device then shows up only as stale data.
	AckPermissive
)

func (p AckPolicy) String() string {
	switch p {
	case AckStrict:
		return "strict"
	case AckPermissive:
		return "permissive"
	}
	return "AckPolicy(" + itoa(int(p)) + ")"
}

// ParseAckPolicy maps "strict" and "permissive" to their policy.
func ParseAckPolicy(s string) (AckPolicy, error) {
	switch s {
	case "strict":
		return AckStrict, nil
	case "permissive", "legacy":
		return AckPermissive, nil
	}
	return AckStrict, errors.New("unknown ack policy: " + s)
}

// Stage names the byte of a transaction that was not acknowledged.
type Stage uint8

const (
	StageWriteAddress Stage = iota
	StageControl
	StageRegister
	StageReadAddress
	StageData
)

var stageNames = [...]string{"write address", "control byte", "register address", "read address", "data byte"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "stage " + itoa(int(s))
}

// AckError reports a nack seen by a strict transaction.
type AckError struct {
	Op    string // transaction name, e.g. "eeprom write"
	Stage Stage
	Index int // data byte index for StageData
}

func (e *AckError) Error() string {
	msg := e.Op + ": " + e.Stage.String()
	if e.Stage == StageData {
		msg += " " + itoa(e.Index)
	}
	return msg + " not acknowledged"
}

// Unwrap matches ErrNoAck for every stage and also ErrNoSuchDevice when the
// address byte went unanswered.
func (e *AckError) Unwrap() []error {
	if e.Stage == StageWriteAddress || e.Stage == StageReadAddress {
		return []error{ErrNoSuchDevice, ErrNoAck}
	}
	return []error{ErrNoAck}
}
