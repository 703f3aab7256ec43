package phase

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Number is the phase of a session. Phases only ever increase.
type Number uint8

const (
	Registration Number = iota + 1
	KeyExchange
	InputSharing
	ErrorCorrection
	Aggregation
	Reconstructed
)

var ErrTerminal = errors.New("phase: session already reconstructed")

// Topic prefixes a broadcast.
type Topic string

const (
	// TopicHandshake carries the verification keys, ending registration.
	TopicHandshake Topic = "HS"
	// TopicKeys carries the DH public keys, ending key exchange.
	TopicKeys Topic = "KE"
	// TopicInputSharing carries the sharing parameters.
	TopicInputSharing Topic = "IS"
	// TopicChecks carries the dropouts and the check randomness, ending input sharing.
	TopicChecks Topic = "EC"
	// TopicAggregation carries the final dropout set, ending error correction.
	TopicAggregation Topic = "AG"
)

func (n Number) String() string {
	switch n {
	case Registration:
		return "registration"
	case KeyExchange:
		return "key exchange"
	case InputSharing:
		return "input sharing"
	case ErrorCorrection:
		return "error correction"
	case Aggregation:
		return "aggregation"
	case Reconstructed:
		return "reconstructed"
	}
	return fmt.Sprintf("phase(%d)", uint8(n))
}

// Valid reports whether n is one of the defined phases.
func (n Number) Valid() bool {
	return n >= Registration && n <= Reconstructed
}

// Next returns the phase following n.
func (n Number) Next() (Number, error) {
	if !n.Valid() {
		return 0, fmt.Errorf("phase: %s has no successor", n)
	}
	if n == Reconstructed {
		return n, ErrTerminal
	}
	return n + 1, nil
}

// Topics returns the broadcasts published when leaving n.
func (n Number) Topics() []Topic {
	switch n {
	case Registration:
		return []Topic{TopicHandshake}
	case KeyExchange:
		return []Topic{TopicKeys, TopicInputSharing}
	case InputSharing:
		return []Topic{TopicChecks}
	case ErrorCorrection:
		return []Topic{TopicAggregation}
	}
	return nil
}

// WriteTo implements io.WriterTo interface.
func (n Number) WriteTo(w io.Writer) (int64, error) {
	err := binary.Write(w, binary.LittleEndian, uint64(n))
	return 8, err
}

// Domain implements hash.WriterToWithDomain.
func (Number) Domain() string {
	return "Phase Number"
}
