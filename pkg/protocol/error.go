package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/party"
)

// Coordinator side.
var (
	ErrUnexpectedFormat = errors.New("unexpected message format")
	ErrSignature        = errors.New("signature verification failed")
	ErrClientNotFound   = errors.New("client not found")
	ErrClientExists     = errors.New("client already registered")
	ErrMaxClients       = errors.New("maximum number of clients exceeded")
	ErrUnknownPhase     = errors.New("no handler for phase")
	ErrSharing          = errors.New("sharing failed")
	ErrThreshold        = errors.New("not enough surviving clients to reconstruct")
)

// Client side.
var (
	ErrSend            = errors.New("failed to send")
	ErrUnexpectedReply = errors.New("unexpected reply")
	ErrDecryption      = errors.New("decryption failed")
	ErrUnidentified    = errors.New("share from unknown sender")
)

// Error is a custom error for protocols which contains information about the
// phase in which it occurred, and the parties responsible.
type Error struct {
	// Phase where the error occurred
	Phase phase.Number
	// Culprits is empty if the identity of the misbehaving parties cannot be known
	Culprits []party.ID
	// Indices are the positions of the culprits in the client list. Clients
	// only know each other by index, so their errors set Indices alone.
	Indices []int
	// Err is the underlying error
	Err error
}

func (e Error) Error() string {
	switch {
	case len(e.Culprits) > 0:
		ids := make([]string, len(e.Culprits))
		for i, id := range e.Culprits {
			ids[i] = string(id)
		}
		return fmt.Sprintf("%s: parties %s: %s", e.Phase, strings.Join(ids, ", "), e.Err)
	case len(e.Indices) > 0:
		ids := make([]string, len(e.Indices))
		for i, index := range e.Indices {
			ids[i] = strconv.Itoa(index)
		}
		return fmt.Sprintf("%s: clients %s: %s", e.Phase, strings.Join(ids, ", "), e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Phase, e.Err)
	}
}

func (e Error) Unwrap() error {
	return e.Err
}
