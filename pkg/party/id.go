package party

import (
	"io"

	"github.com/rs/xid"
)

// ID is the transport identity of a client. It is chosen by the client and
// must be unique within a session.
type ID string

// NewID returns a fresh globally unique ID.
func NewID() ID {
	return ID(xid.New().String())
}

// WriteTo implements io.WriterTo interface.
func (id ID) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, string(id))
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain.
func (ID) Domain() string {
	return "ID"
}
