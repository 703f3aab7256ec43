package hash

import (
	"bytes"
	"encoding/binary"
	"io"
)

// WriterToWithDomain represents a type writing itself, and knowing its domain.
//
// Providing a domain string lets us distinguish the output of different types
// implementing this same interface.
type WriterToWithDomain interface {
	io.WriterTo

	// Domain returns a context string, which should be unique for each implementor
	Domain() string
}

// writeWithDomain writes out a piece of data, using its domain.
//
// Both the domain and the data are prefixed with their length, so that no two
// sequences of writes produce the same stream.
func writeWithDomain(w io.Writer, object WriterToWithDomain) error {
	var data bytes.Buffer
	if _, err := object.WriteTo(&data); err != nil {
		return err
	}
	domain := object.Domain()
	header := binary.LittleEndian.AppendUint64(nil, uint64(len(domain)))
	header = append(header, domain...)
	header = binary.LittleEndian.AppendUint64(header, uint64(data.Len()))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(data.Bytes())
	return err
}

// BytesWithDomain is a useful wrapper to annotate some chunk of data with a domain.
type BytesWithDomain struct {
	TheDomain string
	Bytes     []byte
}

// WriteTo implements io.WriterTo.
func (b BytesWithDomain) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.Bytes)
	return int64(n), err
}

// Domain implements WriterToWithDomain.
func (b BytesWithDomain) Domain() string {
	return b.TheDomain
}
