package hash

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

const DigestLengthBytes = 32

// Hash is the hash function we use for signature digests and key derivation.
//
// Internally, this is a wrapper around blake3 in key derivation mode, so that
// every use gets its own context string.
type Hash struct {
	h *blake3.Hasher
}

// New creates a Hash whose state is separated by the given context.
func New(context string) *Hash {
	return &Hash{h: blake3.NewDeriveKey(context)}
}

// Digest returns a reader for the current output of the function.
//
// This finalizes the current state of the hash, and returns what's
// essentially a stream of random bytes.
func (hash *Hash) Digest() io.Reader {
	return hash.h.Digest()
}

// Sum returns a slice of length DigestLengthBytes resulting from the current hash state.
// If a different length is required, use io.ReadFull(hash.Digest(), out) instead.
func (hash *Hash) Sum() []byte {
	out := make([]byte, DigestLengthBytes)
	if _, err := io.ReadFull(hash.Digest(), out); err != nil {
		panic(fmt.Sprintf("hash.Sum: internal hash failure: %v", err))
	}
	return out
}

// WriteAny takes many different data types and writes them to the hash state.
//
// Currently supported types:
//
//   - []byte
//   - string
//   - uint64
//   - []uint64
//   - hash.WriterToWithDomain
//
// This function will apply its own domain separation for the first types.
// The last type already suggests which domain to use, and this function respects it.
func (hash *Hash) WriteAny(data ...interface{}) error {
	for _, d := range data {
		var err error
		switch t := d.(type) {
		case []byte:
			err = writeWithDomain(hash.h, BytesWithDomain{TheDomain: "[]byte", Bytes: t})
		case string:
			err = writeWithDomain(hash.h, BytesWithDomain{TheDomain: "string", Bytes: []byte(t)})
		case uint64:
			err = writeWithDomain(hash.h, BytesWithDomain{TheDomain: "uint64", Bytes: binary.LittleEndian.AppendUint64(nil, t)})
		case []uint64:
			buf := make([]byte, 0, 8*len(t))
			for _, x := range t {
				buf = binary.LittleEndian.AppendUint64(buf, x)
			}
			err = writeWithDomain(hash.h, BytesWithDomain{TheDomain: "[]uint64", Bytes: buf})
		case WriterToWithDomain:
			err = writeWithDomain(hash.h, t)
		default:
			return fmt.Errorf("hash.Hash: unsupported type %T", d)
		}
		if err != nil {
			return fmt.Errorf("hash.Hash: write %T: %w", d, err)
		}
	}
	return nil
}

// Clone returns a copy of the Hash in its current state.
func (hash *Hash) Clone() *Hash {
	return &Hash{h: hash.h.Clone()}
}
