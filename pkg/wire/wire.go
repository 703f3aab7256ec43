// Package wire encodes the frames exchanged between the coordinator and the
// clients. Integers are little endian and 64 bits wide.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/taurusgroup/secagg/pkg/party"
)

var ErrFormat = errors.New("wire: malformed frame")

const (
	helloPrefix = "Hello, I'm "
	errorPrefix = "Error: "
)

// EncodeScalars writes each element as 8 little endian bytes.
func EncodeScalars(xs []uint64) []byte {
	out := make([]byte, 0, 8*len(xs))
	for _, x := range xs {
		out = binary.LittleEndian.AppendUint64(out, x)
	}
	return out
}

// DecodeScalars is the inverse of EncodeScalars.
func DecodeScalars(data []byte) ([]uint64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of 8", ErrFormat, len(data))
	}
	out := make([]uint64, len(data)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(data[8*i:])
	}
	return out, nil
}

// DecodeScalarsN is DecodeScalars for exactly n scalars.
func DecodeScalarsN(data []byte, n int) ([]uint64, error) {
	if len(data) != 8*n {
		return nil, fmt.Errorf("%w: %d bytes, want %d scalars", ErrFormat, len(data), n)
	}
	return DecodeScalars(data)
}

// EncodeIndices encodes client indices as scalars.
func EncodeIndices(indices []int) []byte {
	out := make([]byte, 0, 8*len(indices))
	for _, i := range indices {
		out = binary.LittleEndian.AppendUint64(out, uint64(i))
	}
	return out
}

// DecodeIndices decodes indices, each of which must be below n.
func DecodeIndices(data []byte, n int) ([]int, error) {
	xs, err := DecodeScalars(data)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(xs))
	for k, x := range xs {
		if x >= uint64(n) {
			return nil, fmt.Errorf("%w: index %d out of range %d", ErrFormat, x, n)
		}
		out[k] = int(x)
	}
	return out, nil
}

// Hello is the registration message of id.
func Hello(id party.ID) []byte {
	return []byte(helloPrefix + string(id))
}

// ParseHello returns the identity announced in a registration message.
func ParseHello(data []byte) (party.ID, error) {
	s := string(data)
	if !strings.HasPrefix(s, helloPrefix) || len(s) == len(helloPrefix) {
		return "", fmt.Errorf("%w: not a hello message", ErrFormat)
	}
	return party.ID(strings.TrimPrefix(s, helloPrefix)), nil
}

// ErrorReply is the frame sent back to a client whose message was rejected.
func ErrorReply(err error) []byte {
	return []byte(errorPrefix + err.Error())
}

// ReplyError returns the error carried by a reply, or nil if the reply is
// not an error.
func ReplyError(frames [][]byte) error {
	if len(frames) != 1 || !strings.HasPrefix(string(frames[0]), errorPrefix) {
		return nil
	}
	return errors.New(strings.TrimPrefix(string(frames[0]), errorPrefix))
}
