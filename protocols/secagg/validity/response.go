package validity

import (
	"fmt"

	"github.com/taurusgroup/secagg/pkg/wire"
)

// ResponseSize is the length of an encoded Response.
const ResponseSize = 24

// Response is what one client computes on the shares it received from one
// contributor.
type Response struct {
	Degree uint64
	A      uint64
	B      uint64
}

// MarshalBinary encodes the three values as little endian uint64.
func (r Response) MarshalBinary() ([]byte, error) {
	return wire.EncodeScalars([]uint64{r.Degree, r.A, r.B}), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Response) UnmarshalBinary(data []byte) error {
	xs, err := wire.DecodeScalarsN(data, 3)
	if err != nil {
		return fmt.Errorf("validity: response: %w", err)
	}
	*r = Response{Degree: xs[0], A: xs[1], B: xs[2]}
	return nil
}

// Respond evaluates the checks on row, the shares received from one
// contributor by the given client.
func (c *Checks) Respond(client int, row []uint64) (Response, error) {
	l, f := c.Layout, c.f
	if len(row) != l.SharedBlocks() {
		return Response{}, fmt.Errorf("%w: row has %d blocks, want %d", ErrInputLength, len(row), l.SharedBlocks())
	}
	if client < 0 || client >= c.N {
		return Response{}, fmt.Errorf("validity: client %d out of range", client)
	}

	r := Response{Degree: f.Dot(c.Degree, row)}
	if !l.Malicious {
		return r, nil
	}

	block := func(offset int) int { return offset / l.L }
	isBit := func(s uint64) uint64 { return f.Mul(s, f.Sub(1, s)) }
	b, yBlocks := l.Blocks(), l.Y/l.L
	inputBits, squares, sum, sumBits := block(l.inputBits()), block(l.squares()), block(l.sum()), block(l.sumBits())

	// A: every secret is zero.
	for j, w := range c.InputBit {
		r.A = f.Add(r.A, f.Mul(w, isBit(row[inputBits+j])))
	}
	for j, w := range c.Quadratic {
		x, y := row[j], row[squares+j]
		r.A = f.Add(r.A, f.Mul(w, f.Sub(f.Mul(x, x), y)))
	}
	for j, w := range c.NormBit {
		r.A = f.Add(r.A, f.Mul(w, isBit(row[sumBits+j])))
	}
	r.A = f.Add(r.A, row[block(l.maskA())])

	// B: the secrets sum to zero.
	for j, w := range c.InputBound {
		var recomposed uint64
		for k := 0; k < l.S; k++ {
			recomposed = f.Add(recomposed, f.Mul(f.Exp(2, uint64(k)), row[inputBits+j*l.S+k]))
		}
		r.B = f.Add(r.B, f.Mul(w, f.Sub(recomposed, row[j])))
	}
	var ys uint64
	for j := 0; j < b; j++ {
		ys = f.Add(ys, row[squares+j])
	}
	r.B = f.Add(r.B, f.Mul(c.NormSum[0], f.Sub(ys, row[sum])))
	var recomposed uint64
	for j := 0; j < yBlocks; j++ {
		recomposed = f.Add(recomposed, f.Mul(row[sumBits+j], c.TwoPowers[client][j]))
	}
	r.B = f.Add(r.B, f.Mul(c.NormBound[0], f.Sub(row[sum], recomposed)))
	r.B = f.Add(r.B, row[block(l.maskB())])
	return r, nil
}
