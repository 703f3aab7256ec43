package validity

import (
	"errors"
	"fmt"

	"github.com/taurusgroup/secagg/pkg/math/polynomial"
)

var (
	ErrTooFewResponders = errors.New("validity: not enough responders")
	ErrDegree           = errors.New("validity: shares are not of degree below d₂")
	ErrProduct          = errors.New("validity: bit or square check failed")
	ErrBound            = errors.New("validity: bound check failed")
)

// Verifier checks contributors against the responses of a fixed set of
// clients.
type Verifier struct {
	checks *Checks
	degree *polynomial.DegreeTest[uint64]
	// secretBasis interpolates the secrets of A and B from all responders.
	secretBasis [][]uint64
	responders  int
}

// MinResponders is the number of responders needed to verify: d₂, or 2d₂ - 1
// in malicious mode since A and B have twice the degree.
func (c *Checks) MinResponders() int {
	if c.Layout.Malicious {
		return 2*c.Sharing.D2 - 1
	}
	return c.Sharing.D2
}

// Verifier precomputes the interpolation over responders, a list of distinct
// client indices.
func (c *Checks) Verifier(responders []int) (*Verifier, error) {
	if len(responders) < c.MinResponders() {
		return nil, fmt.Errorf("%w: %d, need %d", ErrTooFewResponders, len(responders), c.MinResponders())
	}
	f, s := c.f, c.Sharing
	points := make([]uint64, len(responders))
	for i, j := range responders {
		if j < 0 || j >= c.N {
			return nil, fmt.Errorf("validity: responder %d out of range", j)
		}
		points[i] = f.Exp(s.Omega3, uint64(j+1))
	}

	v := &Verifier{checks: c, responders: len(responders)}
	var err error
	if v.degree, err = polynomial.NewDegreeTest(f, points, s.D2); err != nil {
		return nil, err
	}
	if c.Layout.Malicious {
		secrets := make([]uint64, c.Layout.L)
		x := uint64(1)
		for k := range secrets {
			secrets[k] = x
			x = f.Mul(x, s.Omega2)
		}
		if v.secretBasis, err = polynomial.Basis(f, points, secrets); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Verify checks one contributor, given responses[i] from the i-th responder.
func (v *Verifier) Verify(responses []Response) error {
	if len(responses) != v.responders {
		return fmt.Errorf("validity: %d responses for %d responders", len(responses), v.responders)
	}
	f := v.checks.f

	degrees := make([]uint64, len(responses))
	for i, r := range responses {
		degrees[i] = r.Degree
	}
	ok, err := v.degree.Holds(degrees)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDegree
	}
	if v.secretBasis == nil {
		return nil
	}

	as := make([]uint64, len(responses))
	bs := make([]uint64, len(responses))
	for i, r := range responses {
		as[i], bs[i] = r.A, r.B
	}
	var bSum uint64
	for _, row := range v.secretBasis {
		if f.Dot(row, as) != 0 {
			return ErrProduct
		}
		bSum = f.Add(bSum, f.Dot(row, bs))
	}
	if bSum != 0 {
		return ErrBound
	}
	return nil
}
