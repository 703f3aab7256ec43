package polynomial

import (
	"io"

	"github.com/taurusgroup/secagg/pkg/math/field"
	"github.com/taurusgroup/secagg/pkg/math/sample"
)

// polynomial is a₀ + a₁⋅X + … + aₜ⋅Xᵗ, used to produce test points.
type polynomial struct {
	coefficients []uint64
}

func random(rand io.Reader, f field.Prime[uint64], degree int, constant uint64) *polynomial {
	coefficients := sample.Vector(rand, f, degree+1)
	coefficients[0] = constant
	return &polynomial{coefficients: coefficients}
}

// evaluate uses Horner's method.
func (p *polynomial) evaluate(x uint64) uint64 {
	var result uint64
	for i := len(p.coefficients) - 1; i >= 0; i-- {
		result = f.Add(f.Mul(result, x), p.coefficients[i])
	}
	return result
}
