package params

import (
	"errors"
	"fmt"

	"github.com/taurusgroup/secagg/pkg/math/field"
)

var (
	ErrParam     = errors.New("params: invalid field parameters")
	ErrThreshold = errors.New("params: not enough clients for the reconstruction threshold")
)

// Param describes a prime field with roots of unity of order 2ᵐᵃˣᵀʷᵒ and
// 3ᵐᵃˣᵀʰʳᵉᵉ, from which every transform length is derived.
type Param struct {
	P        uint64 `yaml:"p"`
	R2       uint64 `yaml:"root_two"`
	MaxTwo   int    `yaml:"max_two"`
	R3       uint64 `yaml:"root_three"`
	MaxThree int    `yaml:"max_three"`
}

// Default is a 62 bit prime with p - 1 divisible by 2²⁹ and 3¹⁶.
var Default = Param{
	P:        3073700804129980417,
	R2:       1414118249734601779,
	MaxTwo:   20,
	R3:       308414859194273485,
	MaxThree: 15,
}

// Field returns ℤₚ.
func (p Param) Field() (field.Prime[uint64], error) {
	return field.New[uint64](p.P)
}

// Validate checks that R2 and R3 have the announced orders.
func (p Param) Validate() error {
	f, err := p.Field()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParam, err)
	}
	if p.MaxTwo < 1 || p.MaxTwo > 62 || p.MaxThree < 1 || p.MaxThree > 39 {
		return fmt.Errorf("%w: exponents %d, %d out of range", ErrParam, p.MaxTwo, p.MaxThree)
	}
	if err = f.CheckRoot(p.R2, 1<<p.MaxTwo, 2); err != nil {
		return fmt.Errorf("%w: root of two: %v", ErrParam, err)
	}
	if err = f.CheckRoot(p.R3, pow3(p.MaxThree), 3); err != nil {
		return fmt.Errorf("%w: root of three: %v", ErrParam, err)
	}
	return nil
}

// Tables holds the primitive roots of every usable order.
type Tables struct {
	// RootTwos[k] has order 2ᵏ.
	RootTwos []uint64
	// RootThrees[k] has order 3ᵏ.
	RootThrees []uint64
}

// Tables computes RootTwos[k] = R2^(2^(MaxTwo-k)) by repeated squaring, and
// RootThrees likewise by repeated cubing.
func (p Param) Tables() (*Tables, error) {
	f, err := p.Field()
	if err != nil {
		return nil, err
	}
	t := &Tables{
		RootTwos:   make([]uint64, p.MaxTwo+1),
		RootThrees: make([]uint64, p.MaxThree+1),
	}
	t.RootTwos[p.MaxTwo] = p.R2
	for k := p.MaxTwo; k > 0; k-- {
		t.RootTwos[k-1] = f.Mul(t.RootTwos[k], t.RootTwos[k])
	}
	t.RootThrees[p.MaxThree] = p.R3
	for k := p.MaxThree; k > 0; k-- {
		r := t.RootThrees[k]
		t.RootThrees[k-1] = f.Mul(f.Mul(r, r), r)
	}
	return t, nil
}

// RootTwo returns a primitive root of order n = 2ᵏ.
func (t *Tables) RootTwo(n int) (uint64, error) {
	k, ok := log(n, 2)
	if !ok || k >= len(t.RootTwos) {
		return 0, fmt.Errorf("%w: no root of order %d", ErrParam, n)
	}
	return t.RootTwos[k], nil
}

// RootThree returns a primitive root of order n = 3ᵏ.
func (t *Tables) RootThree(n int) (uint64, error) {
	k, ok := log(n, 3)
	if !ok || k >= len(t.RootThrees) {
		return 0, fmt.Errorf("%w: no root of order %d", ErrParam, n)
	}
	return t.RootThrees[k], nil
}

func log(n, base int) (int, bool) {
	if n < 1 {
		return 0, false
	}
	k := 0
	for ; n%base == 0; n /= base {
		k++
	}
	return k, n == 1
}

func pow3(k int) uint64 {
	n := uint64(1)
	for i := 0; i < k; i++ {
		n *= 3
	}
	return n
}
