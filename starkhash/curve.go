package starkhash

import (
	"math/big"

	"github.com/eth2030/starknet-core/felt"
)

// The STARK-friendly elliptic curve used by the Pedersen hash:
// y^2 = x^3 + alpha*x + beta (mod P), short Weierstrass form.
var (
	curveAlpha = big.NewInt(1)
	curveBeta  = mustBig("0x6f21413efbe40de150e596d72f7a8c5609ad26c15c915c1f4cdfcb99cee9e89")
)

func mustBig(hexStr string) *big.Int {
	n, ok := new(big.Int).SetString(hexStr[2:], 16)
	if !ok {
		panic("starkhash: invalid constant literal " + hexStr)
	}
	return n
}

// ecPoint is an affine point on the curve. The point at infinity is
// represented with inf=true; x/y are otherwise unused.
type ecPoint struct {
	x, y *big.Int
	inf  bool
}

func (p *ecPoint) clone() *ecPoint {
	if p.inf {
		return &ecPoint{inf: true}
	}
	return &ecPoint{x: new(big.Int).Set(p.x), y: new(big.Int).Set(p.y)}
}

// ecAdd adds two affine points on the curve, handling doubling and the
// point at infinity.
func ecAdd(a, b *ecPoint) *ecPoint {
	if a.inf {
		return b.clone()
	}
	if b.inf {
		return a.clone()
	}
	p := felt.Modulus()

	if a.x.Cmp(b.x) == 0 {
		// Either doubling (a.y == b.y) or a + (-a) = infinity.
		ySum := new(big.Int).Add(a.y, b.y)
		ySum.Mod(ySum, p)
		if ySum.Sign() == 0 {
			return &ecPoint{inf: true}
		}
		return ecDouble(a)
	}

	// slope = (b.y - a.y) / (b.x - a.x)
	num := new(big.Int).Sub(b.y, a.y)
	den := new(big.Int).Sub(b.x, a.x)
	den.Mod(den, p)
	denInv := new(big.Int).ModInverse(den, p)
	slope := new(big.Int).Mul(num, denInv)
	slope.Mod(slope, p)

	return pointFromSlope(a, b.x, slope, p)
}

func ecDouble(a *ecPoint) *ecPoint {
	p := felt.Modulus()
	// slope = (3*x^2 + alpha) / (2*y)
	num := new(big.Int).Mul(a.x, a.x)
	num.Mul(num, big.NewInt(3))
	num.Add(num, curveAlpha)
	num.Mod(num, p)

	den := new(big.Int).Lsh(a.y, 1)
	den.Mod(den, p)
	denInv := new(big.Int).ModInverse(den, p)

	slope := new(big.Int).Mul(num, denInv)
	slope.Mod(slope, p)

	return pointFromSlope(a, a.x, slope, p)
}

// pointFromSlope computes the third point of the chord/tangent line through
// a and bx with the given slope, given both inputs share field P.
func pointFromSlope(a *ecPoint, bx, slope, p *big.Int) *ecPoint {
	x3 := new(big.Int).Mul(slope, slope)
	x3.Sub(x3, a.x)
	x3.Sub(x3, bx)
	x3.Mod(x3, p)

	y3 := new(big.Int).Sub(a.x, x3)
	y3.Mul(y3, slope)
	y3.Sub(y3, a.y)
	y3.Mod(y3, p)

	return &ecPoint{x: x3, y: y3}
}

// ecScalarMul computes k*p via double-and-add, k given as a *big.Int.
func ecScalarMul(p *ecPoint, k *big.Int) *ecPoint {
	result := &ecPoint{inf: true}
	addend := p.clone()
	n := new(big.Int).Set(k)
	zero := big.NewInt(0)
	for n.Cmp(zero) > 0 {
		if n.Bit(0) == 1 {
			result = ecAdd(result, addend)
		}
		addend = ecDouble(addend)
		n.Rsh(n, 1)
	}
	return result
}
